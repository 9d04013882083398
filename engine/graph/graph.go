// Package graph implements the graph builder/sorter: direct feeding,
// transitive fed_by, the topological sort with driver tie-break, subgraph
// chain assignment (rechain), and bounded-depth latency propagation.
package graph

import (
	"sort"

	"github.com/sentovic/jack1/engine/client"
	"github.com/sentovic/jack1/engine/port"
)

// Edge is one output-port -> input-port connection, the unit the builder
// reduces to a client-level feeding relation.
type Edge struct {
	SourcePort uint32
	DestPort   uint32
}

// DirectFeeds computes, for each client id appearing in edges, the set of
// client ids that directly feed it: A feeds B iff some output of A
// connects to some input of B.
func DirectFeeds(edges []Edge, ports *port.Table) map[uint32]map[uint32]bool {
	direct := make(map[uint32]map[uint32]bool)
	for _, e := range edges {
		src, ok1 := ports.Get(e.SourcePort)
		dst, ok2 := ports.Get(e.DestPort)
		if !ok1 || !ok2 {
			continue
		}
		if direct[dst.OwnerClientID] == nil {
			direct[dst.OwnerClientID] = make(map[uint32]bool)
		}
		direct[dst.OwnerClientID][src.OwnerClientID] = true
	}
	return direct
}

// TraceTerminal computes the transitive fed_by set for every client named
// in direct, following the spec's cycle-safe walk: a node already present
// in the root's fed_by set is never re-entered, which both guarantees
// termination and leaves feedback loops broken rather than infinite.
func TraceTerminal(direct map[uint32]map[uint32]bool) map[uint32]map[uint32]bool {
	fedBy := make(map[uint32]map[uint32]bool, len(direct))

	var walk func(root, cur uint32)
	walk = func(root, cur uint32) {
		for c := range direct[cur] {
			if fedBy[root][c] {
				continue
			}
			if fedBy[root] == nil {
				fedBy[root] = make(map[uint32]bool)
			}
			fedBy[root][c] = true
			walk(root, c)
		}
	}

	for root := range direct {
		if fedBy[root] == nil {
			fedBy[root] = make(map[uint32]bool)
		}
		walk(root, root)
	}
	return fedBy
}

// ApplyFedBy writes the computed sets back onto the registry's clients,
// clearing FedBy for clients absent from the new computation.
func ApplyFedBy(reg *client.Registry, fedBy map[uint32]map[uint32]bool) {
	for _, c := range reg.All() {
		if set, ok := fedBy[c.ID]; ok {
			c.FedBy = set
		} else {
			c.FedBy = make(map[uint32]bool)
		}
	}
}

// Less implements the spec's comparator: A < B if A feeds B (transitively)
// and B does not feed A. When both feed each other (a feedback loop), the
// driver client sorts first; otherwise they compare equal and the caller
// must fall back to a stable secondary key (id).
func Less(a, b *client.Client) (less bool, equal bool) {
	aFeedsB := b.FedBy[a.ID]
	bFeedsA := a.FedBy[b.ID]

	switch {
	case aFeedsB && !bFeedsA:
		return true, false
	case bFeedsA && !aFeedsB:
		return false, false
	case aFeedsB && bFeedsA:
		// feedback loop: driver wins the earlier slot
		if a.Kind == client.KindDriver {
			return true, false
		}
		if b.Kind == client.KindDriver {
			return false, false
		}
		return false, true
	default:
		return false, true
	}
}

// Sort produces the topologically ordered list of active clients,
// breaking ties (including feedback loops with no driver present) by id
// for stability across calls.
func Sort(clients []*client.Client) []*client.Client {
	active := make([]*client.Client, 0, len(clients))
	for _, c := range clients {
		if c.Active && !c.Dead {
			active = append(active, c)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		less, equal := Less(a, b)
		if equal {
			return a.ID < b.ID
		}
		return less
	})
	return active
}

// Rechain walks the sorted client list, numbering execution_order and
// assigning FIFO chain fds: external clients within a contiguous run
// share the run's start_fd; the last external client of the run becomes
// the terminator with wait_fd = fifo[n]; an in-process client breaks the
// run and bumps n.
func Rechain(sorted []*client.Client) (nextFIFO int) {
	n := 0
	var runStart *client.Client

	flushRun := func(last *client.Client) {
		if runStart == nil {
			return
		}
		last.SubgraphWaitFD = n
		n++
		runStart = nil
	}

	for i, c := range sorted {
		c.ExecutionOrder = i
		c.SubgraphStartFD = -1
		c.SubgraphWaitFD = -1

		switch c.Kind {
		case client.KindInProcess, client.KindDriver:
			flushRun(prevExternal(sorted, i))
			// in-process/driver clients run inline, no subgraph fds
		default: // external
			if runStart == nil {
				runStart = c
				runStart.SubgraphStartFD = runStart.ExecutionOrder
			}
			c.SubgraphStartFD = runStart.SubgraphStartFD
		}
	}
	if runStart != nil {
		flushRun(sorted[len(sorted)-1])
	}
	return n
}

func prevExternal(sorted []*client.Client, upto int) *client.Client {
	for i := upto - 1; i >= 0; i-- {
		if sorted[i].Kind != client.KindInProcess && sorted[i].Kind != client.KindDriver {
			return sorted[i]
		}
	}
	return nil
}

// LatencyMaxDepth bounds the DFS used to recompute total_latency so that
// malformed cycles cannot cause non-termination.
const LatencyMaxDepth = 8

// TotalLatency computes port p's total_latency by DFS over connections in
// the direction its role indicates: outputs propagate toward sinks
// (forward through destinations), inputs propagate toward sources
// (backward through the port feeding them).
func TotalLatency(p port.Port, ports *port.Table) int {
	return dfsLatency(p, ports, 0, map[uint32]bool{p.ID: true})
}

func dfsLatency(p port.Port, ports *port.Table, depth int, visited map[uint32]bool) int {
	if depth >= LatencyMaxDepth {
		return p.Latency
	}
	best := p.Latency
	for _, next := range p.Connections {
		if visited[next] {
			continue
		}
		np, ok := ports.Get(next)
		if !ok {
			continue
		}
		visited[next] = true
		chain := p.Latency + dfsLatency(np, ports, depth+1, visited)
		delete(visited, next)
		if chain > best {
			best = chain
		}
	}
	return best
}
