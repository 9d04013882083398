package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentovic/jack1/engine/client"
	"github.com/sentovic/jack1/engine/graph"
	"github.com/sentovic/jack1/engine/port"
)

func setupLinearChain(t *testing.T) (*client.Registry, *port.Table, []graph.Edge) {
	reg := client.NewRegistry()
	ports := port.NewTable(16)
	ports.RegisterType(port.Type{ID: 0, Name: "audio", ScaleFactor: 1, SampleBytes: 4})

	x, _ := reg.Add("x", client.KindExternal, 1)
	y, _ := reg.Add("y", client.KindExternal, 2)
	z, _ := reg.Add("z", client.KindExternal, 3)
	for _, c := range []*client.Client{x, y, z} {
		require.NoError(t, reg.Activate(c.ID))
	}

	xOut, _ := ports.Register(0, x.ID, "x:out", port.FlagOutput)
	yIn, _ := ports.Register(0, y.ID, "y:in", port.FlagInput)
	yOut, _ := ports.Register(0, y.ID, "y:out", port.FlagOutput)
	zIn, _ := ports.Register(0, z.ID, "z:in", port.FlagInput)

	edges := []graph.Edge{
		{SourcePort: xOut.ID, DestPort: yIn.ID},
		{SourcePort: yOut.ID, DestPort: zIn.ID},
	}
	return reg, ports, edges
}

func TestLinearChain_TopologicalOrder(t *testing.T) {
	reg, ports, edges := setupLinearChain(t)

	direct := graph.DirectFeeds(edges, ports)
	fedBy := graph.TraceTerminal(direct)
	graph.ApplyFedBy(reg, fedBy)

	sorted := graph.Sort(reg.All())
	require.Len(t, sorted, 3)
	require.Equal(t, "x", sorted[0].Name)
	require.Equal(t, "y", sorted[1].Name)
	require.Equal(t, "z", sorted[2].Name)
}

func TestFeedbackLoop_DriverWinsTieBreak(t *testing.T) {
	reg := client.NewRegistry()
	ports := port.NewTable(8)
	ports.RegisterType(port.Type{ID: 0, Name: "audio", ScaleFactor: 1, SampleBytes: 4})

	d, _ := reg.Add("driver", client.KindDriver, 0)
	e, _ := reg.Add("e", client.KindExternal, 1)
	require.NoError(t, reg.Activate(d.ID))
	require.NoError(t, reg.Activate(e.ID))

	dOut, _ := ports.Register(0, d.ID, "d:out", port.FlagOutput)
	eIn, _ := ports.Register(0, e.ID, "e:in", port.FlagInput)
	eOut, _ := ports.Register(0, e.ID, "e:out", port.FlagOutput)
	dIn, _ := ports.Register(0, d.ID, "d:in", port.FlagInput)

	edges := []graph.Edge{
		{SourcePort: dOut.ID, DestPort: eIn.ID},
		{SourcePort: eOut.ID, DestPort: dIn.ID},
	}

	fedBy := graph.TraceTerminal(graph.DirectFeeds(edges, ports))
	graph.ApplyFedBy(reg, fedBy)

	require.True(t, d.FedBy[e.ID])
	require.True(t, e.FedBy[d.ID])

	sorted := graph.Sort(reg.All())
	require.Equal(t, "driver", sorted[0].Name)
}

func TestRechain_ExternalRunSharesStartFD_TerminatorGetsWaitFD(t *testing.T) {
	reg, ports, edges := setupLinearChain(t)
	_ = ports
	fedBy := graph.TraceTerminal(graph.DirectFeeds(edges, ports))
	graph.ApplyFedBy(reg, fedBy)
	sorted := graph.Sort(reg.All())

	n := graph.Rechain(sorted)
	require.Equal(t, 1, n)

	for _, c := range sorted {
		require.Equal(t, sorted[0].SubgraphStartFD, c.SubgraphStartFD)
	}
	require.Equal(t, 0, sorted[2].SubgraphWaitFD)
	require.Equal(t, -1, sorted[0].SubgraphWaitFD)
	require.Equal(t, -1, sorted[1].SubgraphWaitFD)
}

func TestRechain_InProcessClientBreaksSubgraph(t *testing.T) {
	reg := client.NewRegistry()
	a, _ := reg.Add("a", client.KindExternal, 1)
	m, _ := reg.Add("m", client.KindInProcess, 0)
	b, _ := reg.Add("b", client.KindExternal, 2)
	for _, c := range []*client.Client{a, m, b} {
		require.NoError(t, reg.Activate(c.ID))
	}
	sorted := []*client.Client{a, m, b}

	n := graph.Rechain(sorted)
	require.Equal(t, 2, n)
	require.Equal(t, 0, a.SubgraphWaitFD)
	require.Equal(t, 1, b.SubgraphWaitFD)
}

func TestTotalLatency_PropagatesAlongChain(t *testing.T) {
	ports := port.NewTable(4)
	ports.RegisterType(port.Type{ID: 0, Name: "audio", ScaleFactor: 1, SampleBytes: 4})
	a, _ := ports.Register(0, 1, "a", port.FlagOutput)
	b, _ := ports.Register(0, 1, "b", port.FlagInput)
	ports.Mutate(a.ID, func(p *port.Port) { p.Latency = 10; p.Connections = []uint32{b.ID} })
	ports.Mutate(b.ID, func(p *port.Port) { p.Latency = 5 })

	ap, _ := ports.Get(a.ID)
	require.Equal(t, 15, graph.TotalLatency(ap, ports))
}
