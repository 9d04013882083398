// Package client implements the client registry: clients keyed by id and
// by name, their lifecycle state, and the fed_by set the graph builder
// maintains for each of them.
package client

import (
	"sync"

	"github.com/google/uuid"

	"github.com/sentovic/jack1/errs"
)

// Kind distinguishes the three client categories the engine recognizes.
type Kind uint8

const (
	KindExternal Kind = iota
	KindInProcess
	KindDriver
)

// State is a client's per-cycle execution state, reset at the start of
// every period.
type State uint8

const (
	NotTriggered State = iota
	Triggered
	Running
	Finished
)

// Client is one registry entry. Fields not needed outside the engine
// (control block, pid) are still tracked for completeness of the
// lifecycle and fault-isolation logic.
type Client struct {
	ID       uint32
	Name     string
	Kind     Kind
	Active   bool
	Dead     bool
	Timebase bool

	State          State
	ExecutionOrder int
	TimedOut       int
	ErrorCount     int
	AwakeAt        int64
	SignalledAt    int64
	FinishedAt     int64

	Ports []uint32
	FedBy map[uint32]bool

	SubgraphStartFD int // -1 when not a subgraph head
	SubgraphWaitFD  int // -1 when not a subgraph terminator
	RequestFD       int
	EventFD         int

	PID int

	// CorrelationID is a random UUID assigned when the client is added,
	// independent of its monotonic registry id. The engine's own log lines
	// do not include it.
	CorrelationID string
}

// ErrorWithSockets is the error count at or above which a faulted client
// is removed outright rather than merely zombified (spec §4.8).
const ErrorWithSockets = 3

// Registry is the engine's live-client index: by id and by name.
type Registry struct {
	mu       sync.RWMutex
	byID     map[uint32]*Client
	byName   map[string]*Client
	nextID   uint32
	timebase uint32
	hasTB    bool
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[uint32]*Client),
		byName: make(map[string]*Client),
	}
}

// Add registers a new client on successful handshake, assigning a
// monotonically increasing id. Fails if the name is already taken.
func (r *Registry) Add(name string, kind Kind, pid int) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return nil, errs.DuplicateConnection.Errorf(nil, "client name %q already registered", name)
	}

	c := &Client{
		ID:              r.nextID,
		Name:            name,
		Kind:            kind,
		FedBy:           make(map[uint32]bool),
		SubgraphStartFD: -1,
		SubgraphWaitFD:  -1,
		PID:             pid,
		CorrelationID:   uuid.NewString(),
	}
	r.nextID++
	r.byID[c.ID] = c
	r.byName[name] = c
	return c, nil
}

func (r *Registry) Get(id uint32) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

func (r *Registry) GetByName(name string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// All returns every registered client (live and zombie) in an unspecified
// order; callers that need topological order use engine/graph.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}

// SetTimebase assigns the timebase role to id, clearing any previous
// holder; exactly one client may hold the role at a time.
func (r *Registry) SetTimebase(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return errs.ClientNotFound.Errorf(nil, "client %d not found", id)
	}
	if r.hasTB {
		if prev, ok := r.byID[r.timebase]; ok {
			prev.Timebase = false
		}
	}
	c.Timebase = true
	r.timebase = id
	r.hasTB = true
	return nil
}

// Timebase returns the current timebase client, if any.
func (r *Registry) Timebase() (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.hasTB {
		return nil, false
	}
	c, ok := r.byID[r.timebase]
	return c, ok
}

// Zombify marks c dead and inactive, clears its owned-port list, and drops
// its timebase role if held. It does not touch the port table: the
// connections of c's ports are left in place. It does not remove c from
// the registry (spec §4.8: zombies still exist pending socket cleanup).
func (r *Registry) Zombify(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return errs.ClientNotFound.Errorf(nil, "client %d not found", id)
	}
	c.Dead = true
	c.Active = false
	c.Ports = nil
	if c.Timebase {
		c.Timebase = false
		r.hasTB = false
	}
	return nil
}

// Remove deletes a zombified client from the registry entirely.
func (r *Registry) Remove(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return errs.ClientNotFound.Errorf(nil, "client %d not found", id)
	}
	delete(r.byID, id)
	delete(r.byName, c.Name)
	return nil
}

// Activate sets c.Active, the precondition for participating in the next
// graph sort and cycle.
func (r *Registry) Activate(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return errs.ClientNotFound.Errorf(nil, "client %d not found", id)
	}
	if c.Dead {
		return errs.ClientNotActive.Errorf(nil, "client %d is a zombie", id)
	}
	c.Active = true
	return nil
}

func (r *Registry) Deactivate(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return errs.ClientNotFound.Errorf(nil, "client %d not found", id)
	}
	c.Active = false
	c.SubgraphStartFD = -1
	c.SubgraphWaitFD = -1
	return nil
}
