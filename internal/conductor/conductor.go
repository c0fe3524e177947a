// Package conductor is the track authority (spec.md §4.6): it owns the
// static track graph, the block reservation table, switch state, the
// sensor poller, and path-finding, and is the only thing in the system
// allowed to grant a train a block. Like every other server in this
// system it is a single goroutine: every exported method hands a closure
// to Conductor.do and blocks for the reply, so the closures themselves
// never need locks.
package conductor

import (
	"context"

	"trainctl-go/internal/clockserver"
	"trainctl-go/internal/cmdscheduler"
	"trainctl-go/internal/msgqueue"
	"trainctl-go/internal/topology"
)

// Switch is the conductor's view of one turnout's last commanded state.
type Switch struct {
	NodeIdx         int32
	Direction       topology.Direction
	LastChangedTick int64
}

// Conductor is the track authority server.
type Conductor struct {
	graph *topology.Graph
	mq    *msgqueue.Broker
	sched *cmdscheduler.Server
	clock *clockserver.Server

	reversalBlacklist *topology.ReversalBlacklist
	sensorBlacklist   *topology.SensorBlacklist

	blocks   map[int32]*Block
	switches map[int32]*Switch // keyed by node index of the branch node
	store    *store

	// sensor state: one bit per physical sensor id, banked; sensors share
	// hardware ids across the forward/reverse node pair so this is indexed
	// by hardware id, not node index.
	sensorState map[int32]bool

	workCh chan func()

	failedPaths []failedPathEntry
}

// failedPathEntry backs the deadlock detector's short ring buffer of
// recently failed path requests (spec.md §4.6 "deadlock detection").
type failedPathEntry struct {
	trainID         int32
	from, to        int32
	blockingTrainID int32
	tick            int64
}

// New builds a Conductor over the given graph, wiring the hardcoded
// LayoutA block table. Callers that want a different layout should build
// their own block table with buildBlocks and construct a Conductor
// manually; New is the common case used by cmd/railctl.
func New(graph *topology.Graph, mq *msgqueue.Broker, sched *cmdscheduler.Server, clock *clockserver.Server) *Conductor {
	c := &Conductor{
		graph:             graph,
		mq:                mq,
		sched:             sched,
		clock:             clock,
		reversalBlacklist: topology.NewReversalBlacklist(),
		sensorBlacklist:   topology.NewSensorBlacklist(0),
		blocks:            buildBlocks(graph, layoutABlocks()),
		switches:          map[int32]*Switch{},
		sensorState:       map[int32]bool{},
		workCh:            make(chan func(), 64),
		store:             newStore(),
	}
	for i := range graph.Nodes {
		n := &graph.Nodes[i]
		if n.Type == topology.NodeBranch {
			sw := &Switch{NodeIdx: int32(i), Direction: topology.DirStraight}
			c.switches[int32(i)] = sw
			c.store.setSwitch(sw)
		}
	}
	for _, b := range c.blocks {
		c.store.setBlock(b)
	}
	for _, id := range topology.DefaultBlacklistedSensorIDs() {
		c.sensorBlacklist.MarkLogged(id)
	}
	return c
}

// Snapshot returns the conductor's queryable read-model under the given
// key prefix ("block:", "switch:", or "sensor:").
func (c *Conductor) Snapshot(prefix string) map[string]string {
	return c.store.Snapshot(prefix)
}

// Close releases the conductor's backing store.
func (c *Conductor) Close() error {
	return c.store.Close()
}

// do runs fn on the conductor's single goroutine and waits for it to
// finish, the same pattern ioserver and cmdscheduler use for their
// client-facing methods, except the conductor's request shape is a bare
// closure rather than a typed request struct since its operations are
// too varied to usefully share one request type.
func (c *Conductor) do(fn func()) {
	done := make(chan struct{})
	c.workCh <- func() {
		fn()
		close(done)
	}
	<-done
}

// Run is the conductor's event loop. It owns every field above; nothing
// else in the process touches them directly.
func (c *Conductor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-c.workCh:
			job()
		}
	}
}
