package conductor

import (
	"context"
	"strconv"
	"testing"

	"trainctl-go/bus"
	"trainctl-go/internal/clockserver"
	"trainctl-go/internal/cmdscheduler"
	"trainctl-go/internal/ioserver"
	"trainctl-go/internal/msgqueue"
	"trainctl-go/internal/topology"
)

func newTestConductor(t *testing.T) (context.Context, context.CancelFunc, *topology.Graph, *Conductor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	graph := topology.LayoutA()
	if err := graph.Validate(); err != nil {
		t.Fatalf("LayoutA invalid: %v", err)
	}

	console, _ := ioserver.OpenPort(ioserver.PortConfig{Type: "loopback"})
	marklin, _ := ioserver.OpenPort(ioserver.PortConfig{Type: "loopback"})
	ios := ioserver.New(console, marklin)
	go ios.Run(ctx)

	sched := cmdscheduler.New(ios)
	go sched.Run(ctx)

	clock := clockserver.New()
	go clock.Run(ctx)

	b := bus.NewBus(256)
	conn := b.NewConnection("test")
	mq := msgqueue.NewBroker(conn)

	cond := New(graph, mq, sched, clock)
	go cond.Run(ctx)

	return ctx, cancel, graph, cond
}

func TestFindPathStraightRoute(t *testing.T) {
	_, cancel, graph, cond := newTestConductor(t)
	defer cancel()

	from := graph.MustIndex("SA1")
	to := graph.MustIndex("SA4")

	path, err := cond.FindPath(from, to, false, nil)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(path.Nodes) == 0 || path.Nodes[0].NodeIdx != from {
		t.Fatalf("path should start at %d, got %+v", from, path.Nodes)
	}
	if path.Nodes[len(path.Nodes)-1].NodeIdx != to {
		t.Fatalf("path should end at %d, got %+v", to, path.Nodes)
	}
}

func TestActivatePathReservesBlocksAndSetsSwitches(t *testing.T) {
	_, cancel, graph, cond := newTestConductor(t)
	defer cancel()

	from := graph.MustIndex("SA1")
	to := graph.MustIndex("SA4")
	path, err := cond.FindPath(from, to, false, nil)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}

	res := cond.ActivatePath(1, path, 10000, from)
	if len(res.ReservedBlocks) == 0 {
		t.Fatalf("expected at least one reserved block, got %+v", res)
	}

	owner := cond.OwnerOfNode(graph.MustIndex("SA2"))
	if owner != 1 {
		t.Fatalf("expected train 1 to own the block containing SA2, got owner %d", owner)
	}

	br1 := graph.MustIndex("BR1")
	if _, ok := cond.SwitchDirection(br1); !ok {
		t.Fatalf("expected BR1 to have a recorded direction")
	}
}

func TestActivatePathStopsAtUnavailableBlock(t *testing.T) {
	_, cancel, graph, cond := newTestConductor(t)
	defer cancel()

	// Train 99 already owns the block containing SA3.
	cond.ActivatePath(99, &Path{Nodes: []PathNode{{NodeIdx: graph.MustIndex("SA3")}}}, 10000, graph.MustIndex("SA3"))

	from := graph.MustIndex("SA1")
	to := graph.MustIndex("SA4")
	path, err := cond.FindPath(from, to, false, nil)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}

	res := cond.ActivatePath(1, path, 10000, from)
	if res.StopReason != StopBlockUnavailable {
		t.Fatalf("expected StopBlockUnavailable, got %v (result=%+v)", res.StopReason, res)
	}
	if res.BlockingTrainID != 99 {
		t.Fatalf("expected blocking train 99, got %d", res.BlockingTrainID)
	}
}

func TestReassertRefreshesOccupancy(t *testing.T) {
	ctx, cancel, graph, cond := newTestConductor(t)
	defer cancel()

	node := graph.MustIndex("SA1")
	cond.ActivatePath(5, &Path{Nodes: []PathNode{{NodeIdx: node}}}, 10000, node)

	cond.Reassert(ctx, 5, node)

	id := cond.BlockIDForNode(node)
	snap := cond.Snapshot("block:")
	if _, ok := snap["block:"+strconv.Itoa(int(id))]; !ok {
		t.Fatalf("expected block %d present in snapshot, got %+v", id, snap)
	}
}

func TestIsBlockBoundary(t *testing.T) {
	_, cancel, graph, cond := newTestConductor(t)
	defer cancel()

	entry := graph.MustIndex("SA1")
	if !cond.IsBlockBoundary(entry) {
		t.Fatalf("SA1 is block 1's entry sensor and should be a boundary")
	}
}

func TestDeadlockExclusionSetOnlyForLowerID(t *testing.T) {
	ctx, cancel, graph, cond := newTestConductor(t)
	defer cancel()

	a, b := graph.MustIndex("SA1"), graph.MustIndex("SA4")
	// Train 1 owns the block containing SA1, train 2 owns the block
	// containing SA4, and each one's failed path names the other's block
	// as its destination: a genuine mutual block.
	cond.ActivatePath(1, &Path{Nodes: []PathNode{{NodeIdx: a}}}, 10000, a)
	cond.ActivatePath(2, &Path{Nodes: []PathNode{{NodeIdx: b}}}, 10000, b)
	cond.RecordFailedPath(ctx, 1, 2, a, b)
	cond.RecordFailedPath(ctx, 2, 1, b, a)

	if ex := cond.ExclusionSetFor(ctx, 2); ex != nil {
		t.Fatalf("higher-id train should not compute an exclusion set, got %+v", ex)
	}
	if ex := cond.ExclusionSetFor(ctx, 1); ex == nil {
		t.Fatalf("lower-id train should compute a non-nil exclusion set")
	}
}

// TestDeadlockExclusionUsesRecordedBlocker covers the case where the
// obstructing block is NOT the block containing the failed request's
// destination node (e.g. the blockage was somewhere along the route, and
// the destination's own block is still free). ExclusionSetFor must use
// the blockingTrainID RecordFailedPath was actually given, not re-derive
// a blocker by looking up the owner of the destination's block.
func TestDeadlockExclusionUsesRecordedBlocker(t *testing.T) {
	ctx, cancel, graph, cond := newTestConductor(t)
	defer cancel()

	inBlock1 := graph.MustIndex("SA1")
	inBlock2 := graph.MustIndex("SA3")
	destInBlock4 := graph.MustIndex("SA4") // block 4 is left unowned on purpose

	cond.ActivatePath(1, &Path{Nodes: []PathNode{{NodeIdx: inBlock1}}}, 10000, inBlock1)
	cond.ActivatePath(3, &Path{Nodes: []PathNode{{NodeIdx: inBlock2}}}, 10000, inBlock2)

	// Train 1 wants into block 4 (free), but was really turned back by
	// train 3's block 2 somewhere along the route.
	cond.RecordFailedPath(ctx, 1, 3, inBlock1, destInBlock4)
	// Train 3 wants into block 1, genuinely owned by train 1.
	cond.RecordFailedPath(ctx, 3, 1, inBlock2, inBlock1)

	ex := cond.ExclusionSetFor(ctx, 1)
	if len(ex) != 1 || ex[0] != 2 {
		t.Fatalf("expected exclusion set [2] (train 3's block), got %+v", ex)
	}
}
