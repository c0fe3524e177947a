// Package train implements the per-train autonomous controller (spec.md
// §4.7): a per-train task whose event loop advances a kinematic motion
// model, progressively activates paths from the conductor, tracks
// sensor-based localization with timeout handling, and enforces
// collision-avoidance safety. Each train is one goroutine, exactly like
// every other server in this system (conductor, cmdscheduler, ioserver):
// all of its state is touched only inside Train.Run, reached only via the
// public methods in commands.go which enqueue a closure and wait for it
// to run.
package train

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"

	"trainctl-go/internal/clockserver"
	"trainctl-go/internal/cmdscheduler"
	"trainctl-go/internal/conductor"
	"trainctl-go/internal/kinematic"
	"trainctl-go/internal/msgqueue"
	"trainctl-go/internal/topology"
)

// Default physical/tuning constants (spec.md §3/§9's "supplemented"
// train-length and safety-margin fields).
const (
	DefaultTrainLengthMM   = kinematic.TrainLengthMM
	DefaultSafetyMarginMM  = 100
	ActivationBudgetMM     = 2000
	MaxPathRetryAttempts   = 5
	PathRetryIntervalTicks = 200 // 2s at 100 ticks/s (spec.md §4.7 "every 2s")
)

// Train is the per-train controller server.
type Train struct {
	ID int32

	graph *topology.Graph
	cond  *conductor.Conductor
	sched *cmdscheduler.Server
	clock *clockserver.Server
	mq    *msgqueue.Broker

	table    *kinematic.Table
	lengthMM int32
	marginMM int32

	Primary  PrimaryState
	Movement MovementSubState
	Reversal ReversalSubState
	Motion   MotionState
	Nav      NavState

	pathBackoff *backoff.ExponentialBackOff

	cmdCh             chan *command
	sensorSub         *msgqueue.Subscription
	lastTick          int64
	reversalClearTick int64

	snapshot atomic.Value // holds Snapshot
}

// New constructs a train controller starting at startNode (a sensor,
// enter, or exit node index) facing heading.
func New(id int32, graph *topology.Graph, cond *conductor.Conductor, sched *cmdscheduler.Server, clock *clockserver.Server, mq *msgqueue.Broker, startNode int32, heading Heading) *Train {
	tr := &Train{
		ID:       id,
		graph:    graph,
		cond:     cond,
		sched:    sched,
		clock:    clock,
		mq:       mq,
		table:    kinematic.DefaultTable(),
		lengthMM: DefaultTrainLengthMM,
		marginMM: DefaultSafetyMarginMM,
		cmdCh:    make(chan *command, 8),
	}
	tr.Primary = StateIdle
	tr.Motion.Heading = heading
	tr.Motion.Position = Position{NodeIdx: startNode}
	tr.Motion.Expected = [2]ExpectedSensor{{NodeIdx: -1}, {NodeIdx: -1}}
	tr.Nav.DestinationNode = -1
	tr.Nav.FurthestActivated = -1
	tr.Nav.ReversalNodeIdx = -1
	tr.pathBackoff = newPathBackoff()
	tr.publishSnapshot()
	return tr
}

func newPathBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.MaxInterval = 8 * time.Second
	b.MaxElapsedTime = 0 // attempts are capped explicitly, not by elapsed wall time
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Run is the train's event loop: the ten-step pass from spec.md §4.7,
// paced by the clock service's tick.
func (tr *Train) Run(ctx context.Context) {
	tr.sensorSub = tr.mq.Subscribe(msgqueue.SensorUpdate)
	defer tr.sensorSub.Close()

	now, err := tr.clock.Time(ctx)
	if err != nil {
		return
	}
	tr.lastTick = now

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now, err := tr.clock.Time(ctx)
		if err != nil {
			return
		}
		elapsed := now - tr.lastTick
		if elapsed <= 0 {
			elapsed = 1
		}
		tr.lastTick = now

		tr.advanceActualSpeed(elapsed)          // 1
		tr.integratePosition(elapsed)           // 2
		tr.reassertBlockReservation(ctx)        // 3
		tr.processOneSensorEvent(ctx, now)       // 4
		tr.recomputeStoppingDistance()          // 5
		tr.evaluateStopConditions(ctx, now)     // 6
		tr.runModeSpecificUpdate(ctx, now)       // 7
		tr.publishPosition(ctx)                 // 8
		tr.handlePendingCommand(ctx)             // 9

		if err := tr.clock.Delay(ctx, 1); err != nil { // 10
			return
		}
	}
}

// publishPosition emits the TrainPosition event (spec.md §6) and also
// refreshes the snapshot exposed to external readers.
func (tr *Train) publishPosition(ctx context.Context) {
	tr.publishSnapshot()
	ev := tr.buildPositionEvent()
	tr.mq.Publish(msgqueue.TrainPosition, ev)
}

func (tr *Train) buildPositionEvent() msgqueue.TrainPositionEvent {
	dest := ""
	destName := ""
	if tr.Nav.DestinationNode >= 0 {
		destName = tr.graph.At(tr.Nav.DestinationNode).Name
		dest = destName
	}
	ns1, ns2 := "", ""
	if tr.Motion.Expected[0].NodeIdx >= 0 {
		ns1 = tr.graph.At(tr.Motion.Expected[0].NodeIdx).Name
	}
	if tr.Motion.Expected[1].NodeIdx >= 0 {
		ns2 = tr.graph.At(tr.Motion.Expected[1].NodeIdx).Name
	}
	return msgqueue.TrainPositionEvent{
		TrainID:             tr.ID,
		CurrentLocation:     tr.graph.At(tr.Motion.Position.NodeIdx).Name,
		Direction:           int32(tr.Motion.Heading),
		Headlight:           tr.Motion.Headlight,
		Speed:               tr.Motion.CommandedLevel,
		Destination:         dest,
		DestinationName:     destName,
		Mode:                tr.Nav.Mode.String(),
		LocationOffsetMM:    tr.Motion.Position.OffsetMM,
		DestinationOffsetMM: tr.Nav.DestinationOffsetMM,
		Status:              tr.Nav.Status.String(),
		NextSensor1:         ns1,
		NextSensor2:         ns2,
	}
}

func (tr *Train) publishSnapshot() {
	s := Snapshot{
		TrainID:             tr.ID,
		CurrentLocation:     tr.graph.At(tr.Motion.Position.NodeIdx).Name,
		Direction:           tr.Motion.Heading,
		Headlight:           tr.Motion.Headlight,
		Speed:               tr.Motion.CommandedLevel,
		Mode:                tr.Nav.Mode,
		LocationOffsetMM:    tr.Motion.Position.OffsetMM,
		DestinationOffsetMM: tr.Nav.DestinationOffsetMM,
		Status:              tr.Nav.Status,
		Primary:             tr.Primary,
		Movement:            tr.Movement,
		PathState:           tr.Nav.PathState,
	}
	if tr.Nav.DestinationNode >= 0 {
		s.Destination = tr.graph.At(tr.Nav.DestinationNode).Name
		s.DestinationName = s.Destination
	}
	if tr.Motion.Expected[0].NodeIdx >= 0 {
		s.NextSensor1 = tr.graph.At(tr.Motion.Expected[0].NodeIdx).Name
	}
	if tr.Motion.Expected[1].NodeIdx >= 0 {
		s.NextSensor2 = tr.graph.At(tr.Motion.Expected[1].NodeIdx).Name
	}
	tr.snapshot.Store(s)
}

// Snapshot returns the most recently published read-only view of this
// train; safe to call from any goroutine.
func (tr *Train) Snapshot() Snapshot {
	if v := tr.snapshot.Load(); v != nil {
		return v.(Snapshot)
	}
	return Snapshot{TrainID: tr.ID}
}
