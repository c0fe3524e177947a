package train

import (
	"context"
	"math/rand"

	"trainctl-go/internal/topology"
)

// DefaultCruiseLevel is the commanded speed level a waypoint-mode train
// runs at once a path is active, absent any lower-priority override from
// evaluateStopConditions (e.g. low-speed creep).
const DefaultCruiseLevel uint8 = 10

// runModeSpecificUpdate is pass step 7: advance the reversal sequence if
// one is in progress, otherwise dispatch to the active Mode's update.
func (tr *Train) runModeSpecificUpdate(ctx context.Context, now int64) {
	if tr.Primary == StateReversing {
		tr.advanceReversal(ctx)
		return
	}
	switch tr.Nav.Mode {
	case ModeManual:
		tr.applyEffectiveSpeed(ctx, tr.Motion.RequestedLevel)
	case ModeWaypoint:
		tr.runWaypointMode(ctx, now)
	}
}

// runWaypointMode drives Nav.Status through requesting a path, following
// it (extending activation and re-applying cruise speed as needed), and
// resuming after a stall once more path gets reserved (spec.md §4.7).
func (tr *Train) runWaypointMode(ctx context.Context, now int64) {
	if tr.Nav.DestinationNode < 0 {
		tr.maybeStartRandomWander(ctx, now)
		return
	}

	switch tr.Nav.Status {
	case StatusIdle:
		if tr.Nav.Arrived {
			tr.maybeStartRandomWander(ctx, now)
			return
		}
		tr.Nav.Status = StatusRequestingPath

	case StatusRequestingPath:
		if tr.requestPath(ctx, now) {
			tr.Nav.Status = StatusMoving
			tr.applyEvent(EventStartMoving)
			tr.applyEffectiveSpeed(ctx, DefaultCruiseLevel)
		}

	case StatusMoving:
		if tr.Nav.NeedsPathContinuation {
			tr.extendActivation(ctx)
			if tr.Nav.PathState == PathActive {
				tr.Nav.NeedsPathContinuation = false
				tr.applyEvent(EventStartMoving)
				tr.applyEffectiveSpeed(ctx, DefaultCruiseLevel)
			}
			return
		}
		if tr.Nav.ActivePath != nil && tr.Nav.PathState == PathActive {
			tr.extendActivation(ctx)
		}
		if tr.Primary != StateStopping && !tr.Nav.LowSpeedActive {
			tr.applyEffectiveSpeed(ctx, DefaultCruiseLevel)
		}
	}
}

// maybeStartRandomWander picks a new random sensor-node destination once
// RandomEnabled and the post-arrival pause has elapsed (SPEC_FULL.md §3's
// supplemented random-destination wandering).
func (tr *Train) maybeStartRandomWander(ctx context.Context, now int64) {
	if !tr.Nav.RandomEnabled || now < tr.Nav.RandomPauseUntilTick {
		return
	}
	candidates := tr.randomDestinationCandidates()
	if len(candidates) == 0 {
		return
	}
	next := candidates[rand.Intn(len(candidates))]
	if next == tr.Motion.Position.NodeIdx {
		return
	}
	tr.Nav.DestinationNode = next
	tr.Nav.DestinationOffsetMM = 0
	tr.Nav.Arrived = false
	tr.Nav.Status = StatusRequestingPath
}

func (tr *Train) randomDestinationCandidates() []int32 {
	var out []int32
	for i := range tr.graph.Nodes {
		if tr.graph.Nodes[i].Type == topology.NodeSensor {
			out = append(out, int32(i))
		}
	}
	return out
}
