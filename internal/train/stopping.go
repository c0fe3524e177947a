package train

import "context"

// emergencyStop is the unconditional, highest-priority stop: commanded
// speed drops to zero immediately and the primary state machine moves to
// StateStopping regardless of what else was happening (spec.md §4.7
// "unified stopping priority 1").
func (tr *Train) emergencyStop(ctx context.Context) {
	tr.applyEvent(EventEmergencyStop)
	tr.applyEffectiveSpeed(ctx, 0)
	tr.Nav.Status = StatusStopping
}

// evaluateStopConditions is pass step 6: the unified stopping priority
// list from spec.md §4.7, evaluated top to bottom, each one short-
// circuiting the rest.
func (tr *Train) evaluateStopConditions(ctx context.Context, now int64) {
	if tr.Primary == StateError || tr.Primary == StateReversing {
		return
	}

	// Priority 1: collision avoidance — a block within the safety margin
	// ahead that isn't owned by this train.
	if tr.collisionAhead() {
		tr.emergencyStop(ctx)
		return
	}

	// Priority 2: end of the currently activated path, still short of the
	// destination — hold here until more of the path gets reserved.
	if tr.Nav.Mode == ModeWaypoint && tr.reachedEndOfActivation() {
		tr.Nav.NeedsPathContinuation = true
		tr.applyEvent(EventStopRequested)
		tr.applyEffectiveSpeed(ctx, 0)
		return
	}

	// Priority 3: an upcoming reversal point within stopping distance.
	if tr.Nav.Mode == ModeWaypoint && tr.Nav.ReversalNodeIdx >= 0 && tr.Reversal == ReversalNone && tr.approachingReversal() {
		tr.applyEvent(EventReversalNeeded)
		tr.applyEffectiveSpeed(ctx, 0)
		return
	}

	// Priority 4/5: destination distance, compensated for train length and
	// any pending reversal clearance, with a low-speed creep on final
	// approach rather than an abrupt stop.
	if tr.Nav.Mode == ModeWaypoint && tr.Nav.DestinationNode >= 0 {
		if d, ok := tr.distanceToDestination(); ok {
			switch {
			case d <= 0:
				tr.arriveAtDestination(ctx, now)
				return
			case d <= tr.Motion.StoppingDistanceMM+tr.marginMM:
				tr.engageLowSpeedCreep(ctx, d)
				return
			}
		}
	}

	if tr.Primary == StateStopping && tr.Motion.ActualVelocity == 0 {
		tr.Primary = StateIdle
		tr.Movement = MovementStationary
	}
}

// collisionAhead reports whether the first expected sensor is within the
// current stopping distance plus safety margin and owned by another
// train.
func (tr *Train) collisionAhead() bool {
	es := tr.Motion.Expected[0]
	if es.NodeIdx < 0 {
		return false
	}
	remaining := es.DistanceMM - tr.Motion.Position.OffsetMM
	if remaining > tr.Motion.StoppingDistanceMM+tr.marginMM {
		return false
	}
	owner := tr.cond.OwnerOfNode(es.NodeIdx)
	return owner != 0 && owner != tr.ID
}

func (tr *Train) reachedEndOfActivation() bool {
	return tr.Nav.PathState == PathReached && tr.Motion.Position.NodeIdx == tr.Nav.FurthestActivated
}

func (tr *Train) approachingReversal() bool {
	if tr.Nav.ActivePath == nil || tr.Nav.ReversalNodeIdx < 0 {
		return false
	}
	d, ok := remainingPathDistance(tr.Nav.ActivePath, tr.graph, tr.Motion.Position.NodeIdx, tr.Nav.ReversalNodeIdx)
	if !ok {
		return false
	}
	remaining := d - tr.Motion.Position.OffsetMM
	return remaining <= tr.Motion.StoppingDistanceMM+tr.lengthMM
}

// arriveAtDestination settles the train into idle at its destination and
// releases everything but the block it's actually standing in. If random
// wandering is enabled, it schedules the next departure after a pause
// rather than immediately picking a new destination.
func (tr *Train) arriveAtDestination(ctx context.Context, now int64) {
	tr.applyEffectiveSpeed(ctx, 0)
	tr.applyEvent(EventStopRequested)
	tr.Nav.Status = StatusIdle
	tr.Nav.PathState = PathNone
	tr.Nav.ActivePath = nil
	tr.Nav.ReversalNodeIdx = -1
	tr.Nav.Arrived = true
	tr.cond.ReleaseAllExcept(tr.ID, tr.Motion.Position.NodeIdx, true)
	tr.Nav.ReservedBlocks = nil
	tr.Nav.FurthestActivated = -1
	if tr.Nav.RandomEnabled {
		tr.Nav.RandomPauseUntilTick = now + RandomWanderPauseTicks
	}
}

// RandomWanderPauseTicks is how long a random-destination train sits at
// each stop before picking its next one (SPEC_FULL.md §3's supplemented
// random-destination wandering).
const RandomWanderPauseTicks = 300 // 3s


// advanceReversal steps the ReversalSubState machine once per pass while
// Primary == StateReversing (spec.md §4.7/SPEC_FULL.md §3's explicit
// reversal sub-states): stop fully, issue the reverse command, hold for a
// short clearance window so the freshly-reversed consist doesn't immediately
// re-enter a block it just backed out of, then resume.
func (tr *Train) advanceReversal(ctx context.Context) {
	switch tr.Reversal {
	case ReversalStopping:
		if tr.Motion.ActualVelocity == 0 {
			tr.Reversal = ReversalCommand
		}
	case ReversalCommand:
		if err := tr.sendReverseCommand(ctx); err == nil {
			exited := tr.Motion.Position.NodeIdx
			tr.Motion.Position = Position{NodeIdx: tr.graph.At(exited).Reverse, OffsetMM: 0}
			tr.Nav.ActivePath = nil
			tr.Nav.PathState = PathReversing
			tr.Nav.ReversalNodeIdx = -1
			tr.Reversal = ReversalClearing
			tr.reversalClearTick = -1
		}
	case ReversalClearing:
		if tr.reversalClearTick < 0 {
			tr.reversalClearTick = tr.lastTick + ReversalClearanceTicks
		}
		if tr.lastTick >= tr.reversalClearTick {
			tr.Reversal = ReversalResuming
		}
	case ReversalResuming:
		tr.applyEvent(EventReversalComplete)
		tr.Nav.PathState = PathNone
		if tr.Nav.Mode == ModeWaypoint {
			tr.Nav.Status = StatusRequestingPath
		}
	}
}

// ReversalClearanceTicks is how long a reversed train holds still before
// resuming (spec.md §4.7's reversal sequence).
const ReversalClearanceTicks = 100 // 1s
