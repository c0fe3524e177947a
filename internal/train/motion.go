package train

import (
	"context"

	"trainctl-go/internal/kinematic"
	"trainctl-go/x/fixedpoint"
	"trainctl-go/x/mathx"
)

// advanceActualSpeed is pass step 1: move ActualVelocity toward the
// kinematic table's entry for the currently commanded level, at that
// entry's acceleration or deceleration, and derive the movement sub-state
// from the direction of travel toward the target.
func (tr *Train) advanceActualSpeed(elapsedTicks int64) {
	target := tr.table.Lookup(tr.Motion.CommandedLevel, tr.Motion.ApproachFromHigher)
	targetV := target.Velocity
	cur := tr.Motion.ActualVelocity

	switch {
	case targetV > cur:
		tr.Motion.ActualAcceleration = target.Acceleration
		tr.Movement = MovementAccelerating
	case targetV < cur:
		tr.Motion.ActualAcceleration = -target.Deceleration
		tr.Movement = MovementDecelerating
	default:
		tr.Motion.ActualAcceleration = 0
		if targetV == 0 {
			tr.Movement = MovementStationary
		} else {
			tr.Movement = MovementCruising
		}
	}

	if tr.Motion.ActualAcceleration == 0 {
		tr.Motion.ActualVelocity = targetV
		return
	}

	delta := int64(tr.Motion.ActualAcceleration) * elapsedTicks
	next := fixedpoint.SaturatingAdd(cur, fixedpoint.Q(delta))
	if tr.Motion.ActualAcceleration > 0 && next > targetV {
		next = targetV
	}
	if tr.Motion.ActualAcceleration < 0 && next < targetV {
		next = targetV
	}
	if next < 0 {
		next = 0
	}
	tr.Motion.ActualVelocity = next
}

// integratePosition is pass step 2: advance the offset from the last known
// sensor by however far ActualVelocity carried the train this tick. The
// offset is clamped to the distance of the first expected sensor when one
// is set, enforcing spec.md §3's motion invariant that offset_mm never
// exceeds the distance to the next expected sensor; a fast-moving train
// that overshoots its per-tick budget just waits at the sensor's distance
// for trySynthesizeBlacklisted or a real sensor event to catch up.
func (tr *Train) integratePosition(elapsedTicks int64) {
	if tr.Motion.ActualVelocity <= 0 {
		return
	}
	d := kinematic.DistanceFromVelocity(tr.Motion.ActualVelocity, elapsedTicks)
	offset := tr.Motion.Position.OffsetMM + int32(d)
	if es := tr.Motion.Expected[0]; es.NodeIdx >= 0 {
		offset = mathx.Clamp(offset, 0, es.DistanceMM)
	}
	tr.Motion.Position.OffsetMM = offset
}

// reassertBlockReservation is pass step 3.
func (tr *Train) reassertBlockReservation(ctx context.Context) {
	tr.cond.Reassert(ctx, tr.ID, tr.Motion.Position.NodeIdx)
}

// recomputeStoppingDistance is pass step 5: how far the train would travel
// if it started decelerating at the currently commanded level's
// deceleration right now, from its actual (not commanded) velocity.
func (tr *Train) recomputeStoppingDistance() {
	e := tr.table.Lookup(tr.Motion.CommandedLevel, tr.Motion.ApproachFromHigher)
	v := tr.Motion.ActualVelocity
	if v <= 0 || e.Deceleration <= 0 {
		tr.Motion.StoppingDistanceMM = 0
		return
	}
	// Round the stopping-time estimate up, never down: truncating here
	// would let the train believe it stops a tick earlier than the
	// deceleration curve actually delivers, eating into the safety
	// margin collisionAhead relies on.
	ticks := int64(mathx.CeilDiv(uint64(v), uint64(e.Deceleration)))
	avg := kinematic.AverageVelocity(v, 0)
	d := kinematic.DistanceFromVelocity(avg, ticks)
	tr.Motion.StoppingDistanceMM = int32(d) + tr.reversalClearanceMM()
}

// reversalClearanceMM accounts for the train's physical length when a
// reversal lies ahead on the active path: the stopping point must clear the
// whole train past the reversal node, not just its lead axle (SPEC_FULL.md
// §3's supplemented train-length/reversal-clearance compensation).
func (tr *Train) reversalClearanceMM() int32 {
	if tr.Nav.PathState == PathAtReversal || tr.Nav.ReversalNodeIdx == tr.Motion.Position.NodeIdx {
		return tr.lengthMM
	}
	return 0
}

// applyEffectiveSpeed is the hardware re-application rule common to every
// mode (spec.md §4.7 step 7's "commanded speed re-applied only if it
// differs"): effective is whatever mode.go decided the train should be
// running at right now.
func (tr *Train) applyEffectiveSpeed(ctx context.Context, effective uint8) {
	if effective == tr.Motion.CommandedLevel {
		return
	}
	tr.Motion.ApproachFromHigher = effective < tr.Motion.CommandedLevel
	tr.Motion.CommandedLevel = effective
	tr.Motion.RequestedLevel = effective
	_ = tr.sendSpeedCommand(ctx, effective)
}
