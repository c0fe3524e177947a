package train

import (
	"context"

	"trainctl-go/errcode"
)

// command is a closure submitted through Train.cmdCh; Run drains at most
// one per pass (spec.md §4.7 step 9's "non-blocking Receive"), so every
// command body runs on the train's own goroutine and needs no locking.
type command struct {
	fn func(ctx context.Context)
}

// submit enqueues fn without blocking: if the command channel is already
// full the caller gets QueueFull immediately rather than waiting for the
// train's next pass.
func (tr *Train) submit(fn func(ctx context.Context)) error {
	select {
	case tr.cmdCh <- &command{fn: fn}:
		return nil
	default:
		return errcode.Wrap(errcode.QueueFull, "train.submit", nil)
	}
}

// handlePendingCommand is pass step 9.
func (tr *Train) handlePendingCommand(ctx context.Context) {
	select {
	case cmd := <-tr.cmdCh:
		cmd.fn(ctx)
	default:
	}
}

// SetSpeed switches the train to manual mode and sets its requested speed
// level (the reference command surface's "tr" command).
func (tr *Train) SetSpeed(level uint8) error {
	return tr.submit(func(ctx context.Context) {
		tr.Nav.Mode = ModeManual
		tr.Motion.RequestedLevel = level
		if level > 0 {
			tr.applyEvent(EventStartMoving)
		} else {
			tr.applyEvent(EventStopRequested)
		}
		tr.applyEvent(EventSpeedChanged)
	})
}

// SetHeadlight turns this train's headlight on or off (the reference
// command surface's "lt" command).
func (tr *Train) SetHeadlight(on bool) error {
	return tr.submit(func(ctx context.Context) {
		_ = tr.setHeadlight(ctx, on)
	})
}

// Reverse triggers an immediate reversal sequence (the reference command
// surface's "rv" command), independent of whether a reversal point lies
// on any active path.
func (tr *Train) Reverse() error {
	return tr.submit(func(ctx context.Context) {
		if tr.Primary == StateReversing || tr.Primary == StateError {
			return
		}
		tr.applyEvent(EventReversalNeeded)
		tr.applyEffectiveSpeed(ctx, 0)
	})
}

// SetDestination switches the train to waypoint mode targeting nodeIdx
// with the given stopping offset (the reference command surface's "dest"
// command).
func (tr *Train) SetDestination(nodeIdx, offsetMM int32) error {
	return tr.submit(func(ctx context.Context) {
		tr.Nav.Mode = ModeWaypoint
		tr.Nav.DestinationNode = nodeIdx
		tr.Nav.DestinationOffsetMM = offsetMM
		tr.Nav.Arrived = false
		tr.Nav.RandomEnabled = false
		tr.Nav.Status = StatusRequestingPath
	})
}

// SetRandomWander enables or disables random-destination wandering (the
// reference command surface's "random" command; SPEC_FULL.md §3's
// supplemented feature).
func (tr *Train) SetRandomWander(enabled bool) error {
	return tr.submit(func(ctx context.Context) {
		tr.Nav.Mode = ModeWaypoint
		tr.Nav.RandomEnabled = enabled
		if enabled {
			tr.Nav.RandomPauseUntilTick = 0
		}
	})
}

// Reset returns the train to manual, stationary, with every block it
// holds released (the reference command surface's "reset" command).
func (tr *Train) Reset() error {
	return tr.submit(func(ctx context.Context) {
		tr.Motion.RequestedLevel = 0
		tr.applyEffectiveSpeed(ctx, 0)
		tr.Nav = NavState{DestinationNode: -1, FurthestActivated: -1, ReversalNodeIdx: -1}
		tr.Primary = StateIdle
		tr.Movement = MovementStationary
		tr.Reversal = ReversalNone
		tr.cond.ReleaseAllExcept(tr.ID, tr.Motion.Position.NodeIdx, true)
	})
}
