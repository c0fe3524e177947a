package train

// PrimaryState is the top-level train2-style state (SPEC_FULL.md §3.1,
// grounded on original_source's train2/train.h): every pass moves the
// controller through exactly one of these, with movement and reversal
// sub-states refining StateMoving/StateReversing.
type PrimaryState int

const (
	StateIdle PrimaryState = iota
	StateMoving
	StateStopping
	StateReversing
	StateError
)

func (s PrimaryState) String() string {
	switch s {
	case StateMoving:
		return "moving"
	case StateStopping:
		return "stopping"
	case StateReversing:
		return "reversing"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// MovementSubState refines StateMoving.
type MovementSubState int

const (
	MovementStationary MovementSubState = iota
	MovementAccelerating
	MovementCruising
	MovementDecelerating
)

func (m MovementSubState) String() string {
	switch m {
	case MovementAccelerating:
		return "accelerating"
	case MovementCruising:
		return "cruising"
	case MovementDecelerating:
		return "decelerating"
	default:
		return "stationary"
	}
}

// ReversalSubState refines StateReversing.
type ReversalSubState int

const (
	ReversalNone ReversalSubState = iota
	ReversalStopping
	ReversalCommand
	ReversalClearing
	ReversalResuming
)

func (r ReversalSubState) String() string {
	switch r {
	case ReversalStopping:
		return "stopping"
	case ReversalCommand:
		return "command"
	case ReversalClearing:
		return "clearing"
	case ReversalResuming:
		return "resuming"
	default:
		return "none"
	}
}

// Event is a typed transition trigger driving the primary state machine
// (SPEC_FULL.md §3.1).
type Event int

const (
	EventStartMoving Event = iota
	EventStopRequested
	EventEmergencyStop
	EventSensorTriggered
	EventDestinationReached
	EventPathEndReached
	EventReversalNeeded
	EventReversalComplete
	EventErrorDetected
	EventSpeedChanged
	EventPathContinuationNeeded
)

// TransitionResult reports how applyEvent handled an event.
type TransitionResult int

const (
	Handled TransitionResult = iota
	Ignored
	Deferred
)

// applyEvent drives the primary state machine. Most events just move
// between StateMoving/StateStopping/StateIdle/StateReversing/StateError;
// entry actions that need to talk to hardware or the conductor (emergency
// stop, issuing the reverse command, releasing blocks) are performed by
// the caller before or after calling applyEvent, since those actions need
// context.Context and are easier to reason about outside a pure state
// table.
func (tr *Train) applyEvent(evt Event) TransitionResult {
	switch evt {
	case EventErrorDetected:
		tr.Primary = StateError
		return Handled

	case EventEmergencyStop:
		tr.Primary = StateStopping
		tr.Movement = MovementDecelerating
		return Handled

	case EventStopRequested:
		if tr.Primary == StateError {
			return Ignored
		}
		tr.Primary = StateStopping
		return Handled

	case EventStartMoving:
		if tr.Primary == StateError {
			return Ignored
		}
		tr.Primary = StateMoving
		tr.Movement = MovementAccelerating
		return Handled

	case EventSpeedChanged:
		if tr.Primary != StateMoving && tr.Primary != StateStopping {
			return Ignored
		}
		return Handled

	case EventReversalNeeded:
		if tr.Primary == StateError {
			return Ignored
		}
		tr.Primary = StateReversing
		tr.Reversal = ReversalStopping
		return Handled

	case EventReversalComplete:
		if tr.Primary != StateReversing {
			return Ignored
		}
		tr.Primary = StateIdle
		tr.Reversal = ReversalNone
		return Handled

	case EventSensorTriggered, EventDestinationReached, EventPathEndReached,
		EventPathContinuationNeeded:
		// These are informational: they drive NavState/PathState in
		// path.go and sensors.go rather than the primary state machine
		// directly, so the primary machine just acknowledges them.
		return Handled

	default:
		return Ignored
	}
}
