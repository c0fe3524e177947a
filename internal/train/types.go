package train

import (
	"trainctl-go/internal/conductor"
	"trainctl-go/x/fixedpoint"
)

// Heading is the train's physical direction of travel, distinct from
// topology.Direction (which selects a branch's outgoing edge).
type Heading int

const (
	Forward Heading = iota
	Reverse
)

func (h Heading) String() string {
	if h == Reverse {
		return "reverse"
	}
	return "forward"
}

// Mode selects how the train's destination is driven (spec.md §4.7).
type Mode int

const (
	ModeManual Mode = iota
	ModeWaypoint
)

func (m Mode) String() string {
	if m == ModeWaypoint {
		return "waypoint"
	}
	return "manual"
}

// Status is the high-level status published alongside every position
// event (spec.md §4.7/§6).
type Status int

const (
	StatusIdle Status = iota
	StatusRequestingPath
	StatusMoving
	StatusStopping
)

func (s Status) String() string {
	switch s {
	case StatusRequestingPath:
		return "REQ_PATH"
	case StatusMoving:
		return "MOVING"
	case StatusStopping:
		return "STOPPING"
	default:
		return "IDLE"
	}
}

// PathState is the path-activation sub-state machine (spec.md §4.7).
type PathState int

const (
	PathNone PathState = iota
	PathRequesting
	PathActive
	PathReached
	PathAtReversal
	PathReversing
)

func (p PathState) String() string {
	switch p {
	case PathRequesting:
		return "requesting"
	case PathActive:
		return "active"
	case PathReached:
		return "reached"
	case PathAtReversal:
		return "at_reversal"
	case PathReversing:
		return "reversing"
	default:
		return "none"
	}
}

// Position is the train's localization: a sensor node plus a signed
// offset along the direction of travel from it (spec.md §3 "Train motion
// state"). Invariant: OffsetMM never exceeds the distance to the first
// expected sensor.
type Position struct {
	NodeIdx  int32
	OffsetMM int32
}

// ExpectedSensor is one of up to two sensors the controller expects to
// trip next, with the timeout deadline computed the last time it was set
// (spec.md §4.7 "Sensor timeouts"). NodeIdx -1 means the slot is unset.
type ExpectedSensor struct {
	NodeIdx       int32
	DistanceMM    int32
	SetAtTick     int64
	ArrivalTick   int64
	DeadlineTick  int64
	TimedOut      bool
	LoggedTimeout bool
}

// MotionState is the kinematic half of a train's state (spec.md §3).
type MotionState struct {
	CommandedLevel     uint8
	RequestedLevel     uint8
	ApproachFromHigher bool

	ActualVelocity     fixedpoint.Q
	ActualAcceleration fixedpoint.Q

	Heading   Heading
	Headlight bool

	Position Position
	Expected [2]ExpectedSensor

	StoppingDistanceMM int32
}

// NavState is the navigation half of a train's state (spec.md §3).
type NavState struct {
	DestinationNode     int32
	DestinationOffsetMM int32

	Mode      Mode
	Status    Status
	PathState PathState

	ActivePath        *conductor.Path
	ReservedBlocks     []int32
	FurthestActivated int32
	ReversalNodeIdx   int32

	NeedsPathContinuation bool
	Arrived               bool

	RetryCount          int
	NextRetryTick       int64
	LastPathAttemptTick int64

	LowSpeedActive bool

	RandomEnabled        bool
	RandomPauseUntilTick int64
}

// Snapshot is the read-only view of a train published on every pass and
// exposed to external readers (the HTTP aggregator, the TUI) without
// routing through the train's command channel (spec.md §2 "Main
// controller... aggregates snapshots for UI").
type Snapshot struct {
	TrainID             int32
	CurrentLocation     string
	Direction           Heading
	Headlight           bool
	Speed               uint8
	Destination         string
	DestinationName     string
	Mode                Mode
	LocationOffsetMM    int32
	DestinationOffsetMM int32
	Status              Status
	NextSensor1         string
	NextSensor2         string
	Primary             PrimaryState
	Movement            MovementSubState
	PathState           PathState
}
