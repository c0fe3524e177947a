package train

import (
	"context"
	"time"

	"trainctl-go/internal/kinematic"
	"trainctl-go/x/mathx"
	"trainctl-go/x/ramp"
)

// LowSpeedLevel is the commanded level a waypoint-mode train creeps at
// during final approach (SPEC_FULL.md §3's supplemented low-speed mode).
const LowSpeedLevel = 2

// CreepSteps is how many discrete speed reductions the ramp takes between
// LowSpeedLevel and a full stop.
const CreepSteps = 8

// engageLowSpeedCreep ramps the commanded level down to zero over
// remainingMM, called once a waypoint-mode train crosses into its final
// low-speed braking zone. It runs synchronously on the train's own
// goroutine, the same way a blocking cmdscheduler.Enqueue call already
// does: ramp.Tick's sleeps pause Run, but nothing else ever writes Train
// state concurrently, so the single-goroutine invariant holds.
func (tr *Train) engageLowSpeedCreep(ctx context.Context, remainingMM int32) {
	if tr.Nav.LowSpeedActive {
		return
	}
	tr.Nav.LowSpeedActive = true
	defer func() { tr.Nav.LowSpeedActive = false }()

	v := tr.table.Lookup(LowSpeedLevel, false).Velocity
	durationMs := uint32(250)
	if v > 0 {
		ticks := kinematic.TimeForDistance(int64(remainingMM), v)
		if ticks > 0 {
			durationMs = uint32(ticks * kinematic.TimeScaleMS)
		}
	}

	tick := func(d time.Duration) bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}
	set := func(level uint16) {
		tr.applyEffectiveSpeed(ctx, uint8(level))
	}
	start := mathx.Min(tr.Motion.CommandedLevel, uint8(LowSpeedLevel))
	ramp.StartLinear(uint16(start), 0, LowSpeedLevel, durationMs, CreepSteps, tick, set)
}
