package kinematic

import "trainctl-go/x/fixedpoint"

// Entry is one row of a train's speed-level table (spec.md §3 "Kinematic
// model"): the velocity reached at this level, the acceleration used to
// approach it from a lower speed (or the deceleration used to approach it
// from a higher one), and the distance/time needed to come to a full stop
// from this velocity.
type Entry struct {
	Velocity       fixedpoint.Q
	Acceleration   fixedpoint.Q
	Deceleration   fixedpoint.Q
	StopDistanceMM int32
	StopTimeTicks  int32
}

// Table is a train's full 28-entry speed-level table (spec.md §4.8).
type Table [TotalSpeedLevels]Entry

// Lookup returns the entry for a commanded speed level and approach
// direction (whether the level is being entered by accelerating up from a
// lower one or decelerating down from a higher one).
func (t *Table) Lookup(level uint8, fromHigherSpeed bool) Entry {
	return t[SpeedToIndex(level, fromHigherSpeed)]
}

// Refine folds a live (velocity, acceleration) sample into the table entry
// for the given level/approach via EWMAUpdate (spec.md §4.8's "online
// calibration update"), and recomputes that entry's derived stopping
// distance/time so later lookups stay consistent with the refined values.
func (t *Table) Refine(level uint8, fromHigherSpeed bool, sampleVelocity, sampleAccel fixedpoint.Q) {
	idx := SpeedToIndex(level, fromHigherSpeed)
	e := &t[idx]
	e.Velocity = EWMAUpdate(e.Velocity, sampleVelocity)
	if sampleAccel != 0 {
		e.Acceleration = EWMAUpdate(e.Acceleration, sampleAccel)
	}
	if e.Deceleration > 0 {
		e.StopTimeTicks, e.StopDistanceMM = stoppingFigures(e.Velocity, e.Deceleration)
	}
}

// stoppingFigures computes the time and distance needed to decelerate
// from v to rest at the given (positive) deceleration.
func stoppingFigures(v, decel fixedpoint.Q) (ticks int32, distMM int32) {
	if v <= 0 || decel <= 0 {
		return 0, 0
	}
	t := int64(v) / int64(decel)
	if t <= 0 {
		return 0, 0
	}
	avg := AverageVelocity(v, 0)
	d := DistanceFromVelocity(avg, t)
	return int32(t), int32(d)
}

// defaultMaxVelocityMMPerTick is the level-14 steady-state velocity for
// DefaultTable, expressed in mm per 10ms tick (spec.md §4.8's tick
// granularity): 18mm/tick is 1.8 m/s, a plausible HO-scale cruising speed.
const (
	defaultMaxVelocityMMPerTick  = 18
	defaultAccelMMPerTickSquared = 1
	defaultDecelMMPerTickSquared = 2
)

// DefaultTable builds the hardcoded per-train default speed table used
// before any online or offline calibration has run (spec.md §3/§4.8):
// velocity scales linearly with level, acceleration/deceleration are held
// constant across levels, and stop distance/time are derived rather than
// hand-tabulated. A real train's table would diverge from this after a
// few trips through Table.Refine.
func DefaultTable() *Table {
	var t Table
	accel := fixedpoint.Q(defaultAccelMMPerTickSquared * fixedpoint.AccelerationScale)
	decel := fixedpoint.Q(defaultDecelMMPerTickSquared * fixedpoint.AccelerationScale)

	for level := uint8(0); level <= MaxSpeedLevel; level++ {
		v := fixedpoint.Q(int64(level) * defaultMaxVelocityMMPerTick * fixedpoint.VelocityScale / MaxSpeedLevel)
		approaches := []bool{false}
		if level != 0 && level != MaxSpeedLevel {
			approaches = []bool{false, true}
		}
		for _, fromHigh := range approaches {
			idx := SpeedToIndex(level, fromHigh)
			stopTicks, stopDist := stoppingFigures(v, decel)
			t[idx] = Entry{
				Velocity:       v,
				Acceleration:   accel,
				Deceleration:   decel,
				StopDistanceMM: stopDist,
				StopTimeTicks:  stopTicks,
			}
		}
	}
	return &t
}
