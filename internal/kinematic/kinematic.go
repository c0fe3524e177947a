// Package kinematic implements fixed-point velocity/acceleration/distance
// conversions and the per-train EWMA velocity estimator (spec.md §4.8).
// Everything here operates on trainctl-go/x/fixedpoint.Q values; no floating
// point is used anywhere (spec.md Non-goals).
package kinematic

import (
	"trainctl-go/x/fixedpoint"
	"trainctl-go/x/mathx"
)

// TimeScaleMS is the tick granularity: one tick is 10ms.
const TimeScaleMS = 10

// MaxSpeedLevel and TotalSpeedLevels describe the 28-entry velocity table:
// level 0 and level 14 each have one entry, levels 1-13 each have two
// (approached from below or from above), for 2*13+2 = 28 entries.
const (
	MaxSpeedLevel    = 14
	TotalSpeedLevels = 28
)

// TrainLengthMM is the default physical train length used for reversal and
// stopping-distance compensation (spec.md §3's supplemented train-length
// accounting).
const TrainLengthMM = 200

// EWMAAlphaShift fixes EWMA's alpha at 1/256: current*(255/256) + sample/256.
const EWMAAlphaShift = 8

// ResistanceScale matches topology.ResistanceScale (1000 == 1.0).
const ResistanceScale = 1000
const ResistanceDefault = 1000

// VelocityFromDistanceTime computes velocity = distance*scale/time.
func VelocityFromDistanceTime(distanceMM int64, ticks int64) fixedpoint.Q {
	if ticks == 0 {
		return 0
	}
	return fixedpoint.Q(safeDivScaled(distanceMM, fixedpoint.VelocityScale, ticks))
}

// AccelerationFromVelocities computes (v2-v1)/ticks; both velocities share
// VelocityScale and the result is already at AccelerationScale since the two
// scale factors are equal.
func AccelerationFromVelocities(v1, v2 fixedpoint.Q, ticks int64) fixedpoint.Q {
	if ticks == 0 {
		return 0
	}
	return fixedpoint.Q((int64(v2) - int64(v1)) / ticks)
}

// DistanceFromVelocity computes distance = velocity*ticks/scale.
func DistanceFromVelocity(v fixedpoint.Q, ticks int64) int64 {
	return safeDivScaled(int64(v), ticks, fixedpoint.VelocityScale)
}

// DistanceFromAcceleration computes distance = v1*t + 0.5*a*t^2, matching
// the original's two-term split (linear part, then accel part) rather than
// folding it into one expression, since that ordering is what keeps the
// accel term's t*t product bounded before it gets divided back down.
func DistanceFromAcceleration(v1 fixedpoint.Q, accel fixedpoint.Q, ticks int64) int64 {
	linear := safeDivScaled(int64(v1), ticks, fixedpoint.VelocityScale)
	tSquared := safeMul(ticks, ticks)
	accelDistance := safeMul(int64(accel), tSquared)
	accelPart := accelDistance / (2 * fixedpoint.AccelerationScale)
	return linear + accelPart
}

// TimeForDistance computes time = distance*scale/velocity.
func TimeForDistance(distanceMM int64, v fixedpoint.Q) int64 {
	if v == 0 {
		return 0
	}
	return safeDivScaled(distanceMM, fixedpoint.VelocityScale, int64(v))
}

// AverageVelocity is the arithmetic mean of two velocities.
func AverageVelocity(v1, v2 fixedpoint.Q) fixedpoint.Q {
	return fixedpoint.Q((int64(v1) + int64(v2)) / 2)
}

// EWMAUpdate folds a new sample into a running estimate with alpha = 1/256.
func EWMAUpdate(current, sample fixedpoint.Q) fixedpoint.Q {
	weightedCurrent := (int64(current) * ((1 << EWMAAlphaShift) - 1)) >> EWMAAlphaShift
	weightedSample := int64(sample) >> EWMAAlphaShift
	return fixedpoint.Q(weightedCurrent + weightedSample)
}

// MSToTicks and TicksToMS convert between wall-clock milliseconds and the
// controller's 10ms tick granularity. MSToTicks rounds up: spec.md's gap
// requirements are phrased as lower bounds ("must be followed ≥150ms
// later"), so a caller converting a millisecond minimum must never get
// back fewer ticks than that minimum actually needs.
func MSToTicks(ms int64) int64 {
	if ms <= 0 {
		return 0
	}
	return int64(mathx.CeilDiv(uint64(ms), uint64(TimeScaleMS)))
}
func TicksToMS(ticks int64) int64 { return ticks * TimeScaleMS }

// ApplyResistance scales a raw distance by a track edge's resistance
// coefficient (topology.Edge.Resistance, scale ResistanceScale).
func ApplyResistance(distanceMM int64, resistance int32) int64 {
	if resistance == 0 {
		return distanceMM
	}
	return safeDivScaled(distanceMM, int64(resistance), ResistanceScale)
}

// SpeedToIndex maps a speed level (0-14) plus approach direction to the
// 28-entry velocity table index: level 0 and 14 have one entry each, levels
// 1-13 have two, depending on whether the level was reached by accelerating
// from a lower speed or decelerating from a higher one.
func SpeedToIndex(level uint8, fromHigherSpeed bool) uint8 {
	switch {
	case level == 0:
		return 0
	case level == MaxSpeedLevel:
		return 27
	case level >= 1 && level <= 13:
		if fromHigherSpeed {
			return (level-1)*2 + 2
		}
		return (level-1)*2 + 1
	default:
		return 0
	}
}

// IndexToSpeed is SpeedToIndex's inverse.
func IndexToSpeed(index uint8) (level uint8, fromHigherSpeed bool) {
	switch {
	case index == 0:
		return 0, false
	case index == 27:
		return MaxSpeedLevel, false
	case index >= 1 && index <= 26:
		level = (index-1)/2 + 1
		fromHigherSpeed = (index-1)%2 == 1
		return level, fromHigherSpeed
	default:
		return 0, false
	}
}

func safeMul(a, b int64) int64 {
	return int64(fixedpoint.MulSat(fixedpoint.Q(a), fixedpoint.Q(b), 1))
}

// safeDivScaled computes (a*c)/b with overflow-safe multiplication,
// shortcutting to a plain integer multiply when c divides b evenly (mirrors
// the original's kinematic_safe_divide_scaled, which takes the same
// shortcut to dodge a needless 128-bit multiply on the common case).
func safeDivScaled(a, c, b int64) int64 {
	if b == 0 {
		return 0
	}
	if c%b == 0 {
		return safeMul(a, c/b)
	}
	product := safeMul(a, c)
	return product / b
}
