// Package fixedpoint implements the scaled-integer arithmetic used throughout
// the kinematic model (spec.md §4.8): velocity is mm/tick scaled by 1e8,
// acceleration is mm/tick² on the same scale, and the track graph's edge
// resistance coefficient is scaled by 1e3. No floating point is used anywhere
// (spec.md §1 Non-goals).
package fixedpoint

import "trainctl-go/x/mathx"

// Scale factors named per spec.md §4.8/§3.
const (
	VelocityScale     = 100_000_000 // 1e8
	AccelerationScale = 100_000_000 // 1e8
	ResistanceScale   = 1000        // 1e3
)

// Q is a Q-format fixed-point value at VelocityScale/AccelerationScale.
type Q int64

// MulSat multiplies two Q values that share the same scale and rescales the
// result back to that scale, saturating instead of overflowing — the
// teacher's x/mathx.Clamp convention (saturate, don't wrap) applied to 64-bit
// fixed point.
func MulSat(a, b Q, scale int64) Q {
	// a*b is up to ~2x the bit width of a single Q; form the signed 128-bit
	// product, divide it by scale, and saturate if the quotient overflows.
	if a == 0 || b == 0 {
		return 0
	}
	hi, lo := mul128(int64(a), int64(b))
	q, overflow := div128(hi, lo, scale)
	if overflow {
		if (a > 0) == (b > 0) {
			return Q(maxInt64)
		}
		return Q(minInt64)
	}
	return Q(mathx.Clamp(q, minInt64, maxInt64))
}

const (
	maxInt64 = int64(1<<63 - 1)
	minInt64 = -int64(1 << 63)
)

// mul128 computes the signed 128-bit product of a*b as (hi, lo) two's
// complement halves, using the same unsigned-multiply-then-fixup trick the
// standard library's math/bits.Mul64 documents.
func mul128(a, b int64) (hi, lo int64) {
	ua, ub := uint64(a), uint64(b)
	uhi, ulo := mulUint64(ua, ub)
	hi = int64(uhi)
	if a < 0 {
		hi -= int64(ub)
	}
	if b < 0 {
		hi -= int64(ua)
	}
	return hi, int64(ulo)
}

func mulUint64(a, b uint64) (hi, lo uint64) {
	const mask32 = 1<<32 - 1
	a0, a1 := a&mask32, a>>32
	b0, b1 := b&mask32, b>>32
	t := a0 * b0
	w0 := t & mask32
	k := t >> 32
	t = a1*b0 + k
	w1 := t & mask32
	w2 := t >> 32
	t = a0*b1 + w1
	k = t >> 32
	lo = (t << 32) | w0
	hi = a1*b1 + w2 + k
	return hi, lo
}

// div128 divides the signed 128-bit value (hi:lo) by scale, returning the
// quotient and whether it overflowed a 64-bit signed result.
func div128(hi, lo int64, scale int64) (q int64, overflow bool) {
	neg := hi < 0
	uhi, ulo := uint64(hi), uint64(lo)
	if neg {
		// two's complement negate of the 128-bit pair
		ulo = ^ulo + 1
		uhi = ^uhi
		if ulo == 0 {
			uhi++
		}
	}
	if uhi >= uint64(scale) {
		// quotient cannot fit in 64 bits even before sign.
		return 0, true
	}
	uq := divUint128By64(uhi, ulo, uint64(scale))
	if uq > uint64(maxInt64) {
		return 0, true
	}
	if neg {
		return -int64(uq), false
	}
	return int64(uq), false
}

// divUint128By64 divides the unsigned 128-bit value (hi:lo) by d (d != 0,
// hi < d) using long division, avoiding any need for a 128-bit type.
func divUint128By64(hi, lo, d uint64) uint64 {
	var q uint64
	rem := hi
	for i := 63; i >= 0; i-- {
		rem <<= 1
		if lo&(1<<uint(i)) != 0 {
			rem |= 1
		}
		q <<= 1
		if rem >= d {
			rem -= d
			q |= 1
		}
	}
	return q
}

// SaturatingAdd adds two Q values, saturating on overflow.
func SaturatingAdd(a, b Q) Q {
	s := int64(a) + int64(b)
	if (b > 0 && s < int64(a)) || (b < 0 && s > int64(a)) {
		if b > 0 {
			return Q(maxInt64)
		}
		return Q(minInt64)
	}
	return Q(s)
}

// MMFromVelocityTicks converts a velocity (Q at VelocityScale) integrated
// over n ticks into a millimetre distance, rounding toward zero.
func MMFromVelocityTicks(v Q, ticks int64) int32 {
	total := int64(v) * ticks / VelocityScale
	return int32(mathx.Clamp(total, int64(-1<<31), int64(1<<31-1)))
}
