package stroke

import "math"

// Normalize180 wraps an angle in degrees into (-180, 180].
func Normalize180(deg float64) float64 {
	a := math.Mod(deg, 360)
	if a > 180 {
		a -= 360
	}
	if a <= -180 {
		a += 360
	}
	return a
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

// lerp interpolates from a toward b by t, with t clamped to [0,1].
func lerp(a, b, t float64) float64 {
	return a + (b-a)*clamp01(t)
}

// inverseLerp returns where v sits between a and b, clamped to [0,1].
func inverseLerp(a, b, v float64) float64 {
	if a == b {
		return 0
	}
	return clamp01((v - a) / (b - a))
}

// smoothDamp moves current toward target like a critically damped spring.
// vel is carried across calls by the caller.
func smoothDamp(current, target float64, vel *float64, smoothTime, dt float64) float64 {
	smoothTime = math.Max(1e-4, smoothTime)
	omega := 2 / smoothTime
	x := omega * dt
	exp := 1 / (1 + x + 0.48*x*x + 0.235*x*x*x)

	change := current - target
	temp := (*vel + omega*change) * dt
	*vel = (*vel - omega*temp) * exp
	out := target + (change+temp)*exp

	// Do not overshoot the target.
	if (target-current > 0) == (out > target) {
		out = target
		if dt > 0 {
			*vel = (out - target) / dt
		}
	}
	return out
}
