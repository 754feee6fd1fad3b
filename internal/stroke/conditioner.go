package stroke

import "math"

// Reading is one raw orientation angle for a channel. OK is false while the
// sensor is unavailable; such a reading conditions to a neutral zero delta.
type Reading struct {
	AngleDeg float64
	OK       bool
}

// At returns an available reading.
func At(angleDeg float64) Reading { return Reading{AngleDeg: angleDeg, OK: true} }

// Conditioner turns raw angles for one channel into baseline-relative,
// deadzone-filtered delta angles.
//
// The deadzone is measured against the calibration baseline: a reading within
// DeadzoneDeg of the baseline conditions to exactly 0.
type Conditioner struct {
	ch          ChannelConfig
	deadzoneDeg float64

	baseline   float64
	calibrated bool
	pending    bool
	delta      float64
}

// NewConditioner returns an uncalibrated conditioner (baseline 0).
func NewConditioner(ch ChannelConfig, deadzoneDeg float64) *Conditioner {
	return &Conditioner{ch: ch, deadzoneDeg: math.Max(0, deadzoneDeg)}
}

// Adjust normalizes a raw angle and applies inversion and offset.
func (c *Conditioner) Adjust(rawDeg float64) float64 {
	return adjustAngle(c.ch, rawDeg)
}

func adjustAngle(ch ChannelConfig, rawDeg float64) float64 {
	x := Normalize180(rawDeg)
	if ch.Invert {
		x = -x
	}
	return x + ch.OffsetDeg
}

// Calibrate captures the current raw angle as the new baseline.
// Calibrating repeatedly at the same pose yields the same baseline.
//
// Without a reading the channel is left uncalibrated and pending: the first
// available reading becomes the baseline (see Capture).
func (c *Conditioner) Calibrate(r Reading) {
	c.delta = 0
	if !r.OK {
		c.calibrated = false
		c.pending = true
		return
	}
	c.baseline = c.Adjust(r.AngleDeg)
	c.calibrated = true
	c.pending = false
}

// Capture completes a pending calibration from r. It reports whether the
// baseline was taken.
func (c *Conditioner) Capture(r Reading) bool {
	if !c.pending || !r.OK {
		return false
	}
	c.Calibrate(r)
	return true
}

// Update conditions one reading and returns the delta angle.
func (c *Conditioner) Update(r Reading) float64 {
	if !r.OK {
		c.delta = 0
		return 0
	}
	raw := Normalize180(c.Adjust(r.AngleDeg) - c.baseline)
	if math.Abs(raw) < c.deadzoneDeg {
		raw = 0
	}
	c.delta = raw
	return raw
}

func (c *Conditioner) Baseline() float64 { return c.baseline }
func (c *Conditioner) Calibrated() bool  { return c.calibrated }
func (c *Conditioner) Pending() bool     { return c.pending }

// Delta is the most recent conditioned value.
func (c *Conditioner) Delta() float64 { return c.delta }
