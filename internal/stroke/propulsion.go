package stroke

import "math"

const minPropulsion = 1e-4

// Drive maps the dominant |delta| to a raw drive in [0,1]: zero up to the
// deadband, linear up to FullAngleDeg, and 1 beyond.
func Drive(cfg PropulsionConfig, absDeltaDeg float64) float64 {
	if absDeltaDeg <= cfg.DeadbandDeg {
		return 0
	}
	hi := math.Max(cfg.DeadbandDeg+1, cfg.FullAngleDeg)
	return inverseLerp(cfg.DeadbandDeg, hi, absDeltaDeg)
}

// Propulsion low-pass filters the drive into a smoothed [0,1] scalar.
type Propulsion struct {
	cfg   PropulsionConfig
	drive float64
	value float64
}

func NewPropulsion(cfg PropulsionConfig) *Propulsion {
	return &Propulsion{cfg: cfg}
}

// Update advances the filter by dt seconds toward the drive for absDeltaDeg.
func (p *Propulsion) Update(absDeltaDeg, dt float64) float64 {
	p.drive = Drive(p.cfg, absDeltaDeg)
	dt = math.Max(dt, minDt)
	a := 1 - math.Exp(-dt/math.Max(minDt, p.cfg.SmoothingSec))
	p.value = clamp01(lerp(p.value, p.drive, a))
	return p.value
}

// Yaw derives the turning scalar from the left/right delta difference.
func (p *Propulsion) Yaw(leftDelta, rightDelta float64) float64 {
	d := clamp(rightDelta-leftDelta, -p.cfg.YawClampDeg, p.cfg.YawClampDeg)
	yaw := p.cfg.YawGain * d / math.Max(1, p.cfg.FullAngleDeg)
	if p.cfg.ScaleYawByPropulsion {
		yaw *= p.value
	}
	return yaw
}

// Thrust is gain × propulsion, or 0 while propulsion is negligible.
func (p *Propulsion) Thrust() float64 {
	if p.value <= minPropulsion {
		return 0
	}
	return p.cfg.Gain * p.value
}

func (p *Propulsion) Value() float64    { return p.value }
func (p *Propulsion) LastDrive() float64 { return p.drive }

// Reset drops the filter state to zero.
func (p *Propulsion) Reset() {
	p.value = 0
	p.drive = 0
}
