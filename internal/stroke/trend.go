package stroke

import "math"

// Trend is the direction of the dominant delta magnitude.
type Trend int8

const (
	Holding Trend = 0
	Rising  Trend = 1
	Falling Trend = -1
)

func (t Trend) String() string {
	switch t {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	default:
		return "holding"
	}
}

// Peak is a local maximum of the dominant channel's |delta|.
type Peak struct {
	Side     Side
	AngleDeg float64 // signed delta at the peak
}

// Abs returns the peak magnitude.
func (p Peak) Abs() float64 { return math.Abs(p.AngleDeg) }

// PeakTracker follows whichever channel is dominant on each tick and reports
// a peak on a rising to falling reversal. Dominance can switch between ticks;
// the peak is credited to the side dominant on the tick the reversal is seen.
type PeakTracker struct {
	hysteresis float64

	trend     Trend
	deltaPrev float64
}

func NewPeakTracker(hysteresisDeg float64) *PeakTracker {
	if hysteresisDeg <= 0 {
		hysteresisDeg = defaultTrendHysteresisDeg
	}
	return &PeakTracker{hysteresis: hysteresisDeg}
}

// Dominant picks the channel with the larger |delta|; ties go left.
func Dominant(left, right float64) (Side, float64) {
	if math.Abs(left) >= math.Abs(right) {
		return Left, left
	}
	return Right, right
}

// Update feeds the dominant delta for this tick. It returns the trend after
// the update and a peak when one was detected.
func (p *PeakTracker) Update(side Side, delta float64) (Trend, *Peak) {
	magPrev := math.Abs(p.deltaPrev)
	mag := math.Abs(delta)

	now := p.trend
	switch {
	case mag > magPrev+p.hysteresis:
		now = Rising
	case mag < magPrev-p.hysteresis:
		now = Falling
	}

	var peak *Peak
	if p.trend == Rising && now == Falling {
		peak = &Peak{Side: side, AngleDeg: p.deltaPrev}
	}

	p.trend = now
	p.deltaPrev = delta
	return now, peak
}

// Reset returns the tracker to neutral.
func (p *PeakTracker) Reset() {
	p.trend = Holding
	p.deltaPrev = 0
}

func (p *PeakTracker) Trend() Trend { return p.trend }
