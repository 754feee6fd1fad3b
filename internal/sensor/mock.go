package sensor

import (
	"context"
	"math"
	"time"

	"paddlestroke/internal/stroke"
)

// MockSource generates a synthetic paddling motion: both sides follow a sine
// wave in antiphase, so strokes alternate left and right.
type MockSource struct {
	AmplitudeDeg float64
	Period       time.Duration
	Interval     time.Duration

	start time.Time
}

// NewMockSource returns a mock with sensible defaults for zero values.
func NewMockSource(amplitudeDeg float64, period, interval time.Duration) *MockSource {
	if amplitudeDeg <= 0 {
		amplitudeDeg = 35
	}
	if period <= 0 {
		period = 2 * time.Second
	}
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	return &MockSource{AmplitudeDeg: amplitudeDeg, Period: period, Interval: interval}
}

// Angle is the mock angle for side at elapsed time t. Only the positive half
// of each wave is used so each side has a rest phase.
func (m *MockSource) Angle(side stroke.Side, t time.Duration) float64 {
	phase := 2 * math.Pi * t.Seconds() / m.Period.Seconds()
	if side == stroke.Right {
		phase += math.Pi
	}
	return m.AmplitudeDeg * math.Max(0, math.Sin(phase))
}

func (m *MockSource) Run(ctx context.Context, emit func(Sample)) error {
	m.start = time.Now()
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			t := now.Sub(m.start)
			emit(Sample{Side: stroke.Left, AngleDeg: m.Angle(stroke.Left, t), At: now})
			emit(Sample{Side: stroke.Right, AngleDeg: m.Angle(stroke.Right, t), At: now})
		}
	}
}
