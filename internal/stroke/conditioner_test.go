package stroke

import (
	"math"
	"testing"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNormalize180(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{180, 180},
		{-180, 180},
		{190, -170},
		{-190, 170},
		{540, 180},
		{360, 0},
		{-725, -5},
	}
	for _, tc := range cases {
		if got := Normalize180(tc.in); !almost(got, tc.want) {
			t.Errorf("Normalize180(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestConditioner_Deadzone(t *testing.T) {
	c := NewConditioner(ChannelConfig{}, 2)
	c.Calibrate(At(10))

	if got := c.Update(At(11)); got != 0 {
		t.Fatalf("expected reading inside deadzone to condition to 0, got %v", got)
	}
	if got := c.Update(At(8.5)); got != 0 {
		t.Fatalf("expected reading inside deadzone to condition to 0, got %v", got)
	}
	if got := c.Update(At(13)); !almost(got, 3) {
		t.Fatalf("expected 3, got %v", got)
	}
}

// TestConditioner_CalibrateIdempotent tests that calibrating twice at the same
// pose gives the same baseline and a zero delta
func TestConditioner_CalibrateIdempotent(t *testing.T) {
	c := NewConditioner(ChannelConfig{OffsetDeg: 1.5}, 2)

	c.Calibrate(At(25))
	first := c.Baseline()
	c.Calibrate(At(25))
	if c.Baseline() != first {
		t.Fatalf("baseline changed on repeated calibration: %v -> %v", first, c.Baseline())
	}
	if got := c.Update(At(25)); got != 0 {
		t.Fatalf("expected 0 at calibration pose, got %v", got)
	}
	if !c.Calibrated() {
		t.Fatalf("expected calibrated flag")
	}
}

func TestConditioner_InvertAndWrap(t *testing.T) {
	c := NewConditioner(ChannelConfig{Invert: true}, 0)
	c.Calibrate(At(0))
	if got := c.Update(At(20)); !almost(got, -20) {
		t.Fatalf("expected inverted -20, got %v", got)
	}

	w := NewConditioner(ChannelConfig{}, 0)
	w.Calibrate(At(170))
	if got := w.Update(At(-170)); !almost(got, 20) {
		t.Fatalf("expected wrap to 20, got %v", got)
	}
}

func TestConditioner_UnavailableReading(t *testing.T) {
	c := NewConditioner(ChannelConfig{}, 2)
	c.Calibrate(At(0))
	c.Update(At(30))

	if got := c.Update(Reading{}); got != 0 {
		t.Fatalf("expected unavailable reading to condition to 0, got %v", got)
	}

	// Calibrating without a reading defers the baseline to the next reading.
	c.Calibrate(At(12))
	c.Calibrate(Reading{})
	if c.Calibrated() || !c.Pending() {
		t.Fatalf("expected pending calibration, calibrated=%v pending=%v", c.Calibrated(), c.Pending())
	}
	if c.Capture(Reading{}) {
		t.Fatalf("expected no capture without a reading")
	}
	if !c.Capture(At(40)) {
		t.Fatalf("expected capture from the first available reading")
	}
	if c.Baseline() != 40 || !c.Calibrated() || c.Pending() {
		t.Fatalf("expected baseline 40 after capture, got %v", c.Baseline())
	}
	if got := c.Update(At(40)); got != 0 {
		t.Fatalf("expected 0 at captured pose, got %v", got)
	}
	if c.Capture(At(55)) {
		t.Fatalf("expected capture to happen once")
	}
}
