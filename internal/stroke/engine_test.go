package stroke

import (
	"testing"
	"time"
)

type engineRig struct {
	e   *Engine
	now time.Time
}

func newEngineRig(cfg Config) *engineRig {
	return &engineRig{e: NewEngine(cfg), now: time.Unix(2000, 0)}
}

func (r *engineRig) tick(left, right Reading, active bool) Output {
	r.now = r.now.Add(20 * time.Millisecond)
	return r.e.Update(Input{
		Now:           r.now,
		Dt:            0.02,
		Left:          left,
		Right:         right,
		SessionActive: active,
	})
}

// feed runs a left-channel angle sequence with the right channel at rest and
// returns every accepted stroke.
func (r *engineRig) feed(left ...float64) []StrokeEvent {
	var out []StrokeEvent
	for _, a := range left {
		o := r.tick(At(a), At(0), true)
		out = append(out, o.Strokes...)
	}
	return out
}

func TestEngine_IdleWhileInactive(t *testing.T) {
	rig := newEngineRig(DefaultConfig())

	out := rig.tick(At(40), At(-40), false)
	if !out.Idle || len(out.Strokes) != 0 || out.Propulsion != 0 {
		t.Fatalf("expected idle output, got %+v", out)
	}
	if rig.e.Active() || rig.e.Stats().StrokeCount != 0 {
		t.Fatalf("expected no session state to change")
	}
}

// TestEngine_MinCountAngle tests that an 8 degree peak is ignored and a 12
// degree peak is counted
func TestEngine_MinCountAngle(t *testing.T) {
	rig := newEngineRig(DefaultConfig())

	out := rig.tick(At(0), At(0), true)
	if !out.SessionStarted || !out.Calibrated {
		t.Fatalf("expected session start with auto calibration, got %+v", out)
	}

	strokes := rig.feed(4, 8, 4, 0)
	if len(strokes) != 0 {
		t.Fatalf("expected 8 degree peak to be ignored, got %+v", strokes)
	}

	strokes = rig.feed(4, 8, 12, 8, 4, 0)
	if len(strokes) != 1 {
		t.Fatalf("expected one stroke, got %+v", strokes)
	}
	s := strokes[0]
	if s.Side != Left || s.PeakDeg != 12 || s.DistanceMeters != 1 || s.Class != Small {
		t.Fatalf("unexpected stroke: %+v", s)
	}
	if rig.e.Stats().DistanceMeters != 1 {
		t.Fatalf("expected distance 1, got %d", rig.e.Stats().DistanceMeters)
	}
}

func TestEngine_GateCountsStrokeOnce(t *testing.T) {
	rig := newEngineRig(DefaultConfig())
	rig.tick(At(0), At(0), true)

	// Jitter near the top produces a second reversal without returning to rest.
	strokes := rig.feed(10, 20, 15, 20, 15, 10)
	if len(strokes) != 1 {
		t.Fatalf("expected one stroke while gate is locked, got %d", len(strokes))
	}

	strokes = rig.feed(4, 0, 20, 35, 20, 0)
	if len(strokes) != 1 || strokes[0].Class != Full || strokes[0].DistanceMeters != 4 {
		t.Fatalf("expected one full stroke after release, got %+v", strokes)
	}
	if rig.e.Stats().StrokeCount != 2 {
		t.Fatalf("expected 2 strokes, got %d", rig.e.Stats().StrokeCount)
	}
}

func TestEngine_RightDominant(t *testing.T) {
	rig := newEngineRig(DefaultConfig())
	rig.tick(At(0), At(0), true)

	var strokes []StrokeEvent
	for _, a := range []float64{0, 10, 25, 15, 0} {
		out := rig.tick(At(3), At(a), true)
		strokes = append(strokes, out.Strokes...)
	}
	if len(strokes) != 1 || strokes[0].Side != Right || strokes[0].PeakDeg != 25 {
		t.Fatalf("expected one right stroke at 25, got %+v", strokes)
	}
}

func TestEngine_SessionSummary(t *testing.T) {
	rig := newEngineRig(DefaultConfig())
	rig.tick(At(0), At(0), true)
	rig.feed(10, 20, 10, 0)

	out := rig.tick(At(0), At(0), false)
	if !out.SessionEnded || out.Summary == nil {
		t.Fatalf("expected session end with summary, got %+v", out)
	}
	if out.Summary.StrokeCount != 1 || out.Summary.DistanceMeters != 2 {
		t.Fatalf("unexpected summary %+v", *out.Summary)
	}
	if out.Summary.ElapsedSec <= 0 {
		t.Fatalf("expected elapsed time, got %v", out.Summary.ElapsedSec)
	}

	// A new session starts from zero.
	out = rig.tick(At(0), At(0), true)
	if !out.SessionStarted || rig.e.Stats().StrokeCount != 0 {
		t.Fatalf("expected fresh stats on new session")
	}
}

func TestEngine_CalibrateIdempotent(t *testing.T) {
	rig := newEngineRig(DefaultConfig())

	rig.e.Calibrate(At(20), At(-10))
	a := rig.e.Snapshot()
	rig.e.Calibrate(At(20), At(-10))
	b := rig.e.Snapshot()
	if a.BaselineLeft != b.BaselineLeft || a.BaselineRight != b.BaselineRight {
		t.Fatalf("baseline changed: %+v vs %+v", a, b)
	}
	if b.BaselineLeft != 20 || b.BaselineRight != -10 {
		t.Fatalf("unexpected baselines %v %v", b.BaselineLeft, b.BaselineRight)
	}
}

func TestEngine_ManualCalibrateShiftsBaseline(t *testing.T) {
	rig := newEngineRig(DefaultConfig())
	rig.tick(At(0), At(0), true)

	rig.now = rig.now.Add(20 * time.Millisecond)
	out := rig.e.Update(Input{Now: rig.now, Dt: 0.02, Left: At(15), Right: At(0), SessionActive: true, Calibrate: true})
	if !out.Calibrated {
		t.Fatalf("expected calibration on this tick")
	}
	if out.LeftDelta != 0 {
		t.Fatalf("expected zero delta at the new baseline, got %v", out.LeftDelta)
	}
}

func TestEngine_UnavailableChannel(t *testing.T) {
	rig := newEngineRig(DefaultConfig())
	rig.tick(At(0), At(0), true)

	out := rig.tick(Reading{}, At(30), true)
	if out.LeftDelta != 0 || out.RightDelta != 30 {
		t.Fatalf("expected neutral left and live right, got %v %v", out.LeftDelta, out.RightDelta)
	}
}

func TestEngine_TapsCountedInStats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tap.SmoothAlpha = 1
	rig := newEngineRig(cfg)
	rig.tick(At(0), At(0), true)

	var taps []TapEvent
	for _, a := range []float64{-20, -25, -20} {
		out := rig.tick(At(a), At(0), true)
		taps = append(taps, out.Taps...)
	}
	if len(taps) != 1 {
		t.Fatalf("expected one tap, got %+v", taps)
	}
	if rig.e.Stats().Taps[Small] != 1 || rig.e.Stats().TapDistance != 2 {
		t.Fatalf("unexpected tap stats %+v", rig.e.Stats())
	}
}

func TestEngine_PropulsionAndPhaseRise(t *testing.T) {
	rig := newEngineRig(DefaultConfig())
	rig.tick(At(0), At(0), true)

	var out Output
	for i := 0; i < 10; i++ {
		out = rig.tick(At(30), At(0), true)
	}
	if out.Propulsion <= 0.5 || out.Thrust <= 0 {
		t.Fatalf("expected propulsion to build, got %v thrust %v", out.Propulsion, out.Thrust)
	}
	if out.Phase <= 0.9 || out.Phase > 1 {
		t.Fatalf("expected phase near 1, got %v", out.Phase)
	}
	if out.Yaw >= 0 {
		t.Fatalf("expected negative yaw with left ahead, got %v", out.Yaw)
	}
}

func TestEngine_ResetStatsUnlocksGate(t *testing.T) {
	rig := newEngineRig(DefaultConfig())
	rig.tick(At(0), At(0), true)
	rig.feed(10, 20, 15)

	rig.e.ResetStats()
	if rig.e.Stats().StrokeCount != 0 {
		t.Fatalf("expected stats cleared")
	}
	strokes := rig.feed(20, 25, 15)
	if len(strokes) != 1 {
		t.Fatalf("expected gate unlocked after reset, got %d strokes", len(strokes))
	}
}

// TestEngine_StartWithoutReadings tests that a session started before any
// sensor reports calibrates from the first readings that arrive
func TestEngine_StartWithoutReadings(t *testing.T) {
	rig := newEngineRig(DefaultConfig())

	out := rig.tick(Reading{}, Reading{}, true)
	if !out.SessionStarted || !out.Calibrated {
		t.Fatalf("expected session start with auto calibration, got %+v", out)
	}
	if rig.e.Snapshot().Calibrated {
		t.Fatalf("expected calibration to stay pending without readings")
	}

	out = rig.tick(At(40), At(-25), true)
	if !out.Captured[Left] || !out.Captured[Right] {
		t.Fatalf("expected both baselines captured, got %+v", out.Captured)
	}

	for i := 0; i < 50; i++ {
		out = rig.tick(At(40), At(-25), true)
		if out.Captured[Left] || out.Captured[Right] {
			t.Fatalf("tick %d: unexpected second capture", i)
		}
		if out.LeftDelta != 0 || out.RightDelta != 0 || len(out.Strokes) != 0 || len(out.Taps) != 0 {
			t.Fatalf("tick %d: expected rest at the captured pose, got %+v", i, out)
		}
	}
	if out.Propulsion != 0 || out.Thrust != 0 {
		t.Fatalf("expected no propulsion at rest, got %v / %v", out.Propulsion, out.Thrust)
	}

	snap := rig.e.Snapshot()
	if !snap.Calibrated || snap.BaselineLeft != 40 || snap.BaselineRight != -25 {
		t.Fatalf("unexpected baselines %+v", snap)
	}
	if snap.LeftTap.BaselineDeg != 40 || snap.RightTap.BaselineDeg != -25 {
		t.Fatalf("tap baselines disagree with conditioner: %v %v", snap.LeftTap.BaselineDeg, snap.RightTap.BaselineDeg)
	}

	out = rig.tick(At(60), At(-25), true)
	if out.LeftDelta != 20 {
		t.Fatalf("expected delta from captured baseline, got %v", out.LeftDelta)
	}
}

// TestEngine_ManualCalibrateOneChannelMissing tests that a channel missing
// during recalibration keeps working once it reports again
func TestEngine_ManualCalibrateOneChannelMissing(t *testing.T) {
	rig := newEngineRig(DefaultConfig())
	rig.tick(At(0), At(0), true)

	rig.now = rig.now.Add(20 * time.Millisecond)
	out := rig.e.Update(Input{Now: rig.now, Dt: 0.02, Left: At(10), Right: Reading{}, SessionActive: true, Calibrate: true})
	if !out.Calibrated || out.Captured[Right] {
		t.Fatalf("unexpected calibration output %+v", out)
	}

	out = rig.tick(At(10), At(30), true)
	if !out.Captured[Right] || out.Captured[Left] {
		t.Fatalf("expected only right captured, got %+v", out.Captured)
	}
	if out.LeftDelta != 0 || out.RightDelta != 0 {
		t.Fatalf("expected zero deltas at new baselines, got %v %v", out.LeftDelta, out.RightDelta)
	}
}

// TestEngine_SmoothedFullTap tests the tap pipeline with the default smoothing
// factor: a fast dip to -60 is smoothed, reaches full readiness and fires on
// the first rising tick
func TestEngine_SmoothedFullTap(t *testing.T) {
	rig := newEngineRig(DefaultConfig())
	rig.tick(At(0), At(0), true)

	out := rig.tick(At(-60), At(0), true)
	if got := rig.e.Snapshot().LeftTap.SmoothedDeg; !almost(got, -12) {
		t.Fatalf("expected smoothed -12 after one tick, got %v", got)
	}
	if len(out.Taps) != 0 {
		t.Fatalf("expected no tap while descending")
	}

	var taps []TapEvent
	for i := 0; i < 5; i++ {
		out = rig.tick(At(-60), At(0), true)
		taps = append(taps, out.Taps...)
	}
	if len(taps) != 0 {
		t.Fatalf("expected no tap while held down, got %+v", taps)
	}
	if !rig.e.Snapshot().LeftTap.FullReady {
		t.Fatalf("expected full ready after the smoothed delta passed -35")
	}

	out = rig.tick(At(0), At(0), true)
	if len(out.Taps) != 1 {
		t.Fatalf("expected one tap on the first rising tick, got %+v", out.Taps)
	}
	tap := out.Taps[0]
	if tap.Class != Full || tap.Channel != Left || tap.Side != Right {
		t.Fatalf("unexpected tap %+v", tap)
	}
	if st := rig.e.Stats(); st.Taps[Full] != 1 || st.TapDistance != 3 {
		t.Fatalf("unexpected tap stats %+v", st)
	}
}
