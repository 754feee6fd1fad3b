package main

import (
	"errors"
	"testing"
	"time"

	"paddlestroke/internal/stroke"
)

type reducerRig struct {
	t     *testing.T
	state *DaemonState
	cfg   ReducerConfig
	now   time.Time

	cmds []Command
	bcs  []StateBroadcast
}

func newReducerRig(t *testing.T, cfg ReducerConfig) *reducerRig {
	t.Helper()
	t0 := time.Unix(1000, 0).UTC()
	return &reducerRig{
		t:     t,
		state: NewDaemonState(stroke.DefaultConfig(), false, t0),
		cfg:   cfg,
		now:   t0,
	}
}

func (r *reducerRig) reduce(e Event) ReduceResult {
	r.t.Helper()
	rr := Reduce(r.state, e, r.cfg)
	if rr.State == nil {
		r.t.Fatalf("expected non-nil state")
	}
	r.state = rr.State
	r.cmds = append(r.cmds, rr.Commands...)
	r.bcs = append(r.bcs, rr.Broadcasts...)
	return rr
}

func (r *reducerRig) send(e Event) ReduceResult {
	return r.reduce(TimedEvent{Event: e, At: r.now})
}

func (r *reducerRig) tick() ReduceResult {
	r.now = r.now.Add(20 * time.Millisecond)
	return r.reduce(Tick{Now: r.now, Dt: 0.02})
}

// paddle feeds one sample per side and ticks, for each left angle.
func (r *reducerRig) paddle(left ...float64) {
	for _, a := range left {
		r.send(AngleSampled{Side: stroke.Left, AngleDeg: a})
		r.send(AngleSampled{Side: stroke.Right, AngleDeg: 0})
		r.tick()
	}
}

func (r *reducerRig) reset() {
	r.cmds = nil
	r.bcs = nil
}

func broadcastsOf[T StateBroadcast](bcs []StateBroadcast) []T {
	var out []T
	for _, b := range bcs {
		if v, ok := b.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func commandsOf[T Command](cmds []Command) []T {
	var out []T
	for _, c := range cmds {
		if v, ok := c.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func TestReduce_SessionStart_BroadcastsOnce(t *testing.T) {
	rig := newReducerRig(t, ReducerConfig{Publish: true})

	rr := rig.send(SessionStart{})
	if !rig.state.Session.Active {
		t.Fatalf("expected session to be active")
	}
	if !rig.state.Session.StartedAt.Equal(rig.now) {
		t.Fatalf("expected started_at %v, got %v", rig.now, rig.state.Session.StartedAt)
	}
	if len(rr.Broadcasts) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(rr.Broadcasts))
	}
	bc, ok := rr.Broadcasts[0].(BroadcastSession)
	if !ok || !bc.Active {
		t.Fatalf("expected BroadcastSession{Active:true}, got %#v", rr.Broadcasts[0])
	}
	if len(rr.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(rr.Commands))
	}
	if c, ok := rr.Commands[0].(CmdPublishSession); !ok || !c.Active {
		t.Fatalf("expected CmdPublishSession{Active:true}, got %#v", rr.Commands[0])
	}

	// Starting a running session is a no-op.
	rr = rig.send(SessionStart{})
	if len(rr.Broadcasts) != 0 || len(rr.Commands) != 0 {
		t.Fatalf("expected no output on repeated start, got %d broadcasts %d commands", len(rr.Broadcasts), len(rr.Commands))
	}
}

func TestReduce_SessionToggle(t *testing.T) {
	rig := newReducerRig(t, ReducerConfig{})

	rig.send(SessionToggle{})
	if !rig.state.Session.Active {
		t.Fatalf("expected toggle to start session")
	}
	rig.send(SessionToggle{})
	if rig.state.Session.Active {
		t.Fatalf("expected toggle to stop session")
	}
	if got := len(broadcastsOf[BroadcastSession](rig.bcs)); got != 2 {
		t.Fatalf("expected 2 session broadcasts, got %d", got)
	}
	if len(rig.cmds) != 0 {
		t.Fatalf("expected no commands with publishing disabled, got %d", len(rig.cmds))
	}
}

func TestReduce_Tick_DetectsStrokeAndPublishes(t *testing.T) {
	rig := newReducerRig(t, ReducerConfig{Publish: true})

	rig.send(SessionStart{})
	rig.paddle(0)

	if cal := broadcastsOf[BroadcastCalibrated](rig.bcs); len(cal) != 1 {
		t.Fatalf("expected auto calibration on first active tick, got %d", len(cal))
	}
	rig.reset()

	rig.paddle(10, 20, 10, 0)

	strokes := broadcastsOf[BroadcastStroke](rig.bcs)
	if len(strokes) != 1 {
		t.Fatalf("expected 1 stroke broadcast, got %d", len(strokes))
	}
	st := strokes[0].Stroke
	if st.Side != stroke.Left || st.PeakDeg != 20 || st.DistanceMeters != 2 {
		t.Fatalf("unexpected stroke: %+v", st)
	}

	pubs := commandsOf[CmdPublishStroke](rig.cmds)
	if len(pubs) != 1 || pubs[0].Stroke != st {
		t.Fatalf("expected matching CmdPublishStroke, got %+v", pubs)
	}

	stats := broadcastsOf[BroadcastStats](rig.bcs)
	if len(stats) == 0 {
		t.Fatalf("expected a stats broadcast after the stroke")
	}
	last := stats[len(stats)-1]
	if last.StrokeCount != 1 || last.LeftCount != 1 || last.DistanceMeters != 2 {
		t.Fatalf("unexpected stats broadcast: %+v", last)
	}
}

func TestReduce_Outputs_BroadcastOnlyOnRoundedChange(t *testing.T) {
	rig := newReducerRig(t, ReducerConfig{})

	// Idle: first tick reports zeros once, then nothing.
	rr := rig.tick()
	if got := len(broadcastsOf[BroadcastOutputs](rr.Broadcasts)); got != 1 {
		t.Fatalf("expected 1 outputs broadcast on first tick, got %d", got)
	}
	rr = rig.tick()
	if got := len(broadcastsOf[BroadcastOutputs](rr.Broadcasts)); got != 0 {
		t.Fatalf("expected no outputs broadcast while unchanged, got %d", got)
	}

	rig.send(SessionStart{})
	rig.paddle(0)
	rig.reset()

	rig.paddle(20)
	outs := broadcastsOf[BroadcastOutputs](rig.bcs)
	if len(outs) != 1 {
		t.Fatalf("expected 1 outputs broadcast after movement, got %d", len(outs))
	}
	o := outs[0].Outputs
	if o.LeftDeltaDeg != roundTo(o.LeftDeltaDeg, outputsPrecision) {
		t.Fatalf("expected rounded left delta, got %v", o.LeftDeltaDeg)
	}
	if o.LeftDeltaDeg <= 0 || o.Propulsion <= 0 {
		t.Fatalf("expected positive delta and propulsion, got %+v", o)
	}
}

func TestReduce_Outputs_PublishedWhenEnabled(t *testing.T) {
	rig := newReducerRig(t, ReducerConfig{Publish: true, PublishOutputs: true})

	rig.tick()
	if got := len(commandsOf[CmdPublishOutputs](rig.cmds)); got != 1 {
		t.Fatalf("expected 1 CmdPublishOutputs, got %d", got)
	}

	rig2 := newReducerRig(t, ReducerConfig{Publish: true})
	rig2.tick()
	if got := len(commandsOf[CmdPublishOutputs](rig2.cmds)); got != 0 {
		t.Fatalf("expected outputs not to be published by default, got %d", got)
	}
}

func TestReduce_CalibratePendingUntilApplied(t *testing.T) {
	rig := newReducerRig(t, ReducerConfig{})

	rig.send(Calibrate{})
	if !rig.state.Intent.CalibratePending {
		t.Fatalf("expected calibrate to be pending")
	}

	// The engine ignores calibration while idle.
	rig.paddle(5)
	if !rig.state.Intent.CalibratePending {
		t.Fatalf("expected calibrate to stay pending while idle")
	}

	rig.send(SessionStart{})
	rig.paddle(5)
	if rig.state.Intent.CalibratePending {
		t.Fatalf("expected calibrate to be consumed")
	}
	cal := broadcastsOf[BroadcastCalibrated](rig.bcs)
	if len(cal) != 1 || cal[0].BaselineLeftDeg != 5 {
		t.Fatalf("expected one calibration at 5 deg, got %+v", cal)
	}
}

func TestReduce_ManualCalibrateDuringSession(t *testing.T) {
	rig := newReducerRig(t, ReducerConfig{})
	rig.send(SessionStart{})
	rig.paddle(0)
	rig.reset()

	rig.send(AngleSampled{Side: stroke.Left, AngleDeg: 7})
	rig.send(Calibrate{})
	rig.tick()

	cal := broadcastsOf[BroadcastCalibrated](rig.bcs)
	if len(cal) != 1 || cal[0].BaselineLeftDeg != 7 || cal[0].BaselineRightDeg != 0 {
		t.Fatalf("expected recalibration to (7, 0), got %+v", cal)
	}
}

func TestReduce_SessionStop_EmitsSummary(t *testing.T) {
	rig := newReducerRig(t, ReducerConfig{Publish: true})
	rig.send(SessionStart{})
	rig.paddle(0, 10, 20, 10, 0)
	rig.reset()

	rig.send(SessionStop{})
	if len(broadcastsOf[BroadcastSummary](rig.bcs)) != 0 {
		t.Fatalf("expected summary only after the next tick")
	}
	rig.tick()

	sums := broadcastsOf[BroadcastSummary](rig.bcs)
	if len(sums) != 1 {
		t.Fatalf("expected 1 summary broadcast, got %d", len(sums))
	}
	if sums[0].Summary.StrokeCount != 1 || sums[0].Summary.DistanceMeters != 2 {
		t.Fatalf("unexpected summary: %+v", sums[0].Summary)
	}
	if rig.state.Session.LastSummary == nil || rig.state.Session.LastSummary.StrokeCount != 1 {
		t.Fatalf("expected summary to be kept in state")
	}
	if got := len(commandsOf[CmdPublishSummary](rig.cmds)); got != 1 {
		t.Fatalf("expected 1 CmdPublishSummary, got %d", got)
	}
	if got := len(commandsOf[CmdPublishSession](rig.cmds)); got != 1 {
		t.Fatalf("expected 1 CmdPublishSession, got %d", got)
	}
}

func TestReduce_ResetStats(t *testing.T) {
	rig := newReducerRig(t, ReducerConfig{})
	rig.send(SessionStart{})
	rig.paddle(0, 10, 20, 10, 0)
	if rig.state.Engine.Stats().StrokeCount != 1 {
		t.Fatalf("expected 1 stroke before reset")
	}
	rig.reset()

	rr := rig.send(ResetStats{})
	if rig.state.Engine.Stats().StrokeCount != 0 {
		t.Fatalf("expected stats to be cleared")
	}
	stats := broadcastsOf[BroadcastStats](rr.Broadcasts)
	if len(stats) != 1 || stats[0].StrokeCount != 0 {
		t.Fatalf("expected zeroed stats broadcast, got %+v", stats)
	}
}

func TestReduce_RequestStateSnapshot(t *testing.T) {
	rig := newReducerRig(t, ReducerConfig{})
	rig.send(SessionStart{})
	rig.send(AngleSampled{Side: stroke.Right, AngleDeg: -12.5})

	reply := make(chan StateSnapshot, 1)
	rr := rig.send(RequestStateSnapshot{Reply: reply})

	if len(rr.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(rr.Commands))
	}
	cmd, ok := rr.Commands[0].(CmdPublishStateSnapshot)
	if !ok {
		t.Fatalf("expected CmdPublishStateSnapshot, got %T", rr.Commands[0])
	}
	if cmd.Reply != reply {
		t.Fatalf("expected reply channel to be passed through")
	}
	snap := cmd.Snapshot
	if !snap.SessionActive || snap.SessionStartedAt == nil {
		t.Fatalf("expected active session in snapshot, got %+v", snap)
	}
	if !snap.RightSample.Known || snap.RightSample.AngleDeg != -12.5 {
		t.Fatalf("expected right sample -12.5, got %+v", snap.RightSample)
	}
	if snap.LeftSample.Known {
		t.Fatalf("expected left sample unknown")
	}

	// The snapshot must not alias state.
	*snap.SessionStartedAt = time.Time{}
	if rig.state.Session.StartedAt.IsZero() {
		t.Fatalf("snapshot mutation leaked into state")
	}
}

func TestReduce_PublishFailed_Recorded(t *testing.T) {
	rig := newReducerRig(t, ReducerConfig{})

	rig.reduce(PublishFailed{Command: CmdPublishSession{Active: true}, Err: errors.New("broker down"), At: rig.now})
	rig.reduce(PublishFailed{Command: CmdPublishSession{Active: false}, Err: errNoPublisher{}, At: rig.now})

	if rig.state.Publish.Failures != 2 {
		t.Fatalf("expected 2 failures, got %d", rig.state.Publish.Failures)
	}
	if rig.state.Publish.LastError != "no publisher configured" {
		t.Fatalf("unexpected last error %q", rig.state.Publish.LastError)
	}
}

func TestDaemonState_ReadingStaleness(t *testing.T) {
	t0 := time.Unix(3000, 0)
	s := NewDaemonState(stroke.DefaultConfig(), false, t0)

	if r := s.Reading(stroke.Left, t0, 0); r.OK {
		t.Fatalf("expected unknown sample to be unavailable")
	}

	s.SetSample(stroke.Left, 12, t0)
	if r := s.Reading(stroke.Left, t0.Add(100*time.Millisecond), 250*time.Millisecond); !r.OK || r.AngleDeg != 12 {
		t.Fatalf("expected fresh sample, got %+v", r)
	}
	if r := s.Reading(stroke.Left, t0.Add(300*time.Millisecond), 250*time.Millisecond); r.OK {
		t.Fatalf("expected stale sample to be unavailable")
	}
	if r := s.Reading(stroke.Left, t0.Add(time.Hour), 0); !r.OK {
		t.Fatalf("expected staleness disabled with zero duration")
	}
}

func TestReduce_AngleSampled_UsesReceiveTime(t *testing.T) {
	rig := newReducerRig(t, ReducerConfig{})

	rig.send(AngleSampled{Side: stroke.Left, AngleDeg: 3})
	if !rig.state.Samples[stroke.Left].At.Equal(rig.now) {
		t.Fatalf("expected receive time, got %v", rig.state.Samples[stroke.Left].At)
	}

	sampled := rig.now.Add(-5 * time.Millisecond)
	rig.send(AngleSampled{Side: stroke.Left, AngleDeg: 4, At: sampled})
	if !rig.state.Samples[stroke.Left].At.Equal(sampled) {
		t.Fatalf("expected sample time, got %v", rig.state.Samples[stroke.Left].At)
	}
}
