package stroke

import (
	"math"
	"time"
)

// Input is everything the engine needs for one tick.
type Input struct {
	Now time.Time
	Dt  float64 // seconds since the previous tick

	Left  Reading
	Right Reading

	// SessionActive gates all processing. Its rising edge starts a session.
	SessionActive bool

	// Calibrate requests a manual recalibration before this tick's classification.
	Calibrate bool
}

// StrokeEvent is a stroke accepted by the stroke gate.
type StrokeEvent struct {
	Side           Side      `json:"side"`
	PeakDeg        float64   `json:"peak_deg"` // absolute peak angle
	Class          Class     `json:"class"`
	DistanceMeters int       `json:"distance_m"`
	At             time.Time `json:"at"`
}

// Output is the result of one tick.
type Output struct {
	Frame uint64
	Idle  bool

	SessionStarted bool
	SessionEnded   bool
	Calibrated     bool

	// Captured marks channels whose pending baseline was taken this tick.
	Captured [2]bool

	LeftDelta  float64
	RightDelta float64
	Dominant   Side
	Trend      Trend

	Strokes []StrokeEvent
	Taps    []TapEvent
	Holds   []HoldEvent

	Drive      float64
	Propulsion float64
	Thrust     float64
	Yaw        float64
	Phase      float64

	// Summary is set on the tick a session ends.
	Summary *Summary
}

// Engine runs the full per-tick pipeline for both channels. It owns all
// per-channel state and the shared Arbiter, and must be driven from a single
// goroutine.
type Engine struct {
	cfg Config

	cond    [2]*Conditioner
	tracker *PeakTracker
	gate    *StrokeGate
	arb     *Arbiter
	taps    [2]tapClassifier
	prop    *Propulsion
	stats   Stats

	phase    float64
	phaseVel float64

	frame      uint64
	active     bool
	calibrated bool
	elapsed    time.Duration

	lastOut Output
}

// NewEngine builds an engine from cfg. Out-of-range values are clamped.
func NewEngine(cfg Config) *Engine {
	cfg = cfg.withDefaults()

	e := &Engine{
		cfg:     cfg,
		tracker: NewPeakTracker(cfg.TrendHysteresisDeg),
		gate:    NewStrokeGate(cfg.Gate),
		arb:     NewArbiter(cfg.Tap.Cooldown, cfg.Tap.ReservationWindow),
		prop:    NewPropulsion(cfg.Propulsion),
	}
	e.cond[Left] = NewConditioner(cfg.Left, cfg.DeadzoneDeg)
	e.cond[Right] = NewConditioner(cfg.Right, cfg.DeadzoneDeg)

	for _, side := range []Side{Left, Right} {
		ch := cfg.Left
		if side == Right {
			ch = cfg.Right
		}
		if cfg.Tap.Mode == TapModeEdge {
			e.taps[side] = newEdgeTap(side, ch, cfg.Tap, e.arb)
		} else {
			e.taps[side] = newReservationTap(side, ch, cfg.Tap, e.arb)
		}
	}
	return e
}

// Config returns the effective (clamped) configuration.
func (e *Engine) Config() Config { return e.cfg }

// Calibrate sets every baseline from the given readings and returns derived
// trend, gate and propulsion state to neutral. A channel whose reading is
// unavailable stays pending and is calibrated from its first available
// reading during a session.
func (e *Engine) Calibrate(left, right Reading) {
	e.cond[Left].Calibrate(left)
	e.cond[Right].Calibrate(right)
	if left.OK {
		e.taps[Left].setBaseline(left.AngleDeg)
	}
	if right.OK {
		e.taps[Right].setBaseline(right.AngleDeg)
	}
	e.tracker.Reset()
	e.gate.Unlock()
	e.prop.Reset()
	e.calibrated = true
}

// ResetStats clears the statistics and unlocks both stroke gates.
func (e *Engine) ResetStats() {
	e.stats.Reset()
	e.gate.Unlock()
}

// Update advances the engine by one tick.
func (e *Engine) Update(in Input) Output {
	e.frame++
	dt := e.cfg.clampDt(in.Dt)
	out := Output{Frame: e.frame}

	if !in.SessionActive {
		if e.active {
			e.active = false
			s := e.stats.Summarize(e.elapsed)
			out.SessionEnded = true
			out.Summary = &s
		}
		e.phase = 0
		e.phaseVel = 0
		out.Idle = true
		e.lastOut = out
		return out
	}

	if !e.active {
		e.active = true
		e.elapsed = 0
		e.ResetStats()
		out.SessionStarted = true
		if e.cfg.AutoCalibrateOnStart {
			e.Calibrate(in.Left, in.Right)
			out.Calibrated = true
		}
	}
	if in.Calibrate {
		e.Calibrate(in.Left, in.Right)
		out.Calibrated = true
	}

	readings := [2]Reading{in.Left, in.Right}
	for _, side := range []Side{Left, Right} {
		if e.cond[side].Capture(readings[side]) {
			e.taps[side].setBaseline(readings[side].AngleDeg)
			e.tracker.Reset()
			e.gate.UnlockSide(side)
			out.Captured[side] = true
		}
	}

	// Tap classifiers: left first, then right, against the shared arbiter.
	for _, side := range []Side{Left, Right} {
		r := readings[side]
		if !r.OK {
			continue
		}
		res := e.taps[side].update(r.AngleDeg, dt, in.Now, e.frame)
		if res.tap != nil {
			e.stats.RegisterTap(res.tap.Class)
			out.Taps = append(out.Taps, *res.tap)
		}
		out.Holds = append(out.Holds, res.holds...)
	}

	l := e.cond[Left].Update(in.Left)
	r := e.cond[Right].Update(in.Right)
	out.LeftDelta, out.RightDelta = l, r

	dom, domDelta := Dominant(l, r)
	trend, peak := e.tracker.Update(dom, domDelta)
	out.Dominant, out.Trend = dom, trend

	if peak != nil && e.gate.TryTrigger(peak.Side, peak.Abs()) {
		abs := peak.Abs()
		class := Small
		if abs >= e.cfg.Propulsion.FullAngleDeg {
			class = Full
		}
		out.Strokes = append(out.Strokes, StrokeEvent{
			Side:           peak.Side,
			PeakDeg:        abs,
			Class:          class,
			DistanceMeters: e.stats.Register(peak.Side, abs),
			At:             in.Now,
		})
	}

	absDom := math.Abs(domDelta)
	out.Propulsion = e.prop.Update(absDom, dt)
	out.Drive = e.prop.LastDrive()
	out.Thrust = e.prop.Thrust()
	out.Yaw = e.prop.Yaw(l, r)

	target := clamp01(absDom / math.Max(1, e.cfg.Propulsion.FullAngleDeg))
	smoothTime := e.cfg.PhaseSmoothUpSec
	if trend == Falling {
		smoothTime = e.cfg.PhaseSmoothDownSec
	}
	e.phase = smoothDamp(e.phase, target, &e.phaseVel, smoothTime, dt)
	out.Phase = e.phase

	e.gate.Release(math.Abs(l), math.Abs(r))
	e.elapsed += time.Duration(dt * float64(time.Second))

	e.lastOut = out
	return out
}

// Stats returns a copy of the running statistics.
func (e *Engine) Stats() Stats { return e.stats }

// Elapsed is the active time of the current (or last) session.
func (e *Engine) Elapsed() time.Duration { return e.elapsed }

// Active reports whether a session is running.
func (e *Engine) Active() bool { return e.active }

// Arbiter exposes the shared arbitration state (read-only use).
func (e *Engine) Arbiter() *Arbiter { return e.arb }

// Snapshot is a read-only view of the engine for display.
type Snapshot struct {
	SessionActive bool    `json:"session_active"`
	Calibrated    bool    `json:"calibrated"`
	ElapsedSec    float64 `json:"elapsed_sec"`

	DistanceMeters int     `json:"distance_m"`
	StrokeCount    int     `json:"stroke_count"`
	LeftCount      int     `json:"left_count"`
	RightCount     int     `json:"right_count"`
	AvgAngleLeft   float64 `json:"avg_angle_left_deg"`
	AvgAngleRight  float64 `json:"avg_angle_right_deg"`
	SmallTaps      int     `json:"small_taps"`
	FullTaps       int     `json:"full_taps"`
	TapDistance    int     `json:"tap_distance_m"`

	LeftDelta  float64 `json:"left_delta_deg"`
	RightDelta float64 `json:"right_delta_deg"`
	Propulsion float64 `json:"propulsion"`
	Thrust     float64 `json:"thrust"`
	Yaw        float64 `json:"yaw"`
	Phase      float64 `json:"phase"`

	LeftTap  TapState `json:"left_tap"`
	RightTap TapState `json:"right_tap"`

	BaselineLeft  float64 `json:"baseline_left_deg"`
	BaselineRight float64 `json:"baseline_right_deg"`
}

// Snapshot captures the current engine state.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		SessionActive:  e.active,
		Calibrated:     e.calibrated && !e.cond[Left].Pending() && !e.cond[Right].Pending(),
		ElapsedSec:     e.elapsed.Seconds(),
		DistanceMeters: e.stats.DistanceMeters,
		StrokeCount:    e.stats.StrokeCount,
		LeftCount:      e.stats.Count[Left],
		RightCount:     e.stats.Count[Right],
		AvgAngleLeft:   e.stats.AvgAngleLeft(),
		AvgAngleRight:  e.stats.AvgAngleRight(),
		SmallTaps:      e.stats.Taps[Small],
		FullTaps:       e.stats.Taps[Full],
		TapDistance:    e.stats.TapDistance,
		LeftDelta:      e.lastOut.LeftDelta,
		RightDelta:     e.lastOut.RightDelta,
		Propulsion:     e.lastOut.Propulsion,
		Thrust:         e.lastOut.Thrust,
		Yaw:            e.lastOut.Yaw,
		Phase:          e.lastOut.Phase,
		LeftTap:        e.taps[Left].state(),
		RightTap:       e.taps[Right].state(),
		BaselineLeft:   e.cond[Left].Baseline(),
		BaselineRight:  e.cond[Right].Baseline(),
	}
}
