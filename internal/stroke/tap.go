package stroke

import (
	"math"
	"time"
)

// TapEvent is a discrete tap fired by one sensor channel.
type TapEvent struct {
	Channel       Side      `json:"channel"` // sensor that fired
	Side          Side      `json:"side"`    // kayak side that receives the tap
	Class         Class     `json:"class"`
	DepthDeg      float64   `json:"depth_deg"` // deepest smoothed delta of the excursion
	PeakDownSpeed float64   `json:"peak_down_speed_dps"`
	At            time.Time `json:"at"`
}

// HoldEvent reports a hold turning on or off (hold mode only).
type HoldEvent struct {
	Channel Side      `json:"channel"`
	Side    Side      `json:"side"`
	Class   Class     `json:"class"`
	On      bool      `json:"on"`
	At      time.Time `json:"at"`
}

type tapResult struct {
	tap   *TapEvent
	holds []HoldEvent
}

// tapClassifier is one channel's tap state machine.
type tapClassifier interface {
	setBaseline(rawDeg float64)
	update(rawDeg, dt float64, now time.Time, frame uint64) tapResult
	state() TapState
}

// TapState is a read-only view of one channel's classifier.
type TapState struct {
	Armed       bool    `json:"armed"`
	SmallReady  bool    `json:"small_ready"`
	FullReady   bool    `json:"full_ready"`
	SmoothedDeg float64 `json:"smoothed_deg"`
	BaselineDeg float64 `json:"baseline_deg"`
}

// noMin marks "no minimum recorded since the channel armed".
const noMin = math.MaxFloat64

// reservationTap detects a downward excursion followed by a confirmed lift and
// fires a small or full tap. Both channels coordinate through one Arbiter.
//
// baselineX is the "top" reference. It is set on calibration and on every
// re-arm, never on an ordinary tick.
type reservationTap struct {
	side Side
	ch   ChannelConfig
	cfg  TapConfig
	arb  *Arbiter

	baselineSet  bool
	baselineX    float64
	smoothed     float64
	smoothedPrev float64
	minDelta     float64

	peakDownSpeed float64
	risingAccum   float64

	armed      bool
	smallReady bool
	fullReady  bool

	holdSmall bool
	holdFull  bool
}

func newReservationTap(side Side, ch ChannelConfig, cfg TapConfig, arb *Arbiter) *reservationTap {
	return &reservationTap{
		side:     side,
		ch:       ch,
		cfg:      cfg,
		arb:      arb,
		minDelta: noMin,
		armed:    true,
	}
}

func (t *reservationTap) outputSide() Side {
	if t.cfg.CrossSides {
		return t.side.Opposite()
	}
	return t.side
}

// setBaseline takes the current angle as the top reference and rearms.
func (t *reservationTap) setBaseline(rawDeg float64) {
	t.baselineX = adjustAngle(t.ch, rawDeg)
	t.baselineSet = true
	t.smoothed = 0
	t.smoothedPrev = 0
	t.minDelta = noMin
	t.peakDownSpeed = 0
	t.risingAccum = 0
	t.armed = true
	t.smallReady = false
	t.fullReady = false
}

func (t *reservationTap) update(rawDeg, dt float64, now time.Time, frame uint64) tapResult {
	var res tapResult

	x := adjustAngle(t.ch, rawDeg)
	if !t.baselineSet {
		t.setBaseline(rawDeg)
	}

	rawDelta := Normalize180(x - t.baselineX)
	t.smoothed = lerp(t.smoothed, rawDelta, t.cfg.SmoothAlpha)

	vel := (t.smoothed - t.smoothedPrev) / math.Max(minDt, dt)
	if down := -vel; down > t.peakDownSpeed {
		t.peakDownSpeed = down
	}

	t.arb.expire(now)

	if !t.armed {
		enoughRise := t.smoothed-t.minDelta >= t.cfg.RearmDeltaUpDeg
		if vel > t.cfg.RearmSpeedDps {
			t.risingAccum += dt
		} else {
			t.risingAccum = 0
		}
		if (enoughRise || t.risingAccum >= t.cfg.RearmMinHoldSec) && !t.arb.Active() {
			t.baselineX = Normalize180(x)
			t.minDelta = noMin
			t.peakDownSpeed = 0
			t.armed = true
			t.smallReady = false
			t.fullReady = false
			res.holds = t.clearHolds(res.holds, now)
		}
	}

	if t.smoothed < t.minDelta {
		t.minDelta = t.smoothed
	}

	if t.cfg.UseHold && t.armed {
		switch {
		case t.smoothed <= t.cfg.FullTriggerDeg:
			res.holds = t.setHold(res.holds, Full, true, now)
			res.holds = t.setHold(res.holds, Small, false, now)
		case t.smoothed <= t.cfg.SmallTriggerDeg:
			res.holds = t.setHold(res.holds, Small, true, now)
			res.holds = t.setHold(res.holds, Full, false, now)
		default:
			res.holds = t.clearHolds(res.holds, now)
		}
	}

	if t.armed && t.arb.cooldownPassed(now) && !t.arb.Active() {
		fullGate := t.cfg.FullTriggerDeg - t.cfg.MinTapMarginDeg
		smallGate := t.cfg.SmallTriggerDeg - t.cfg.MinTapMarginDeg

		// Full wins over small once both are crossed in one excursion.
		if t.minDelta <= fullGate {
			t.fullReady = true
			t.smallReady = false
			t.arb.reserve(t.side, now)
		} else if t.minDelta <= smallGate && !t.fullReady {
			t.smallReady = true
			t.arb.reserve(t.side, now)
		}

		downOK := !t.cfg.UseDownVelocityGate || t.peakDownSpeed >= t.cfg.MinDownSpeedDps
		risingConfirmed := vel >= t.cfg.AscentSpeedMinDps && t.smoothed-t.minDelta >= t.cfg.LiftHysteresisDeg

		if risingConfirmed && downOK && t.arb.mayFire(t.side) && (t.fullReady || t.smallReady) {
			class := Small
			if t.fullReady {
				class = Full
			}
			if ev, ok := t.fire(class, frame, now); ok {
				res.tap = &ev
				res.holds = t.clearHolds(res.holds, now)
			}
		}
	}

	t.smoothedPrev = t.smoothed
	return res
}

func (t *reservationTap) fire(class Class, frame uint64, now time.Time) (TapEvent, bool) {
	if !t.arb.fire(frame, now) {
		return TapEvent{}, false
	}
	ev := TapEvent{
		Channel:       t.side,
		Side:          t.outputSide(),
		Class:         class,
		DepthDeg:      t.minDelta,
		PeakDownSpeed: t.peakDownSpeed,
		At:            now,
	}

	// Keep the top reference until the channel re-arms.
	t.armed = false
	t.peakDownSpeed = 0
	t.risingAccum = 0
	t.smallReady = false
	t.fullReady = false
	t.minDelta = t.smoothed + 0.001
	return ev, true
}

func (t *reservationTap) state() TapState {
	return TapState{
		Armed:       t.armed,
		SmallReady:  t.smallReady,
		FullReady:   t.fullReady,
		SmoothedDeg: t.smoothed,
		BaselineDeg: t.baselineX,
	}
}

func (t *reservationTap) setHold(out []HoldEvent, class Class, on bool, now time.Time) []HoldEvent {
	cur := &t.holdSmall
	if class == Full {
		cur = &t.holdFull
	}
	if *cur == on {
		return out
	}
	*cur = on
	return append(out, HoldEvent{Channel: t.side, Side: t.outputSide(), Class: class, On: on, At: now})
}

func (t *reservationTap) clearHolds(out []HoldEvent, now time.Time) []HoldEvent {
	if !t.cfg.UseHold {
		return out
	}
	out = t.setHold(out, Small, false, now)
	return t.setHold(out, Full, false, now)
}
