package stroke

import (
	"math"
	"time"
)

// edgeTap is the simpler tap detector: it fires on the first downward
// crossing of a threshold relative to a fixed baseline, then stays latched
// until the channel rises back to the release angle. Cooldown is per channel;
// only the one-fire-per-tick guard is shared.
type edgeTap struct {
	side Side
	ch   ChannelConfig
	cfg  TapConfig
	arb  *Arbiter

	baselineSet bool
	baselineX   float64
	prevX       float64
	prevDelta   float64

	triggered bool
	fired     bool
	lastFire  time.Time
}

func newEdgeTap(side Side, ch ChannelConfig, cfg TapConfig, arb *Arbiter) *edgeTap {
	return &edgeTap{side: side, ch: ch, cfg: cfg, arb: arb}
}

func (t *edgeTap) setBaseline(rawDeg float64) {
	x := adjustAngle(t.ch, rawDeg)
	t.baselineX = x
	t.baselineSet = true
	t.prevX = x
	t.prevDelta = 0
	t.triggered = false
	t.fired = false
}

func (t *edgeTap) update(rawDeg, dt float64, now time.Time, frame uint64) tapResult {
	var res tapResult

	x := adjustAngle(t.ch, rawDeg)
	if !t.baselineSet {
		t.setBaseline(rawDeg)
		return res
	}

	vel := Normalize180(x-t.prevX) / math.Max(minDt, dt)
	delta := Normalize180(x - t.baselineX)
	movingDown := delta < t.prevDelta

	crossedFull := t.prevDelta > t.cfg.EdgeFullTriggerDeg && delta <= t.cfg.EdgeFullTriggerDeg && movingDown
	crossedSmall := t.prevDelta > t.cfg.EdgeSmallTriggerDeg && delta <= t.cfg.EdgeSmallTriggerDeg && movingDown

	cooldownOK := !t.fired || now.Sub(t.lastFire) >= t.cfg.Cooldown
	fastEnough := -vel >= t.cfg.EdgeMinDownSpeedDps

	if !t.triggered && cooldownOK && fastEnough && vel < 0 {
		if crossedFull || crossedSmall {
			class := Small
			if crossedFull {
				class = Full
			}
			if t.arb.claimFrame(frame) {
				res.tap = &TapEvent{
					Channel:       t.side,
					Side:          t.outputSide(),
					Class:         class,
					DepthDeg:      delta,
					PeakDownSpeed: -vel,
					At:            now,
				}
				t.triggered = true
				t.fired = true
				t.lastFire = now
			}
		}
	} else if t.triggered && delta >= t.cfg.EdgeReleaseDeg {
		t.triggered = false
	}

	t.prevDelta = delta
	t.prevX = x
	return res
}

func (t *edgeTap) outputSide() Side {
	if t.cfg.CrossSides {
		return t.side.Opposite()
	}
	return t.side
}

func (t *edgeTap) state() TapState {
	return TapState{
		Armed:       !t.triggered,
		SmoothedDeg: t.prevDelta,
		BaselineDeg: t.baselineX,
	}
}
