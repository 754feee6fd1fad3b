package stroke

// StrokeGate latches per side so a single physical stroke is counted once.
type StrokeGate struct {
	cfg    GateConfig
	locked [2]bool
}

func NewStrokeGate(cfg GateConfig) *StrokeGate {
	return &StrokeGate{cfg: cfg}
}

// TryTrigger reports whether a peak of the given magnitude on side is accepted.
// Acceptance locks that side.
func (g *StrokeGate) TryTrigger(side Side, absPeakDeg float64) bool {
	if absPeakDeg < g.cfg.MinCountAngleDeg {
		return false
	}
	if g.locked[side] {
		return false
	}
	g.locked[side] = true
	return true
}

// Release unlocks each side whose |delta| is back within the reset angle.
func (g *StrokeGate) Release(absLeft, absRight float64) {
	if g.locked[Left] && absLeft <= g.cfg.ResetAngleDeg {
		g.locked[Left] = false
	}
	if g.locked[Right] && absRight <= g.cfg.ResetAngleDeg {
		g.locked[Right] = false
	}
}

// Unlock clears both latches.
func (g *StrokeGate) Unlock() {
	g.locked = [2]bool{}
}

// UnlockSide clears one latch.
func (g *StrokeGate) UnlockSide(side Side) {
	g.locked[side] = false
}

func (g *StrokeGate) Locked(side Side) bool { return g.locked[side] }
