package stroke

import (
	"math"
	"time"
)

// TapMode selects which tap classifier runs per channel.
type TapMode string

const (
	// TapModeReservation is the reservation + global cooldown arbiter with
	// velocity and lift-hysteresis gates.
	TapModeReservation TapMode = "reservation"

	// TapModeEdge fires on the first downward threshold crossing and releases
	// once the channel rises back above ReleaseDeg.
	TapModeEdge TapMode = "edge"
)

// ChannelConfig is the per-sensor sign handling.
type ChannelConfig struct {
	Invert    bool    // negate the normalized raw angle
	OffsetDeg float64 // added after inversion
}

// GateConfig configures stroke counting.
type GateConfig struct {
	MinCountAngleDeg float64 // peaks below this are ignored
	ResetAngleDeg    float64 // a locked gate unlocks once |delta| <= this
}

// TapConfig configures the tap classifiers.
type TapConfig struct {
	Mode TapMode

	SmallTriggerDeg float64 // negative: downward from the top reference
	FullTriggerDeg  float64
	MinTapMarginDeg float64 // extra depth required beyond a trigger angle

	Cooldown          time.Duration
	ReservationWindow time.Duration

	UseDownVelocityGate bool
	MinDownSpeedDps     float64

	RearmSpeedDps   float64
	RearmMinHoldSec float64
	RearmDeltaUpDeg float64

	AscentSpeedMinDps float64
	LiftHysteresisDeg float64
	SmoothAlpha       float64

	UseHold    bool
	CrossSides bool // left sensor drives the right kayak side and vice versa

	// Edge mode only.
	EdgeSmallTriggerDeg float64
	EdgeFullTriggerDeg  float64
	EdgeReleaseDeg      float64
	EdgeMinDownSpeedDps float64
}

// PropulsionConfig configures the continuous drive and yaw outputs.
type PropulsionConfig struct {
	DeadbandDeg          float64
	FullAngleDeg         float64
	Gain                 float64
	SmoothingSec         float64
	YawGain              float64
	YawClampDeg          float64
	ScaleYawByPropulsion bool
}

// Config is the full engine configuration.
type Config struct {
	Left  ChannelConfig
	Right ChannelConfig

	DeadzoneDeg          float64
	TrendHysteresisDeg   float64
	AutoCalibrateOnStart bool

	Gate       GateConfig
	Tap        TapConfig
	Propulsion PropulsionConfig

	PhaseSmoothUpSec   float64
	PhaseSmoothDownSec float64

	// MaxDt caps the elapsed time integrated in one Update (seconds). 0 disables the cap.
	MaxDt float64
}

// Defaults
const (
	defaultDeadzoneDeg        = 2.0
	defaultTrendHysteresisDeg = 0.5
	defaultMinCountAngleDeg   = 10.0
	defaultResetAngleDeg      = 5.0

	defaultSmallTriggerDeg   = -15.0
	defaultFullTriggerDeg    = -30.0
	defaultMinTapMarginDeg   = 5.0
	defaultTapCooldown       = 300 * time.Millisecond
	defaultReservationWindow = 60 * time.Millisecond
	defaultMinDownSpeedDps   = 110.0
	defaultRearmSpeedDps     = 25.0
	defaultRearmMinHoldSec   = 0.08
	defaultRearmDeltaUpDeg   = 6.0
	defaultAscentSpeedMinDps = 15.0
	defaultLiftHysteresisDeg = 3.0
	defaultSmoothAlpha       = 0.2

	defaultEdgeSmallTriggerDeg = -30.0
	defaultEdgeFullTriggerDeg  = -60.0
	defaultEdgeReleaseDeg      = -15.0
	defaultEdgeMinDownSpeedDps = 80.0

	defaultPropDeadbandDeg  = 3.0
	defaultPropFullAngleDeg = 30.0
	defaultPropGain         = 1.2
	defaultPropSmoothingSec = 0.15
	defaultYawGain          = 0.25
	defaultYawClampDeg      = 45.0

	defaultPhaseSmoothUpSec   = 0.06
	defaultPhaseSmoothDownSec = 0.18

	defaultMaxDt = 0.25

	minDt = 1e-4
)

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		DeadzoneDeg:          defaultDeadzoneDeg,
		TrendHysteresisDeg:   defaultTrendHysteresisDeg,
		AutoCalibrateOnStart: true,
		Gate: GateConfig{
			MinCountAngleDeg: defaultMinCountAngleDeg,
			ResetAngleDeg:    defaultResetAngleDeg,
		},
		Tap: TapConfig{
			Mode:                TapModeReservation,
			SmallTriggerDeg:     defaultSmallTriggerDeg,
			FullTriggerDeg:      defaultFullTriggerDeg,
			MinTapMarginDeg:     defaultMinTapMarginDeg,
			Cooldown:            defaultTapCooldown,
			ReservationWindow:   defaultReservationWindow,
			UseDownVelocityGate: true,
			MinDownSpeedDps:     defaultMinDownSpeedDps,
			RearmSpeedDps:       defaultRearmSpeedDps,
			RearmMinHoldSec:     defaultRearmMinHoldSec,
			RearmDeltaUpDeg:     defaultRearmDeltaUpDeg,
			AscentSpeedMinDps:   defaultAscentSpeedMinDps,
			LiftHysteresisDeg:   defaultLiftHysteresisDeg,
			SmoothAlpha:         defaultSmoothAlpha,
			CrossSides:          true,
			EdgeSmallTriggerDeg: defaultEdgeSmallTriggerDeg,
			EdgeFullTriggerDeg:  defaultEdgeFullTriggerDeg,
			EdgeReleaseDeg:      defaultEdgeReleaseDeg,
			EdgeMinDownSpeedDps: defaultEdgeMinDownSpeedDps,
		},
		Propulsion: PropulsionConfig{
			DeadbandDeg:          defaultPropDeadbandDeg,
			FullAngleDeg:         defaultPropFullAngleDeg,
			Gain:                 defaultPropGain,
			SmoothingSec:         defaultPropSmoothingSec,
			YawGain:              defaultYawGain,
			YawClampDeg:          defaultYawClampDeg,
			ScaleYawByPropulsion: true,
		},
		PhaseSmoothUpSec:   defaultPhaseSmoothUpSec,
		PhaseSmoothDownSec: defaultPhaseSmoothDownSec,
		MaxDt:              defaultMaxDt,
	}
}

// withDefaults clamps values into sane ranges. Thresholds are not expected to
// be invalid, so nothing here fails; bad values are pulled back quietly.
func (c Config) withDefaults() Config {
	if c.Tap.Mode == "" {
		c.Tap.Mode = TapModeReservation
	}
	c.DeadzoneDeg = math.Max(0, c.DeadzoneDeg)
	if c.TrendHysteresisDeg <= 0 {
		c.TrendHysteresisDeg = defaultTrendHysteresisDeg
	}
	c.Gate.MinCountAngleDeg = math.Max(0, c.Gate.MinCountAngleDeg)
	c.Gate.ResetAngleDeg = math.Max(0, c.Gate.ResetAngleDeg)

	// Trigger angles point downward.
	c.Tap.SmallTriggerDeg = -math.Abs(c.Tap.SmallTriggerDeg)
	c.Tap.FullTriggerDeg = -math.Abs(c.Tap.FullTriggerDeg)
	if c.Tap.FullTriggerDeg > c.Tap.SmallTriggerDeg {
		c.Tap.FullTriggerDeg, c.Tap.SmallTriggerDeg = c.Tap.SmallTriggerDeg, c.Tap.FullTriggerDeg
	}
	c.Tap.MinTapMarginDeg = math.Max(0, c.Tap.MinTapMarginDeg)
	if c.Tap.Cooldown < 0 {
		c.Tap.Cooldown = 0
	}
	if c.Tap.ReservationWindow < 0 {
		c.Tap.ReservationWindow = 0
	}
	c.Tap.SmoothAlpha = clamp01(c.Tap.SmoothAlpha)
	c.Tap.EdgeSmallTriggerDeg = -math.Abs(c.Tap.EdgeSmallTriggerDeg)
	c.Tap.EdgeFullTriggerDeg = -math.Abs(c.Tap.EdgeFullTriggerDeg)
	if c.Tap.EdgeFullTriggerDeg > c.Tap.EdgeSmallTriggerDeg {
		c.Tap.EdgeFullTriggerDeg, c.Tap.EdgeSmallTriggerDeg = c.Tap.EdgeSmallTriggerDeg, c.Tap.EdgeFullTriggerDeg
	}

	c.Propulsion.DeadbandDeg = math.Max(0, c.Propulsion.DeadbandDeg)
	if c.Propulsion.FullAngleDeg <= 0 {
		c.Propulsion.FullAngleDeg = defaultPropFullAngleDeg
	}
	if c.Propulsion.YawClampDeg <= 0 {
		c.Propulsion.YawClampDeg = defaultYawClampDeg
	}
	if c.MaxDt < 0 {
		c.MaxDt = 0
	}
	return c
}

// clampDt keeps dt positive and, when configured, bounded.
func (c Config) clampDt(dt float64) float64 {
	if dt < minDt || math.IsNaN(dt) {
		dt = minDt
	}
	if c.MaxDt > 0 && dt > c.MaxDt {
		dt = c.MaxDt
	}
	return dt
}
