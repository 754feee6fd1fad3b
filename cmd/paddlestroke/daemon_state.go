package main

import (
	"math"
	"time"

	"paddlestroke/internal/stroke"
)

// DaemonState is the top-level, daemon-owned state container.
//
// The reducer is the only writer. Other goroutines see it through
// StateSnapshot copies delivered via RequestStateSnapshot.
type DaemonState struct {
	// Engine owns all stroke detection state.
	Engine *stroke.Engine

	// Samples holds the latest raw angle per sensor.
	Samples [2]SampleState

	Session SessionState

	Intent DaemonIntent

	// LastOutputs is the last broadcast (rounded) output set.
	LastOutputs      Outputs
	LastOutputsKnown bool

	Publish PublishState
}

// SampleState is the last observed raw angle for one sensor.
type SampleState struct {
	AngleDeg float64
	At       time.Time
	Known    bool
}

// SessionState tracks whether a session is running and the last summary.
type SessionState struct {
	Active    bool
	StartedAt time.Time

	LastSummary *stroke.Summary
}

// DaemonIntent captures pending requests that take effect on the next tick.
type DaemonIntent struct {
	// CalibratePending collapses repeated requests into one recalibration.
	CalibratePending bool
}

// PublishState records publish failures for diagnostics.
type PublishState struct {
	Failures    int
	LastError   string
	LastErrorAt time.Time
}

// Outputs is the externally visible continuous output set, rounded to
// outputsPrecision.
type Outputs struct {
	LeftDeltaDeg  float64 `json:"left_delta_deg"`
	RightDeltaDeg float64 `json:"right_delta_deg"`
	Propulsion    float64 `json:"propulsion"`
	Thrust        float64 `json:"thrust"`
	Yaw           float64 `json:"yaw"`
	Phase         float64 `json:"phase"`
}

func roundTo(v, precision float64) float64 {
	return math.Round(v/precision) * precision
}

func outputsFrom(o stroke.Output) Outputs {
	return Outputs{
		LeftDeltaDeg:  roundTo(o.LeftDelta, outputsPrecision),
		RightDeltaDeg: roundTo(o.RightDelta, outputsPrecision),
		Propulsion:    roundTo(o.Propulsion, outputsPrecision),
		Thrust:        roundTo(o.Thrust, outputsPrecision),
		Yaw:           roundTo(o.Yaw, outputsPrecision),
		Phase:         roundTo(o.Phase, outputsPrecision),
	}
}

// NewDaemonState builds the initial state around a fresh engine.
func NewDaemonState(cfg stroke.Config, startActive bool, now time.Time) *DaemonState {
	s := &DaemonState{Engine: stroke.NewEngine(cfg)}
	if startActive {
		s.Session.Active = true
		s.Session.StartedAt = now
	}
	return s
}

// SetSample records the latest raw angle for a sensor.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) SetSample(side stroke.Side, angleDeg float64, at time.Time) {
	if side != stroke.Left && side != stroke.Right {
		return
	}
	s.Samples[side] = SampleState{AngleDeg: angleDeg, At: at, Known: true}
}

// Reading returns the engine input for a sensor. A sample older than stale
// (when stale > 0) is reported as unavailable.
func (s *DaemonState) Reading(side stroke.Side, now time.Time, stale time.Duration) stroke.Reading {
	smp := s.Samples[side]
	if !smp.Known {
		return stroke.Reading{}
	}
	if stale > 0 && now.Sub(smp.At) > stale {
		return stroke.Reading{}
	}
	return stroke.At(smp.AngleDeg)
}

// RequestCalibrate records a manual calibration intent.
func (s *DaemonState) RequestCalibrate() {
	s.Intent.CalibratePending = true
}

// StateSnapshot is an immutable copy of daemon state for other goroutines.
type StateSnapshot struct {
	At time.Time `json:"at"`

	Engine stroke.Snapshot `json:"engine"`

	LeftSample  SampleSnapshot `json:"left_sample"`
	RightSample SampleSnapshot `json:"right_sample"`

	SessionActive    bool            `json:"session_active"`
	SessionStartedAt *time.Time      `json:"session_started_at,omitempty"`
	LastSummary      *stroke.Summary `json:"last_summary,omitempty"`

	CalibratePending bool `json:"calibrate_pending"`

	PublishFailures  int    `json:"publish_failures"`
	PublishLastError string `json:"publish_last_error,omitempty"`
}

type SampleSnapshot struct {
	AngleDeg float64   `json:"angle_deg"`
	At       time.Time `json:"at"`
	Known    bool      `json:"known"`
}

// Snapshot copies the state. Pointer fields are copied so the result shares
// nothing with s.
func (s *DaemonState) Snapshot(at time.Time) StateSnapshot {
	snap := StateSnapshot{
		At:               at,
		SessionActive:    s.Session.Active,
		CalibratePending: s.Intent.CalibratePending,
		PublishFailures:  s.Publish.Failures,
		PublishLastError: s.Publish.LastError,
	}
	if s.Engine != nil {
		snap.Engine = s.Engine.Snapshot()
	}
	for side, smp := range s.Samples {
		ss := SampleSnapshot{AngleDeg: smp.AngleDeg, At: smp.At, Known: smp.Known}
		if stroke.Side(side) == stroke.Left {
			snap.LeftSample = ss
		} else {
			snap.RightSample = ss
		}
	}
	if s.Session.Active {
		t := s.Session.StartedAt
		snap.SessionStartedAt = &t
	}
	if s.Session.LastSummary != nil {
		sum := *s.Session.LastSummary
		snap.LastSummary = &sum
	}
	return snap
}
