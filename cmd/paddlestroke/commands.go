package main

import (
	"fmt"

	"paddlestroke/internal/stroke"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop.
// In this codebase, those are MQTT publishes and snapshot replies.
type Command interface {
	commandMarker()
	String() string
}

// CmdPublishStroke publishes an accepted stroke.
type CmdPublishStroke struct {
	Stroke stroke.StrokeEvent
}

func (CmdPublishStroke) commandMarker() {}
func (c CmdPublishStroke) String() string {
	return fmt.Sprintf("CmdPublishStroke(side=%s peak_deg=%.1f)", c.Stroke.Side, c.Stroke.PeakDeg)
}

// CmdPublishTap publishes a discrete tap.
type CmdPublishTap struct {
	Tap stroke.TapEvent
}

func (CmdPublishTap) commandMarker() {}
func (c CmdPublishTap) String() string {
	return fmt.Sprintf("CmdPublishTap(side=%s class=%s)", c.Tap.Side, c.Tap.Class)
}

// CmdPublishHold publishes a hold edge.
type CmdPublishHold struct {
	Hold stroke.HoldEvent
}

func (CmdPublishHold) commandMarker() {}
func (c CmdPublishHold) String() string {
	return fmt.Sprintf("CmdPublishHold(side=%s class=%s on=%v)", c.Hold.Side, c.Hold.Class, c.Hold.On)
}

// CmdPublishOutputs publishes the continuous outputs (already rounded).
type CmdPublishOutputs struct {
	Outputs Outputs
}

func (CmdPublishOutputs) commandMarker() {}
func (c CmdPublishOutputs) String() string {
	return fmt.Sprintf("CmdPublishOutputs(propulsion=%.2f yaw=%.2f)", c.Outputs.Propulsion, c.Outputs.Yaw)
}

// CmdPublishSummary publishes an end-of-session summary.
type CmdPublishSummary struct {
	Summary stroke.Summary
}

func (CmdPublishSummary) commandMarker() {}
func (c CmdPublishSummary) String() string {
	return fmt.Sprintf("CmdPublishSummary(strokes=%d score=%d)", c.Summary.StrokeCount, c.Summary.Score)
}

// CmdPublishSession publishes a session state change.
type CmdPublishSession struct {
	Active bool
}

func (CmdPublishSession) commandMarker()   {}
func (c CmdPublishSession) String() string { return fmt.Sprintf("CmdPublishSession(active=%v)", c.Active) }

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }
