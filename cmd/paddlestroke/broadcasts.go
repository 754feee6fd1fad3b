package main

import (
	"time"

	"paddlestroke/internal/stroke"
)

// StateBroadcast is a reducer-emitted notification for WebSocket clients.
// Broadcasts carry only what the client needs; they never reference DaemonState.
type StateBroadcast interface {
	broadcastMarker()
}

type BroadcastStroke struct {
	Stroke stroke.StrokeEvent
}

type BroadcastTap struct {
	Tap stroke.TapEvent
}

type BroadcastHold struct {
	Hold stroke.HoldEvent
}

// BroadcastOutputs carries rounded continuous outputs. Emitted only when a
// rounded value changes.
type BroadcastOutputs struct {
	Outputs Outputs
	At      time.Time
}

type BroadcastSession struct {
	Active bool
	At     time.Time
}

type BroadcastSummary struct {
	Summary stroke.Summary
	At      time.Time
}

type BroadcastCalibrated struct {
	BaselineLeftDeg  float64
	BaselineRightDeg float64
	At               time.Time
}

// BroadcastStats carries the running counters after they change.
type BroadcastStats struct {
	DistanceMeters int
	StrokeCount    int
	LeftCount      int
	RightCount     int
	SmallTaps      int
	FullTaps       int
	At             time.Time
}

func (BroadcastStroke) broadcastMarker()     {}
func (BroadcastTap) broadcastMarker()        {}
func (BroadcastHold) broadcastMarker()       {}
func (BroadcastOutputs) broadcastMarker()    {}
func (BroadcastSession) broadcastMarker()    {}
func (BroadcastSummary) broadcastMarker()    {}
func (BroadcastCalibrated) broadcastMarker() {}
func (BroadcastStats) broadcastMarker()      {}

func statsBroadcast(st stroke.Stats, at time.Time) BroadcastStats {
	return BroadcastStats{
		DistanceMeters: st.DistanceMeters,
		StrokeCount:    st.StrokeCount,
		LeftCount:      st.Count[stroke.Left],
		RightCount:     st.Count[stroke.Right],
		SmallTaps:      st.Taps[stroke.Small],
		FullTaps:       st.Taps[stroke.Full],
		At:             at,
	}
}
