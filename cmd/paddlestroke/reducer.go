package main

import (
	"time"

	"paddlestroke/internal/stroke"
)

// This file implements the reducer:
//
//   - Events in (sensor samples, key/IPC requests, ticks, publish failures)
//   - Reduce() mutates DaemonState and returns Commands and Broadcasts
//   - No I/O happens here; the daemon loop executes Commands
//
// The stroke engine lives inside DaemonState, so driving it from Tick keeps
// all detection state single-owner.

// ReducerConfig is the reducer policy derived from Config.
type ReducerConfig struct {
	// StaleAfter marks a sensor unavailable when its last sample is older.
	// Zero disables staleness.
	StaleAfter time.Duration

	// Publish enables MQTT publish commands for discrete events.
	Publish bool

	// PublishOutputs also publishes continuous outputs when they change.
	PublishOutputs bool
}

// ReduceResult is the output of Reduce(): next state plus Commands to execute
// and Broadcasts for WebSocket clients.
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce applies one event to the state.
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Commands and Broadcasts are returned, never executed
func Reduce(s *DaemonState, e Event, cfg ReducerConfig) ReduceResult {
	if s == nil {
		s = &DaemonState{}
	}
	if s.Engine == nil {
		s.Engine = stroke.NewEngine(stroke.DefaultConfig())
	}

	rr := ReduceResult{State: s}

	at := time.Time{}
	if te, ok := e.(TimedEvent); ok {
		e = te.Event
		at = te.At
	}

	switch ev := e.(type) {
	case Tick:
		reduceTick(s, ev, cfg, &rr)

	case AngleSampled:
		sampleAt := ev.At
		if sampleAt.IsZero() {
			sampleAt = at
		}
		if sampleAt.IsZero() {
			sampleAt = time.Now()
		}
		s.SetSample(ev.Side, ev.AngleDeg, sampleAt)

	case SessionStart:
		setSession(s, true, nowOr(at), cfg, &rr)

	case SessionStop:
		setSession(s, false, nowOr(at), cfg, &rr)

	case SessionToggle:
		setSession(s, !s.Session.Active, nowOr(at), cfg, &rr)

	case Calibrate:
		s.RequestCalibrate()

	case ResetStats:
		s.Engine.ResetStats()
		rr.Broadcasts = append(rr.Broadcasts, statsBroadcast(s.Engine.Stats(), nowOr(at)))

	case RequestStateSnapshot:
		rr.Commands = append(rr.Commands, CmdPublishStateSnapshot{
			Reply:    ev.Reply,
			Snapshot: s.Snapshot(nowOr(at)),
		})

	case PublishFailed:
		s.Publish.Failures++
		if ev.Err != nil {
			s.Publish.LastError = ev.Err.Error()
		}
		s.Publish.LastErrorAt = ev.At

	default:
		// Unknown event type: no-op.
	}

	return rr
}

func nowOr(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now()
	}
	return at
}

// setSession records a session edge. The engine sees the edge on the next
// tick, which is where the summary of an ended session is produced.
func setSession(s *DaemonState, active bool, at time.Time, cfg ReducerConfig, rr *ReduceResult) {
	if s.Session.Active == active {
		return
	}
	s.Session.Active = active
	if active {
		s.Session.StartedAt = at
	}
	rr.Broadcasts = append(rr.Broadcasts, BroadcastSession{Active: active, At: at})
	if cfg.Publish {
		rr.Commands = append(rr.Commands, CmdPublishSession{Active: active})
	}
}

func reduceTick(s *DaemonState, ev Tick, cfg ReducerConfig, rr *ReduceResult) {
	now := ev.Now
	out := s.Engine.Update(stroke.Input{
		Now:           now,
		Dt:            ev.Dt,
		Left:          s.Reading(stroke.Left, now, cfg.StaleAfter),
		Right:         s.Reading(stroke.Right, now, cfg.StaleAfter),
		SessionActive: s.Session.Active,
		Calibrate:     s.Intent.CalibratePending,
	})

	if out.Calibrated {
		s.Intent.CalibratePending = false
	}
	if out.Calibrated || out.Captured[stroke.Left] || out.Captured[stroke.Right] {
		snap := s.Engine.Snapshot()
		rr.Broadcasts = append(rr.Broadcasts, BroadcastCalibrated{
			BaselineLeftDeg:  snap.BaselineLeft,
			BaselineRightDeg: snap.BaselineRight,
			At:               now,
		})
	}

	for _, st := range out.Strokes {
		rr.Broadcasts = append(rr.Broadcasts, BroadcastStroke{Stroke: st})
		if cfg.Publish {
			rr.Commands = append(rr.Commands, CmdPublishStroke{Stroke: st})
		}
	}
	for _, tp := range out.Taps {
		rr.Broadcasts = append(rr.Broadcasts, BroadcastTap{Tap: tp})
		if cfg.Publish {
			rr.Commands = append(rr.Commands, CmdPublishTap{Tap: tp})
		}
	}
	for _, h := range out.Holds {
		rr.Broadcasts = append(rr.Broadcasts, BroadcastHold{Hold: h})
		if cfg.Publish {
			rr.Commands = append(rr.Commands, CmdPublishHold{Hold: h})
		}
	}
	if len(out.Strokes) > 0 || len(out.Taps) > 0 || out.SessionStarted {
		rr.Broadcasts = append(rr.Broadcasts, statsBroadcast(s.Engine.Stats(), now))
	}

	if out.Summary != nil {
		sum := *out.Summary
		s.Session.LastSummary = &sum
		rr.Broadcasts = append(rr.Broadcasts, BroadcastSummary{Summary: sum, At: now})
		if cfg.Publish {
			rr.Commands = append(rr.Commands, CmdPublishSummary{Summary: sum})
		}
	}

	// Outputs go out only when a rounded value changes; idle ticks report zeros.
	var outputs Outputs
	if !out.Idle {
		outputs = outputsFrom(out)
	}
	if !s.LastOutputsKnown || outputs != s.LastOutputs {
		s.LastOutputs = outputs
		s.LastOutputsKnown = true
		rr.Broadcasts = append(rr.Broadcasts, BroadcastOutputs{Outputs: outputs, At: now})
		if cfg.PublishOutputs {
			rr.Commands = append(rr.Commands, CmdPublishOutputs{Outputs: outputs})
		}
	}
}
