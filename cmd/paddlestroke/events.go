package main

import (
	"encoding/json"
	"fmt"
	"time"

	"paddlestroke/internal/stroke"
)

// ============================================================================
// Events
// ============================================================================
// Events are the only input to the reducer. External sources (sensors, keys,
// IPC) produce payload events; the daemon wraps them in TimedEvent so the
// reducer sees a receive timestamp without polluting the payload types.
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// Tick is emitted by the daemon loop at a fixed cadence.
// Dt is wall-clock delta in seconds between ticks.
type Tick struct {
	Now time.Time
	Dt  float64
}

func (Tick) eventMarker() {}

// TimedEvent wraps an external event with the time the daemon received it.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// AngleSampled is a raw angle reading for one paddle sensor.
type AngleSampled struct {
	Side     stroke.Side `json:"side"`
	AngleDeg float64     `json:"angle_deg"`

	// At is the sample time. Zero means "use the receive time".
	At time.Time `json:"-"`
}

func (AngleSampled) eventMarker() {}

// SessionStart begins a session (no-op if one is running).
type SessionStart struct{}

// SessionStop ends the running session (no-op if idle).
type SessionStop struct{}

// SessionToggle flips the session state.
type SessionToggle struct{}

// Calibrate requests a manual recalibration on the next tick.
type Calibrate struct{}

// ResetStats clears the running statistics.
type ResetStats struct{}

func (SessionStart) eventMarker()  {}
func (SessionStop) eventMarker()   {}
func (SessionToggle) eventMarker() {}
func (Calibrate) eventMarker()     {}
func (ResetStats) eventMarker()    {}

// RequestStateSnapshot asks the daemon for a copy of its current state.
// The daemon answers on Reply without blocking; Reply should be buffered.
type RequestStateSnapshot struct {
	Reply chan StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// PublishFailed is emitted when executing a publish Command fails.
type PublishFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (PublishFailed) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "angle_sampled":
		var a AngleSampled
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal AngleSampled: %w", err)
		}
		return a, nil

	case "session_start":
		return SessionStart{}, nil
	case "session_stop":
		return SessionStop{}, nil
	case "session_toggle":
		return SessionToggle{}, nil
	case "calibrate":
		return Calibrate{}, nil
	case "reset_stats":
		return ResetStats{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case AngleSampled:
		env.Type = "angle_sampled"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal AngleSampled: %w", err)
		}
		env.Data = data

	case SessionStart:
		env.Type = "session_start"
	case SessionStop:
		env.Type = "session_stop"
	case SessionToggle:
		env.Type = "session_toggle"
	case Calibrate:
		env.Type = "calibrate"
	case ResetStats:
		env.Type = "reset_stats"

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
