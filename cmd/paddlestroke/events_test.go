package main

import (
	"testing"

	"paddlestroke/internal/stroke"
)

func TestEventEnvelope_RoundTrip(t *testing.T) {
	events := []Event{
		AngleSampled{Side: stroke.Right, AngleDeg: -17.5},
		SessionStart{},
		SessionStop{},
		SessionToggle{},
		Calibrate{},
		ResetStats{},
	}
	for _, ev := range events {
		b, err := MarshalEvent(ev)
		if err != nil {
			t.Fatalf("MarshalEvent(%T): %v", ev, err)
		}
		got, err := UnmarshalEvent(b)
		if err != nil {
			t.Fatalf("UnmarshalEvent(%s): %v", b, err)
		}
		if got != ev {
			t.Fatalf("round trip mismatch: got %#v, want %#v", got, ev)
		}
	}
}

func TestUnmarshalEvent_AngleSampledWire(t *testing.T) {
	ev, err := UnmarshalEvent([]byte(`{"type":"angle_sampled","data":{"side":"l","angle_deg":12.25}}`))
	if err != nil {
		t.Fatalf("UnmarshalEvent: %v", err)
	}
	a, ok := ev.(AngleSampled)
	if !ok {
		t.Fatalf("expected AngleSampled, got %T", ev)
	}
	if a.Side != stroke.Left || a.AngleDeg != 12.25 || !a.At.IsZero() {
		t.Fatalf("unexpected event: %+v", a)
	}
}

func TestUnmarshalEvent_Errors(t *testing.T) {
	for _, in := range []string{
		`not json`,
		`{"type":"warp_drive"}`,
		`{"type":"angle_sampled","data":{"side":"middle","angle_deg":1}}`,
	} {
		if _, err := UnmarshalEvent([]byte(in)); err == nil {
			t.Errorf("expected error for %s", in)
		}
	}
}

func TestMarshalEvent_RejectsInternalEvents(t *testing.T) {
	if _, err := MarshalEvent(Tick{}); err == nil {
		t.Fatalf("expected Tick to be rejected")
	}
}
