package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

// decodeInputEvent parses one raw input_event record.
func decodeInputEvent(buf []byte) (inputEvent, error) {
	var ev inputEvent
	if len(buf) < inputEventSize {
		return ev, fmt.Errorf("short input event: %d bytes", len(buf))
	}
	err := binary.Read(bytes.NewReader(buf[:inputEventSize]), binary.LittleEndian, &ev)
	return ev, err
}

// keyBindings maps key codes to daemon events.
type keyBindings struct {
	Calibrate uint16
	Session   uint16
	Reset     uint16
}

func keyBindingsFrom(cfg InputConfig) keyBindings {
	return keyBindings{
		Calibrate: uint16(cfg.CalibrateKey),
		Session:   uint16(cfg.SessionKey),
		Reset:     uint16(cfg.ResetKey),
	}
}

// translateKey turns a key press into a daemon event. Releases, repeats and
// non-key events are ignored.
func translateKey(ev inputEvent, keys keyBindings) (Event, bool) {
	if ev.Type != EV_KEY || ev.Value != evValuePress {
		return nil, false
	}
	switch ev.Code {
	case keys.Calibrate:
		return Calibrate{}, true
	case keys.Session:
		return SessionToggle{}, true
	case keys.Reset:
		return ResetStats{}, true
	default:
		return nil, false
	}
}

// runKeyInput reads key presses from the configured devices and forwards the
// mapped events until ctx is canceled or a device fails.
func runKeyInput(ctx context.Context, cfg InputConfig, events chan<- Event, logger *slog.Logger) error {
	if len(cfg.Devices) == 0 {
		return nil
	}

	files := make([]*os.File, 0, len(cfg.Devices))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, dev := range cfg.Devices {
		f, err := os.Open(ExpandPath(dev))
		if err != nil {
			return fmt.Errorf("open input device %s (run as root or add user to 'input' group): %w", dev, err)
		}
		files = append(files, f)
	}

	raw := make(chan inputEvent, 64)
	readErr := make(chan error, 1)
	stop, err := startInputReader(files, raw, readErr)
	if err != nil {
		return err
	}
	// Runs before the files are closed.
	defer stop()

	keys := keyBindingsFrom(cfg)
	logger.Info("key input listening", "devices", cfg.Devices)

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("input reader stopped: %w", err)

		case ev := <-raw:
			e, ok := translateKey(ev, keys)
			if !ok {
				continue
			}
			logger.Debug("key input", "code", ev.Code, "event", fmt.Sprintf("%T", e))
			select {
			case events <- e:
			default:
				logger.Warn("event queue full, dropping key event", "code", ev.Code)
			}
		}
	}
}
