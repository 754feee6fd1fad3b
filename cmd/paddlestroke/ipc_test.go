package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startTestIPC(t *testing.T, events chan Event) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "ps-ipc")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socket := filepath.Join(dir, "ipc.sock")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runIPCServer(ctx, socket, events, testLogger()) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("runIPCServer: %v", err)
			}
		case <-time.After(time.Second):
			t.Errorf("timeout waiting for IPC server to stop")
		}
	})

	waitUntil(t, time.Second, func() bool {
		_, err := os.Stat(socket)
		return err == nil
	}, "IPC socket not created")
	return socket
}

func TestIPC_SendEvent(t *testing.T) {
	events := make(chan Event, 4)
	socket := startTestIPC(t, events)

	if err := SendIPCEvent(socket, Calibrate{}); err != nil {
		t.Fatalf("SendIPCEvent: %v", err)
	}
	select {
	case ev := <-events:
		if _, ok := ev.(Calibrate); !ok {
			t.Fatalf("expected Calibrate, got %T", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for event")
	}
}

func TestIPC_QueueFull(t *testing.T) {
	events := make(chan Event) // unbuffered and never read
	socket := startTestIPC(t, events)

	err := SendIPCEvent(socket, ResetStats{})
	if err == nil {
		t.Fatalf("expected queue full error")
	}
}

func TestIPC_GetState(t *testing.T) {
	events := make(chan Event, 4)
	socket := startTestIPC(t, events)

	// Stand in for the daemon loop.
	go func() {
		for ev := range events {
			if req, ok := ev.(RequestStateSnapshot); ok {
				req.Reply <- StateSnapshot{SessionActive: true, PublishFailures: 3}
				return
			}
		}
	}()

	snap, err := QueryIPCState(socket)
	if err != nil {
		t.Fatalf("QueryIPCState: %v", err)
	}
	if !snap.SessionActive || snap.PublishFailures != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
