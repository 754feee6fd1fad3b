package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: state changes + commands + broadcasts.
//   - The daemon loop is the only place that executes side effects (MQTT publishes,
//     snapshot replies).
//   - Effect failures are turned into Events and fed back into the reducer.
//   - Explicit event and command queues; no re-entrant execution.
//
// ============================================================================

// runDaemon is the main daemon loop that:
//   - Receives Events from sensors, keys and IPC
//   - Emits Tick events on a fixed cadence (these drive the stroke engine)
//   - Reduces events into (state, commands, broadcasts)
//   - Executes commands and forwards broadcasts to the WebSocket broadcaster
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	pub Publisher,
	cfg ReducerConfig,
	state *DaemonState,
	updateHz int,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	if state == nil {
		logger.Error("daemon state is nil")
		return
	}
	if updateHz <= 0 {
		updateHz = defaultUpdateHz
	}

	ticker := time.NewTicker(time.Second / time.Duration(updateHz))
	defer ticker.Stop()

	lastTick := time.Now()

	var eventQueue []Event
	var cmdQueue []Command
	dropped := 0

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}

	emit := func(bcs []StateBroadcast) {
		if broadcasts == nil {
			return
		}
		for _, b := range bcs {
			// Never let a slow broadcaster stall detection.
			select {
			case broadcasts <- b:
			default:
				dropped++
				if dropped == 1 || dropped%100 == 0 {
					logger.Warn("broadcast queue full, dropping", "dropped", dropped)
				}
			}
		}
	}

	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev, cfg)
			if rr.State != nil {
				state = rr.State
			}
			cmdQueue = append(cmdQueue, rr.Commands...)
			emit(rr.Broadcasts)
		}
	}

	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			runEffect(pub, cmd, logger, enqueueEvent)
			flushEvents()
		}
	}

	logger.Info("daemon starting", "update_hz", updateHz, "session_active", state.Session.Active)

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			enqueueEvent(TimedEvent{Event: ev, At: time.Now()})
			flushEvents()
			flushCommands()

		case now := <-ticker.C:
			dt := now.Sub(lastTick).Seconds()
			lastTick = now
			enqueueEvent(Tick{Now: now, Dt: dt})
			flushEvents()
			flushCommands()
		}
	}
}
