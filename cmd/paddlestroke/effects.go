package main

import (
	"encoding/json"
	"log/slog"
	"time"
)

// runEffect executes a single reducer-emitted Command and reports failures
// back as Events via onEvent.
//
// This function is allowed to perform I/O. It must never call Reduce()
// directly.
func runEffect(
	pub Publisher,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		return
	}

	now := time.Now()

	// Snapshot replies never need a publisher.
	if c, ok := cmd.(CmdPublishStateSnapshot); ok {
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}
		// Never block the daemon loop.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}
		return
	}

	if pub == nil {
		onEvent(PublishFailed{Command: cmd, Err: errNoPublisher{}, At: now})
		return
	}

	var (
		kind    string
		payload any
	)
	switch c := cmd.(type) {
	case CmdPublishStroke:
		kind, payload = topicStroke, c.Stroke
	case CmdPublishTap:
		kind, payload = topicTap, c.Tap
	case CmdPublishHold:
		kind, payload = topicHold, c.Hold
	case CmdPublishOutputs:
		kind, payload = topicOutputs, c.Outputs
	case CmdPublishSummary:
		kind, payload = topicSummary, c.Summary
	case CmdPublishSession:
		kind, payload = topicSession, sessionPayload{Active: c.Active, At: now}
	default:
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(PublishFailed{Command: cmd, Err: errUnknownCommand{cmd: cmd}, At: now})
		return
	}

	b, err := json.Marshal(payload)
	if err != nil {
		logger.Error("marshal publish payload failed", "command", cmd.String(), "error", err)
		onEvent(PublishFailed{Command: cmd, Err: err, At: now})
		return
	}
	if err := pub.Publish(kind, b); err != nil {
		logger.Warn("publish failed", "command", cmd.String(), "error", err)
		onEvent(PublishFailed{Command: cmd, Err: err, At: now})
	}
}

type sessionPayload struct {
	Active bool      `json:"active"`
	At     time.Time `json:"at"`
}

// errNoPublisher indicates a publish command was emitted without a publisher.
type errNoPublisher struct{}

func (errNoPublisher) Error() string { return "no publisher configured" }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
