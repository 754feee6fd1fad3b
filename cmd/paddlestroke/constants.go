package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01

	KEY_R     = 19
	KEY_C     = 46
	KEY_SPACE = 57
	KEY_ENTER = 28
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Daemon defaults
const (
	defaultUpdateHz   = 50  // Engine tick frequency (Hz)
	defaultStaleMS    = 250 // Samples older than this are treated as unavailable (ms)
	defaultHTTPPort   = 3002
	defaultIPCSocket  = "/tmp/paddlestroke.sock"
	defaultTopicRoot  = "paddlestroke"
	defaultMQTTBroker = "tcp://localhost:1883"

	// Broadcast precision for continuous outputs.
	outputsPrecision = 0.01

	publishTimeout = 500 // MQTT publish wait (ms)
)
