package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "0.3.0"

func printVersion() {
	fmt.Printf("paddlestroke v%s\n", version)
	fmt.Println("Kayak paddle stroke detection daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  paddlestroke [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Reads left/right paddle angles from a sensor source, detects strokes")
	fmt.Println("  and taps, and derives propulsion/yaw outputs. Events are served over")
	fmt.Println("  a WebSocket feed and optionally published to MQTT.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (defaults are used when empty)")
	fmt.Println()
	fmt.Println("  -sensor-source string")
	fmt.Println("        Sensor source: mock|mqtt|serial|imu (default \"mock\")")
	fmt.Println()
	fmt.Println("  -sensor-axis string")
	fmt.Println("        Pose axis used as paddle angle: roll|pitch|yaw (default \"roll\")")
	fmt.Println()
	fmt.Println("  -mqtt-broker string")
	fmt.Printf("        MQTT broker for the mqtt sensor source (default %q)\n", defaultMQTTBroker)
	fmt.Println()
	fmt.Println("  -serial-port string")
	fmt.Println("        Serial port for the serial sensor source (default \"/dev/ttyUSB0\")")
	fmt.Println()
	fmt.Println("  -input-device string")
	fmt.Println("        Linux input event device for calibrate/session/reset keys")
	fmt.Println()
	fmt.Println("  -update-hz int")
	fmt.Printf("        Engine tick frequency in Hz (default %d)\n", defaultUpdateHz)
	fmt.Println()
	fmt.Println("  -tap-mode string")
	fmt.Println("        Tap classifier: reservation|edge (default \"reservation\")")
	fmt.Println()
	fmt.Println("  -publish")
	fmt.Println("        Publish strokes/taps/summaries to MQTT")
	fmt.Println()
	fmt.Println("  -publish-broker string")
	fmt.Printf("        MQTT broker for publishing (default %q)\n", defaultMQTTBroker)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultIPCSocket)
	fmt.Println()
	fmt.Println("  -http-port int")
	fmt.Printf("        HTTP port for /ws, /healthz and /api/state, 0 disables (default %d)\n", defaultHTTPPort)
	fmt.Println()
	fmt.Println("  -start-active")
	fmt.Println("        Start a session immediately")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("KEYS (with -input-device):")
	fmt.Println("  C      calibrate")
	fmt.Println("  SPACE  start/stop session")
	fmt.Println("  R      reset statistics")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Simulated paddling, live feed on ws://localhost:3002/ws")
	fmt.Println("  paddlestroke -start-active")
	fmt.Println()
	fmt.Println("  # Poses from the inertial computer over MQTT, publish results")
	fmt.Println("  paddlestroke -sensor-source mqtt -mqtt-broker tcp://pi.local:1883 -publish")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath = flag.String("config", "", "Path to YAML config file")

		sensorSource = flag.String("sensor-source", "", "Sensor source: mock|mqtt|serial|imu")
		sensorAxis   = flag.String("sensor-axis", "", "Pose axis: roll|pitch|yaw")
		mqttBroker   = flag.String("mqtt-broker", "", "MQTT broker for the mqtt sensor source")
		serialPort   = flag.String("serial-port", "", "Serial port for the serial sensor source")
		inputDevice  = flag.String("input-device", "", "Linux input event device for keys")

		updateHz = flag.Int("update-hz", 0, "Engine tick frequency in Hz")
		tapMode  = flag.String("tap-mode", "", "Tap classifier: reservation|edge")

		publish       = flag.Bool("publish", false, "Publish events to MQTT")
		publishBroker = flag.String("publish-broker", "", "MQTT broker for publishing")

		ipcSocketPath = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		httpPort      = flag.Int("http-port", 0, "HTTP listener port (0 disables)")
		startActive   = flag.Bool("start-active", false, "Start a session immediately")

		logLevelStr = flag.String("log-level", "", "Log level: error, warn, info, debug")
		_           = flag.Bool("version", false, "Print version and exit")
		_           = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags the user actually set override the config.
	var ov FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sensor-source":
			ov.SensorSource = sensorSource
		case "sensor-axis":
			ov.SensorAxis = sensorAxis
		case "mqtt-broker":
			ov.MQTTBroker = mqttBroker
		case "serial-port":
			ov.SerialPort = serialPort
		case "input-device":
			ov.InputDevice = inputDevice
		case "update-hz":
			ov.UpdateHz = updateHz
		case "tap-mode":
			ov.TapMode = tapMode
		case "publish":
			ov.PublishEnabled = publish
		case "publish-broker":
			ov.PublishBroker = publishBroker
		case "ipc-socket":
			ov.IPCSocketPath = ipcSocketPath
		case "http-port":
			ov.HTTPPort = httpPort
		case "start-active":
			ov.StartActive = startActive
		case "log-level":
			ov.LogLevel = logLevelStr
		}
	})
	ov.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid config:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.Error("paddlestroke stopped", "error", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until a signal arrives or one of them
// fails.
func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := newSensorSource(cfg.Sensors, logger)
	if err != nil {
		return fmt.Errorf("sensor source: %w", err)
	}

	var pub Publisher
	if cfg.Publish.Enabled {
		mp, err := NewMQTTPublisher(cfg.Publish, logger)
		if err != nil {
			return err
		}
		defer mp.Close()
		pub = mp
	}

	// Central event bus.
	events := make(chan Event, 256)

	// Broadcasts only matter when someone can receive them.
	var broadcasts chan StateBroadcast
	if cfg.HTTP.Port > 0 {
		broadcasts = make(chan StateBroadcast, 256)
	}

	state := NewDaemonState(cfg.ToEngineConfig(), cfg.Session.StartActive, time.Now())

	logger.Debug("configuration",
		"sensor_source", cfg.Sensors.Source,
		"sensor_axis", cfg.Sensors.Axis,
		"stale_ms", cfg.Sensors.StaleMS,
		"update_hz", cfg.Daemon.UpdateHz,
		"tap_mode", cfg.Stroke.Tap.Mode,
		"publish", cfg.Publish.Enabled,
		"ipc_socket", cfg.IPC.SocketPath,
		"http_port", cfg.HTTP.Port,
		"input_devices", cfg.Input.Devices)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(ctx, events, pub, cfg.ToReducerConfig(), state, cfg.Daemon.UpdateHz, broadcasts, logger)
		return nil
	})

	g.Go(func() error {
		return runIPCServer(ctx, cfg.IPC.SocketPath, events, logger)
	})

	if cfg.HTTP.Port > 0 {
		ws := NewServer(logger, events, HubConfig{})
		g.Go(func() error {
			ws.Hub().Run(ctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(ctx, ws.Hub(), broadcasts, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(ctx, cfg.HTTP.Port, newHTTPMux(ws, events, logger), logger)
		})
	}

	g.Go(func() error {
		if err := src.Run(ctx, sampleForwarder(events, logger)); err != nil && ctx.Err() == nil {
			return fmt.Errorf("sensor source %s: %w", cfg.Sensors.Source, err)
		}
		return nil
	})

	g.Go(func() error {
		return runKeyInput(ctx, cfg.Input, events, logger)
	})

	logger.Info("listening",
		"sensor_source", cfg.Sensors.Source,
		"ipc", cfg.IPC.SocketPath,
		"http_port", cfg.HTTP.Port,
		"update_rate_hz", cfg.Daemon.UpdateHz,
		"publish", cfg.Publish.Enabled)

	err = g.Wait()
	logger.Info("shutting down")
	return err
}
