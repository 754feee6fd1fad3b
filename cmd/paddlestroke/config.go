package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"paddlestroke/internal/sensor"
	"paddlestroke/internal/stroke"
)

// Config is the top-level YAML configuration for the paddlestroke daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume
// a well-formed config.
type Config struct {
	// Where paddle angles come from
	Sensors SensorsConfig `yaml:"sensors"`

	// Key input (calibrate / session / reset buttons)
	Input InputConfig `yaml:"input"`

	// Stroke detection tuning
	Stroke StrokeFileConfig `yaml:"stroke"`

	// Daemon loop
	Daemon DaemonConfig `yaml:"daemon"`

	// Event publishing over MQTT
	Publish PublishConfig `yaml:"publish"`

	IPC  IPCConfig  `yaml:"ipc"`
	HTTP HTTPConfig `yaml:"http"`

	Session SessionConfig `yaml:"session"`

	Logging LoggingConfig `yaml:"logging"`
}

type SensorsConfig struct {
	Source  string `yaml:"source"` // "mock", "mqtt", "serial" or "imu"
	Axis    string `yaml:"axis"`   // "roll", "pitch" or "yaw"
	StaleMS int    `yaml:"stale_ms"`

	Mock   MockSensorConfig   `yaml:"mock"`
	MQTT   MQTTSensorConfig   `yaml:"mqtt"`
	Serial SerialSensorConfig `yaml:"serial"`
	IMU    IMUSensorConfig    `yaml:"imu"`
}

type MockSensorConfig struct {
	AmplitudeDeg float64 `yaml:"amplitude_deg"`
	PeriodMS     int     `yaml:"period_ms"`
	IntervalMS   int     `yaml:"interval_ms"`
}

type MQTTSensorConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	LeftTopic  string `yaml:"left_topic"`
	RightTopic string `yaml:"right_topic"`
	QoS        int    `yaml:"qos"`
}

type SerialSensorConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type IMUSensorConfig struct {
	Left      IMUDeviceConfig `yaml:"left"`
	Right     IMUDeviceConfig `yaml:"right"`
	PollMS    int             `yaml:"poll_ms"`
	SelfTest  bool            `yaml:"self_test"`
	Calibrate bool            `yaml:"calibrate"`
}

type IMUDeviceConfig struct {
	SPIDevice string `yaml:"spi_device"`
	CSPin     string `yaml:"cs_pin"`
}

type InputConfig struct {
	Devices      []string `yaml:"devices,omitempty"` // empty disables key input
	CalibrateKey int      `yaml:"calibrate_key"`
	SessionKey   int      `yaml:"session_key"`
	ResetKey     int      `yaml:"reset_key"`
}

type ChannelFileConfig struct {
	Invert    bool    `yaml:"invert"`
	OffsetDeg float64 `yaml:"offset_deg"`
}

// StrokeFileConfig is the user-facing stroke configuration as represented in YAML.
// Durations are integer milliseconds.
type StrokeFileConfig struct {
	Left  ChannelFileConfig `yaml:"left"`
	Right ChannelFileConfig `yaml:"right"`

	DeadzoneDeg          float64 `yaml:"deadzone_deg"`
	TrendHysteresisDeg   float64 `yaml:"trend_hysteresis_deg"`
	AutoCalibrateOnStart bool    `yaml:"auto_calibrate_on_start"`
	MinCountAngleDeg     float64 `yaml:"min_count_angle_deg"`
	ResetAngleDeg        float64 `yaml:"reset_angle_deg"`

	Tap        TapFileConfig        `yaml:"tap"`
	Propulsion PropulsionFileConfig `yaml:"propulsion"`

	PhaseSmoothUpSec   float64 `yaml:"phase_smooth_up_sec"`
	PhaseSmoothDownSec float64 `yaml:"phase_smooth_down_sec"`
}

type TapFileConfig struct {
	Mode string `yaml:"mode"` // "reservation" or "edge"

	SmallTriggerDeg float64 `yaml:"small_trigger_deg"`
	FullTriggerDeg  float64 `yaml:"full_trigger_deg"`
	MinTapMarginDeg float64 `yaml:"min_tap_margin_deg"`

	CooldownMS          int `yaml:"cooldown_ms"`
	ReservationWindowMS int `yaml:"reservation_window_ms"`

	UseDownVelocityGate bool    `yaml:"use_down_velocity_gate"`
	MinDownSpeedDps     float64 `yaml:"min_down_speed_dps"`

	RearmSpeedDps   float64 `yaml:"rearm_speed_dps"`
	RearmMinHoldSec float64 `yaml:"rearm_min_hold_sec"`
	RearmDeltaUpDeg float64 `yaml:"rearm_delta_up_deg"`

	AscentSpeedMinDps float64 `yaml:"ascent_speed_min_dps"`
	LiftHysteresisDeg float64 `yaml:"lift_hysteresis_deg"`
	SmoothAlpha       float64 `yaml:"smooth_alpha"`

	UseHold    bool `yaml:"use_hold"`
	CrossSides bool `yaml:"cross_sides"`

	EdgeSmallTriggerDeg float64 `yaml:"edge_small_trigger_deg"`
	EdgeFullTriggerDeg  float64 `yaml:"edge_full_trigger_deg"`
	EdgeReleaseDeg      float64 `yaml:"edge_release_deg"`
	EdgeMinDownSpeedDps float64 `yaml:"edge_min_down_speed_dps"`
}

type PropulsionFileConfig struct {
	DeadbandDeg          float64 `yaml:"deadband_deg"`
	FullAngleDeg         float64 `yaml:"full_angle_deg"`
	Gain                 float64 `yaml:"gain"`
	SmoothingSec         float64 `yaml:"smoothing_sec"`
	YawGain              float64 `yaml:"yaw_gain"`
	YawClampDeg          float64 `yaml:"yaw_clamp_deg"`
	ScaleYawByPropulsion bool    `yaml:"scale_yaw_by_propulsion"`
}

type DaemonConfig struct {
	UpdateHz int `yaml:"update_hz"`
}

type PublishConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
	Outputs     bool   `yaml:"outputs"` // also publish continuous outputs
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Port int `yaml:"port"` // 0 disables the HTTP server
}

type SessionConfig struct {
	StartActive bool `yaml:"start_active"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	sc := stroke.DefaultConfig()
	return Config{
		Sensors: SensorsConfig{
			Source:  "mock",
			Axis:    string(sensor.AxisRoll),
			StaleMS: defaultStaleMS,
			Mock: MockSensorConfig{
				AmplitudeDeg: 35,
				PeriodMS:     2000,
				IntervalMS:   20,
			},
			MQTT: MQTTSensorConfig{
				Broker:     defaultMQTTBroker,
				ClientID:   "paddlestroke-sensors",
				LeftTopic:  "inertial/pose/left",
				RightTopic: "inertial/pose/right",
			},
			Serial: SerialSensorConfig{
				Port: "/dev/ttyUSB0",
				Baud: 115200,
			},
			IMU: IMUSensorConfig{
				Left:   IMUDeviceConfig{SPIDevice: "/dev/spidev6.0", CSPin: "18"},
				Right:  IMUDeviceConfig{SPIDevice: "/dev/spidev0.0", CSPin: "8"},
				PollMS: 10,
			},
		},
		Input: InputConfig{
			CalibrateKey: KEY_C,
			SessionKey:   KEY_SPACE,
			ResetKey:     KEY_R,
		},
		Stroke: StrokeFileConfig{
			DeadzoneDeg:          sc.DeadzoneDeg,
			TrendHysteresisDeg:   sc.TrendHysteresisDeg,
			AutoCalibrateOnStart: sc.AutoCalibrateOnStart,
			MinCountAngleDeg:     sc.Gate.MinCountAngleDeg,
			ResetAngleDeg:        sc.Gate.ResetAngleDeg,
			Tap: TapFileConfig{
				Mode:                string(sc.Tap.Mode),
				SmallTriggerDeg:     sc.Tap.SmallTriggerDeg,
				FullTriggerDeg:      sc.Tap.FullTriggerDeg,
				MinTapMarginDeg:     sc.Tap.MinTapMarginDeg,
				CooldownMS:          int(sc.Tap.Cooldown / time.Millisecond),
				ReservationWindowMS: int(sc.Tap.ReservationWindow / time.Millisecond),
				UseDownVelocityGate: sc.Tap.UseDownVelocityGate,
				MinDownSpeedDps:     sc.Tap.MinDownSpeedDps,
				RearmSpeedDps:       sc.Tap.RearmSpeedDps,
				RearmMinHoldSec:     sc.Tap.RearmMinHoldSec,
				RearmDeltaUpDeg:     sc.Tap.RearmDeltaUpDeg,
				AscentSpeedMinDps:   sc.Tap.AscentSpeedMinDps,
				LiftHysteresisDeg:   sc.Tap.LiftHysteresisDeg,
				SmoothAlpha:         sc.Tap.SmoothAlpha,
				UseHold:             sc.Tap.UseHold,
				CrossSides:          sc.Tap.CrossSides,
				EdgeSmallTriggerDeg: sc.Tap.EdgeSmallTriggerDeg,
				EdgeFullTriggerDeg:  sc.Tap.EdgeFullTriggerDeg,
				EdgeReleaseDeg:      sc.Tap.EdgeReleaseDeg,
				EdgeMinDownSpeedDps: sc.Tap.EdgeMinDownSpeedDps,
			},
			Propulsion: PropulsionFileConfig{
				DeadbandDeg:          sc.Propulsion.DeadbandDeg,
				FullAngleDeg:         sc.Propulsion.FullAngleDeg,
				Gain:                 sc.Propulsion.Gain,
				SmoothingSec:         sc.Propulsion.SmoothingSec,
				YawGain:              sc.Propulsion.YawGain,
				YawClampDeg:          sc.Propulsion.YawClampDeg,
				ScaleYawByPropulsion: sc.Propulsion.ScaleYawByPropulsion,
			},
			PhaseSmoothUpSec:   sc.PhaseSmoothUpSec,
			PhaseSmoothDownSec: sc.PhaseSmoothDownSec,
		},
		Daemon: DaemonConfig{
			UpdateHz: defaultUpdateHz,
		},
		Publish: PublishConfig{
			Enabled:     false,
			Broker:      defaultMQTTBroker,
			ClientID:    "paddlestroke",
			TopicPrefix: defaultTopicRoot,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocket,
		},
		HTTP: HTTPConfig{
			Port: defaultHTTPPort,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
// Unknown fields are rejected via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	switch err := dec.Decode(&extra); {
	case err == nil:
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	case !errors.Is(err, io.EOF):
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	return cfg, nil
}

// FlagOverrides holds flag values that, when non-nil, replace config values.
type FlagOverrides struct {
	SensorSource *string
	SensorAxis   *string
	MQTTBroker   *string
	SerialPort   *string

	InputDevice *string

	UpdateHz *int
	TapMode  *string

	PublishEnabled *bool
	PublishBroker  *string

	IPCSocketPath *string
	HTTPPort      *int

	StartActive *bool

	LogLevel *string
}

// Apply merges the overrides into cfg. If the pointer is non-nil, the value is
// applied (even if it is a zero value).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.SensorSource != nil {
		cfg.Sensors.Source = *o.SensorSource
	}
	if o.SensorAxis != nil {
		cfg.Sensors.Axis = *o.SensorAxis
	}
	if o.MQTTBroker != nil {
		cfg.Sensors.MQTT.Broker = *o.MQTTBroker
	}
	if o.SerialPort != nil {
		cfg.Sensors.Serial.Port = *o.SerialPort
	}

	if o.InputDevice != nil {
		if *o.InputDevice == "" {
			cfg.Input.Devices = nil
		} else {
			cfg.Input.Devices = []string{*o.InputDevice}
		}
	}

	if o.UpdateHz != nil {
		cfg.Daemon.UpdateHz = *o.UpdateHz
	}
	if o.TapMode != nil {
		cfg.Stroke.Tap.Mode = *o.TapMode
	}

	if o.PublishEnabled != nil {
		cfg.Publish.Enabled = *o.PublishEnabled
	}
	if o.PublishBroker != nil {
		cfg.Publish.Broker = *o.PublishBroker
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}
	if o.StartActive != nil {
		cfg.Session.StartActive = *o.StartActive
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Sensors
	switch c.Sensors.Source {
	case "mock":
	case "mqtt":
		if c.Sensors.MQTT.Broker == "" {
			return errors.New("sensors.mqtt.broker must not be empty")
		}
		if c.Sensors.MQTT.LeftTopic == "" && c.Sensors.MQTT.RightTopic == "" {
			return errors.New("sensors.mqtt needs left_topic and/or right_topic")
		}
		if c.Sensors.MQTT.QoS < 0 || c.Sensors.MQTT.QoS > 2 {
			return errors.New("sensors.mqtt.qos must be 0, 1 or 2")
		}
	case "serial":
		if c.Sensors.Serial.Port == "" {
			return errors.New("sensors.serial.port must not be empty")
		}
		if c.Sensors.Serial.Baud <= 0 {
			return errors.New("sensors.serial.baud must be > 0")
		}
	case "imu":
		if c.Sensors.IMU.Left.SPIDevice == "" && c.Sensors.IMU.Right.SPIDevice == "" {
			return errors.New("sensors.imu needs left and/or right spi_device")
		}
		if c.Sensors.IMU.PollMS <= 0 {
			return errors.New("sensors.imu.poll_ms must be > 0")
		}
	default:
		return fmt.Errorf("sensors.source must be one of: mock, mqtt, serial, imu (got %q)", c.Sensors.Source)
	}
	if _, err := sensor.ParseAxis(c.Sensors.Axis); err != nil {
		return fmt.Errorf("sensors.axis: %w", err)
	}
	if c.Sensors.StaleMS < 0 {
		return errors.New("sensors.stale_ms must be >= 0")
	}

	// Input
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}

	// Stroke
	s := c.Stroke
	if s.DeadzoneDeg < 0 {
		return errors.New("stroke.deadzone_deg must be >= 0")
	}
	if s.TrendHysteresisDeg <= 0 {
		return errors.New("stroke.trend_hysteresis_deg must be > 0")
	}
	if s.MinCountAngleDeg < 0 || s.ResetAngleDeg < 0 {
		return errors.New("stroke.min_count_angle_deg and stroke.reset_angle_deg must be >= 0")
	}
	if s.ResetAngleDeg >= s.MinCountAngleDeg && s.MinCountAngleDeg > 0 {
		return errors.New("stroke.reset_angle_deg must be < stroke.min_count_angle_deg")
	}
	if s.Tap.Mode != string(stroke.TapModeReservation) && s.Tap.Mode != string(stroke.TapModeEdge) {
		return fmt.Errorf("stroke.tap.mode must be %q or %q", stroke.TapModeReservation, stroke.TapModeEdge)
	}
	if math.Abs(s.Tap.FullTriggerDeg) <= math.Abs(s.Tap.SmallTriggerDeg) {
		return errors.New("stroke.tap.full_trigger_deg must be deeper than stroke.tap.small_trigger_deg")
	}
	if math.Abs(s.Tap.EdgeFullTriggerDeg) <= math.Abs(s.Tap.EdgeSmallTriggerDeg) {
		return errors.New("stroke.tap.edge_full_trigger_deg must be deeper than stroke.tap.edge_small_trigger_deg")
	}
	if s.Tap.CooldownMS < 0 || s.Tap.ReservationWindowMS < 0 {
		return errors.New("stroke.tap.cooldown_ms and stroke.tap.reservation_window_ms must be >= 0")
	}
	// 0 holds the smoothed tap signal at its baseline, 1 disables smoothing.
	if s.Tap.SmoothAlpha < 0 || s.Tap.SmoothAlpha > 1 {
		return errors.New("stroke.tap.smooth_alpha must be in [0, 1]")
	}
	if s.Propulsion.FullAngleDeg <= s.Propulsion.DeadbandDeg {
		return errors.New("stroke.propulsion.full_angle_deg must be > stroke.propulsion.deadband_deg")
	}
	if s.Propulsion.SmoothingSec <= 0 {
		return errors.New("stroke.propulsion.smoothing_sec must be > 0")
	}
	if s.PhaseSmoothUpSec <= 0 || s.PhaseSmoothDownSec <= 0 {
		return errors.New("stroke.phase_smooth_up_sec and stroke.phase_smooth_down_sec must be > 0")
	}

	// Daemon
	if c.Daemon.UpdateHz <= 0 || c.Daemon.UpdateHz > 1000 {
		return errors.New("daemon.update_hz must be between 1 and 1000")
	}

	// Publish
	if c.Publish.Enabled {
		if c.Publish.Broker == "" {
			return errors.New("publish.enabled is true but publish.broker is empty")
		}
		if c.Publish.TopicPrefix == "" {
			return errors.New("publish.enabled is true but publish.topic_prefix is empty")
		}
	}
	if c.Publish.QoS < 0 || c.Publish.QoS > 2 {
		return errors.New("publish.qos must be 0, 1 or 2")
	}

	// IPC / HTTP
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 0 and 65535")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ToEngineConfig converts file config into the stroke engine config.
// The engine integrates at most two ticks worth of time per update.
func (c *Config) ToEngineConfig() stroke.Config {
	s := c.Stroke
	cfg := stroke.Config{
		Left:                 stroke.ChannelConfig{Invert: s.Left.Invert, OffsetDeg: s.Left.OffsetDeg},
		Right:                stroke.ChannelConfig{Invert: s.Right.Invert, OffsetDeg: s.Right.OffsetDeg},
		DeadzoneDeg:          s.DeadzoneDeg,
		TrendHysteresisDeg:   s.TrendHysteresisDeg,
		AutoCalibrateOnStart: s.AutoCalibrateOnStart,
		Gate: stroke.GateConfig{
			MinCountAngleDeg: s.MinCountAngleDeg,
			ResetAngleDeg:    s.ResetAngleDeg,
		},
		Tap: stroke.TapConfig{
			Mode:                stroke.TapMode(s.Tap.Mode),
			SmallTriggerDeg:     s.Tap.SmallTriggerDeg,
			FullTriggerDeg:      s.Tap.FullTriggerDeg,
			MinTapMarginDeg:     s.Tap.MinTapMarginDeg,
			Cooldown:            time.Duration(s.Tap.CooldownMS) * time.Millisecond,
			ReservationWindow:   time.Duration(s.Tap.ReservationWindowMS) * time.Millisecond,
			UseDownVelocityGate: s.Tap.UseDownVelocityGate,
			MinDownSpeedDps:     s.Tap.MinDownSpeedDps,
			RearmSpeedDps:       s.Tap.RearmSpeedDps,
			RearmMinHoldSec:     s.Tap.RearmMinHoldSec,
			RearmDeltaUpDeg:     s.Tap.RearmDeltaUpDeg,
			AscentSpeedMinDps:   s.Tap.AscentSpeedMinDps,
			LiftHysteresisDeg:   s.Tap.LiftHysteresisDeg,
			SmoothAlpha:         s.Tap.SmoothAlpha,
			UseHold:             s.Tap.UseHold,
			CrossSides:          s.Tap.CrossSides,
			EdgeSmallTriggerDeg: s.Tap.EdgeSmallTriggerDeg,
			EdgeFullTriggerDeg:  s.Tap.EdgeFullTriggerDeg,
			EdgeReleaseDeg:      s.Tap.EdgeReleaseDeg,
			EdgeMinDownSpeedDps: s.Tap.EdgeMinDownSpeedDps,
		},
		Propulsion: stroke.PropulsionConfig{
			DeadbandDeg:          s.Propulsion.DeadbandDeg,
			FullAngleDeg:         s.Propulsion.FullAngleDeg,
			Gain:                 s.Propulsion.Gain,
			SmoothingSec:         s.Propulsion.SmoothingSec,
			YawGain:              s.Propulsion.YawGain,
			YawClampDeg:          s.Propulsion.YawClampDeg,
			ScaleYawByPropulsion: s.Propulsion.ScaleYawByPropulsion,
		},
		PhaseSmoothUpSec:   s.PhaseSmoothUpSec,
		PhaseSmoothDownSec: s.PhaseSmoothDownSec,
	}
	if c.Daemon.UpdateHz > 0 {
		cfg.MaxDt = 2.0 / float64(c.Daemon.UpdateHz)
	}
	return cfg
}

// ToReducerConfig derives the reducer policy from the config.
func (c *Config) ToReducerConfig() ReducerConfig {
	return ReducerConfig{
		StaleAfter:     time.Duration(c.Sensors.StaleMS) * time.Millisecond,
		Publish:        c.Publish.Enabled,
		PublishOutputs: c.Publish.Enabled && c.Publish.Outputs,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
