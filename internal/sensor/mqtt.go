package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"paddlestroke/internal/stroke"
)

// MQTTConfig configures the MQTT sensor source.
type MQTTConfig struct {
	Broker     string // e.g. tcp://localhost:1883
	ClientID   string
	LeftTopic  string
	RightTopic string
	Axis       Axis
	QoS        byte
}

// MQTTSource subscribes to one topic per paddle side. Payloads are a Pose
// object, an {"angle_deg": x} object, or a bare number.
type MQTTSource struct {
	cfg    MQTTConfig
	logger *slog.Logger
}

func NewMQTTSource(cfg MQTTConfig, logger *slog.Logger) *MQTTSource {
	if cfg.ClientID == "" {
		cfg.ClientID = "paddlestroke-sensors"
	}
	return &MQTTSource{cfg: cfg, logger: logger}
}

// Run connects, subscribes and emits samples until ctx is canceled.
func (s *MQTTSource) Run(ctx context.Context, emit func(Sample)) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.cfg.Broker, token.Error())
	}
	defer client.Disconnect(250)
	s.logger.Info("sensor MQTT connected", "broker", s.cfg.Broker)

	for side, topic := range map[stroke.Side]string{stroke.Left: s.cfg.LeftTopic, stroke.Right: s.cfg.RightTopic} {
		if topic == "" {
			continue
		}
		side, topic := side, topic
		token := client.Subscribe(topic, s.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			deg, err := ParsePayload(msg.Payload(), s.cfg.Axis)
			if err != nil {
				s.logger.Debug("sensor MQTT payload rejected", "topic", topic, "error", err)
				return
			}
			emit(Sample{Side: side, AngleDeg: deg, At: time.Now()})
		})
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("mqtt subscribe %s: %w", topic, token.Error())
		}
		s.logger.Info("sensor MQTT subscribed", "topic", topic, "side", side)
	}

	<-ctx.Done()
	return nil
}

var errEmptyPayload = errors.New("empty payload")

// ParsePayload extracts the paddle angle from an MQTT payload.
func ParsePayload(b []byte, axis Axis) (float64, error) {
	text := strings.TrimSpace(string(b))
	if text == "" {
		return 0, errEmptyPayload
	}
	if text[0] != '{' {
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, fmt.Errorf("parse angle: %w", err)
		}
		return v, nil
	}

	var m struct {
		AngleDeg *float64 `json:"angle_deg"`
		Roll     *float64 `json:"roll"`
		Pitch    *float64 `json:"pitch"`
		Yaw      *float64 `json:"yaw"`
	}
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return 0, fmt.Errorf("unmarshal payload: %w", err)
	}
	if m.AngleDeg != nil {
		return *m.AngleDeg, nil
	}

	var field *float64
	switch axis {
	case AxisPitch:
		field = m.Pitch
	case AxisYaw:
		field = m.Yaw
	default:
		field = m.Roll
	}
	if field == nil {
		return 0, fmt.Errorf("payload has no %q or angle_deg field", axisOrRoll(axis))
	}
	return *field, nil
}

func axisOrRoll(a Axis) Axis {
	if a == "" {
		return AxisRoll
	}
	return a
}
