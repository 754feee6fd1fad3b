package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher sends one payload. kind is a short event name ("stroke", "tap", ...)
// that the implementation maps onto a concrete topic.
type Publisher interface {
	Publish(kind string, payload []byte) error
}

// Topic suffixes under PublishConfig.TopicPrefix.
const (
	topicStroke  = "stroke"
	topicTap     = "tap"
	topicHold    = "hold"
	topicOutputs = "outputs"
	topicSummary = "summary"
	topicSession = "session"
)

// MQTTPublisher publishes daemon events to an MQTT broker.
type MQTTPublisher struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
	logger  *slog.Logger
}

// NewMQTTPublisher connects to the broker. The client reconnects on its own
// after the initial connection succeeds.
func NewMQTTPublisher(cfg PublishConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt publisher: broker is empty")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt publisher connection lost", "error", err)
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			logger.Info("mqtt publisher connected", "broker", cfg.Broker)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}

	return &MQTTPublisher{
		client:  client,
		prefix:  cfg.TopicPrefix,
		qos:     byte(cfg.QoS),
		timeout: publishTimeout * time.Millisecond,
		logger:  logger,
	}, nil
}

// Publish sends payload to <prefix>/<kind>. Session and summary messages are
// retained so late subscribers see the latest state.
func (p *MQTTPublisher) Publish(kind string, payload []byte) error {
	topic := p.prefix + "/" + kind
	retained := kind == topicSession || kind == topicSummary

	token := p.client.Publish(topic, p.qos, retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish %s: timed out after %s", topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.logger.Debug("mqtt published", "topic", topic, "bytes", len(payload))
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
