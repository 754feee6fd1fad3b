package main

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"paddlestroke/internal/sensor"
)

// newSensorSource builds the configured angle source.
func newSensorSource(cfg SensorsConfig, logger *slog.Logger) (sensor.Source, error) {
	axis, err := sensor.ParseAxis(cfg.Axis)
	if err != nil {
		return nil, err
	}
	logger = logger.With("source", cfg.Source)

	switch cfg.Source {
	case "mock":
		return sensor.NewMockSource(
			cfg.Mock.AmplitudeDeg,
			time.Duration(cfg.Mock.PeriodMS)*time.Millisecond,
			time.Duration(cfg.Mock.IntervalMS)*time.Millisecond,
		), nil

	case "mqtt":
		return sensor.NewMQTTSource(sensor.MQTTConfig{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			LeftTopic:  cfg.MQTT.LeftTopic,
			RightTopic: cfg.MQTT.RightTopic,
			Axis:       axis,
			QoS:        byte(cfg.MQTT.QoS),
		}, logger), nil

	case "serial":
		return sensor.NewSerialSource(sensor.SerialConfig{
			Port:     cfg.Serial.Port,
			BaudRate: uint(cfg.Serial.Baud),
		}, logger), nil

	case "imu":
		src := &sensor.PollSource{
			Interval: time.Duration(cfg.IMU.PollMS) * time.Millisecond,
			Logger:   logger,
		}
		open := func(dev IMUDeviceConfig) (*sensor.IMUReader, error) {
			return sensor.NewIMUReader(sensor.IMUConfig{
				SPIDevice: dev.SPIDevice,
				CSPin:     dev.CSPin,
				Axis:      axis,
				SelfTest:  cfg.IMU.SelfTest,
				Calibrate: cfg.IMU.Calibrate,
			})
		}
		if cfg.IMU.Left.SPIDevice != "" {
			r, err := open(cfg.IMU.Left)
			if err != nil {
				return nil, fmt.Errorf("left IMU: %w", err)
			}
			src.Left = r
		}
		if cfg.IMU.Right.SPIDevice != "" {
			r, err := open(cfg.IMU.Right)
			if err != nil {
				return nil, fmt.Errorf("right IMU: %w", err)
			}
			src.Right = r
		}
		return src, nil

	default:
		return nil, fmt.Errorf("unknown sensor source %q", cfg.Source)
	}
}

// sampleForwarder turns sensor samples into daemon events without ever
// blocking the sensor goroutine.
func sampleForwarder(events chan<- Event, logger *slog.Logger) func(sensor.Sample) {
	var dropped atomic.Int64
	return func(s sensor.Sample) {
		select {
		case events <- AngleSampled{Side: s.Side, AngleDeg: s.AngleDeg, At: s.At}:
		default:
			// Called from every sensor goroutine.
			if n := dropped.Add(1); n%100 == 1 {
				logger.Warn("event queue full, dropping sensor samples", "dropped", n)
			}
		}
	}
}
