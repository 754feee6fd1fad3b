package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"
)

// IMUConfig describes one MPU9250 on SPI.
type IMUConfig struct {
	SPIDevice string // e.g. /dev/spidev0.0
	CSPin     string // GPIO name of the chip select
	Axis      Axis
	SelfTest  bool
	Calibrate bool
}

// IMUReader reads a tilt angle from an MPU9250 accelerometer.
type IMUReader struct {
	imu  *mpu9250.MPU9250
	axis Axis
	name string
}

// NewIMUReader initializes the periph host and the device.
func NewIMUReader(cfg IMUConfig) (*IMUReader, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	cs := gpioreg.ByName(cfg.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU CS pin %q not found", cfg.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(cfg.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU SPI transport %s: %w", cfg.SPIDevice, err)
	}

	imu, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("IMU new device: %w", err)
	}
	if err := imu.Init(); err != nil {
		return nil, fmt.Errorf("IMU init: %w", err)
	}
	if cfg.SelfTest {
		if _, err := imu.SelfTest(); err != nil {
			return nil, fmt.Errorf("IMU self-test: %w", err)
		}
	}
	if cfg.Calibrate {
		if err := imu.Calibrate(); err != nil {
			return nil, fmt.Errorf("IMU calibrate: %w", err)
		}
	}

	return &IMUReader{imu: imu, axis: cfg.Axis, name: cfg.SPIDevice}, nil
}

// Next reads the accelerometer and returns the configured tilt component.
func (r *IMUReader) Next() (float64, error) {
	ax, err := r.imu.GetAccelerationX()
	if err != nil {
		return 0, fmt.Errorf("%s acc X: %w", r.name, err)
	}
	ay, err := r.imu.GetAccelerationY()
	if err != nil {
		return 0, fmt.Errorf("%s acc Y: %w", r.name, err)
	}
	az, err := r.imu.GetAccelerationZ()
	if err != nil {
		return 0, fmt.Errorf("%s acc Z: %w", r.name, err)
	}
	return PoseFromAccel(float64(ax), float64(ay), float64(az)).Angle(r.axis), nil
}
