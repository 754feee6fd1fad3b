package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"paddlestroke/internal/stroke"
)

// Pose is one orientation sample from an IMU, in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Axis selects which Pose component is the paddle angle.
type Axis string

const (
	AxisRoll  Axis = "roll"
	AxisPitch Axis = "pitch"
	AxisYaw   Axis = "yaw"
)

// ParseAxis validates an axis name. Empty means roll.
func ParseAxis(s string) (Axis, error) {
	switch Axis(s) {
	case "":
		return AxisRoll, nil
	case AxisRoll, AxisPitch, AxisYaw:
		return Axis(s), nil
	default:
		return "", fmt.Errorf("unknown axis %q (must be roll, pitch or yaw)", s)
	}
}

// Angle returns the component selected by a.
func (p Pose) Angle(a Axis) float64 {
	switch a {
	case AxisPitch:
		return p.Pitch
	case AxisYaw:
		return p.Yaw
	default:
		return p.Roll
	}
}

// PoseFromAccel estimates roll and pitch from accelerometer data only. The
// units do not matter, only the ratios. Yaw is always 0.
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func PoseFromAccel(ax, ay, az float64) Pose {
	roll := math.Atan2(ay, az)
	pitch := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))
	return Pose{
		Roll:  roll * 180.0 / math.Pi,
		Pitch: pitch * 180.0 / math.Pi,
	}
}

// Sample is one angle reading for one paddle side.
type Sample struct {
	Side     stroke.Side
	AngleDeg float64
	At       time.Time
}

// Source pushes samples until ctx is canceled. emit must be safe to call from
// any goroutine.
type Source interface {
	Run(ctx context.Context, emit func(Sample)) error
}

// Reader is a pull-style sensor for one side.
type Reader interface {
	Next() (float64, error)
}

// Poll reads r every interval and emits the result as side. Read errors are
// logged and skipped. It returns nil when ctx is canceled.
func Poll(ctx context.Context, side stroke.Side, r Reader, interval time.Duration, emit func(Sample), logger *slog.Logger) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be > 0")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			deg, err := r.Next()
			if err != nil {
				failures++
				// Log the first failure of a run and then every 100th.
				if failures == 1 || failures%100 == 0 {
					logger.Warn("sensor read failed", "side", side, "failures", failures, "error", err)
				}
				continue
			}
			if failures > 0 {
				logger.Info("sensor read recovered", "side", side, "after_failures", failures)
				failures = 0
			}
			emit(Sample{Side: side, AngleDeg: deg, At: now})
		}
	}
}

// PollSource adapts a pair of Readers into a Source.
type PollSource struct {
	Left     Reader
	Right    Reader
	Interval time.Duration
	Logger   *slog.Logger
}

// Run polls both readers concurrently until ctx is canceled.
func (p *PollSource) Run(ctx context.Context, emit func(Sample)) error {
	errc := make(chan error, 2)
	n := 0
	for side, r := range map[stroke.Side]Reader{stroke.Left: p.Left, stroke.Right: p.Right} {
		if r == nil {
			continue
		}
		n++
		go func(side stroke.Side, r Reader) {
			errc <- Poll(ctx, side, r, p.Interval, emit, p.Logger)
		}(side, r)
	}

	var first error
	for i := 0; i < n; i++ {
		if err := <-errc; err != nil && first == nil {
			first = err
		}
	}
	return first
}
