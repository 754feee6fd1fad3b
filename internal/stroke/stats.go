package stroke

import (
	"math"
	"time"
)

const (
	smallTapDistanceMeters = 2
	fullTapDistanceMeters  = 3

	scoreBaseTimeSec = 60.0
)

// Stats accumulates accepted strokes for one session. It is mutated only by
// Register/RegisterTap and cleared only by Reset.
type Stats struct {
	DistanceMeters int
	StrokeCount    int

	AngleSum [2]float64
	Count    [2]int

	// Tap tallies, indexed by Class.
	Taps        [2]int
	TapDistance int
}

// StrokeDistance is the distance credit for a stroke peaking at absPeakDeg.
func StrokeDistance(absPeakDeg float64) int {
	d := int(math.RoundToEven(absPeakDeg / 10))
	if d < 1 {
		d = 1
	}
	return d
}

// Register records one accepted stroke and returns the distance it added.
func (s *Stats) Register(side Side, absPeakDeg float64) int {
	d := StrokeDistance(absPeakDeg)
	s.DistanceMeters += d
	s.StrokeCount++
	s.AngleSum[side] += absPeakDeg
	s.Count[side]++
	return d
}

// RegisterTap records one fired tap and returns its distance credit.
func (s *Stats) RegisterTap(c Class) int {
	d := smallTapDistanceMeters
	if c == Full {
		d = fullTapDistanceMeters
	}
	s.Taps[c]++
	s.TapDistance += d
	return d
}

// AvgAngle is the mean absolute peak angle for side, or 0 without strokes.
func (s *Stats) AvgAngle(side Side) float64 {
	if s.Count[side] == 0 {
		return 0
	}
	return s.AngleSum[side] / float64(s.Count[side])
}

func (s *Stats) AvgAngleLeft() float64  { return s.AvgAngle(Left) }
func (s *Stats) AvgAngleRight() float64 { return s.AvgAngle(Right) }

// Reset clears every counter.
func (s *Stats) Reset() {
	*s = Stats{}
}

// Summary is the end-of-session report.
type Summary struct {
	Elapsed        time.Duration `json:"-"`
	ElapsedSec     float64       `json:"elapsed_sec"`
	DistanceMeters int           `json:"distance_m"`
	StrokeCount    int           `json:"stroke_count"`
	LeftCount      int           `json:"left_count"`
	RightCount     int           `json:"right_count"`
	AvgAngleLeft   float64       `json:"avg_angle_left_deg"`
	AvgAngleRight  float64       `json:"avg_angle_right_deg"`
	SmallTaps      int           `json:"small_taps"`
	FullTaps       int           `json:"full_taps"`
	Score          int           `json:"score"`
}

// Summarize builds a session summary from stats and the active session time.
func (s *Stats) Summarize(elapsed time.Duration) Summary {
	avgL, avgR := s.AvgAngleLeft(), s.AvgAngleRight()
	return Summary{
		Elapsed:        elapsed,
		ElapsedSec:     elapsed.Seconds(),
		DistanceMeters: s.DistanceMeters,
		StrokeCount:    s.StrokeCount,
		LeftCount:      s.Count[Left],
		RightCount:     s.Count[Right],
		AvgAngleLeft:   avgL,
		AvgAngleRight:  avgR,
		SmallTaps:      s.Taps[Small],
		FullTaps:       s.Taps[Full],
		Score:          int(math.RoundToEven(Score(avgL, avgR, elapsed))),
	}
}

// Score rates a session: larger average stroke angles in less time score higher.
// Averages are rounded to 0.1 degree and time is truncated to whole seconds
// (minimum 1).
func Score(avgLeftDeg, avgRightDeg float64, elapsed time.Duration) float64 {
	left := math.RoundToEven(avgLeftDeg*10) / 10
	right := math.RoundToEven(avgRightDeg*10) / 10

	used := math.Max(float64(int(elapsed.Seconds())), 1)
	return (left + right) * 2 * (scoreBaseTimeSec / used) * 10
}
