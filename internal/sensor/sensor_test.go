package sensor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"paddlestroke/internal/stroke"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for condition: %s", msg)
}

func TestParseLine(t *testing.T) {
	cases := []struct {
		line string
		side stroke.Side
		deg  float64
	}{
		{"L -12.5\n", stroke.Left, -12.5},
		{"R,30", stroke.Right, 30},
		{"  r ,  4\r\n", stroke.Right, 4},
		{"left 0", stroke.Left, 0},
	}
	for _, tc := range cases {
		side, deg, err := ParseLine(tc.line)
		if err != nil {
			t.Errorf("ParseLine(%q) error: %v", tc.line, err)
			continue
		}
		if side != tc.side || deg != tc.deg {
			t.Errorf("ParseLine(%q) = %v %v, want %v %v", tc.line, side, deg, tc.side, tc.deg)
		}
	}

	for _, bad := range []string{"", "L", "X 10", "L abc", "L 1 2"} {
		if _, _, err := ParseLine(bad); err == nil {
			t.Errorf("ParseLine(%q) expected error", bad)
		}
	}
}

func TestParsePayload(t *testing.T) {
	if v, err := ParsePayload([]byte(" 12.5 "), AxisRoll); err != nil || v != 12.5 {
		t.Fatalf("bare number: got %v %v", v, err)
	}
	if v, err := ParsePayload([]byte(`{"angle_deg": -8}`), AxisPitch); err != nil || v != -8 {
		t.Fatalf("angle_deg: got %v %v", v, err)
	}
	if v, err := ParsePayload([]byte(`{"roll": 1, "pitch": 2, "yaw": 3}`), AxisPitch); err != nil || v != 2 {
		t.Fatalf("pose pitch: got %v %v", v, err)
	}
	if v, err := ParsePayload([]byte(`{"roll": 7}`), ""); err != nil || v != 7 {
		t.Fatalf("pose default axis: got %v %v", v, err)
	}
	if _, err := ParsePayload([]byte(`{"pitch": 2}`), AxisYaw); err == nil {
		t.Fatalf("expected error for missing axis")
	}
	if _, err := ParsePayload(nil, AxisRoll); !errors.Is(err, errEmptyPayload) {
		t.Fatalf("expected empty payload error, got %v", err)
	}
}

func TestParseAxis(t *testing.T) {
	if a, err := ParseAxis(""); err != nil || a != AxisRoll {
		t.Fatalf("expected roll default, got %v %v", a, err)
	}
	if _, err := ParseAxis("heading"); err == nil {
		t.Fatalf("expected error for unknown axis")
	}
}

func TestPoseFromAccel(t *testing.T) {
	// Flat: gravity on Z only.
	p := PoseFromAccel(0, 0, 1)
	if p.Roll != 0 || p.Pitch != 0 {
		t.Fatalf("expected level pose, got %+v", p)
	}

	p = PoseFromAccel(0, 1, 1)
	if math.Abs(p.Roll-45) > 1e-9 {
		t.Fatalf("expected roll 45, got %v", p.Roll)
	}
	if math.Abs(p.Angle(AxisRoll)-45) > 1e-9 || p.Angle(AxisYaw) != 0 {
		t.Fatalf("unexpected axis selection %+v", p)
	}
}

func TestMockSource_Antiphase(t *testing.T) {
	m := NewMockSource(30, 2*time.Second, 0)

	quarter := 500 * time.Millisecond
	if got := m.Angle(stroke.Left, quarter); math.Abs(got-30) > 1e-9 {
		t.Fatalf("expected left at amplitude, got %v", got)
	}
	if got := m.Angle(stroke.Right, quarter); got != 0 {
		t.Fatalf("expected right at rest, got %v", got)
	}
	if got := m.Angle(stroke.Right, 3*quarter); math.Abs(got-30) > 1e-9 {
		t.Fatalf("expected right at amplitude, got %v", got)
	}
}

type fakeReader struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeReader) Next() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return 0, errors.New("bus error")
	}
	return float64(f.calls), nil
}

func TestPoll_EmitsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{}
	var mu sync.Mutex
	var got []Sample
	emit := func(s Sample) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	}

	done := make(chan error, 1)
	go func() { done <- Poll(ctx, stroke.Right, r, 5*time.Millisecond, emit, testLogger()) }()

	waitUntil(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 3
	}, "3 samples")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("poll did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0].Side != stroke.Right || got[0].AngleDeg != 1 {
		t.Fatalf("unexpected first sample %+v", got[0])
	}
}

func TestPoll_SkipsErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{fail: true}
	var mu sync.Mutex
	n := 0
	go func() {
		_ = Poll(ctx, stroke.Left, r, 2*time.Millisecond, func(Sample) {
			mu.Lock()
			n++
			mu.Unlock()
		}, testLogger())
	}()

	waitUntil(t, 2*time.Second, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.calls >= 3
	}, "3 reads")

	mu.Lock()
	defer mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no samples from a failing reader, got %d", n)
	}
}

func TestPoll_RejectsZeroInterval(t *testing.T) {
	if err := Poll(context.Background(), stroke.Left, &fakeReader{}, 0, func(Sample) {}, testLogger()); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

func TestSerialSource_ReadLines(t *testing.T) {
	s := NewSerialSource(SerialConfig{Port: "test"}, testLogger())
	in := strings.NewReader("L 10\ngarbage\nR,-5\n")

	var got []Sample
	err := s.readLines(context.Background(), in, func(smp Sample) { got = append(got, smp) })
	if err == nil || !strings.Contains(err.Error(), "closed") {
		t.Fatalf("expected closed error at EOF, got %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %+v", got)
	}
	if got[0].Side != stroke.Left || got[0].AngleDeg != 10 || got[1].Side != stroke.Right || got[1].AngleDeg != -5 {
		t.Fatalf("unexpected samples %+v", got)
	}
}
