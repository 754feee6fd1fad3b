package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/jacobsa/go-serial/serial"

	"paddlestroke/internal/stroke"
)

// SerialConfig configures a serial bridge (e.g. a microcontroller reading two IMUs).
type SerialConfig struct {
	Port     string
	BaudRate uint
}

// SerialSource reads "L <deg>" / "R <deg>" lines from a serial port. The
// separator may be a comma or whitespace.
type SerialSource struct {
	cfg    SerialConfig
	logger *slog.Logger
}

func NewSerialSource(cfg SerialConfig, logger *slog.Logger) *SerialSource {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	return &SerialSource{cfg: cfg, logger: logger}
}

func (s *SerialSource) Run(ctx context.Context, emit func(Sample)) error {
	opts := serial.OpenOptions{
		PortName:        s.cfg.Port,
		BaudRate:        s.cfg.BaudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", s.cfg.Port, err)
	}
	defer port.Close()
	s.logger.Info("sensor serial opened", "port", s.cfg.Port, "baud", s.cfg.BaudRate)

	// Closing the port unblocks the pending read.
	go func() {
		<-ctx.Done()
		_ = port.Close()
	}()

	return s.readLines(ctx, port, emit)
}

func (s *SerialSource) readLines(ctx context.Context, r io.Reader, emit func(Sample)) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err == io.EOF {
				return fmt.Errorf("serial port %s closed", s.cfg.Port)
			}
			return fmt.Errorf("read serial: %w", err)
		}

		side, deg, err := ParseLine(line)
		if err != nil {
			s.logger.Debug("sensor serial line rejected", "line", strings.TrimSpace(line), "error", err)
			continue
		}
		emit(Sample{Side: side, AngleDeg: deg, At: time.Now()})
	}
}

// ParseLine parses one bridge line such as "L -12.5" or "R,30".
func ParseLine(line string) (stroke.Side, float64, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(fields) != 2 {
		return stroke.Left, 0, fmt.Errorf("expected 2 fields, got %d", len(fields))
	}
	side, err := stroke.ParseSide(fields[0])
	if err != nil {
		return stroke.Left, 0, err
	}
	deg, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return stroke.Left, 0, fmt.Errorf("parse angle: %w", err)
	}
	return side, deg, nil
}
