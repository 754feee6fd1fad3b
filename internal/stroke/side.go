package stroke

import "fmt"

// Side identifies one of the two sensor channels (or kayak sides).
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Left {
		return Right
	}
	return Left
}

// MarshalText encodes the side as "left" or "right" for JSON payloads.
func (s Side) MarshalText() ([]byte, error) {
	switch s {
	case Left, Right:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("invalid side %d", int(s))
	}
}

// UnmarshalText accepts "left"/"l" and "right"/"r".
func (s *Side) UnmarshalText(b []byte) error {
	side, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// ParseSide parses a side name.
func ParseSide(v string) (Side, error) {
	switch v {
	case "left", "l", "L", "Left":
		return Left, nil
	case "right", "r", "R", "Right":
		return Right, nil
	default:
		return Left, fmt.Errorf("unknown side %q (must be left or right)", v)
	}
}

// Class is the magnitude classification of a stroke or tap.
type Class int

const (
	Small Class = iota
	Full
)

func (c Class) String() string {
	if c == Full {
		return "full"
	}
	return "small"
}

func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
