package volume

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	MinLevel = 0
	MaxLevel = 100
)

// ErrOutOfRange rejects volume values outside [MinLevel, MaxLevel].
var ErrOutOfRange = errors.New("volume: level out of range")

// Level is an output volume percentage in [0,100].
type Level int

// NewLevel validates v. Out-of-range input is rejected, never clamped.
func NewLevel(v int) (Level, error) {
	if v < MinLevel || v > MaxLevel {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, v)
	}
	return Level(v), nil
}

// ParseLevel parses a decimal percentage such as "42" or "42%".
func ParseLevel(raw string) (Level, error) {
	s := strings.TrimSuffix(strings.TrimSpace(raw), "%")
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("volume: parse level %q: %w", raw, err)
	}
	return NewLevel(v)
}

func (l Level) Valid() bool {
	return l >= MinLevel && l <= MaxLevel
}

func (l Level) Int() int {
	return int(l)
}

func (l Level) String() string {
	return strconv.Itoa(int(l)) + "%"
}
