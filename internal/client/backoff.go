package client

import "time"

const (
	DefaultBaseBackoff = 10 * time.Second
	DefaultMaxBackoff  = 30 * time.Second
)

// LinearBackoff grows the reconnect delay by Base per failed attempt, capped
// at Max. The first retry is immediate.
type LinearBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func DefaultBackoff() LinearBackoff {
	return LinearBackoff{Base: DefaultBaseBackoff, Max: DefaultMaxBackoff}
}

// Delay returns the wait after attempt n (1-based) failed.
func (b LinearBackoff) Delay(attempt int) time.Duration {
	if attempt <= 1 || b.Base <= 0 {
		return 0
	}
	delay := b.Base * time.Duration(attempt-1)
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	return delay
}
