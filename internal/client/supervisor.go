package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/volsync/internal/observability"
	"github.com/danmuck/volsync/internal/relay"
)

const (
	DefaultMaxAttempts = 5
	DefaultStableAfter = 30 * time.Second
)

var (
	ErrRetriesExhausted = errors.New("client: connection retries exhausted")
	ErrSessionEnded     = errors.New("client: session ended")
)

// FatalError ends Supervisor.Run. Err is the last session or dial failure.
type FatalError struct {
	Attempt int
	Err     error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("client: fatal on attempt %d: %v", e.Attempt, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

type ConnState int

const (
	StateConnecting ConnState = iota + 1
	StateConnected
	StateDisconnected
	StateBackingOff
	StateFatallyFailed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateBackingOff:
		return "backing_off"
	case StateFatallyFailed:
		return "fatally_failed"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of the supervisor's attempt state.
type Snapshot struct {
	State     ConnState
	Attempt   int
	Failures  int
	Delay     time.Duration
	LastError string
	Since     time.Time
}

// Dialer opens one relay connection per call.
type Dialer interface {
	Dial(ctx context.Context) (relay.Conn, error)
}

// SessionFunc serves one established connection until it ends.
type SessionFunc func(ctx context.Context, conn relay.Conn) error

type SupervisorConfig struct {
	MaxAttempts int
	Backoff     LinearBackoff
	// StableAfter is how long a session must stay up to count as a
	// successful connection and reset the attempt counter.
	StableAfter time.Duration
}

func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff(),
		StableAfter: DefaultStableAfter,
	}
}

func (c SupervisorConfig) WithDefaults() SupervisorConfig {
	def := DefaultSupervisorConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.Backoff.Base <= 0 {
		c.Backoff.Base = def.Backoff.Base
	}
	if c.Backoff.Max <= 0 {
		c.Backoff.Max = def.Backoff.Max
	}
	if c.StableAfter <= 0 {
		c.StableAfter = def.StableAfter
	}
	return c
}

type SupervisorOption func(*Supervisor)

// WithWait replaces the backoff sleep.
func WithWait(wait func(ctx context.Context, d time.Duration) error) SupervisorOption {
	return func(s *Supervisor) { s.wait = wait }
}

// WithClock replaces the time source used for session uptime.
func WithClock(now func() time.Time) SupervisorOption {
	return func(s *Supervisor) { s.now = now }
}

// WithTransitionHook is called synchronously on every state change.
func WithTransitionHook(fn func(Snapshot)) SupervisorOption {
	return func(s *Supervisor) { s.onTransition = fn }
}

// Supervisor owns the connect, serve, classify and back off cycle.
type Supervisor struct {
	dialer Dialer
	serve  SessionFunc
	cfg    SupervisorConfig

	wait         func(ctx context.Context, d time.Duration) error
	now          func() time.Time
	onTransition func(Snapshot)

	mu   sync.Mutex
	snap Snapshot
}

func NewSupervisor(dialer Dialer, serve SessionFunc, cfg SupervisorConfig, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		dialer: dialer,
		serve:  serve,
		cfg:    cfg.WithDefaults(),
		wait:   sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap = Snapshot{State: StateConnecting, Attempt: 1, Since: s.now()}
	return s
}

func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Run returns nil once ctx is cancelled and a *FatalError when the relay is
// unusable: a non-retryable failure, or MaxAttempts consecutive failures.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 1
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		s.transition(StateConnecting, attempt, failures, 0, nil)
		err := s.connectAndServe(ctx, &attempt, &failures)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = ErrSessionEnded
		}

		failures++
		observability.RecordDisconnect(relay.KindOf(err).String())
		s.transition(StateDisconnected, attempt, failures, 0, err)

		if !relay.IsRetryable(err) {
			return s.fail(attempt, failures, err)
		}
		if attempt >= s.cfg.MaxAttempts {
			return s.fail(attempt, failures, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err))
		}

		delay := s.cfg.Backoff.Delay(attempt)
		observability.RecordBackoff(delay)
		s.transition(StateBackingOff, attempt, failures, delay, err)
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", s.cfg.MaxAttempts).
			Dur("delay", delay).
			Msgf("Disconnected from relay, retrying in %s", delay)

		if err := s.wait(ctx, delay); err != nil {
			return nil
		}
		attempt++
	}
}

// connectAndServe dials once and serves the session. A session that stayed up
// for StableAfter resets the attempt accounting before its end is classified.
func (s *Supervisor) connectAndServe(ctx context.Context, attempt, failures *int) error {
	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		return err
	}

	observability.RecordConnect()
	s.transition(StateConnected, *attempt, *failures, 0, nil)
	log.Info().Int("attempt", *attempt).Msg("Connected to relay")

	started := s.now()
	err = s.serve(ctx, conn)
	if uptime := s.now().Sub(started); uptime >= s.cfg.StableAfter {
		*attempt = 1
		*failures = 0
	}
	return err
}

func (s *Supervisor) fail(attempt, failures int, err error) error {
	s.transition(StateFatallyFailed, attempt, failures, 0, err)
	log.Error().Err(err).Int("attempt", attempt).Msg("client.Supervisor giving up")
	return &FatalError{Attempt: attempt, Err: err}
}

func (s *Supervisor) transition(state ConnState, attempt, failures int, delay time.Duration, cause error) {
	snap := Snapshot{
		State:    state,
		Attempt:  attempt,
		Failures: failures,
		Delay:    delay,
		Since:    s.now(),
	}
	if cause != nil {
		snap.LastError = cause.Error()
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	log.Debug().
		Str("state", state.String()).
		Int("attempt", attempt).
		Int("failures", failures).
		Dur("delay", delay).
		Msg("client.Supervisor transition")
	if s.onTransition != nil {
		s.onTransition(snap)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
