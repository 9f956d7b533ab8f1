// Package client keeps the local output volume in step with the relay: a
// watcher feeds local changes into an Outbox, and a Supervisor keeps one
// Session at a time connected to drain it and apply remote changes.
package client

import (
	"context"
	"net"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/volsync/internal/relay"
	"github.com/danmuck/volsync/internal/status"
	"github.com/danmuck/volsync/internal/tools"
	"github.com/danmuck/volsync/internal/volume"
)

type ServiceConfig struct {
	Relay        relay.Config
	PollInterval time.Duration
	Supervisor   SupervisorConfig
	Status       status.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Relay:        relay.DefaultConfig(),
		PollInterval: volume.DefaultPollInterval,
		Supervisor:   DefaultSupervisorConfig(),
	}
}

type ServiceOption func(*Service)

// WithBackend skips platform detection.
func WithBackend(backend volume.Backend) ServiceOption {
	return func(s *Service) { s.backend = backend }
}

func WithDialer(dialer Dialer) ServiceOption {
	return func(s *Service) { s.dialer = dialer }
}

func WithSupervisorOptions(opts ...SupervisorOption) ServiceOption {
	return func(s *Service) { s.supervisorOpts = append(s.supervisorOpts, opts...) }
}

// Service is the process-lifetime owner of the watcher, outbox, supervisor and
// optional status server.
type Service struct {
	cfg            ServiceConfig
	backend        volume.Backend
	dialer         Dialer
	supervisorOpts []SupervisorOption

	outbox *Outbox
	state  *State

	mu         sync.Mutex
	supervisor *Supervisor
	session    *Session
}

func NewService(cfg ServiceConfig, opts ...ServiceOption) *Service {
	s := &Service{
		cfg:    cfg,
		outbox: NewOutbox(),
		state:  NewState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run serves until SIGINT/SIGTERM or a fatal failure.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve returns nil when ctx is cancelled. An unsupported platform, a bad
// relay configuration, a status address that cannot be bound or a *FatalError
// from the supervisor is returned as is. The status listener is bound before
// sync starts; once serving, its failures are logged and never stop sync.
func (s *Service) Serve(ctx context.Context) error {
	backend := s.backend
	if backend == nil {
		b, err := volume.NewBackend(runtime.GOOS, tools.ExecRunner{})
		if err != nil {
			return err
		}
		backend = b
	}
	dialer := s.dialer
	if dialer == nil {
		d, err := relay.NewDialer(s.cfg.Relay)
		if err != nil {
			return err
		}
		dialer = d
	}
	supervisor := NewSupervisor(dialer, s.runSession(backend), s.cfg.Supervisor, s.supervisorOpts...)

	var (
		srv *status.Server
		ln  net.Listener
	)
	if strings.TrimSpace(s.cfg.Status.Addr) != "" {
		srv = status.New(s.cfg.Status, s)
		l, err := srv.Listen()
		if err != nil {
			return err
		}
		ln = l
	}

	s.mu.Lock()
	s.backend = backend
	s.dialer = dialer
	s.supervisor = supervisor
	s.mu.Unlock()

	log.Info().
		Str("relay", s.cfg.Relay.Address).
		Str("platform", backend.Platform()).
		Msg("Global Volume Sync")

	watcher := volume.NewWatcher(backend, &localSink{outbox: s.outbox, state: s.state}, s.cfg.PollInterval)
	if level, err := backend.Read(ctx); err != nil {
		log.Warn().Err(err).Msg("client.Service initial volume read failed")
	} else {
		watcher.Seed(level)
		s.state.SetLocalVolume(level)
		log.Info().Int("volume", level.Int()).Msgf("Local volume: %s", level)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	if srv != nil {
		g.Go(func() error {
			if err := srv.ServeListener(gctx, ln); err != nil {
				log.Error().Err(err).Msg("client.Service status server stopped")
			}
			return nil
		})
	}
	g.Go(func() error {
		log.Info().Str("relay", s.cfg.Relay.Address).Msg("Connecting to sync server...")
		return supervisor.Run(gctx)
	})

	err := g.Wait()
	if err == nil {
		log.Info().Msg("Shutting down...")
	}
	return err
}

func (s *Service) runSession(backend volume.Writer) SessionFunc {
	return func(ctx context.Context, conn relay.Conn) error {
		session := NewSession(conn, s.outbox, backend, s.state)
		s.mu.Lock()
		s.session = session
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			s.session = nil
			s.mu.Unlock()
		}()
		return session.Run(ctx)
	}
}

func (s *Service) State() *State {
	return s.state
}

func (s *Service) Outbox() *Outbox {
	return s.outbox
}

// Report implements status.Reporter.
func (s *Service) Report() status.Report {
	s.mu.Lock()
	supervisor, backend, session := s.supervisor, s.backend, s.session
	s.mu.Unlock()

	var snap Snapshot
	if supervisor != nil {
		snap = supervisor.Snapshot()
	}
	r := status.Report{
		State:     snap.State.String(),
		Attempt:   snap.Attempt,
		Failures:  snap.Failures,
		BackoffMS: snap.Delay.Milliseconds(),
		LastError: snap.LastError,
		Relay:     s.cfg.Relay.Address,
		SessionID: s.state.SessionID(),
		Peers:     s.state.Peers(),
		Queued:    s.outbox.Len(),
	}
	if !snap.Since.IsZero() {
		r.Since = snap.Since.UTC().Format(time.RFC3339)
	}
	if backend != nil {
		r.Platform = backend.Platform()
	}
	if level, ok := s.state.LocalVolume(); ok {
		v := level.Int()
		r.LocalVolume = &v
	}
	if session != nil {
		if level, ok := session.Local(); ok {
			v := level.Int()
			r.SessionStartVolume = &v
		}
	}
	if level, ok := s.state.LastApplied(); ok {
		v := level.Int()
		r.LastApplied = &v
	}
	return r
}

type localSink struct {
	outbox *Outbox
	state  *State
}

func (s *localSink) Push(level volume.Level) {
	s.state.SetLocalVolume(level)
	s.outbox.Push(level)
}
