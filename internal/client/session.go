package client

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/volsync/internal/observability"
	"github.com/danmuck/volsync/internal/protocol"
	"github.com/danmuck/volsync/internal/relay"
	"github.com/danmuck/volsync/internal/volume"
)

// Session runs the uplink and downlink over one live relay connection.
type Session struct {
	id      string
	conn    relay.Conn
	outbox  *Outbox
	backend volume.Writer
	state   *State
	logger  zerolog.Logger

	// local is the last known local reading when the session started.
	local    volume.Level
	hasLocal bool
}

func NewSession(conn relay.Conn, outbox *Outbox, backend volume.Writer, state *State) *Session {
	id := uuid.NewString()
	s := &Session{
		id:      id,
		conn:    conn,
		outbox:  outbox,
		backend: backend,
		state:   state,
		logger:  log.With().Str("session", id).Logger(),
	}
	s.local, s.hasLocal = state.LocalVolume()
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Local returns the local reading known when the session was created.
func (s *Session) Local() (volume.Level, bool) {
	return s.local, s.hasLocal
}

// Run requests the relay's current state, then serves both directions until
// either fails or ctx is done. Both loops have returned and the connection is
// closed by the time Run returns the terminal cause.
func (s *Session) Run(ctx context.Context) error {
	s.state.setSession(s.id)
	defer s.state.setSession("")

	event := s.logger.Debug().Int("queued", s.outbox.Len())
	if s.hasLocal {
		event = event.Int("local_volume", s.local.Int())
	}
	event.Msg("client.Session started")

	for _, frame := range [][]byte{protocol.EncodeGetVolume(), protocol.EncodeGetConnectedClientsCount()} {
		if err := s.conn.Write(ctx, frame); err != nil {
			s.close(ctx)
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.uplink(gctx) })
	g.Go(func() error { return s.downlink(gctx) })
	err := g.Wait()
	s.close(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Session) close(ctx context.Context) {
	code, reason := relay.CloseNormal, ""
	if ctx.Err() != nil {
		code, reason = relay.CloseGoingAway, "shutdown"
	}
	if err := s.conn.Close(code, reason); err != nil {
		s.logger.Debug().Err(err).Msg("client.Session close")
	}
}

func (s *Session) uplink(ctx context.Context) error {
	for {
		level, err := s.outbox.Pop(ctx)
		if err != nil {
			return err
		}
		payload, err := protocol.EncodeVolumeChange(level)
		if err != nil {
			s.logger.Warn().Err(err).Int("volume", int(level)).Msg("client.Session dropping unencodable intent")
			continue
		}
		if err := s.conn.Write(ctx, payload); err != nil {
			s.outbox.Requeue(level)
			return err
		}
		observability.RecordIntentSent()
		s.logger.Debug().Int("volume", level.Int()).Msg("client.Session sent volume change")
	}
}

func (s *Session) downlink(ctx context.Context) error {
	for {
		data, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}
		s.handle(ctx, data)
	}
}

// handle applies one inbound frame. Nothing here ends the session.
func (s *Session) handle(ctx context.Context, data []byte) {
	ev, err := protocol.Decode(data)
	if err != nil {
		s.logger.Warn().Err(err).Int("bytes", len(data)).Msg("client.Session discarding frame")
		return
	}

	switch ev.Kind {
	case protocol.EventVolumeUpdate:
		level, err := volume.NewLevel(ev.Volume)
		if err != nil {
			observability.RecordVolumeApply(observability.ApplyInvalid)
			s.logger.Warn().Err(err).Int("volume", ev.Volume).Msg("client.Session discarding volume update")
			return
		}
		if err := s.backend.Write(ctx, level); err != nil {
			observability.RecordVolumeApply(observability.ApplyFailed)
			s.logger.Warn().Err(err).Int("volume", level.Int()).Msg("client.Session volume write failed")
			return
		}
		s.state.SetLastApplied(level)
		observability.RecordVolumeApply(observability.ApplyOK)
		s.logger.Info().Int("volume", level.Int()).Msgf("Volume set to %s", level)
	case protocol.EventPeerCount:
		s.state.SetPeers(ev.Clients)
		s.logger.Info().Int("clients", ev.Clients).Msgf("%d clients connected", ev.Clients)
	default:
		s.logger.Debug().Str("type", ev.Type).Msg("client.Session ignoring unrecognized event")
	}
}
