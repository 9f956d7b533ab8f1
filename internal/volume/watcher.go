package volume

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultPollInterval = 500 * time.Millisecond

// Sink receives every observed local volume transition, in order.
type Sink interface {
	Push(level Level)
}

// Watcher polls a Reader on a fixed interval and pushes changed levels to a
// Sink. It knows nothing about the relay connection.
type Watcher struct {
	reader   Reader
	sink     Sink
	interval time.Duration

	last   Level
	seeded bool
}

func NewWatcher(reader Reader, sink Sink, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{reader: reader, sink: sink, interval: interval}
}

// Seed installs level as the last observed value. Call before Run.
func (w *Watcher) Seed(level Level) {
	w.last = level
	w.seeded = true
}

// Last returns the last successfully observed level.
func (w *Watcher) Last() (Level, bool) {
	return w.last, w.seeded
}

// Run polls until ctx is done. Read failures are logged and never stop it.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll performs one read. It reports the level pushed to the sink, if any.
// The first successful read of an unseeded watcher only sets the baseline.
func (w *Watcher) Poll(ctx context.Context) (Level, bool) {
	level, err := w.reader.Read(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("volume.Watcher poll failed")
		}
		return 0, false
	}
	if !w.seeded {
		w.Seed(level)
		return 0, false
	}
	if level == w.last {
		return 0, false
	}
	w.last = level
	w.sink.Push(level)
	log.Info().Int("volume", level.Int()).Msgf("Local volume: %s", level)
	return level, true
}
