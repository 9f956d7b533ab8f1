package client

import (
	"sync"
	"sync/atomic"

	"github.com/danmuck/volsync/internal/observability"
	"github.com/danmuck/volsync/internal/volume"
)

const noLevel = -1

// State holds what the process has observed about the shared volume. It is
// written by the watcher and the downlink and read by the status server.
type State struct {
	peers       atomic.Int64
	localVolume atomic.Int64
	lastApplied atomic.Int64

	mu        sync.Mutex
	sessionID string
}

func NewState() *State {
	s := &State{}
	s.localVolume.Store(noLevel)
	s.lastApplied.Store(noLevel)
	return s
}

func (s *State) SetPeers(n int) {
	s.peers.Store(int64(n))
	observability.SetPeers(n)
}

func (s *State) Peers() int {
	return int(s.peers.Load())
}

func (s *State) SetLocalVolume(level volume.Level) {
	s.localVolume.Store(int64(level))
	observability.SetLocalVolume(level.Int())
}

// LocalVolume returns the last local reading, if any.
func (s *State) LocalVolume() (volume.Level, bool) {
	return loadLevel(&s.localVolume)
}

func (s *State) SetLastApplied(level volume.Level) {
	s.lastApplied.Store(int64(level))
}

// LastApplied returns the last relay volume written to the backend, if any.
func (s *State) LastApplied() (volume.Level, bool) {
	return loadLevel(&s.lastApplied)
}

func (s *State) setSession(id string) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
}

// SessionID is empty while disconnected.
func (s *State) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func loadLevel(v *atomic.Int64) (volume.Level, bool) {
	raw := v.Load()
	if raw == noLevel {
		return 0, false
	}
	return volume.Level(raw), true
}
