package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/danmuck/volsync/internal/relay"
	"github.com/danmuck/volsync/internal/volume"
)

// fakeBackend replays reads from a script, repeating the last entry, and
// records every write.
type fakeBackend struct {
	mu     sync.Mutex
	reads  []int
	writes []volume.Level
	wrote  chan volume.Level
}

func newFakeBackend(reads ...int) *fakeBackend {
	return &fakeBackend{reads: reads, wrote: make(chan volume.Level, 64)}
}

func (b *fakeBackend) Platform() string { return "fake" }

func (b *fakeBackend) Read(context.Context) (volume.Level, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.reads) == 0 {
		return 0, errors.New("fake: no reading")
	}
	v := b.reads[0]
	if len(b.reads) > 1 {
		b.reads = b.reads[1:]
	}
	return volume.NewLevel(v)
}

func (b *fakeBackend) Write(_ context.Context, level volume.Level) error {
	b.mu.Lock()
	b.writes = append(b.writes, level)
	b.mu.Unlock()
	b.wrote <- level
	return nil
}

func (b *fakeBackend) Writes() []volume.Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]volume.Level(nil), b.writes...)
}

func (b *fakeBackend) waitWrite(timeout time.Duration) (volume.Level, bool) {
	select {
	case level := <-b.wrote:
		return level, true
	case <-time.After(timeout):
		return 0, false
	}
}

// failingBackend rejects every write and reports each attempt on tried.
type failingBackend struct {
	tried chan volume.Level
}

func newFailingBackend() *failingBackend {
	return &failingBackend{tried: make(chan volume.Level, 64)}
}

func (b *failingBackend) Write(_ context.Context, level volume.Level) error {
	b.tried <- level
	return &volume.BackendError{
		Kind:     volume.KindCommandFailed,
		Platform: "fake",
		Op:       "write",
		Err:      errors.New("mixer unavailable"),
	}
}

type nopConn struct{}

func (nopConn) Read(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (nopConn) Write(context.Context, []byte) error { return nil }
func (nopConn) Close(int, string) error             { return nil }

// scriptedConn fails every write after the first okWrites.
type scriptedConn struct {
	mu       sync.Mutex
	okWrites int
	written  [][]byte
	writeErr error
}

func (c *scriptedConn) Read(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *scriptedConn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.written) >= c.okWrites {
		return c.writeErr
	}
	c.written = append(c.written, data)
	return nil
}

func (c *scriptedConn) Close(int, string) error { return nil }

// fakeDialer returns errs in order, then conns; a nil error means success.
type fakeDialer struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (d *fakeDialer) Dial(context.Context) (relay.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.errs) == 0 {
		return nopConn{}, nil
	}
	err := d.errs[0]
	if len(d.errs) > 1 {
		d.errs = d.errs[1:]
	}
	if err != nil {
		return nil, err
	}
	return nopConn{}, nil
}

func (d *fakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// fakeClock only moves when advanced.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordedWaits collects backoff delays without sleeping.
type recordedWaits struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedWaits) wait(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordedWaits) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}
