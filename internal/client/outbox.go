package client

import (
	"context"
	"sync"

	"github.com/danmuck/volsync/internal/volume"
)

// Outbox is the unbounded FIFO of local volume changes waiting for the relay.
// The watcher is its only producer and the live session's uplink its only
// consumer. It outlives sessions, so changes made while disconnected are sent
// after the next connect.
type Outbox struct {
	mu    sync.Mutex
	items []volume.Level
	ready chan struct{}
}

func NewOutbox() *Outbox {
	return &Outbox{ready: make(chan struct{}, 1)}
}

// Push appends level. It never blocks and never drops.
func (o *Outbox) Push(level volume.Level) {
	o.mu.Lock()
	o.items = append(o.items, level)
	o.mu.Unlock()
	o.signal()
}

// Requeue puts level back at the head, ahead of anything pushed since it was
// popped.
func (o *Outbox) Requeue(level volume.Level) {
	o.mu.Lock()
	o.items = append([]volume.Level{level}, o.items...)
	o.mu.Unlock()
	o.signal()
}

// Pop blocks until an item is available or ctx is done.
func (o *Outbox) Pop(ctx context.Context) (volume.Level, error) {
	for {
		o.mu.Lock()
		if len(o.items) > 0 {
			level := o.items[0]
			o.items = o.items[1:]
			more := len(o.items) > 0
			o.mu.Unlock()
			if more {
				o.signal()
			}
			return level, nil
		}
		o.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-o.ready:
		}
	}
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

func (o *Outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}
