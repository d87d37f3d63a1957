// Package eventbus carries dispatch outcomes from the scheduler to
// observers (notifier, embedders) without coupling them.
package eventbus

import (
	"sync"
	"time"
)

type Kind string

const (
	DispatchOK      Kind = "dispatch.ok"
	DispatchFailed  Kind = "dispatch.failed"
	DispatchSkipped Kind = "dispatch.skipped"
)

// Event describes one job dispatch outcome.
//
// Contract: Publish never blocks; slow subscribers lose events rather than
// stalling the scheduler.
type Event struct {
	Kind     Kind
	Time     time.Time
	JobID    string
	JobName  string
	Server   string
	Command  string
	Output   string
	Err      string
	Duration time.Duration
}

type Bus struct {
	mu   sync.Mutex
	seq  uint64
	subs map[uint64]chan Event
}

func New() *Bus {
	return &Bus{subs: map[uint64]chan Event{}}
}

func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber lagging; drop
		}
	}
}

// Subscribe registers a buffered listener. The returned cancel func must be
// called exactly once; the channel is closed afterwards.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
