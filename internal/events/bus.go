package events

import (
	"context"
	"sync"
	"time"

	"github.com/inconshreveable/log15"

	"stakegate/internal/logging"
	"stakegate/internal/observability"
)

// Sink delivers events outside the process.
type Sink interface {
	Name() string
	Write(ctx context.Context, e Event) error
	Close() error
}

// Bus fans events out to subscribers and sinks. Slow subscribers drop
// events; sinks are fed from a bounded queue by one goroutine.
type Bus struct {
	log log15.Logger

	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool

	sinks []Sink
	queue chan Event
	done  chan struct{}
}

// NewBus creates a bus delivering to sinks. queueSize bounds the sink backlog.
func NewBus(queueSize int, sinks ...Sink) *Bus {
	if queueSize <= 0 {
		queueSize = 1024
	}
	b := &Bus{
		log:   logging.NewLog("events"),
		subs:  make(map[int]chan Event),
		sinks: sinks,
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
	}
	go b.drain()
	return b
}

// Publish implements Publisher.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- e:
			observability.RecordEventPublished(string(e.Type), "subscriber")
		default:
		}
	}
	if len(b.sinks) == 0 {
		return
	}
	select {
	case b.queue <- e:
	default:
		b.log.Warn("event sink queue full, dropping", "type", e.Type, "subject", e.Subject)
	}
}

// Subscribe returns a channel of future events and a cancel func.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.closed {
		close(ch)
	} else {
		b.subs[id] = ch
	}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
			b.mu.Unlock()
		})
	}
}

func (b *Bus) drain() {
	defer close(b.done)
	for e := range b.queue {
		for _, s := range b.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Write(ctx, e); err != nil {
				b.log.Error("event sink write failed", "sink", s.Name(), "type", e.Type, "err", err)
			} else {
				observability.RecordEventPublished(string(e.Type), s.Name())
			}
			cancel()
		}
	}
}

// Close stops delivery, flushes queued events to sinks and closes them.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	close(b.queue)
	b.mu.Unlock()

	<-b.done
	var firstErr error
	for _, s := range b.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
