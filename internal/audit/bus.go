package audit

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultBufferSize is the number of events queued before Publish drops.
const DefaultBufferSize = 256

// Sink receives audit events from the bus
type Sink interface {
	Name() string
	Write(ctx context.Context, e Event) error
}

// Publisher accepts events without blocking
type Publisher interface {
	Publish(e Event) bool
}

// Bus queues events and delivers them to sinks from a single goroutine.
type Bus struct {
	events  chan Event
	sinks   []Sink
	logger  *zap.Logger
	onDrop  func()
	dropped atomic.Uint64

	// writeTimeout bounds a single sink write
	writeTimeout time.Duration
}

// NewBus creates a bus. onDrop, if set, is called for every dropped event.
func NewBus(size int, logger *zap.Logger, onDrop func(), sinks ...Sink) *Bus {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		events:       make(chan Event, size),
		sinks:        sinks,
		logger:       logger,
		onDrop:       onDrop,
		writeTimeout: 5 * time.Second,
	}
}

// Publish enqueues e. It never blocks; when the queue is full the event is
// dropped and false is returned.
func (b *Bus) Publish(e Event) bool {
	select {
	case b.events <- e:
		return true
	default:
		b.dropped.Add(1)
		if b.onDrop != nil {
			b.onDrop()
		}
		return false
	}
}

// Dropped returns the number of events dropped so far.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Run delivers events until ctx is cancelled, then flushes what is queued.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			b.drain()
			return nil
		case e := <-b.events:
			b.deliver(ctx, e)
		}
	}
}

func (b *Bus) drain() {
	ctx := context.Background()
	for {
		select {
		case e := <-b.events:
			b.deliver(ctx, e)
		default:
			return
		}
	}
}

func (b *Bus) deliver(ctx context.Context, e Event) {
	for _, s := range b.sinks {
		wctx, cancel := context.WithTimeout(ctx, b.writeTimeout)
		err := s.Write(wctx, e)
		cancel()
		if err != nil {
			b.logger.Warn("audit sink write failed",
				zap.String("sink", s.Name()), zap.String("event_id", e.ID), zap.Error(err))
		}
	}
}
