package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const defaultEmitTimeout = 5 * time.Second

// Config controls dispatcher buffering and delivery behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// EmitTimeout bounds a single sink delivery. A sink that exceeds it has
	// its context canceled so a stuck sink cannot wedge the worker or Close.
	EmitTimeout time.Duration
}

// Dispatcher forwards audit events to a sink from a dedicated worker
// goroutine, so emitting from request paths never blocks on sink I/O.
type Dispatcher struct {
	sink        Sink
	dropIfFull  bool
	emitTimeout time.Duration
	queue       chan Event
	quit        chan struct{}
	worker      sync.WaitGroup
	dropped     atomic.Uint64
	closed      atomic.Bool
	closeOnce   sync.Once
}

// NewDispatcher starts the delivery worker. Returns nil when auditing is
// disabled; a nil dispatcher is safe to use and does nothing.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.EmitTimeout <= 0 {
		cfg.EmitTimeout = defaultEmitTimeout
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:        sink,
		dropIfFull:  cfg.DropIfFull,
		emitTimeout: cfg.EmitTimeout,
		queue:       make(chan Event, cfg.BufferSize),
		quit:        make(chan struct{}),
	}

	d.worker.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.worker.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.quit:
			// Drain whatever is buffered before exiting. Each delivery is
			// still bounded by the emit timeout, so Close terminates even
			// against a dead sink.
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.emitTimeout)
	defer cancel()
	d.sink.Emit(ctx, event)
}

// Emit enqueues an event for asynchronous delivery. With DropIfFull set the
// event is counted and discarded when the buffer is full; otherwise Emit
// blocks until there is room or the caller's context is done.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.quit:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close drains buffered events and stops the worker. Idempotent.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.quit)
		d.worker.Wait()
	})
}

// Dropped returns the number of events discarded because the buffer was
// full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
