// Package statuslog funnels decode-pipeline events (frames decoded,
// seeks detected, decode failures) through a single goroutine to the
// structured logger, so a slow or backed-up log sink never blocks a
// decode worker. This is internal/transport's AsyncTx generalized from
// "one goroutine serializing CAN frame writes to a device" to "one
// goroutine serializing pipeline events to a logger": same non-blocking
// enqueue, same drop-on-full counter, same cancel-then-drain Close.
package statuslog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Kind classifies an Event for the logger's message field.
type Kind string

const (
	FrameDecoded  Kind = "frame_decoded"
	SeekDetected  Kind = "seek_detected"
	DecodeFailed  Kind = "decode_failed"
)

// Event is one pipeline occurrence, queued for asynchronous logging.
type Event struct {
	Kind  Kind
	Frame int64
	Err   error
}

// Sink is a reusable asynchronous event logger that funnels Emit calls
// through a single goroutine. Emit never blocks: if the internal buffer
// is full, the event is dropped and Dropped() is incremented.
type Sink struct {
	mu     sync.Mutex
	ch     chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
	closed atomic.Bool
	dropped atomic.Uint64
}

// NewSink starts a Sink with a buffered channel of size buf, logging
// through logger.
func NewSink(parent context.Context, buf int, logger *slog.Logger) *Sink {
	ctx, cancel := context.WithCancel(parent)
	s := &Sink{
		ch:     make(chan Event, buf),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *Sink) loop() {
	defer s.wg.Done()
	for {
		select {
		case ev, ok := <-s.ch:
			if !ok {
				return
			}
			s.log(ev)
		case <-s.ctx.Done():
			// Drain whatever is already buffered before exiting.
			for {
				select {
				case ev, ok := <-s.ch:
					if !ok {
						return
					}
					s.log(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) log(ev Event) {
	switch ev.Kind {
	case DecodeFailed:
		s.logger.Warn(string(ev.Kind), "frame", ev.Frame, "error", ev.Err)
	default:
		s.logger.Debug(string(ev.Kind), "frame", ev.Frame)
	}
}

// Emit queues ev for asynchronous logging; it never blocks the caller.
func (s *Sink) Emit(ev Event) {
	if s.closed.Load() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports the number of events discarded due to a full buffer.
func (s *Sink) Dropped() uint64 { return s.dropped.Load() }

// Close stops the worker and waits for it to drain.
func (s *Sink) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.cancel()
	s.mu.Lock()
	close(s.ch)
	s.mu.Unlock()
	s.wg.Wait()
}
