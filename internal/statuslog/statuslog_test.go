package statuslog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestSink_EmitDoesNotBlock(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSink(context.Background(), 4, logger)
	defer s.Close()

	for i := 0; i < 100; i++ {
		s.Emit(Event{Kind: FrameDecoded, Frame: int64(i)})
	}
	// Emit must return promptly even with a tiny buffer; a deadline
	// guards against a regression that makes Emit block.
	done := make(chan struct{})
	go func() {
		s.Emit(Event{Kind: DecodeFailed, Frame: 1, Err: errors.New("boom")})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Emit blocked past its deadline")
	}
}

func TestSink_DropsWhenFull(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSink(context.Background(), 1, logger)
	defer s.Close()

	for i := 0; i < 50; i++ {
		s.Emit(Event{Kind: FrameDecoded, Frame: int64(i)})
	}
	if s.Dropped() == 0 {
		t.Fatalf("expected some events dropped once the buffer filled")
	}
}

func TestSink_CloseIsIdempotent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSink(context.Background(), 4, logger)
	s.Close()
	s.Close() // must not panic or block
	s.Emit(Event{Kind: FrameDecoded, Frame: 1}) // must not panic after close
}
