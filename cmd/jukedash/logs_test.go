package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/modoterra/jukedash/pkg/core"
	"github.com/modoterra/jukedash/pkg/logpipe"
	"github.com/modoterra/jukedash/pkg/metrics"
	"github.com/modoterra/jukedash/pkg/sink"
)

// stuckSink blocks every write until release is closed.
type stuckSink struct {
	release chan struct{}
	mu      sync.Mutex
	entries int
}

func (s *stuckSink) Name() string { return "stuck" }

func (s *stuckSink) Write(ctx context.Context, entries []logpipe.Entry) error {
	<-s.release
	s.mu.Lock()
	s.entries += len(entries)
	s.mu.Unlock()
	return nil
}

func (s *stuckSink) Close(ctx context.Context) error { return nil }

func TestConsumeDeliveriesWithStuckSink(t *testing.T) {
	stuck := &stuckSink{release: make(chan struct{})}
	fan := sink.NewFanout(nil, stuck)
	buf := logpipe.NewBuffer(500, 0)
	ch := make(chan core.Delivery)
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumeDeliveries(context.Background(), ch, buf, fan, metrics.NewPipeline(), slog.New(slog.DiscardHandler))
	}()

	for i := range 20 {
		ev := core.LogEvent{Timestamp: float64(1700000000 + i), Level: "INFO", Message: fmt.Sprintf("event %d", i)}
		select {
		case ch <- core.Delivery{Event: ev, Origin: core.OriginPush}:
		case <-time.After(time.Second):
			t.Fatalf("delivery %d blocked behind the sink", i)
		}
	}
	close(ch)

	close(stuck.release)
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("consumer did not finish after the sink recovered")
	}
	if buf.Len() != 20 {
		t.Errorf("expected 20 buffered entries, got %d", buf.Len())
	}
	stuck.mu.Lock()
	defer stuck.mu.Unlock()
	if stuck.entries != 20 {
		t.Errorf("expected queued batches written on shutdown, got %d entries", stuck.entries)
	}
}
