// Package stream keeps a live log feed flowing from the bot: a push channel
// that reconnects on close, backed by a periodic poll that only runs while
// the channel is down.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modoterra/jukedash/pkg/core"
)

// DefaultPollInterval is the fallback poll period.
const DefaultPollInterval = 10 * time.Second

// Channel is one open push connection.
type Channel interface {
	// ReadLoop calls fn for every event in arrival order until the
	// connection closes or ctx ends.
	ReadLoop(ctx context.Context, fn func(core.LogEvent)) error
	Close() error
}

// Dialer opens a push channel.
type Dialer func(ctx context.Context) (Channel, error)

// Fetcher returns the server's recent log history.
type Fetcher interface {
	Logs(ctx context.Context) ([]core.LogEvent, error)
}

// Observer receives transport lifecycle signals, e.g. for metrics.
type Observer interface {
	StateChanged(core.TransportState)
	Reconnecting()
	PollFailed()
}

type nopObserver struct{}

func (nopObserver) StateChanged(core.TransportState) {}
func (nopObserver) Reconnecting()                    {}
func (nopObserver) PollFailed()                      {}

// Options configures a Selector.
type Options struct {
	PollInterval time.Duration
	Reconnect    Backoff
	Observer     Observer
}

// Health summarises feed freshness for display.
type Health struct {
	State       core.TransportState
	LastContact time.Time // last event or successful poll
	LastPollErr error
	Reconnects  int
	GaveUp      bool // reconnect retries exhausted; poll only
}

// Stale is true when neither transport is currently delivering.
func (h Health) Stale() bool {
	return h.State != core.TransportOpen && h.LastPollErr != nil
}

// Selector runs the push channel and fallback poll and merges both into a
// single ordered-per-transport delivery stream.
type Selector struct {
	dial     Dialer
	fetch    Fetcher
	interval time.Duration
	backoff  Backoff
	observer Observer
	logger   *slog.Logger

	out   chan core.Delivery
	state atomic.Int32

	mu     sync.Mutex
	health Health
}

// New creates a selector. Run must be called exactly once.
func New(dial Dialer, fetch Fetcher, opts Options, logger *slog.Logger) *Selector {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Selector{
		dial:     dial,
		fetch:    fetch,
		interval: opts.PollInterval,
		backoff:  opts.Reconnect,
		observer: opts.Observer,
		logger:   logger,
		out:      make(chan core.Delivery, 64),
	}
	s.state.Store(int32(core.TransportConnecting))
	s.health.State = core.TransportConnecting
	return s
}

// Deliveries is closed after Run returns.
func (s *Selector) Deliveries() <-chan core.Delivery { return s.out }

// State returns the push channel state.
func (s *Selector) State() core.TransportState {
	return core.TransportState(s.state.Load())
}

// Health returns a snapshot of feed freshness.
func (s *Selector) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.health
	h.State = s.State()
	return h
}

// Run starts both loops. Blocks until ctx is cancelled.
func (s *Selector) Run(ctx context.Context) {
	defer close(s.out)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.connectLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.pollLoop(ctx)
	}()
	wg.Wait()
}

func (s *Selector) setState(st core.TransportState) {
	if core.TransportState(s.state.Swap(int32(st))) != st {
		s.observer.StateChanged(st)
	}
}

func (s *Selector) touch() {
	s.mu.Lock()
	s.health.LastContact = time.Now()
	s.mu.Unlock()
}

func (s *Selector) forward(ctx context.Context, ev core.LogEvent, origin core.Origin) bool {
	select {
	case s.out <- core.Delivery{Event: ev, Origin: origin}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Selector) connectLoop(ctx context.Context) {
	attempt := 0
	for {
		s.setState(core.TransportConnecting)
		ch, err := s.dial(ctx)
		if err == nil {
			attempt = 0
			s.setState(core.TransportOpen)
			s.touch()
			s.logger.Info("push channel open")
			err = ch.ReadLoop(ctx, func(ev core.LogEvent) {
				s.touch()
				s.forward(ctx, ev, core.OriginPush)
			})
			ch.Close()
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("push channel read error", "err", err)
			}
		} else if ctx.Err() == nil {
			s.logger.Warn("push channel dial failed", "err", err)
		}
		s.setState(core.TransportClosed)
		if ctx.Err() != nil {
			return
		}

		attempt++
		delay, ok := s.backoff.Next(attempt)
		if !ok {
			s.logger.Error("push channel retries exhausted, polling only", "attempts", attempt-1)
			s.mu.Lock()
			s.health.GaveUp = true
			s.mu.Unlock()
			return
		}
		s.mu.Lock()
		s.health.Reconnects++
		s.mu.Unlock()
		s.observer.Reconnecting()
		s.logger.Debug("push channel closed, reconnecting", "delay", delay, "attempt", attempt)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *Selector) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollTick(ctx)
		}
	}
}

func (s *Selector) pollTick(ctx context.Context) {
	if s.State() == core.TransportOpen {
		return
	}
	events, err := s.fetch.Logs(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("log poll failed", "err", err)
		s.mu.Lock()
		s.health.LastPollErr = err
		s.mu.Unlock()
		s.observer.PollFailed()
		return
	}
	s.mu.Lock()
	s.health.LastPollErr = nil
	s.health.LastContact = time.Now()
	s.mu.Unlock()
	for _, ev := range events {
		if !s.forward(ctx, ev, core.OriginPoll) {
			return
		}
	}
}
