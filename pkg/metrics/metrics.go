// Package metrics exposes live-log pipeline counters to Prometheus.
//
// All Pipeline methods are safe on a nil receiver so callers can leave
// metrics disabled without branching.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modoterra/jukedash/pkg/core"
)

const namespace = "jukedash"

// Pipeline holds the collectors for one log pipeline.
type Pipeline struct {
	Registry *prometheus.Registry

	deliveries  *prometheus.CounterVec
	duplicates  *prometheus.CounterVec
	accepted    prometheus.Counter
	evicted     prometheus.Counter
	buffered    prometheus.Gauge
	channelOpen prometheus.Gauge
	reconnects  prometheus.Counter
	pollFails   prometheus.Counter
	sinkErrors  *prometheus.CounterVec
}

// NewPipeline registers collectors on a private registry.
func NewPipeline() *Pipeline {
	p := &Pipeline{Registry: prometheus.NewRegistry()}
	p.deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "log_deliveries_total",
		Help:      "Log events received, by transport",
	}, []string{"origin"})
	p.duplicates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "log_duplicates_total",
		Help:      "Log events discarded as already seen, by transport",
	}, []string{"origin"})
	p.accepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "log_accepted_total",
		Help:      "Novel log events appended to the display buffer",
	})
	p.evicted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "log_evicted_total",
		Help:      "Entries dropped from the head of the display buffer",
	})
	p.buffered = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "log_buffered",
		Help:      "Entries currently held in the display buffer",
	})
	p.channelOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "push_channel_open",
		Help:      "1 while the push channel is open",
	})
	p.reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_reconnects_total",
		Help:      "Push channel reconnect attempts scheduled",
	})
	p.pollFails = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_failures_total",
		Help:      "Fallback polls that failed",
	})
	p.sinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sink_errors_total",
		Help:      "Failed sink writes, by sink",
	}, []string{"sink"})

	p.Registry.MustRegister(
		p.deliveries, p.duplicates, p.accepted, p.evicted, p.buffered,
		p.channelOpen, p.reconnects, p.pollFails, p.sinkErrors,
	)
	return p
}

// Delivered records one event arriving, and whether it was a duplicate.
func (p *Pipeline) Delivered(origin core.Origin, duplicate bool) {
	if p == nil {
		return
	}
	p.deliveries.WithLabelValues(string(origin)).Inc()
	if duplicate {
		p.duplicates.WithLabelValues(string(origin)).Inc()
	} else {
		p.accepted.Inc()
	}
}

// Evicted records a head eviction.
func (p *Pipeline) Evicted() {
	if p == nil {
		return
	}
	p.evicted.Inc()
}

// Buffered sets the current buffer length.
func (p *Pipeline) Buffered(n int) {
	if p == nil {
		return
	}
	p.buffered.Set(float64(n))
}

// StateChanged tracks the push channel state.
func (p *Pipeline) StateChanged(st core.TransportState) {
	if p == nil {
		return
	}
	if st == core.TransportOpen {
		p.channelOpen.Set(1)
	} else {
		p.channelOpen.Set(0)
	}
}

// Reconnecting counts a scheduled reconnect.
func (p *Pipeline) Reconnecting() {
	if p == nil {
		return
	}
	p.reconnects.Inc()
}

// PollFailed counts a failed fallback poll.
func (p *Pipeline) PollFailed() {
	if p == nil {
		return
	}
	p.pollFails.Inc()
}

// SinkError counts a failed write to the named sink.
func (p *Pipeline) SinkError(sink string) {
	if p == nil {
		return
	}
	p.sinkErrors.WithLabelValues(sink).Inc()
}

// Handler serves /metrics and /healthz.
func (p *Pipeline) Handler() http.Handler {
	mux := http.NewServeMux()
	if p != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve listens on addr until ctx is cancelled.
func (p *Pipeline) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      p.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
