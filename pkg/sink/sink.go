// Package sink forwards accepted log entries to external destinations.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/modoterra/jukedash/pkg/config"
	"github.com/modoterra/jukedash/pkg/logpipe"
)

// Sink is the minimal interface all sinks implement.
type Sink interface {
	Name() string
	Write(ctx context.Context, entries []logpipe.Entry) error
	Close(ctx context.Context) error
}

// Record is the JSON shape written by the file, Loki and S3 sinks.
type Record struct {
	Time      string  `json:"time"`
	Timestamp float64 `json:"timestamp"`
	Level     string  `json:"level"`
	Message   string  `json:"message"`
	Logger    string  `json:"logger,omitempty"`
	GuildID   string  `json:"guild_id,omitempty"`
	Origin    string  `json:"origin"`
	Seq       uint64  `json:"seq"`
}

// NewRecord flattens an entry for serialisation.
func NewRecord(e logpipe.Entry) Record {
	r := Record{
		Time:      e.Event.Time().UTC().Format(time.RFC3339Nano),
		Timestamp: e.Event.Timestamp,
		Level:     e.Event.Level,
		Message:   e.Event.Message,
		Logger:    e.Event.Logger,
		Origin:    string(e.Origin),
		Seq:       e.Seq,
	}
	if e.Event.GuildID != nil {
		r.GuildID = strconv.FormatInt(*e.Event.GuildID, 10)
	}
	return r
}

// Fanout writes to several sinks concurrently. A failing sink never stops
// the others.
type Fanout struct {
	sinks   []Sink
	onError func(sink string, err error)
}

// NewFanout combines sinks. onError may be nil.
func NewFanout(onError func(sink string, err error), sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, onError: onError}
}

// Names lists the sink names in order.
func (f *Fanout) Names() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return names
}

// Write delivers entries to every sink and joins their errors.
func (f *Fanout) Write(ctx context.Context, entries []logpipe.Entry) error {
	if len(entries) == 0 || len(f.sinks) == 0 {
		return nil
	}
	return f.each(func(s Sink) error { return s.Write(ctx, entries) })
}

// Close closes every sink and joins their errors.
func (f *Fanout) Close(ctx context.Context) error {
	return f.each(func(s Sink) error { return s.Close(ctx) })
}

func (f *Fanout) each(fn func(Sink) error) error {
	errs := make([]error, len(f.sinks))
	var wg sync.WaitGroup
	for i, s := range f.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(s); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
				if f.onError != nil {
					f.onError(s.Name(), err)
				}
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// NewFromConfig builds the configured sinks. Already-opened sinks are
// closed if a later one fails.
func NewFromConfig(ctx context.Context, cfgs []config.SinkConfig, userAgent string, logger *slog.Logger) ([]Sink, error) {
	var out []Sink
	fail := func(err error) ([]Sink, error) {
		for _, s := range out {
			_ = s.Close(ctx)
		}
		return nil, err
	}
	for i, c := range cfgs {
		var (
			s   Sink
			err error
		)
		switch c.Type {
		case "console":
			s = NewConsole(os.Stdout)
		case "file":
			s, err = NewFile(c.Path)
		case "journald":
			s, err = NewJournald(c.Identifier)
		case "loki":
			s = NewLoki(LokiConfig{URL: c.URL, TenantID: c.TenantID, Job: c.Job, UserAgent: userAgent, Timeout: c.Timeout})
		case "s3":
			s, err = NewS3FromAWS(ctx, S3Config{
				Region:        c.Region,
				Bucket:        c.Bucket,
				Prefix:        c.Prefix,
				BatchSize:     c.BatchSize,
				FlushInterval: c.FlushInterval,
				Timeout:       c.Timeout,
			}, logger)
		default:
			err = fmt.Errorf("unknown type %q", c.Type)
		}
		if err != nil {
			return fail(fmt.Errorf("sink %d (%s): %w", i, c.Type, err))
		}
		logger.Debug("sink ready", "sink", s.Name())
		out = append(out, s)
	}
	return out, nil
}
