package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modoterra/jukedash/pkg/core"
	"github.com/modoterra/jukedash/pkg/logpipe"
	"github.com/modoterra/jukedash/pkg/metrics"
	"github.com/modoterra/jukedash/pkg/sink"
)

var logsOnce bool

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Follow the bot's logs without the TUI",
	Long: "Streams live logs to the sinks configured in jukedash.yaml, or to the terminal when none are set. " +
		"Uses the push channel while it is up and polls /api/logs while it is down.",
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVar(&logsOnce, "once", false, "print the server's recent history and exit")
}

func runLogs(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, err := sink.NewFromConfig(ctx, cfg.Sinks, cfg.HTTP.UserAgent, logger)
	if err != nil {
		return err
	}
	if len(sinks) == 0 {
		sinks = []sink.Sink{sink.NewConsole(cmd.OutOrStdout())}
	}

	pipeline := metrics.NewPipeline()
	fan := sink.NewFanout(func(name string, err error) {
		pipeline.SinkError(name)
		logger.Warn("sink write failed", "sink", name, "err", err)
	}, sinks...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := fan.Close(closeCtx); err != nil {
			logger.Error("closing sinks", "err", err)
		}
	}()

	buf := logpipe.NewBuffer(cfg.Logs.BufferSize, cfg.Logs.SeenCapacity())

	if logsOnce {
		events, err := client.Logs(ctx)
		if err != nil {
			return fmt.Errorf("fetch logs: %w", err)
		}
		batch := make([]core.Delivery, len(events))
		for i, ev := range events {
			batch[i] = core.Delivery{Event: ev, Origin: core.OriginPoll}
		}
		return fan.Write(ctx, acceptBatch(buf, batch, pipeline))
	}

	serveMetrics(ctx, cfg, pipeline, logger)

	sel, err := newSelector(cfg, client, pipeline, logger)
	if err != nil {
		return err
	}
	go sel.Run(ctx)

	logger.Info("following logs", "server", cfg.Server, "sinks", fan.Names())
	consumeDeliveries(ctx, sel.Deliveries(), buf, fan, pipeline, logger)
	return nil
}

// acceptBatch runs deliveries through the buffer and returns the new entries.
func acceptBatch(buf *logpipe.Buffer, batch []core.Delivery, p *metrics.Pipeline) []logpipe.Entry {
	var out []logpipe.Entry
	for _, d := range batch {
		r := buf.Accept(d.Event, d.Origin)
		p.Delivered(d.Origin, !r.Added)
		if !r.Added {
			continue
		}
		if r.Evicted {
			p.Evicted()
		}
		out = append(out, r.Entry)
	}
	p.Buffered(buf.Len())
	return out
}

// consumeDeliveries is the only writer of buf. Sink writes run on their
// own goroutine behind a bounded queue so a slow sink cannot stall the
// selector; batches that do not fit are dropped. It returns once the
// selector closes the channel and the queued batches are written.
func consumeDeliveries(ctx context.Context, ch <-chan core.Delivery, buf *logpipe.Buffer, fan *sink.Fanout, p *metrics.Pipeline, logger *slog.Logger) {
	const (
		maxBatch  = 256
		sinkQueue = 64
	)
	writeCtx := context.WithoutCancel(ctx)
	queue := make(chan []logpipe.Entry, sinkQueue)
	written := make(chan struct{})
	go func() {
		defer close(written)
		for entries := range queue {
			if err := fan.Write(writeCtx, entries); err != nil {
				logger.Debug("batch partially delivered", "entries", len(entries), "err", err)
			}
		}
	}()
	defer func() {
		close(queue)
		<-written
	}()

	for d := range ch {
		batch := []core.Delivery{d}
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-ch:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		entries := acceptBatch(buf, batch, p)
		if len(entries) == 0 {
			continue
		}
		select {
		case queue <- entries:
		default:
			logger.Warn("sinks falling behind, dropping batch", "entries", len(entries))
		}
	}
}
