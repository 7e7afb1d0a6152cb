package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/modoterra/jukedash/internal/buildinfo"
	"github.com/modoterra/jukedash/pkg/config"
	"github.com/modoterra/jukedash/pkg/core"
	"github.com/modoterra/jukedash/pkg/format"
	"github.com/modoterra/jukedash/pkg/metrics"
	"github.com/modoterra/jukedash/pkg/store"
	"github.com/modoterra/jukedash/pkg/stream"
	"github.com/modoterra/jukedash/pkg/transport/api"
	"github.com/modoterra/jukedash/pkg/transport/ws"
	tuimodel "github.com/modoterra/jukedash/pkg/tui/model"
)

var (
	configPath string
	serverFlag string
	formatFlag string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "jukedash",
	Short:        "Terminal dashboard for the music bot",
	Long:         "jukedash follows the bot's live logs and shows guilds, playback and analytics. Subcommands query the same API from scripts.",
	SilenceUsage: true,
	RunE:         runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to jukedash.yaml")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "bot dashboard base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "table", "output format: table, plain or json")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(configCmd)
}

// --- Shared setup ---

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if serverFlag != "" {
		cfg.Server = serverFlag
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config %s: %w", cfg.FilePath, errors.Join(errs...))
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
}

// tuiLogger writes to log_file, or nowhere: stderr would draw over the
// alt screen.
func tuiLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	if cfg.LogFile == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return newLogger(cfg, f), func() { _ = f.Close() }, nil
}

func newClient(cfg *config.Config, logger *slog.Logger) (*api.Client, error) {
	return api.New(cfg.Server, api.Options{
		Timeout:   cfg.HTTP.Timeout,
		UserAgent: cfg.HTTP.UserAgent,
	}, logger)
}

func backoffFrom(r config.ReconnectConfig) stream.Backoff {
	return stream.Backoff{
		Delay:      r.Delay,
		Multiplier: r.Multiplier,
		MaxDelay:   r.MaxDelay,
		Jitter:     r.Jitter,
		MaxRetries: r.MaxRetries,
	}
}

// wsDialer opens the push channel for the configured server.
func wsDialer(cfg *config.Config, logger *slog.Logger) (stream.Dialer, error) {
	u, err := ws.LogsURL(cfg.Server)
	if err != nil {
		return nil, err
	}
	opts := ws.Options{HandshakeTimeout: cfg.HTTP.HandshakeTimeout, UserAgent: cfg.HTTP.UserAgent}
	return func(ctx context.Context) (stream.Channel, error) {
		c, err := ws.Dial(ctx, u, opts, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}, nil
}

func newSelector(cfg *config.Config, client *api.Client, obs stream.Observer, logger *slog.Logger) (*stream.Selector, error) {
	dial, err := wsDialer(cfg, logger)
	if err != nil {
		return nil, err
	}
	return stream.New(dial, client, stream.Options{
		PollInterval: cfg.Logs.PollInterval,
		Reconnect:    backoffFrom(cfg.Logs.Reconnect),
		Observer:     obs,
	}, logger), nil
}

func serveMetrics(ctx context.Context, cfg *config.Config, p *metrics.Pipeline, logger *slog.Logger) {
	if cfg.Metrics.Addr == "" {
		return
	}
	go func() {
		if err := p.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
			logger.Error("metrics server failed", "addr", cfg.Metrics.Addr, "err", err)
		}
	}()
}

func outputOptions(w io.Writer) (format.Options, error) {
	opts := format.Options{Format: formatFlag, Header: true}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			opts.Width = width
		}
	}
	return opts, nil
}

// --- Root: TUI ---

func runTUI(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := tuiLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	scope, err := core.ParseScope(cfg.TUI.Scope)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipeline := metrics.NewPipeline()
	serveMetrics(ctx, cfg, pipeline, logger)

	st := store.New(client, logger)
	st.SetScope(scope)
	stopStore := st.Start(ctx)

	sel, err := newSelector(cfg, client, pipeline, logger)
	if err != nil {
		cancel()
		stopStore()
		return err
	}
	go sel.Run(ctx)

	app := tuimodel.New(tuimodel.Options{
		Backend:         client,
		Store:           st,
		Feed:            sel,
		BufferSize:      cfg.Logs.BufferSize,
		SeenKeys:        cfg.Logs.SeenCapacity(),
		Autoscroll:      cfg.TUI.AutoscrollEnabled(),
		ScrollThreshold: cfg.TUI.ScrollRows(),
		RefreshInterval: cfg.TUI.RefreshInterval,
		Metrics:         pipeline,
		Server:          cfg.Server,
		Logger:          logger,
	})
	logger.Info("starting jukedash", "version", buildinfo.Version, "server", cfg.Server)
	_, err = tea.NewProgram(app, tea.WithAltScreen()).Run()

	cancel()
	stopStore()
	return err
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "jukedash %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}

// --- Ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the bot dashboard API answers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newClient(cfg, newLogger(cfg, cmd.ErrOrStderr()))
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.HTTP.Timeout)
		defer cancel()

		rtt, err := client.Ping(ctx)
		if err != nil {
			return fmt.Errorf("cannot reach %s: %w", cfg.Server, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pong ✓ %s (%s)\n", cfg.Server, rtt.Round(time.Millisecond))
		return nil
	},
}

// --- Config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage jukedash.yaml",
}

var (
	configInitOutput string
	configInitForce  bool
)

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a jukedash.yaml with default settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := configInitOutput
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		cfg := config.Default()
		if serverFlag != "" {
			cfg.Server = serverFlag
		}
		if err := config.Save(cfg, path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generated %s for %s\n", path, cfg.Server)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a jukedash.yaml",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}
		if _, err := os.Stat(path); err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		errs := config.Validate(cfg)
		if len(errs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d sink(s))\n", path, len(cfg.Sinks))
			return nil
		}
		w := cmd.ErrOrStderr()
		fmt.Fprintf(w, "%s: %d error(s)\n", path, len(errs))
		for _, e := range errs {
			fmt.Fprintf(w, "  • %s\n", e)
		}
		return fmt.Errorf("%s is invalid", path)
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitOutput, "output", config.DefaultPath, "output file path")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
}
