package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/modoterra/jukedash/pkg/config"
	"github.com/modoterra/jukedash/pkg/core"
	"github.com/modoterra/jukedash/pkg/format"
	"github.com/modoterra/jukedash/pkg/transport/api"
)

var (
	scopeFlag string
	guildFlag string
)

func init() {
	for _, c := range []*cobra.Command{songsCmd, libraryCmd, analyticsCmd} {
		c.Flags().StringVar(&scopeFlag, "scope", "", "guild id or \"global\" (default from config)")
	}
	settingsCmd.PersistentFlags().StringVar(&guildFlag, "guild", "", "guild id or name; global settings when empty")
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(guildsCmd)
	rootCmd.AddCommand(songsCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(controlCmd)
	rootCmd.AddCommand(leaveCmd)
}

// session is what every API subcommand needs.
type session struct {
	cfg    *config.Config
	client *api.Client
	logger *slog.Logger
	out    io.Writer
	opts   format.Options
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	client, err := newClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts, err := outputOptions(cmd.OutOrStdout())
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, client: client, logger: logger, out: cmd.OutOrStdout(), opts: opts}, nil
}

// run builds a session and calls fn with a request-scoped context.
func run(fn func(ctx context.Context, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*s.cfg.HTTP.Timeout)
		defer cancel()
		return fn(ctx, s, args)
	}
}

func (s *session) scope(ctx context.Context) (core.Scope, error) {
	v := scopeFlag
	if v == "" {
		v = s.cfg.TUI.Scope
	}
	if v == "" || strings.EqualFold(v, string(core.GlobalScope)) {
		return core.GlobalScope, nil
	}
	id, err := s.resolveGuild(ctx, v)
	if err != nil {
		return "", err
	}
	return core.ParseScope(id)
}

// resolveGuild accepts a numeric id as-is or looks a guild up by name.
func (s *session) resolveGuild(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("guild is required")
	}
	if _, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return ref, nil
	}
	guilds, err := s.client.Guilds(ctx)
	if err != nil {
		return "", fmt.Errorf("list guilds: %w", err)
	}
	var matches []core.Guild
	for _, g := range guilds {
		if strings.EqualFold(g.Name, ref) {
			matches = append(matches, g)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("guild not found: %s", ref)
	case 1:
		return matches[0].ID, nil
	default:
		return "", fmt.Errorf("guild name %q is ambiguous (%d matches), use the id", ref, len(matches))
	}
}

// --- Queries ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bot health",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, s *session, _ []string) error {
		st, err := s.client.Status(ctx)
		if err != nil {
			return err
		}
		return format.WriteStatus(s.out, st, s.opts)
	}),
}

var guildsCmd = &cobra.Command{
	Use:   "guilds",
	Short: "List guilds and what they are playing",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, s *session, _ []string) error {
		gs, err := s.client.Guilds(ctx)
		if err != nil {
			return err
		}
		return format.WriteGuilds(s.out, gs, s.opts)
	}),
}

var songsCmd = &cobra.Command{
	Use:   "songs",
	Short: "Show playback history",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, s *session, _ []string) error {
		scope, err := s.scope(ctx)
		if err != nil {
			return err
		}
		songs, err := s.client.Songs(ctx, scope)
		if err != nil {
			return err
		}
		return format.WriteSongs(s.out, songs, s.opts)
	}),
}

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Show the song library",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, s *session, _ []string) error {
		scope, err := s.scope(ctx)
		if err != nil {
			return err
		}
		lib, err := s.client.Library(ctx, scope)
		if err != nil {
			return err
		}
		return format.WriteLibrary(s.out, lib, s.opts)
	}),
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show play statistics",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, s *session, _ []string) error {
		scope, err := s.scope(ctx)
		if err != nil {
			return err
		}
		a, err := s.client.Analytics(ctx, scope)
		if err != nil {
			return err
		}
		return format.WriteAnalytics(s.out, a, s.opts)
	}),
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List system notifications",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, s *session, _ []string) error {
		ns, err := s.client.Notifications(ctx)
		if err != nil {
			return err
		}
		return format.WriteNotifications(s.out, ns, s.opts)
	}),
}

// --- Settings ---

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read or change guild and global settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print settings",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, s *session, _ []string) error {
		if guildFlag == "" {
			gs, err := s.client.GlobalSettings(ctx)
			if err != nil {
				return err
			}
			return format.WriteSettings(s.out, gs, s.opts)
		}
		id, err := s.resolveGuild(ctx, guildFlag)
		if err != nil {
			return err
		}
		gs, err := s.client.GuildSettings(ctx, id)
		if err != nil {
			return err
		}
		return format.WriteSettings(s.out, gs, s.opts)
	}),
}

var settingsSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Change settings",
	Long:  "Values are read as JSON when they parse (true, 30, {\"a\":1}) and as plain strings otherwise.",
	Args:  cobra.MinimumNArgs(1),
	RunE: run(func(ctx context.Context, s *session, args []string) error {
		pairs, err := parsePairs(args)
		if err != nil {
			return err
		}
		if guildFlag == "" {
			if err := s.client.UpdateGlobalSettings(ctx, core.GlobalSettings(pairs)); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "updated %d global setting(s) ✓\n", len(pairs))
			return nil
		}

		patch, err := guildPatch(pairs)
		if err != nil {
			return err
		}
		id, err := s.resolveGuild(ctx, guildFlag)
		if err != nil {
			return err
		}
		if err := s.client.UpdateGuildSettings(ctx, id, patch); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "updated %d setting(s) for %s ✓\n", len(pairs), id)
		return nil
	}),
}

// parsePairs splits key=value arguments, decoding JSON values.
func parsePairs(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out, nil
}

// guildPatch maps pairs onto the settings a guild accepts.
func guildPatch(pairs map[string]any) (core.GuildSettingsPatch, error) {
	var p core.GuildSettingsPatch
	intVal := func(k string, v any) (*int, error) {
		f, ok := v.(float64)
		if !ok || f < 0 || f != float64(int(f)) {
			return nil, fmt.Errorf("%s: expected a non-negative whole number", k)
		}
		n := int(f)
		return &n, nil
	}
	for k, v := range pairs {
		var err error
		switch k {
		case "pre_buffer":
			b, ok := v.(bool)
			if !ok {
				return p, fmt.Errorf("pre_buffer: expected true or false")
			}
			p.PreBuffer = &b
		case "buffer_amount":
			p.BufferAmount, err = intVal(k, v)
		case "replay_cooldown":
			p.ReplayCooldown, err = intVal(k, v)
		case "max_song_duration":
			p.MaxSongDuration, err = intVal(k, v)
		case "ephemeral_duration":
			p.EphemeralDuration, err = intVal(k, v)
		case "discovery_weights":
			p.DiscoveryWeights = v
		case "metadata_config":
			p.MetadataConfig = v
		default:
			return p, fmt.Errorf("unknown guild setting %q", k)
		}
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

// --- Actions ---

var controlCmd = &cobra.Command{
	Use:   "control <guild> <pause|skip|stop>",
	Short: "Control playback in a guild",
	Long:  "pause toggles between paused and playing. stop clears the queue and disconnects.",
	Args:  cobra.ExactArgs(2),
	RunE: run(func(ctx context.Context, s *session, args []string) error {
		action, err := core.ParseControlAction(args[1])
		if err != nil {
			return err
		}
		id, err := s.resolveGuild(ctx, args[0])
		if err != nil {
			return err
		}
		if err := s.client.Control(ctx, id, action); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s → %s ✓\n", action, args[0])
		return nil
	}),
}

var leaveCmd = &cobra.Command{
	Use:   "leave <guild>",
	Short: "Make the bot leave a guild",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, s *session, args []string) error {
		id, err := s.resolveGuild(ctx, args[0])
		if err != nil {
			return err
		}
		if err := s.client.LeaveGuild(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "left %s ✓\n", args[0])
		return nil
	}),
}
