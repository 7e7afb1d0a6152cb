// Package format renders dashboard data for the CLI as tables, tab-separated
// plain text or JSON.
package format

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/modoterra/jukedash/pkg/core"
)

// Options control rendering.
type Options struct {
	Format string // table | plain | json
	Header bool
	Width  int // max table row width, 0 = unlimited
}

// Validate rejects unknown formats.
func (o Options) Validate() error {
	switch strings.ToLower(o.Format) {
	case "", "table", "plain", "json":
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", o.Format)
	}
}

type section struct {
	title   string
	header  table.Row
	rows    []table.Row
	empty   string
	configs []table.ColumnConfig
}

func write(w io.Writer, opts Options, raw any, sections ...section) error {
	switch strings.ToLower(opts.Format) {
	case "", "table":
		for i, s := range sections {
			if i > 0 {
				if _, err := fmt.Fprintln(w); err != nil {
					return err
				}
			}
			writeTable(w, opts, s)
		}
		return nil
	case "plain":
		for _, s := range sections {
			if err := writePlain(w, opts, s); err != nil {
				return err
			}
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(raw)
	default:
		return fmt.Errorf("unsupported format: %s", opts.Format)
	}
}

func writeTable(w io.Writer, opts Options, s section) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateHeader = true
	tw.Style().Options.DrawBorder = true
	if s.title != "" {
		tw.SetTitle(s.title)
	}
	if opts.Width > 0 {
		tw.SetAllowedRowLength(opts.Width)
	}
	if s.configs != nil {
		tw.SetColumnConfigs(s.configs)
	}
	if opts.Header && s.header != nil {
		tw.AppendHeader(s.header)
	}
	for _, r := range s.rows {
		tw.AppendRow(r)
	}
	if len(s.rows) == 0 {
		empty := make(table.Row, len(s.header))
		for i := range empty {
			empty[i] = "-"
		}
		if len(empty) > 0 {
			empty[0] = s.empty
		}
		tw.AppendRow(empty)
	}
	_ = tw.Render()
}

func writePlain(w io.Writer, opts Options, s section) error {
	if opts.Header && s.header != nil {
		cols := make([]string, len(s.header))
		for i, h := range s.header {
			cols[i] = strings.ToLower(strings.ReplaceAll(fmt.Sprint(h), " ", "_"))
		}
		if s.title != "" {
			cols = append([]string{"section"}, cols...)
		}
		if _, err := fmt.Fprintln(w, strings.Join(cols, "\t")); err != nil {
			return err
		}
	}
	for _, r := range s.rows {
		cols := make([]string, len(r))
		for i, v := range r {
			cols[i] = escapeNewlines(fmt.Sprint(v))
		}
		if s.title != "" {
			cols = append([]string{strings.ToLower(strings.ReplaceAll(s.title, " ", "_"))}, cols...)
		}
		if _, err := fmt.Fprintln(w, strings.Join(cols, "\t")); err != nil {
			return err
		}
	}
	return nil
}

func escapeNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}

// Duration renders seconds as HH:MM:SS, or MM:SS under an hour.
func Duration(seconds int) string {
	if seconds <= 0 {
		return "00:00"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Uptime renders a coarse human duration like "3d 4h" or "12m".
func Uptime(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
	case d >= time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}

// WriteStatus renders the bot health snapshot.
func WriteStatus(w io.Writer, s core.Status, opts Options) error {
	return write(w, opts, s, section{
		header: table.Row{"Field", "Value"},
		rows: []table.Row{
			{"status", s.Status},
			{"guilds", s.Guilds},
			{"voice", s.VoiceConnections},
			{"latency", fmt.Sprintf("%.0fms", s.LatencyMs)},
			{"cpu", fmt.Sprintf("%.1f%%", s.CPUPercent)},
			{"ram", fmt.Sprintf("%.1f%%", s.RAMPercent)},
			{"process ram", fmt.Sprintf("%.1fMB", s.ProcessRAMMB)},
			{"uptime", Uptime(s.UptimeSeconds)},
		},
	})
}

// WriteGuilds renders the guild list.
func WriteGuilds(w io.Writer, guilds []core.Guild, opts Options) error {
	rows := make([]table.Row, 0, len(guilds))
	for _, g := range guilds {
		playing := "-"
		if np := g.NowPlaying(); np != "" {
			playing = np
		}
		rows = append(rows, table.Row{g.ID, g.Name, g.MemberCount, g.QueueSize, playing})
	}
	return write(w, opts, guilds, section{
		header: table.Row{"ID", "Name", "Members", "Queue", "Now Playing"},
		rows:   rows,
		empty:  "(no guilds)",
		configs: []table.ColumnConfig{
			{Number: 3, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
			{Number: 5, WidthMax: 60},
		},
	})
}

// WriteSongs renders playback history.
func WriteSongs(w io.Writer, songs []core.Song, opts Options) error {
	rows := make([]table.Row, 0, len(songs))
	for _, s := range songs {
		rows = append(rows, table.Row{s.PlayedAt, s.Title, s.ArtistName, Duration(s.DurationSeconds), s.Genre, s.RequestedBy})
	}
	return write(w, opts, songs, section{
		header: table.Row{"Played", "Title", "Artist", "Length", "Genre", "For"},
		rows:   rows,
		empty:  "(no songs)",
		configs: []table.ColumnConfig{
			{Number: 2, WidthMax: 40},
			{Number: 3, WidthMax: 30},
			{Number: 4, Align: text.AlignRight},
		},
	})
}

// WriteLibrary renders library rows, whose columns vary by server version.
func WriteLibrary(w io.Writer, lib []core.Row, opts Options) error {
	rows := make([]table.Row, 0, len(lib))
	for _, r := range lib {
		plays, _ := r.Num("plays", "play_count")
		rows = append(rows, table.Row{
			r.Str("title"),
			r.Str("artist_name", "artist"),
			r.Str("genre"),
			int(plays),
			r.Str("liked_by", "likes"),
		})
	}
	return write(w, opts, lib, section{
		header:  table.Row{"Title", "Artist", "Genre", "Plays", "Liked By"},
		rows:    rows,
		empty:   "(empty library)",
		configs: []table.ColumnConfig{{Number: 1, WidthMax: 40}, {Number: 4, Align: text.AlignRight}},
	})
}

// WriteNotifications renders system notices, newest first.
func WriteNotifications(w io.Writer, ns []core.Notification, opts Options) error {
	sorted := append([]core.Notification(nil), ns...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt > sorted[j].CreatedAt })
	rows := make([]table.Row, 0, len(sorted))
	for _, n := range sorted {
		when := "-"
		if n.CreatedAt > 0 {
			when = time.Unix(int64(n.CreatedAt), 0).Format("2006-01-02 15:04")
		}
		rows = append(rows, table.Row{when, n.Level, n.Message})
	}
	return write(w, opts, ns, section{
		header:  table.Row{"When", "Level", "Message"},
		rows:    rows,
		empty:   "(no notifications)",
		configs: []table.ColumnConfig{{Number: 3, WidthMax: 80}},
	})
}

// WriteSettings renders a settings map sorted by key.
func WriteSettings(w io.Writer, settings map[string]any, opts Options) error {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([]table.Row, 0, len(keys))
	for _, k := range keys {
		v := settings[k]
		switch v.(type) {
		case map[string]any, []any:
			b, _ := json.Marshal(v)
			v = string(b)
		case nil:
			v = "-"
		}
		rows = append(rows, table.Row{k, v})
	}
	return write(w, opts, settings, section{
		header: table.Row{"Setting", "Value"},
		rows:   rows,
		empty:  "(no settings)",
	})
}

// WriteAnalytics renders totals and rankings for a scope.
func WriteAnalytics(w io.Writer, a core.Analytics, opts Options) error {
	if a.Error != "" {
		return fmt.Errorf("analytics unavailable: %s", a.Error)
	}
	totals := section{
		title:  "Totals",
		header: table.Row{"Metric", "Value"},
		rows: []table.Row{
			{"songs", a.TotalSongs},
			{"users", a.TotalUsers},
			{"plays", a.TotalPlays},
		},
	}
	users := section{title: "Top Users", header: table.Row{"Name", "Plays", "Likes", "Playlists"}, empty: "(none)"}
	for _, u := range a.TopUsers {
		users.rows = append(users.rows, table.Row{u.Name, u.Plays, u.TotalLikes, u.PlaylistsImported})
	}
	return write(w, opts, a,
		totals,
		rankSection("Top Songs", a.TopSongs, "title"),
		users,
		rankSection("Top Artists", a.TopPlayedArtists, "artist", "name"),
		rankSection("Top Genres", a.TopPlayedGenres, "genre", "name"),
		rankSection("Most Liked", a.TopLikedSongs, "title"),
		trendSection(a.PlaybackTrends),
	)
}

func rankSection(title string, rows []core.Row, nameKeys ...string) section {
	s := section{title: title, header: table.Row{"#", "Name", "Count"}, empty: "(none)"}
	for i, r := range rows {
		name := r.Str(nameKeys...)
		if artist := r.Str("artist_name", "artist"); artist != "" && name != artist {
			name = artist + " – " + name
		}
		n, _ := r.Num("plays", "play_count", "count", "likes", "like_count")
		s.rows = append(s.rows, table.Row{i + 1, name, int(n)})
	}
	return s
}

func trendSection(rows []core.Row) section {
	s := section{title: "Daily Plays", header: table.Row{"Day", "Plays", ""}, empty: "(none)"}
	peak := 0.0
	for _, r := range rows {
		if n, ok := r.Num("plays", "count"); ok && n > peak {
			peak = n
		}
	}
	for _, r := range rows {
		n, _ := r.Num("plays", "count")
		s.rows = append(s.rows, table.Row{r.Str("day", "date"), int(n), Bar(n, peak, 20)})
	}
	return s
}

// Bar draws a proportional horizontal bar of at most width cells.
func Bar(v, peak float64, width int) string {
	if peak <= 0 || v <= 0 || width <= 0 {
		return ""
	}
	n := int(v / peak * float64(width))
	if n < 1 {
		n = 1
	}
	return strings.Repeat("█", n)
}
