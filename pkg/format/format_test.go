package format

import (
	"bytes"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/modoterra/jukedash/pkg/core"
)

func TestWriteGuildsFormats(t *testing.T) {
	guilds := []core.Guild{
		{ID: "1", Name: "Lounge", MemberCount: 12, QueueSize: 3, CurrentSong: "Song", CurrentArtist: "Band"},
		{ID: "2", Name: "Quiet"},
	}

	var table bytes.Buffer
	if err := WriteGuilds(&table, guilds, Options{Format: "table", Header: true}); err != nil {
		t.Fatal(err)
	}
	out := table.String()
	for _, want := range []string{"NOW PLAYING", "Lounge", "Band – Song", "╭"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}

	var plain bytes.Buffer
	if err := WriteGuilds(&plain, guilds, Options{Format: "plain", Header: true}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(plain.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %q", lines)
	}
	if lines[0] != "id\tname\tmembers\tqueue\tnow_playing" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[2] != "2\tQuiet\t0\t0\t-" {
		t.Errorf("unexpected row %q", lines[2])
	}

	var js bytes.Buffer
	if err := WriteGuilds(&js, guilds, Options{Format: "json"}); err != nil {
		t.Fatal(err)
	}
	var back []core.Guild
	if err := json.Unmarshal(js.Bytes(), &back); err != nil || len(back) != 2 {
		t.Errorf("expected json array, got %s (%v)", js.String(), err)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if err := WriteStatus(&bytes.Buffer{}, core.Status{}, Options{Format: "xml"}); err == nil {
		t.Error("expected error")
	}
	if err := (Options{Format: "yaml"}).Validate(); err == nil {
		t.Error("expected validate error")
	}
	if err := (Options{Format: "JSON"}).Validate(); err != nil {
		t.Errorf("expected case-insensitive match, got %v", err)
	}
}

func TestEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	WriteNotifications(&buf, nil, Options{Format: "table", Header: true})
	if !strings.Contains(buf.String(), "(no notifications)") {
		t.Errorf("expected placeholder row:\n%s", buf.String())
	}
}

func TestNotificationsNewestFirst(t *testing.T) {
	var buf bytes.Buffer
	WriteNotifications(&buf, []core.Notification{
		{ID: 1, Level: "info", Message: "old", CreatedAt: 100},
		{ID: 2, Level: "warning", Message: "new", CreatedAt: 200},
	}, Options{Format: "plain"})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if !strings.HasSuffix(lines[0], "\tnew") || !strings.HasSuffix(lines[1], "\told") {
		t.Errorf("unexpected order %q", lines)
	}
}

func TestWriteAnalyticsPlainSections(t *testing.T) {
	a := core.Analytics{
		TotalSongs: 10, TotalUsers: 3, TotalPlays: 40,
		TopSongs:       []core.Row{{"title": "Song", "artist_name": "Band", "plays": float64(7)}},
		TopUsers:       []core.TopUser{{Name: "ana", Plays: 20}},
		PlaybackTrends: []core.Row{{"day": "2026-01-01", "plays": float64(4)}, {"day": "2026-01-02", "plays": float64(2)}},
	}
	var buf bytes.Buffer
	if err := WriteAnalytics(&buf, a, Options{Format: "plain"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"totals\tplays\t40",
		"top_songs\t1\tBand – Song\t7",
		"top_users\tana\t20\t0\t0",
		"daily_plays\t2026-01-01\t4\t" + strings.Repeat("█", 20),
		"daily_plays\t2026-01-02\t2\t" + strings.Repeat("█", 10),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestWriteAnalyticsError(t *testing.T) {
	if err := WriteAnalytics(&bytes.Buffer{}, core.Analytics{Error: "No database"}, Options{}); err == nil {
		t.Error("expected error")
	}
}

func TestWriteSettingsSorted(t *testing.T) {
	var buf bytes.Buffer
	WriteSettings(&buf, map[string]any{
		"replay_cooldown":   float64(30),
		"discovery_weights": map[string]any{"similar": float64(1)},
		"pre_buffer":        true,
	}, Options{Format: "plain"})
	want := "discovery_weights\t{\"similar\":1}\npre_buffer\ttrue\nreplay_cooldown\t30\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}

func TestDurationAndUptime(t *testing.T) {
	cases := map[int]string{0: "00:00", 59: "00:59", 185: "03:05", 3725: "01:02:05"}
	for in, want := range cases {
		if got := Duration(in); got != want {
			t.Errorf("Duration(%d): expected %s, got %s", in, want, got)
		}
	}
	if got := Uptime(90061); got != "1d 1h" {
		t.Errorf("expected 1d 1h, got %s", got)
	}
	if got := Uptime(42); got != "42s" {
		t.Errorf("expected 42s, got %s", got)
	}
}

func TestBar(t *testing.T) {
	if Bar(0, 10, 5) != "" || Bar(1, 0, 5) != "" {
		t.Error("expected empty bars")
	}
	if got := Bar(0.1, 10, 5); got != "█" {
		t.Errorf("expected minimum one cell, got %q", got)
	}
}
