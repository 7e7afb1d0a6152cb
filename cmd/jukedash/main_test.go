package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/modoterra/jukedash/pkg/config"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

type recorder struct {
	mu   sync.Mutex
	hits []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.hits = append(r.hits, s)
	r.mu.Unlock()
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.hits...)
}

func fakeBot(t *testing.T) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"status": "online", "guilds": 2, "latency_ms": 42.0})
	})
	mux.HandleFunc("GET /api/guilds", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"guilds": []map[string]any{
			{"id": "111", "name": "Alpha", "is_playing": true, "current_song": "Song", "current_artist": "Band"},
			{"id": "222", "name": "Beta"},
		}})
	})
	mux.HandleFunc("POST /api/guilds/{id}/control/{action}", func(w http.ResponseWriter, r *http.Request) {
		rec.add("control " + r.PathValue("id") + " " + r.PathValue("action"))
		reply(w, map[string]any{"status": "ok"})
	})
	mux.HandleFunc("POST /api/guilds/{id}/settings", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.add("settings " + r.PathValue("id") + " " + strings.TrimSpace(string(body)))
		reply(w, map[string]any{"status": "ok"})
	})
	mux.HandleFunc("GET /api/logs", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"logs": []map[string]any{
			{"timestamp": 1700000000.5, "level": "INFO", "message": "bot ready"},
			{"timestamp": 1700000000.5, "level": "INFO", "message": "bot ready"},
			{"timestamp": 1700000001.0, "level": "ERROR", "message": "voice failed", "guild_id": 111},
		}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, rec
}

func noConfig(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.yaml")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "jukedash ") {
		t.Fatalf("got %q", out)
	}
}

func TestStatusPlain(t *testing.T) {
	srv, _ := fakeBot(t)
	out, err := execute(t, "status", "--config", noConfig(t), "--server", srv.URL, "--format", "plain")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "online") {
		t.Fatalf("status output missing state:\n%s", out)
	}
}

func TestGuildsJSON(t *testing.T) {
	srv, _ := fakeBot(t)
	out, err := execute(t, "guilds", "--config", noConfig(t), "--server", srv.URL, "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var got []map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid json %q: %v", out, err)
	}
	if len(got) != 2 || got[0]["name"] != "Alpha" {
		t.Fatalf("got %v", got)
	}
}

func TestControlByName(t *testing.T) {
	srv, rec := fakeBot(t)
	out, err := execute(t, "control", "alpha", "skip", "--config", noConfig(t), "--server", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if hits := rec.all(); len(hits) != 1 || hits[0] != "control 111 skip" {
		t.Fatalf("hits = %v", hits)
	}
	if !strings.Contains(out, "skip → alpha") {
		t.Fatalf("got %q", out)
	}
}

func TestControlRejectsUnknownAction(t *testing.T) {
	srv, rec := fakeBot(t)
	if _, err := execute(t, "control", "111", "rewind", "--config", noConfig(t), "--server", srv.URL); err == nil {
		t.Fatal("expected error")
	}
	if hits := rec.all(); len(hits) != 0 {
		t.Fatalf("no request expected, got %v", hits)
	}
}

func TestSettingsSetGuild(t *testing.T) {
	srv, rec := fakeBot(t)
	_, err := execute(t, "settings", "set", "buffer_amount=4", "pre_buffer=false",
		"--guild", "222", "--config", noConfig(t), "--server", srv.URL)
	guildFlag = ""
	if err != nil {
		t.Fatal(err)
	}
	hits := rec.all()
	if len(hits) != 1 {
		t.Fatalf("hits = %v", hits)
	}
	for _, want := range []string{"settings 222", `"buffer_amount":4`, `"pre_buffer":false`} {
		if !strings.Contains(hits[0], want) {
			t.Errorf("request %q missing %q", hits[0], want)
		}
	}
}

func TestLogsOnceDeduplicates(t *testing.T) {
	srv, _ := fakeBot(t)
	out, err := execute(t, "logs", "--once", "--config", noConfig(t), "--server", srv.URL)
	logsOnce = false
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(out, "bot ready"); n != 1 {
		t.Fatalf("duplicate printed %d times:\n%s", n, out)
	}
	if !strings.Contains(out, "voice failed") {
		t.Fatalf("missing second event:\n%s", out)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jukedash.yaml")
	if _, err := execute(t, "config", "init", "--output", path, "--server", "http://bot.local:9000"); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server != "http://bot.local:9000" {
		t.Fatalf("server = %q", cfg.Server)
	}

	if _, err := execute(t, "config", "init", "--output", path, "--server", ""); err == nil {
		t.Fatal("init should refuse to overwrite")
	}

	out, err := execute(t, "config", "validate", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "valid") {
		t.Fatalf("got %q", out)
	}
}

func TestConfigValidateInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	content := []byte("version: 1\nserver: ftp://nope\nlogs:\n  buffer_size: 0\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "config", "validate", path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestParsePairs(t *testing.T) {
	got, err := parsePairs([]string{"test_mode=true", "max_concurrent_servers=5", "label=hello world", `w={"a":1}`})
	if err != nil {
		t.Fatal(err)
	}
	if got["test_mode"] != true || got["max_concurrent_servers"] != float64(5) || got["label"] != "hello world" {
		t.Fatalf("got %#v", got)
	}
	if _, ok := got["w"].(map[string]any); !ok {
		t.Fatalf("w = %#v", got["w"])
	}
	if _, err := parsePairs([]string{"novalue"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestGuildPatchValidation(t *testing.T) {
	if _, err := guildPatch(map[string]any{"buffer_amount": 2.5}); err == nil {
		t.Error("fractional value accepted")
	}
	if _, err := guildPatch(map[string]any{"pre_buffer": "yes"}); err == nil {
		t.Error("string bool accepted")
	}
	if _, err := guildPatch(map[string]any{"volume": float64(3)}); err == nil {
		t.Error("unknown key accepted")
	}
	p, err := guildPatch(map[string]any{"replay_cooldown": float64(60)})
	if err != nil || p.ReplayCooldown == nil || *p.ReplayCooldown != 60 {
		t.Fatalf("patch=%+v err=%v", p, err)
	}
}
