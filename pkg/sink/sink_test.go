package sink

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/coreos/go-systemd/v22/journal"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/modoterra/jukedash/pkg/core"
	"github.com/modoterra/jukedash/pkg/logpipe"
)

func entry(seq uint64, ts float64, level, msg string) logpipe.Entry {
	ev := core.LogEvent{Timestamp: ts, Level: level, Message: msg, Logger: "bot.music"}
	return logpipe.Entry{Seq: seq, Key: ev.Key(), Event: ev, Origin: core.OriginPush}
}

func TestNewRecord(t *testing.T) {
	gid := int64(42)
	e := entry(7, 1700000000.5, "WARNING", "slow")
	e.Event.GuildID = &gid
	r := NewRecord(e)
	if r.GuildID != "42" || r.Seq != 7 || r.Origin != "push" {
		t.Errorf("unexpected record %+v", r)
	}
	if r.Time != "2023-11-14T22:13:20.5Z" {
		t.Errorf("unexpected time %q", r.Time)
	}
}

func TestConsoleNoColorForBuffers(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	gid := int64(9)
	e := entry(1, 0, "ERROR", "boom")
	e.Event.GuildID = &gid
	if err := c.Write(context.Background(), []logpipe.Entry{e}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Errorf("expected no escape codes, got %q", out)
	}
	if !strings.HasSuffix(out, " ERR [9] bot.music: boom\n") {
		t.Errorf("unexpected line %q", out)
	}
}

func readJSONL(t *testing.T, r io.Reader) []Record {
	t.Helper()
	var out []Record
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

func TestFileSinkPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.jsonl")
	s, err := NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	s.Write(ctx, []logpipe.Entry{entry(1, 1, "INFO", "a"), entry(2, 2, "INFO", "b")})
	s.Write(ctx, []logpipe.Entry{entry(3, 3, "INFO", "c")})

	// flushed per write, readable before close
	data, _ := os.ReadFile(path)
	if recs := readJSONL(t, bytes.NewReader(data)); len(recs) != 3 || recs[2].Message != "c" {
		t.Fatalf("unexpected records before close: %+v", recs)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, []logpipe.Entry{entry(4, 4, "INFO", "d")}); err == nil {
		t.Error("expected write after close to fail")
	}
}

func TestFileSinkGzipAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.jsonl.gz")
	ctx := context.Background()
	for i, msg := range []string{"first", "second"} {
		s, err := NewFile(path)
		if err != nil {
			t.Fatal(err)
		}
		s.Write(ctx, []logpipe.Entry{entry(uint64(i+1), float64(i), "INFO", msg)})
		if err := s.Close(ctx); err != nil {
			t.Fatal(err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	recs := readJSONL(t, zr)
	if len(recs) != 2 || recs[0].Message != "first" || recs[1].Message != "second" {
		t.Errorf("expected both gzip members, got %+v", recs)
	}
}

func TestJournaldFieldsAndPriority(t *testing.T) {
	type sent struct {
		msg  string
		pri  journal.Priority
		vars map[string]string
	}
	var got []sent
	j := &Journald{identifier: "jukedash", send: func(msg string, pri journal.Priority, vars map[string]string) error {
		got = append(got, sent{msg, pri, vars})
		return nil
	}}
	gid := int64(5)
	e := entry(1, 10, "CRITICAL", "down")
	e.Event.GuildID = &gid
	if err := j.Write(context.Background(), []logpipe.Entry{e, entry(2, 11, "DEBUG", "tick")}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(got))
	}
	if got[0].pri != journal.PriCrit || got[1].pri != journal.PriDebug {
		t.Errorf("unexpected priorities %v %v", got[0].pri, got[1].pri)
	}
	if got[0].vars["BOT_GUILD_ID"] != "5" || got[0].vars["SYSLOG_IDENTIFIER"] != "jukedash" {
		t.Errorf("unexpected fields %v", got[0].vars)
	}
	if Priority(core.LevelUnknown) != journal.PriNotice {
		t.Error("expected unknown levels at notice")
	}
}

func TestLokiPush(t *testing.T) {
	var body lokiPush
	var tenant string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		tenant = r.Header.Get("X-Scope-OrgID")
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	l := NewLoki(LokiConfig{URL: srv.URL + "/", TenantID: "team"})
	err := l.Write(context.Background(), []logpipe.Entry{
		entry(1, 1, "INFO", "a"),
		entry(2, 2, "ERROR", "b"),
		entry(3, 3, "info", "c"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if tenant != "team" {
		t.Errorf("expected tenant header, got %q", tenant)
	}
	if len(body.Streams) != 2 {
		t.Fatalf("expected 2 streams (info, error), got %d", len(body.Streams))
	}
	info := body.Streams[0]
	if info.Stream["level"] != "info" || info.Stream["job"] != "jukedash" || len(info.Values) != 2 {
		t.Errorf("unexpected info stream %+v", info)
	}
	if info.Values[0][0] != "1000000000" {
		t.Errorf("expected ns timestamp, got %s", info.Values[0][0])
	}
}

func TestLokiErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	l := NewLoki(LokiConfig{URL: srv.URL})
	if err := l.Write(context.Background(), []logpipe.Entry{entry(1, 1, "INFO", "a")}); err == nil {
		t.Fatal("expected error for 429")
	}
}

type fakePutter struct {
	mu   sync.Mutex
	fail int
	puts []*s3.PutObjectInput
	body [][]byte
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return nil, errors.New("throttled")
	}
	data, _ := io.ReadAll(in.Body)
	f.puts = append(f.puts, in)
	f.body = append(f.body, data)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakePutter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func TestS3BatchesAndClose(t *testing.T) {
	p := &fakePutter{}
	s := NewS3(p, S3Config{Bucket: "logs", Prefix: "bot/", BatchSize: 2}, nil)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	ctx := context.Background()

	s.Write(ctx, []logpipe.Entry{entry(1, 1, "INFO", "a")})
	if p.count() != 0 {
		t.Fatal("expected no upload before batch fills")
	}
	s.Write(ctx, []logpipe.Entry{entry(2, 2, "INFO", "b")})
	waitFor(t, "upload on full batch", func() bool { return p.count() == 1 && s.Pending() == 0 })
	s.Write(ctx, []logpipe.Entry{entry(3, 3, "INFO", "c")})
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if p.count() != 2 {
		t.Fatalf("expected final upload on close, got %d", p.count())
	}

	key := *p.puts[0].Key
	if !strings.HasPrefix(key, "bot/2026/01/02/030405-") || !strings.HasSuffix(key, ".jsonl.gz") {
		t.Errorf("unexpected key %q", key)
	}
	if *p.puts[0].Bucket != "logs" {
		t.Errorf("unexpected bucket %q", *p.puts[0].Bucket)
	}
	zr, err := gzip.NewReader(bytes.NewReader(p.body[0]))
	if err != nil {
		t.Fatal(err)
	}
	if recs := readJSONL(t, zr); len(recs) != 2 || recs[1].Message != "b" {
		t.Errorf("unexpected archived records %+v", recs)
	}
}

func TestS3RetriesThenRequeues(t *testing.T) {
	p := &fakePutter{fail: 2}
	s := NewS3(p, S3Config{Bucket: "logs", BatchSize: 10}, nil)
	defer s.Close(context.Background())
	ctx := context.Background()

	s.Write(ctx, []logpipe.Entry{entry(1, 1, "INFO", "a")})
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if p.count() != 1 {
		t.Fatalf("expected 1 upload, got %d", p.count())
	}

	p.mu.Lock()
	p.fail = 3
	p.mu.Unlock()
	s.Write(ctx, []logpipe.Entry{entry(2, 2, "INFO", "b")})
	if err := s.Flush(ctx); err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if s.Pending() != 1 {
		t.Errorf("expected failed batch requeued, got %d pending", s.Pending())
	}
}

// hangingPutter blocks every upload until its context expires.
type hangingPutter struct {
	mu    sync.Mutex
	calls int
}

func (h *hangingPutter) PutObject(ctx context.Context, _ *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (h *hangingPutter) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func TestS3WriteDoesNotWaitForUpload(t *testing.T) {
	h := &hangingPutter{}
	s := NewS3(h, S3Config{Bucket: "logs", BatchSize: 1, Timeout: 200 * time.Millisecond}, nil)
	ctx := context.Background()

	for i := range 3 {
		start := time.Now()
		if err := s.Write(ctx, []logpipe.Entry{entry(uint64(i+1), float64(i+1), "INFO", "x")}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if d := time.Since(start); d > 100*time.Millisecond {
			t.Fatalf("write %d blocked for %v", i, d)
		}
	}
	waitFor(t, "background upload attempt", func() bool { return h.count() > 0 })

	closeCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := s.Close(closeCtx); err == nil {
		t.Fatal("expected close to report the stuck upload")
	}
	if got := s.Pending(); got != 3 {
		t.Errorf("expected all entries kept for retry, got %d pending", got)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type stubSink struct {
	name   string
	err    error
	mu     sync.Mutex
	writes int
}

func (s *stubSink) Name() string { return s.name }
func (s *stubSink) Write(ctx context.Context, entries []logpipe.Entry) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return s.err
}
func (s *stubSink) Close(ctx context.Context) error { return nil }

func TestFanoutJoinsErrors(t *testing.T) {
	good := &stubSink{name: "good"}
	bad := &stubSink{name: "bad", err: errors.New("down")}
	var failed []string
	var mu sync.Mutex
	f := NewFanout(func(name string, err error) {
		mu.Lock()
		failed = append(failed, name)
		mu.Unlock()
	}, good, bad)

	err := f.Write(context.Background(), []logpipe.Entry{entry(1, 1, "INFO", "a")})
	if err == nil || !errors.Is(err, bad.err) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad: down") {
		t.Errorf("expected sink name in error, got %v", err)
	}
	if good.writes != 1 || bad.writes != 1 {
		t.Error("expected every sink written")
	}
	if len(failed) != 1 || failed[0] != "bad" {
		t.Errorf("expected onError for bad, got %v", failed)
	}
	if f.Write(context.Background(), nil) != nil || good.writes != 1 {
		t.Error("empty write should be a no-op")
	}
	if got := strings.Join(f.Names(), ","); got != "good,bad" {
		t.Errorf("unexpected names %q", got)
	}
}
