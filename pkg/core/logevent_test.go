package core

import (
	"strings"
	"testing"
)

func TestKey(t *testing.T) {
	ev := LogEvent{Timestamp: 1000, Level: "info", Message: "A"}
	if got := ev.Key(); got != "1000infoA" {
		t.Errorf("expected 1000infoA, got %s", got)
	}

	frac := LogEvent{Timestamp: 1700000000.123456, Level: "INFO", Message: "hello"}
	if got := frac.Key(); got != "1700000000.123456INFOhello" {
		t.Errorf("unexpected key for fractional timestamp: %s", got)
	}
}

func TestKeyMessagePrefix(t *testing.T) {
	prefix := strings.Repeat("x", KeyMessagePrefix)
	a := LogEvent{Timestamp: 5, Level: "error", Message: prefix + " first tail"}
	b := LogEvent{Timestamp: 5, Level: "error", Message: prefix + " a different tail"}
	if a.Key() != b.Key() {
		t.Error("events sharing the first 50 characters must collide")
	}

	c := LogEvent{Timestamp: 5, Level: "warning", Message: a.Message}
	if a.Key() == c.Key() {
		t.Error("level must take part in the key")
	}
	d := LogEvent{Timestamp: 6, Level: "error", Message: a.Message}
	if a.Key() == d.Key() {
		t.Error("timestamp must take part in the key")
	}
}

func TestKeyCountsRunes(t *testing.T) {
	msg := strings.Repeat("é", KeyMessagePrefix+5)
	ev := LogEvent{Timestamp: 1, Level: "info", Message: msg}
	want := "1info" + strings.Repeat("é", KeyMessagePrefix)
	if string(ev.Key()) != want {
		t.Errorf("multi-byte prefix cut wrong: got %q", ev.Key())
	}
}

func TestDecodeLogEvent(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    LogEvent
		wantErr bool
	}{
		{"basic", `{"timestamp":1000,"level":"info","message":"A"}`, LogEvent{Timestamp: 1000, Level: "info", Message: "A"}, false},
		{"extra fields", `{"timestamp":1.5,"level":"WARNING","message":"m","logger":"bot","guild_id":null}`, LogEvent{Timestamp: 1.5, Level: "WARNING", Message: "m", Logger: "bot"}, false},
		{"array", `[1,2]`, LogEvent{}, true},
		{"null", `null`, LogEvent{}, true},
		{"garbage", `{"timestamp":`, LogEvent{}, true},
		{"empty", ``, LogEvent{}, true},
		{"wrong type", `{"timestamp":"soon"}`, LogEvent{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeLogEvent([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Timestamp != tt.want.Timestamp || got.Level != tt.want.Level ||
				got.Message != tt.want.Message || got.Logger != tt.want.Logger {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeLogEventGuild(t *testing.T) {
	ev, err := DecodeLogEvent([]byte(`{"timestamp":1,"level":"info","message":"x","guild_id":123456789012345678}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.GuildID == nil || *ev.GuildID != 123456789012345678 {
		t.Fatalf("guild id not decoded: %v", ev.GuildID)
	}
	if !ev.InScope(Scope("123456789012345678")) {
		t.Error("event should be in its own guild scope")
	}
	if ev.InScope(Scope("42")) {
		t.Error("event should not be in another guild scope")
	}
	if !ev.InScope(GlobalScope) {
		t.Error("every event is in the global scope")
	}

	tests := []struct {
		name  string
		guild string
		want  int64
		isNil bool
	}{
		{"string", `"123456789012345678"`, 123456789012345678, false},
		{"null", `null`, 0, true},
		{"not numeric", `"lobby"`, 0, true},
		{"object", `{"id":1}`, 0, true},
		{"fraction", `1.5`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeLogEvent([]byte(`{"timestamp":2,"level":"warning","message":"y","guild_id":` + tt.guild + `}`))
			if err != nil {
				t.Fatalf("event dropped: %v", err)
			}
			if ev.Message != "y" || ev.Level != "warning" || ev.Timestamp != 2 {
				t.Errorf("fields lost: %+v", ev)
			}
			if tt.isNil {
				if ev.GuildID != nil {
					t.Errorf("guild id = %d, want none", *ev.GuildID)
				}
				if !ev.InScope(Scope("42")) {
					t.Error("event without a guild is visible in every scope")
				}
				return
			}
			if ev.GuildID == nil || *ev.GuildID != tt.want {
				t.Fatalf("guild id = %v, want %d", ev.GuildID, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"INFO":     LevelInfo,
		"warning":  LevelWarning,
		"WARN":     LevelWarning,
		"Error":    LevelError,
		"CRITICAL": LevelCritical,
		"DEBUG":    LevelDebug,
		"notice":   LevelUnknown,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTime(t *testing.T) {
	ev := LogEvent{Timestamp: 1700000000.5}
	got := ev.Time()
	if got.Unix() != 1700000000 || got.Nanosecond() != 500000000 {
		t.Errorf("unexpected time %v", got)
	}
}

func TestTransportStateString(t *testing.T) {
	if TransportOpen.String() != "open" || TransportClosed.String() != "closed" || TransportConnecting.String() != "connecting" {
		t.Error("unexpected transport state names")
	}
}
