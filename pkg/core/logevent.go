package core

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// KeyMessagePrefix is how many characters of the message take part in an
// event's identity.
const KeyMessagePrefix = 50

// LogEvent is a single bot log record as delivered by /ws/logs or /api/logs.
type LogEvent struct {
	Timestamp float64 `json:"timestamp"` // unix seconds, fractional
	Level     string  `json:"level"`
	Message   string  `json:"message"`
	Logger    string  `json:"logger,omitempty"`
	GuildID   *int64  `json:"guild_id,omitempty"`
}

// EntryKey is the deduplication fingerprint of a LogEvent.
type EntryKey string

// Key derives the event identity: timestamp + level + the first
// KeyMessagePrefix characters of the message. Events that agree on these
// are duplicates even if the rest of the message differs.
func (e LogEvent) Key() EntryKey {
	msg := e.Message
	if r := []rune(msg); len(r) > KeyMessagePrefix {
		msg = string(r[:KeyMessagePrefix])
	}
	return EntryKey(strconv.FormatFloat(e.Timestamp, 'f', -1, 64) + e.Level + msg)
}

// Time converts the fractional unix timestamp.
func (e LogEvent) Time() time.Time {
	sec, frac := math.Modf(e.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Severity returns the normalised level.
func (e LogEvent) Severity() Level {
	return ParseLevel(e.Level)
}

// InScope reports whether the event belongs to the given scope. Events
// without a guild are visible everywhere.
func (e LogEvent) InScope(s Scope) bool {
	if s.IsGlobal() || e.GuildID == nil {
		return true
	}
	return strconv.FormatInt(*e.GuildID, 10) == string(s)
}

var errNotObject = errors.New("log frame is not a JSON object")

// DecodeLogEvent parses a single JSON-encoded event.
func DecodeLogEvent(b []byte) (LogEvent, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return LogEvent{}, errNotObject
	}
	var ev LogEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return LogEvent{}, fmt.Errorf("decode log event: %w", err)
	}
	return ev, nil
}

// UnmarshalJSON accepts guild_id as a number or a numeric string. Any other
// guild_id value leaves GuildID nil rather than rejecting the event.
func (e *LogEvent) UnmarshalJSON(b []byte) error {
	var wire struct {
		Timestamp float64         `json:"timestamp"`
		Level     string          `json:"level"`
		Message   string          `json:"message"`
		Logger    string          `json:"logger"`
		GuildID   json.RawMessage `json:"guild_id"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	*e = LogEvent{
		Timestamp: wire.Timestamp,
		Level:     wire.Level,
		Message:   wire.Message,
		Logger:    wire.Logger,
		GuildID:   parseGuildID(wire.GuildID),
	}
	return nil
}

func parseGuildID(raw json.RawMessage) *int64 {
	s := strings.Trim(string(bytes.TrimSpace(raw)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// Level is a normalised log severity.
type Level string

const (
	LevelDebug    Level = "debug"
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
	LevelUnknown  Level = "unknown"
)

// ParseLevel maps the server's level names (any case) to a Level.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug
	case "info", "information":
		return LevelInfo
	case "warn", "warning":
		return LevelWarning
	case "error", "err":
		return LevelError
	case "critical", "fatal", "crit":
		return LevelCritical
	default:
		return LevelUnknown
	}
}

// Short returns a fixed-width tag for terminal output.
func (l Level) Short() string {
	switch l {
	case LevelDebug:
		return "DBG"
	case LevelInfo:
		return "INF"
	case LevelWarning:
		return "WRN"
	case LevelError:
		return "ERR"
	case LevelCritical:
		return "CRT"
	default:
		return "???"
	}
}

// Origin identifies which transport delivered an event.
type Origin string

const (
	OriginPush Origin = "push"
	OriginPoll Origin = "poll"
)

// Delivery is a LogEvent tagged with the transport that carried it.
type Delivery struct {
	Event  LogEvent
	Origin Origin
}

// TransportState is the state of the push channel.
type TransportState int32

const (
	TransportConnecting TransportState = iota
	TransportOpen
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportConnecting:
		return "connecting"
	case TransportOpen:
		return "open"
	case TransportClosed:
		return "closed"
	default:
		return "unknown"
	}
}
