package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Status is the bot health snapshot served by /api/status.
type Status struct {
	Status           string  `json:"status"`
	Guilds           int     `json:"guilds"`
	VoiceConnections int     `json:"voice_connections"`
	LatencyMs        float64 `json:"latency_ms"`
	CPUPercent       float64 `json:"cpu_percent"`
	RAMPercent       float64 `json:"ram_percent"`
	ProcessRAMMB     float64 `json:"process_ram_mb"`
	UptimeSeconds    int64   `json:"uptime_seconds"`
}

// Guild is one Discord server the bot is in, with its player state.
type Guild struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	MemberCount     int     `json:"member_count"`
	IsPlaying       bool    `json:"is_playing"`
	QueueSize       int     `json:"queue_size"`
	QueueDuration   float64 `json:"queue_duration"` // minutes
	CurrentSong     string  `json:"current_song,omitempty"`
	CurrentArtist   string  `json:"current_artist,omitempty"`
	VideoID         string  `json:"video_id,omitempty"`
	DiscoveryReason string  `json:"discovery_reason,omitempty"`
	DurationSeconds int     `json:"duration_seconds,omitempty"`
	Genre           string  `json:"genre,omitempty"`
	Year            any     `json:"year,omitempty"`
	ForUser         string  `json:"for_user,omitempty"`
}

// Scope returns the guild as a dashboard scope.
func (g Guild) Scope() Scope { return Scope(g.ID) }

// NowPlaying formats the current track, or "" when idle.
func (g Guild) NowPlaying() string {
	if g.CurrentSong == "" {
		return ""
	}
	if g.CurrentArtist == "" {
		return g.CurrentSong
	}
	return g.CurrentArtist + " – " + g.CurrentSong
}

// Row is a loosely-typed record for payloads whose columns vary by query.
type Row map[string]any

// Str returns the first non-empty string-ish value among keys.
func (r Row) Str(keys ...string) string {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(t)
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// Num returns the first numeric value among keys.
func (r Row) Num(keys ...string) (float64, bool) {
	for _, k := range keys {
		switch t := r[k].(type) {
		case float64:
			return t, true
		case int:
			return float64(t), true
		case int64:
			return float64(t), true
		case string:
			if f, err := strconv.ParseFloat(t, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// TopUser is a ranked listener in analytics.
type TopUser struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Plays             int    `json:"plays"`
	TotalLikes        int    `json:"total_likes"`
	PlaylistsImported int    `json:"playlists_imported"`
}

// Analytics is the aggregate served by /api/analytics for a scope.
type Analytics struct {
	TotalSongs       int       `json:"total_songs"`
	TotalUsers       int       `json:"total_users"`
	TotalPlays       int       `json:"total_plays"`
	PlaybackTrends   []Row     `json:"playback_trends"`
	PeakHours        []Row     `json:"peak_hours"`
	TopSongs         []Row     `json:"top_songs"`
	TopUsers         []TopUser `json:"top_users"`
	TopLikedSongs    []Row     `json:"top_liked_songs"`
	TopLikedArtists  []Row     `json:"top_liked_artists"`
	TopLikedGenres   []Row     `json:"top_liked_genres"`
	TopPlayedArtists []Row     `json:"top_played_artists"`
	TopPlayedGenres  []Row     `json:"top_played_genres"`
	TopUsefulUsers   []Row     `json:"top_useful_users"`
	Error            string    `json:"error,omitempty"`
}

// Song is one playback history row from /api/songs.
type Song struct {
	PlayedAt        string `json:"played_at"`
	Title           string `json:"title"`
	ArtistName      string `json:"artist_name"`
	DurationSeconds int    `json:"duration_seconds"`
	Genre           string `json:"genre"`
	RequestedBy     string `json:"requested_by"`
	LikedBy         string `json:"liked_by"`
	DislikedBy      string `json:"disliked_by"`
}

// Notification is a system notice from /api/notifications.
type Notification struct {
	ID        int64   `json:"id"`
	Level     string  `json:"level"`
	Message   string  `json:"message"`
	CreatedAt float64 `json:"created_at"`
}

// GuildSettings is the raw per-guild settings map.
type GuildSettings map[string]any

// GuildSettingsPatch carries the settings the dashboard may change.
type GuildSettingsPatch struct {
	PreBuffer         *bool `json:"pre_buffer,omitempty"`
	BufferAmount      *int  `json:"buffer_amount,omitempty"`
	ReplayCooldown    *int  `json:"replay_cooldown,omitempty"`
	MaxSongDuration   *int  `json:"max_song_duration,omitempty"`
	EphemeralDuration *int  `json:"ephemeral_duration,omitempty"`
	DiscoveryWeights  any   `json:"discovery_weights,omitempty"`
	MetadataConfig    any   `json:"metadata_config,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p GuildSettingsPatch) Empty() bool {
	return p.PreBuffer == nil && p.BufferAmount == nil && p.ReplayCooldown == nil &&
		p.MaxSongDuration == nil && p.EphemeralDuration == nil &&
		p.DiscoveryWeights == nil && p.MetadataConfig == nil
}

// GlobalSettings is the bot-wide settings map.
type GlobalSettings map[string]any

// DashboardInit is the consolidated first-load payload.
type DashboardInit struct {
	Status        Status         `json:"status"`
	Guilds        []Guild        `json:"guilds"`
	Analytics     Analytics      `json:"analytics"`
	Notifications []Notification `json:"notifications"`
}

// ControlAction is a playback control verb.
type ControlAction string

const (
	ActionPause ControlAction = "pause"
	ActionSkip  ControlAction = "skip"
	ActionStop  ControlAction = "stop"
)

// ParseControlAction validates a control verb.
func ParseControlAction(s string) (ControlAction, error) {
	switch a := ControlAction(strings.ToLower(s)); a {
	case ActionPause, ActionSkip, ActionStop:
		return a, nil
	default:
		return "", fmt.Errorf("unknown control action %q (want pause, skip or stop)", s)
	}
}
