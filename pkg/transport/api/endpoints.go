package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"

	"github.com/modoterra/jukedash/pkg/core"
)

// Logs fetches the server's recent log history. Elements that do not
// decode as a log event are dropped; the rest are returned in order.
func (c *Client) Logs(ctx context.Context) ([]core.LogEvent, error) {
	var resp struct {
		Logs []json.RawMessage `json:"logs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/logs", nil, nil, &resp); err != nil {
		return nil, err
	}
	events := make([]core.LogEvent, 0, len(resp.Logs))
	for i, raw := range resp.Logs {
		ev, err := core.DecodeLogEvent(raw)
		if err != nil {
			c.logger.Warn("dropping malformed log entry", "index", i, "err", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Status fetches the bot health snapshot.
func (c *Client) Status(ctx context.Context) (core.Status, error) {
	var s core.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &s)
	return s, err
}

// Guilds lists the servers the bot is in.
func (c *Client) Guilds(ctx context.Context) ([]core.Guild, error) {
	var resp struct {
		Guilds []core.Guild `json:"guilds"`
	}
	err := c.do(ctx, http.MethodGet, "/api/guilds", nil, nil, &resp)
	return resp.Guilds, err
}

// Guild fetches one server's detail.
func (c *Client) Guild(ctx context.Context, id string) (core.Guild, error) {
	var g core.Guild
	err := c.do(ctx, http.MethodGet, guildPath(id, ""), nil, nil, &g)
	return g, err
}

// GuildSettings fetches a server's settings map.
func (c *Client) GuildSettings(ctx context.Context, id string) (core.GuildSettings, error) {
	s := core.GuildSettings{}
	err := c.do(ctx, http.MethodGet, guildPath(id, "/settings"), nil, nil, &s)
	return s, err
}

// UpdateGuildSettings posts a settings patch.
func (c *Client) UpdateGuildSettings(ctx context.Context, id string, patch core.GuildSettingsPatch) error {
	return c.do(ctx, http.MethodPost, guildPath(id, "/settings"), nil, patch, nil)
}

// Control sends a playback control action to a server's player.
func (c *Client) Control(ctx context.Context, id string, action core.ControlAction) error {
	return c.do(ctx, http.MethodPost, guildPath(id, "/control/"+string(action)), nil, nil, nil)
}

// LeaveGuild makes the bot leave a server.
func (c *Client) LeaveGuild(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, guildPath(id, "/leave"), nil, nil, nil)
}

// DashboardInit fetches the consolidated first-load payload.
func (c *Client) DashboardInit(ctx context.Context) (core.DashboardInit, error) {
	var d core.DashboardInit
	err := c.do(ctx, http.MethodGet, "/api/dashboard-init", nil, nil, &d)
	return d, err
}

// Analytics fetches aggregates for a scope.
func (c *Client) Analytics(ctx context.Context, scope core.Scope) (core.Analytics, error) {
	var a core.Analytics
	err := c.do(ctx, http.MethodGet, "/api/analytics", scopeQuery(scope), nil, &a)
	return a, err
}

// Songs fetches recent playback history for a scope.
func (c *Client) Songs(ctx context.Context, scope core.Scope) ([]core.Song, error) {
	var resp struct {
		Songs []core.Song `json:"songs"`
	}
	err := c.do(ctx, http.MethodGet, "/api/songs", scopeQuery(scope), nil, &resp)
	return resp.Songs, err
}

// Library fetches the song library for a scope.
func (c *Client) Library(ctx context.Context, scope core.Scope) ([]core.Row, error) {
	var resp struct {
		Library []core.Row `json:"library"`
	}
	err := c.do(ctx, http.MethodGet, "/api/library", scopeQuery(scope), nil, &resp)
	return resp.Library, err
}

// Users fetches the listener ranking for a scope.
func (c *Client) Users(ctx context.Context, scope core.Scope) ([]core.Row, error) {
	var resp struct {
		Users []core.Row `json:"users"`
	}
	err := c.do(ctx, http.MethodGet, "/api/users", scopeQuery(scope), nil, &resp)
	return resp.Users, err
}

// UserPreferences fetches one user's stored preferences.
func (c *Client) UserPreferences(ctx context.Context, userID string) (core.Row, error) {
	prefs := core.Row{}
	err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID)+"/preferences", nil, nil, &prefs)
	return prefs, err
}

// GlobalSettings fetches bot-wide settings.
func (c *Client) GlobalSettings(ctx context.Context) (core.GlobalSettings, error) {
	s := core.GlobalSettings{}
	err := c.do(ctx, http.MethodGet, "/api/settings/global", nil, nil, &s)
	return s, err
}

// UpdateGlobalSettings posts changed bot-wide settings.
func (c *Client) UpdateGlobalSettings(ctx context.Context, s core.GlobalSettings) error {
	return c.do(ctx, http.MethodPost, "/api/settings/global", nil, s, nil)
}

// Notifications fetches recent system notifications.
func (c *Client) Notifications(ctx context.Context) ([]core.Notification, error) {
	var resp struct {
		Notifications []core.Notification `json:"notifications"`
	}
	err := c.do(ctx, http.MethodGet, "/api/notifications", nil, nil, &resp)
	return resp.Notifications, err
}

// Ping checks the dashboard is reachable and returns the round-trip time.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := c.Status(ctx); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}
