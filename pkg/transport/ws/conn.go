// Package ws is the client side of the bot's /ws/logs push channel.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/modoterra/jukedash/pkg/core"
)

// LogsPath is the push channel endpoint.
const LogsPath = "/ws/logs"

// maxFrame bounds a single log frame.
const maxFrame = 1 << 20

// LogsURL derives the push channel URL from the dashboard base URL,
// mapping http to ws and https to wss.
func LogsURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("server url %q: unsupported scheme %q", base, u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + LogsPath
	u.RawQuery = ""
	return u.String(), nil
}

// Options configures Dial.
type Options struct {
	HandshakeTimeout time.Duration
	UserAgent        string
}

// Conn is one open push channel.
type Conn struct {
	ws        *websocket.Conn
	logger    *slog.Logger
	closeOnce sync.Once
}

// Dial opens the push channel at wsURL.
func Dial(ctx context.Context, wsURL string, opts Options, logger *slog.Logger) (*Conn, error) {
	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	if d.HandshakeTimeout <= 0 {
		d.HandshakeTimeout = 5 * time.Second
	}
	var hdr http.Header
	if opts.UserAgent != "" {
		hdr = http.Header{"User-Agent": {opts.UserAgent}}
	}
	c, resp, err := d.DialContext(ctx, wsURL, hdr)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", wsURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	c.SetReadLimit(maxFrame)
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Conn{ws: c, logger: logger}, nil
}

// ReadLoop reads frames until the connection closes or ctx is cancelled,
// handing each decoded event to fn in arrival order. A frame that does not
// decode is logged and skipped. The returned error is nil when ctx ended
// the loop or the server closed normally.
func (c *Conn) ReadLoop(ctx context.Context, fn func(core.LogEvent)) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		ev, err := core.DecodeLogEvent(data)
		if err != nil {
			c.logger.Warn("dropping malformed log frame", "err", err, "bytes", len(data))
			continue
		}
		fn(ev)
	}
}

// Close sends a close frame and tears down the connection. Safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.ws.Close()
	})
	return err
}
