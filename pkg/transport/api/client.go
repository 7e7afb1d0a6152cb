// Package api is the HTTP client for the bot's dashboard API.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/modoterra/jukedash/pkg/core"
)

// maxBody caps how much of a response is read.
const maxBody = 16 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string // the server's "error" field, or the raw body
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client talks to one bot dashboard.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
	logger    *slog.Logger
}

// Options configures a Client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	// HTTPClient overrides the default transport, mainly for tests.
	HTTPClient *http.Client
}

// New creates a client for the dashboard at baseURL.
func New(baseURL string, opts Options, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = NewHTTPClient(opts.Timeout)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{base: u, http: hc, userAgent: opts.UserAgent, logger: logger}, nil
}

// NewHTTPClient returns a pooled client with conservative dial timeouts.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

func (c *Client) url(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path, q), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

// maxErrorBody caps how many characters of a non-JSON error body are kept.
const maxErrorBody = 200

func statusError(method, path string, code int, raw []byte) *StatusError {
	se := &StatusError{Method: method, Path: path, Code: code}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		se.Message = payload.Error
	} else {
		se.Message = strings.TrimSpace(string(raw))
		if r := []rune(se.Message); len(r) > maxErrorBody {
			se.Message = string(r[:maxErrorBody])
		}
	}
	return se
}

func scopeQuery(scope core.Scope) url.Values {
	if scope.IsGlobal() {
		return nil
	}
	return url.Values{"guild_id": {string(scope)}}
}

func guildPath(id string, rest string) string {
	return "/api/guilds/" + url.PathEscape(id) + rest
}
