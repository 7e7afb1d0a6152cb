package sink

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/modoterra/jukedash/pkg/core"
	"github.com/modoterra/jukedash/pkg/logpipe"
)

// LokiConfig configures the Loki push sink.
type LokiConfig struct {
	URL       string
	TenantID  string
	Job       string
	UserAgent string
	Timeout   time.Duration
}

// Loki pushes entries to a Loki push API, one stream per level.
type Loki struct {
	cfg    LokiConfig
	client *http.Client
}

func NewLoki(cfg LokiConfig) *Loki {
	to := cfg.Timeout
	if to == 0 {
		to = 10 * time.Second
	}
	if cfg.Job == "" {
		cfg.Job = "jukedash"
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &Loki{cfg: cfg, client: &http.Client{Timeout: to, Transport: tr}}
}

func (l *Loki) Name() string { return "loki" }

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

type lokiPush struct {
	Streams []lokiStream `json:"streams"`
}

func (l *Loki) payload(entries []logpipe.Entry) (lokiPush, error) {
	byLevel := map[core.Level]int{}
	var p lokiPush
	for _, e := range entries {
		line, err := json.Marshal(NewRecord(e))
		if err != nil {
			return lokiPush{}, err
		}
		lvl := e.Event.Severity()
		i, ok := byLevel[lvl]
		if !ok {
			i = len(p.Streams)
			byLevel[lvl] = i
			p.Streams = append(p.Streams, lokiStream{
				Stream: map[string]string{"job": l.cfg.Job, "level": string(lvl)},
			})
		}
		// Loki expects ns timestamp as a decimal string
		ts := strconv.FormatInt(e.Event.Time().UnixNano(), 10)
		p.Streams[i].Values = append(p.Streams[i].Values, [2]string{ts, string(line)})
	}
	return p, nil
}

func (l *Loki) Write(ctx context.Context, entries []logpipe.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	p, err := l.payload(entries)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.URL+"/loki/api/v1/push", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if l.cfg.TenantID != "" {
		req.Header.Set("X-Scope-OrgID", l.cfg.TenantID)
	}
	if ua := l.cfg.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("loki push failed http %d", resp.StatusCode)
	}
	return nil
}

func (l *Loki) Close(ctx context.Context) error { return nil }
