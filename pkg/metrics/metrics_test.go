package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/modoterra/jukedash/pkg/core"
)

func TestPipelineCounters(t *testing.T) {
	p := NewPipeline()
	p.Delivered(core.OriginPush, false)
	p.Delivered(core.OriginPoll, true)
	p.Delivered(core.OriginPoll, false)
	p.Evicted()
	p.Buffered(2)
	p.StateChanged(core.TransportOpen)
	p.Reconnecting()
	p.PollFailed()
	p.SinkError("loki")

	if got := testutil.ToFloat64(p.deliveries.WithLabelValues("poll")); got != 2 {
		t.Errorf("expected 2 poll deliveries, got %v", got)
	}
	if got := testutil.ToFloat64(p.duplicates.WithLabelValues("poll")); got != 1 {
		t.Errorf("expected 1 poll duplicate, got %v", got)
	}
	if got := testutil.ToFloat64(p.accepted); got != 2 {
		t.Errorf("expected 2 accepted, got %v", got)
	}
	if got := testutil.ToFloat64(p.buffered); got != 2 {
		t.Errorf("expected buffered 2, got %v", got)
	}
	if got := testutil.ToFloat64(p.channelOpen); got != 1 {
		t.Errorf("expected channel open, got %v", got)
	}
	p.StateChanged(core.TransportClosed)
	if got := testutil.ToFloat64(p.channelOpen); got != 0 {
		t.Errorf("expected channel closed, got %v", got)
	}
	if got := testutil.ToFloat64(p.sinkErrors.WithLabelValues("loki")); got != 1 {
		t.Errorf("expected 1 sink error, got %v", got)
	}
}

func TestNilPipelineIsNoop(t *testing.T) {
	var p *Pipeline
	p.Delivered(core.OriginPush, true)
	p.Evicted()
	p.Buffered(1)
	p.StateChanged(core.TransportOpen)
	p.Reconnecting()
	p.PollFailed()
	p.SinkError("x")

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 {
		t.Errorf("expected healthz 200, got %d", rec.Code)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	p := NewPipeline()
	p.Reconnecting()
	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "jukedash_push_reconnects_total 1") {
		t.Errorf("expected reconnect counter in output:\n%s", body)
	}
}
