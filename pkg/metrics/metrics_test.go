package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRenderLifecycle(t *testing.T) {
	m := New(nil)

	finish := m.RenderStarted()
	if got := testutil.ToFloat64(m.inFlight); got != 1 {
		t.Fatalf("in flight = %v, want 1", got)
	}

	finish(OutcomeTypeset)
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("in flight after finish = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.renders.WithLabelValues(OutcomeTypeset)); got != 1 {
		t.Fatalf("renders_total{typeset} = %v, want 1", got)
	}
}

func TestCounters(t *testing.T) {
	size := 3
	m := New(func() int { return size })

	m.ObserveMessage("created", "math")
	m.ObserveRetraction()
	m.ObservePlatformError("delete_message")
	m.ObservePlatformError("delete_message")

	if got := testutil.ToFloat64(m.messages.WithLabelValues("created", "math")); got != 1 {
		t.Fatalf("messages_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.retractions); got != 1 {
		t.Fatalf("responses_retracted_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.platformErr.WithLabelValues("delete_message")); got != 2 {
		t.Fatalf("platform_errors_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.history); got != 3 {
		t.Fatalf("history_entries = %v, want 3", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	m.ObserveMessage("created", "plain")
	m.ObserveRetraction()
	m.ObservePlatformError("add_reaction")
	m.RenderStarted()(OutcomeRendered)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("nil handler status = %d, want 404", rec.Code)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New(nil)
	m.RenderStarted()(OutcomeRendered)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{`mathbot_renders_total{outcome="rendered"} 1`, "mathbot_render_duration_seconds_bucket", "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output missing %q", name)
		}
	}
}
