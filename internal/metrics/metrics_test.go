package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kamipay/pixrouter/internal/rules"
)

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.ObserveDecision(rules.Decision{Reason: rules.ReasonMatched}, time.Millisecond)
	r.ObserveCompile(nil, time.Millisecond)
	r.ObserveCacheLookup(CacheHit, time.Millisecond)
	r.ObserveCacheStore(CacheStored, time.Millisecond)
	r.DecisionHook()(rules.Decision{Reason: rules.ReasonDenied}, nil)

	if r.Gatherer() == nil {
		t.Error("nil recorder must still return a gatherer")
	}
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("nil handler status = %d, want 503", rec.Code)
	}
}

func TestObserveDecision(t *testing.T) {
	r := NewRecorder(nil)

	r.ObserveDecision(rules.Decision{Reason: rules.ReasonMatched, Route: "FIXED"}, time.Millisecond)
	r.ObserveDecision(rules.Decision{Reason: rules.ReasonMatched, Route: "FIXED"}, time.Millisecond)
	r.ObserveDecision(rules.Decision{Reason: rules.ReasonFallback}, time.Millisecond)

	if got := testutil.ToFloat64(r.decisions.WithLabelValues("matched", "FIXED")); got != 2 {
		t.Errorf("matched/FIXED = %v, want 2", got)
	}
	// Empty route labels normalize to "none".
	if got := testutil.ToFloat64(r.decisions.WithLabelValues("fallback", "none")); got != 1 {
		t.Errorf("fallback/none = %v, want 1", got)
	}
}

func TestDecisionHookCounts(t *testing.T) {
	r := NewRecorder(nil)
	hook := r.DecisionHook()

	hook(rules.Decision{Reason: rules.ReasonDenied, Route: "DENY"}, nil)
	hook(rules.Decision{Reason: rules.ReasonDenied, Route: "DENY"}, nil)

	if got := testutil.ToFloat64(r.decisions.WithLabelValues("denied", "DENY")); got != 2 {
		t.Errorf("denied/DENY = %v, want 2", got)
	}
}

func TestObserveCompile(t *testing.T) {
	r := NewRecorder(nil)

	r.ObserveCompile(nil, 5*time.Millisecond)
	r.ObserveCompile(errors.New("boom"), time.Millisecond)

	if got := testutil.ToFloat64(r.compiles.WithLabelValues("ok")); got != 1 {
		t.Errorf("compiles ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.compiles.WithLabelValues("error")); got != 1 {
		t.Errorf("compiles error = %v, want 1", got)
	}
}

func TestObserveCacheOperations(t *testing.T) {
	r := NewRecorder(nil)

	r.ObserveCacheLookup(CacheHit, time.Millisecond)
	r.ObserveCacheLookup(CacheMiss, time.Millisecond)
	r.ObserveCacheLookup(CacheMiss, time.Millisecond)
	r.ObserveCacheStore(CacheStored, time.Millisecond)

	if got := testutil.ToFloat64(r.cacheOperations.WithLabelValues("lookup", "hit")); got != 1 {
		t.Errorf("lookup/hit = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.cacheOperations.WithLabelValues("lookup", "miss")); got != 2 {
		t.Errorf("lookup/miss = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.cacheOperations.WithLabelValues("store", "stored")); got != 1 {
		t.Errorf("store/stored = %v, want 1", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())
	r.ObserveDecision(rules.Decision{Reason: rules.ReasonMatched, Route: "FIXED"}, time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "pixrouter_selector_decisions_total") {
		t.Errorf("exposition missing decision counter:\n%s", body)
	}
}
