package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTransform(t *testing.T) {
	m := New()
	m.ObserveTransform(time.Now(), nil)
	m.ObserveTransform(time.Now(), nil)
	m.ObserveTransform(time.Now(), errors.New("bad markup"))

	if got := testutil.ToFloat64(m.transforms.WithLabelValues(OutcomeOK)); got != 2 {
		t.Fatalf("expected 2 ok transforms, got %v", got)
	}
	if got := testutil.ToFloat64(m.transforms.WithLabelValues(OutcomeError)); got != 1 {
		t.Fatalf("expected 1 failed transform, got %v", got)
	}
}

func TestObserveRefresh_KeepsSizeOnError(t *testing.T) {
	m := New()
	m.ObserveRefresh(7, nil)
	m.ObserveRefresh(0, errors.New("fetch failed"))

	if got := testutil.ToFloat64(m.catalogEvents); got != 7 {
		t.Fatalf("expected catalog size 7, got %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveTransform(time.Now(), nil)
	m.ObserveRefresh(1, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404 from nil metrics, got %d", rec.Code)
	}
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.ObserveTransform(time.Now(), nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `eventfed_transforms_total{outcome="ok"} 1`) {
		t.Fatalf("expected counter in exposition, got %s", rec.Body.String())
	}
}
