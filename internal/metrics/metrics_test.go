package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/keithlinneman/respack/internal/version"
)

// gather returns the metric family called name, or nil.
func gather(t *testing.T, m *ServerMetrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

// valueOf reads a single counter or gauge.
func valueOf(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		t.Fatalf("Write: %v", err)
	}
	switch {
	case pb.Counter != nil:
		return pb.Counter.GetValue()
	case pb.Gauge != nil:
		return pb.Gauge.GetValue()
	}
	t.Fatalf("metric is neither counter nor gauge: %v", &pb)
	return 0
}

func labelsOf(m *dto.Metric) map[string]string {
	out := make(map[string]string)
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestNew_ScrapeServesStandardCollectors(t *testing.T) {
	m := New()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"go_goroutines", "http_inflight_requests", "respack_watcher_polls_total", "profiling_active"} {
		if !strings.Contains(body, name) {
			t.Errorf("metric %q not found in /metrics output", name)
		}
	}
}

func TestSetBuildInfo(t *testing.T) {
	m := New()
	dirty := false
	m.SetBuildInfo(version.Info{App: "respack", Version: "1.0.0", Commit: "abc", GoVersion: "go1.24", VCSDirty: &dirty})

	f := gather(t, m, "build_info")
	if f == nil || len(f.GetMetric()) != 1 {
		t.Fatalf("build_info = %v", f)
	}
	got := labelsOf(f.GetMetric()[0])
	if got["app"] != "respack" || got["version"] != "1.0.0" || got["vcs_dirty"] != "false" {
		t.Fatalf("labels = %v", got)
	}

	m2 := New()
	m2.SetBuildInfo(version.Info{App: "respack"})
	if got := labelsOf(gather(t, m2, "build_info").GetMetric()[0]); got["vcs_dirty"] != "unknown" {
		t.Fatalf("vcs_dirty = %q, want unknown", got["vcs_dirty"])
	}
}

func TestSetPack_ReplacesPrevious(t *testing.T) {
	m := New()
	now := time.Unix(1_700_000_000, 0)
	m.SetPack("site-v1", "aaa", 3, 1, now)
	m.SetPack("site-v2", "bbb", 5, 2, now.Add(time.Minute))

	f := gather(t, m, "respack_pack_info")
	if len(f.GetMetric()) != 1 {
		t.Fatalf("pack_info series = %d, want 1", len(f.GetMetric()))
	}
	if got := labelsOf(f.GetMetric()[0]); got["name"] != "site-v2" || got["sha256"] != "bbb" {
		t.Fatalf("labels = %v", got)
	}
	if v := valueOf(t, m.packEntries.WithLabelValues("file")); v != 5 {
		t.Fatalf("file entries = %v, want 5", v)
	}
	if v := valueOf(t, m.packLoadedTs); v != float64(now.Add(time.Minute).Unix()) {
		t.Fatalf("loaded ts = %v", v)
	}
}

func TestObserveStoreOp(t *testing.T) {
	m := New()
	m.ObserveStoreOp("push", 10*time.Millisecond, nil)
	m.ObserveStoreOp("push", 20*time.Millisecond, errors.New("boom"))
	m.ObserveStoreOp("pull", time.Millisecond, nil)

	if v := valueOf(t, m.storeOps.WithLabelValues("push", "ok")); v != 1 {
		t.Fatalf("push ok = %v", v)
	}
	if v := valueOf(t, m.storeOps.WithLabelValues("push", "error")); v != 1 {
		t.Fatalf("push error = %v", v)
	}
	if n := len(gather(t, m, "respack_store_operation_duration_seconds").GetMetric()); n != 2 {
		t.Fatalf("duration series = %d, want 2", n)
	}
}

func TestWatcherAndFlags(t *testing.T) {
	m := New()
	m.IncWatcherPolls()
	m.IncWatcherPolls()
	m.IncWatcherSwaps()
	m.IncWatcherError("pointer")
	m.SetWatcherStale(true)
	m.SetProfilingActive(true)
	m.IncRateLimited()
	m.IncHTTPPanic()

	checks := map[string]float64{
		"polls":   valueOf(t, m.watcherPolls),
		"swaps":   valueOf(t, m.watcherSwaps),
		"errors":  valueOf(t, m.watcherErrors.WithLabelValues("pointer")),
		"stale":   valueOf(t, m.watcherStale),
		"prof":    valueOf(t, m.profilingActive),
		"limited": valueOf(t, m.rateLimited),
		"panics":  valueOf(t, m.httpPanicTotal),
	}
	want := map[string]float64{"polls": 2, "swaps": 1, "errors": 1, "stale": 1, "prof": 1, "limited": 1, "panics": 1}
	for k, v := range want {
		if checks[k] != v {
			t.Errorf("%s = %v, want %v", k, checks[k], v)
		}
	}

	m.SetWatcherStale(false)
	if valueOf(t, m.watcherStale) != 0 {
		t.Fatal("stale should reset to 0")
	}
}
