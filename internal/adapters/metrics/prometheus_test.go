package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCounters(t *testing.T) {
	// Two collectors must not collide on registration.
	_ = NewCollector("test")
	c := NewCollector("test")

	c.IncOperationCount("insert_many", true)
	c.IncOperationCount("insert_many", true)
	c.IncOperationCount("insert_many", false)
	c.AddRecordsWritten("point_layer", 3)
	c.AddRecordsRead("point_layer", 2)
	c.SetPackagesLoaded(4)
	c.IncStorageOperations("upload", true)
	c.ObserveOperationDuration("insert_many", 10*time.Millisecond)
	c.ObserveStorageDuration("upload", time.Second)

	if got := testutil.ToFloat64(c.operationCounter.WithLabelValues("insert_many", "success")); got != 2 {
		t.Errorf("operations success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.operationCounter.WithLabelValues("insert_many", "error")); got != 1 {
		t.Errorf("operations error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.recordsWritten.WithLabelValues("point_layer")); got != 3 {
		t.Errorf("records written = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.recordsRead.WithLabelValues("point_layer")); got != 2 {
		t.Errorf("records read = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.packagesLoaded); got != 4 {
		t.Errorf("packages loaded = %v, want 4", got)
	}
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector("gpkg")
	c.AddRecordsWritten("roads", 1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `gpkg_records_written_total{layer="roads"} 1`) {
		t.Errorf("metrics output missing records_written_total:\n%s", rec.Body.String())
	}
}

func TestMiddleware(t *testing.T) {
	c := NewCollector("gpkg")
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/packages/demo/layers/roads/records", nil))

	got := testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/packages/{id}/layers/{layer}/records", "4xx"))
	if got != 1 {
		t.Errorf("http_requests_total = %v, want 1", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/api/v1/packages", "/api/v1/packages"},
		{"/api/v1/packages/demo", "/api/v1/packages/{id}"},
		{"/api/v1/packages/demo/layers", "/api/v1/packages/{id}/layers"},
		{"/api/v1/packages/demo/layers/roads", "/api/v1/packages/{id}/layers/{layer}"},
		{"/api/v1/packages/demo/layers/roads/records", "/api/v1/packages/{id}/layers/{layer}/records"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestStatusToString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{304, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
		{100, "unknown"},
	}
	for _, tt := range tests {
		if got := statusToString(tt.code); got != tt.want {
			t.Errorf("statusToString(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
