package http

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jobrunner/gpkgkit/internal/config"
	"github.com/jobrunner/gpkgkit/internal/domain"
	"github.com/jobrunner/gpkgkit/internal/geom"
	"github.com/jobrunner/gpkgkit/internal/ports/input"
)

// mockBrowser implements input.PackageBrowser for testing.
type mockBrowser struct {
	packages  []domain.GeoPackage
	records   []domain.Record
	recordErr error
	lastLimit int
}

func (m *mockBrowser) ListPackages(_ context.Context) ([]domain.GeoPackage, error) {
	return m.packages, nil
}

func (m *mockBrowser) GetPackage(_ context.Context, id string) (*domain.GeoPackage, error) {
	for i := range m.packages {
		if m.packages[i].ID == id {
			return &m.packages[i], nil
		}
	}
	return nil, domain.ErrPackageNotFound
}

func (m *mockBrowser) GetLayer(ctx context.Context, packageID, layer string) (*domain.Layer, error) {
	pkg, err := m.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	l, ok := pkg.GetLayer(layer)
	if !ok {
		return nil, domain.UnknownLayer(layer)
	}
	return l, nil
}

func (m *mockBrowser) DescribeLayer(ctx context.Context, packageID, layer string) (domain.TypeDescriptor, error) {
	if _, err := m.GetLayer(ctx, packageID, layer); err != nil {
		return domain.TypeDescriptor{}, err
	}
	return domain.NewTypeDescriptor(layer,
		domain.TextField("name"),
		domain.GeometryField("geom", geom.Subtype{Type: geom.TypePoint, Dims: geom.XY}).AsNullable(),
	), nil
}

func (m *mockBrowser) Records(_ context.Context, _, _ string, limit int) iter.Seq2[domain.Record, error] {
	m.lastLimit = limit
	return func(yield func(domain.Record, error) bool) {
		for _, rec := range m.records {
			if !yield(rec, nil) {
				return
			}
		}
		if m.recordErr != nil {
			yield(nil, m.recordErr)
		}
	}
}

// mockHealth implements input.HealthChecker for testing.
type mockHealth struct {
	healthy bool
	ready   bool
}

func (m *mockHealth) IsHealthy(_ context.Context) bool { return m.healthy }

func (m *mockHealth) IsReady(_ context.Context) bool { return m.ready }

func (m *mockHealth) GetHealthDetails(_ context.Context) input.HealthDetails {
	return input.HealthDetails{
		Healthy:        m.healthy,
		Ready:          m.ready,
		PackagesLoaded: 1,
		PackagesReady:  1,
		Components:     map[string]string{"registry": "ok"},
	}
}

// mockSync implements input.SyncTrigger for testing.
type mockSync struct {
	result domain.SyncResult
	err    error
}

func (m *mockSync) TriggerSync(_ context.Context) (domain.SyncResult, error) {
	return m.result, m.err
}

// mockMetrics implements Metrics for testing.
type mockMetrics struct {
	requests int
}

func (m *mockMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("gpkg_packages_loaded 1\n"))
	})
}

func (m *mockMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requests++
		next.ServeHTTP(w, r)
	})
}

func testBrowser() *mockBrowser {
	srsID := 4326
	return &mockBrowser{
		packages: []domain.GeoPackage{
			{
				ID:   "demo",
				Name: "demo",
				Path: "/data/demo.gpkg",
				Layers: []domain.Layer{
					{
						Name:           "points",
						Kind:           domain.KindFeatures,
						GeometryColumn: "geom",
						GeometryType:   geom.Subtype{Type: geom.TypePoint, Dims: geom.XY},
						SRSID:          &srsID,
						Extent:         &geom.Envelope{MinX: 1, MinY: 2, MaxX: 3, MaxY: 4},
						RecordCount:    2,
					},
					{Name: "notes", Kind: domain.KindAttributes},
				},
			},
		},
		records: []domain.Record{
			{"fid": int64(1), "name": "First", "geom": geom.NewPoint(1, 2)},
			{"fid": int64(2), "name": "Second", "geom": nil},
		},
	}
}

func newTestServer(browser *mockBrowser, health *mockHealth, sync input.SyncTrigger) *Server {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	if browser == nil {
		browser = testBrowser()
	}
	if health == nil {
		health = &mockHealth{healthy: true, ready: true}
	}
	return NewServer(
		config.ServerConfig{
			Host:         "localhost",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			MaxRecords:   100,
		},
		browser,
		health,
		sync,
		logger,
	)
}

func serve(t *testing.T, srv *Server, method, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	var body map[string]interface{}
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return rr, body
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		health     *mockHealth
		path       string
		wantStatus int
		wantBody   string
	}{
		{"health", &mockHealth{healthy: true, ready: true}, "/health", http.StatusOK, "ok"},
		{"health unhealthy", &mockHealth{}, "/health", http.StatusServiceUnavailable, "unhealthy"},
		{"live", &mockHealth{healthy: true}, "/health/live", http.StatusOK, "ok"},
		{"live unhealthy", &mockHealth{}, "/health/live", http.StatusServiceUnavailable, "unhealthy"},
		{"ready", &mockHealth{healthy: true, ready: true}, "/health/ready", http.StatusOK, "ok"},
		{"not ready", &mockHealth{healthy: true}, "/health/ready", http.StatusServiceUnavailable, "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, body := serve(t, newTestServer(nil, tt.health, nil), http.MethodGet, tt.path)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if body["status"] != tt.wantBody {
				t.Errorf("status field = %v, want %q", body["status"], tt.wantBody)
			}
		})
	}
}

func TestHandleListPackages(t *testing.T) {
	rr, body := serve(t, newTestServer(nil, nil, nil), http.MethodGet, "/api/v1/packages")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
	pkgs := body["packages"].([]interface{})
	pkg := pkgs[0].(map[string]interface{})
	if pkg["id"] != "demo" || pkg["layer_count"] != float64(2) {
		t.Errorf("package = %v", pkg)
	}
}

func TestHandleGetPackage(t *testing.T) {
	srv := newTestServer(nil, nil, nil)

	rr, body := serve(t, srv, http.MethodGet, "/api/v1/packages/demo")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	layers := body["layers"].([]interface{})
	if len(layers) != 2 {
		t.Errorf("layers = %v, want 2", layers)
	}

	rr, body = serve(t, srv, http.MethodGet, "/api/v1/packages/nope")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	if body["error"] != "Not Found" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestHandleGetLayers(t *testing.T) {
	srv := newTestServer(nil, nil, nil)

	rr, body := serve(t, srv, http.MethodGet, "/api/v1/packages/demo/layers")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	layers := body["layers"].([]interface{})
	points := layers[0].(map[string]interface{})
	if points["geometry_type"] != "Point" || points["srs_id"] != float64(4326) {
		t.Errorf("points layer = %v", points)
	}
	if _, ok := points["extent"]; !ok {
		t.Error("points layer should carry an extent")
	}
	notes := layers[1].(map[string]interface{})
	if _, ok := notes["geometry_column"]; ok {
		t.Errorf("attribute layer should not have geometry details: %v", notes)
	}

	rr, _ = serve(t, srv, http.MethodGet, "/api/v1/packages/nope/layers")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestHandleGetLayer(t *testing.T) {
	srv := newTestServer(nil, nil, nil)

	rr, body := serve(t, srv, http.MethodGet, "/api/v1/packages/demo/layers/notes")
	if rr.Code != http.StatusOK || body["kind"] != "attributes" {
		t.Errorf("status = %d, body = %v", rr.Code, body)
	}

	rr, _ = serve(t, srv, http.MethodGet, "/api/v1/packages/demo/layers/missing")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestHandleDescribeLayer(t *testing.T) {
	rr, body := serve(t, newTestServer(nil, nil, nil), http.MethodGet, "/api/v1/packages/demo/layers/points/schema")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if body["kind"] != "features" {
		t.Errorf("kind = %v, want features", body["kind"])
	}
	fields := body["fields"].([]interface{})
	if len(fields) != 3 {
		t.Fatalf("fields = %v, want fid, name and geom", fields)
	}
	fid := fields[0].(map[string]interface{})
	if fid["name"] != "fid" || fid["primary"] != true {
		t.Errorf("first field = %v, want fid", fid)
	}
	g := fields[2].(map[string]interface{})
	if g["geometry_type"] != "Point" || g["nullable"] != true {
		t.Errorf("geometry field = %v", g)
	}
}

func TestHandleRecords(t *testing.T) {
	browser := testBrowser()
	srv := newTestServer(browser, nil, nil)

	rr, body := serve(t, srv, http.MethodGet, "/api/v1/packages/demo/layers/points/records?limit=10")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if browser.lastLimit != 10 {
		t.Errorf("limit passed = %d, want 10", browser.lastLimit)
	}
	if body["count"] != float64(2) || body["srs_id"] != float64(4326) {
		t.Errorf("body = %v", body)
	}
	records := body["records"].([]interface{})
	first := records[0].(map[string]interface{})
	g := first["geom"].(map[string]interface{})
	if g["type"] != "Point" || g["wkt"] != "POINT(1 2)" {
		t.Errorf("geometry = %v", g)
	}
	second := records[1].(map[string]interface{})
	if second["geom"] != nil {
		t.Errorf("null geometry = %v, want null", second["geom"])
	}
}

func TestHandleRecordsLimit(t *testing.T) {
	tests := []struct {
		query      string
		wantStatus int
		wantLimit  int
	}{
		{"", http.StatusOK, 100},
		{"?limit=0", http.StatusOK, 100},
		{"?limit=5", http.StatusOK, 5},
		{"?limit=5000", http.StatusOK, 100},
		{"?limit=-1", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			browser := testBrowser()
			srv := newTestServer(browser, nil, nil)
			rr, _ := serve(t, srv, http.MethodGet, "/api/v1/packages/demo/layers/points/records"+tt.query)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if browser.lastLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", browser.lastLimit, tt.wantLimit)
			}
		})
	}
}

func TestHandleRecordsErrors(t *testing.T) {
	browser := testBrowser()
	browser.recordErr = &domain.StorageError{Operation: "scan", Key: "points", Err: errors.New("disk I/O error")}
	srv := newTestServer(browser, nil, nil)

	rr, _ := serve(t, srv, http.MethodGet, "/api/v1/packages/demo/layers/points/records")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}

	rr, _ = serve(t, srv, http.MethodGet, "/api/v1/packages/demo/layers/missing/records")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestHandleSync(t *testing.T) {
	t.Run("not registered without storage", func(t *testing.T) {
		rr, _ := serve(t, newTestServer(nil, nil, nil), http.MethodPost, "/api/v1/sync")
		if rr.Code != http.StatusNotFound && rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 404 or 405", rr.Code)
		}
	})

	t.Run("success", func(t *testing.T) {
		sync := &mockSync{result: domain.SyncResult{PackagesAdded: 2, PackagesTotal: 3}}
		rr, body := serve(t, newTestServer(nil, nil, sync), http.MethodPost, "/api/v1/sync")
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
		}
		if body["packages_added"] != float64(2) || body["packages_total"] != float64(3) {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		sync := &mockSync{err: domain.ErrRateLimited}
		rr, _ := serve(t, newTestServer(nil, nil, sync), http.MethodPost, "/api/v1/sync")
		if rr.Code != http.StatusTooManyRequests {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusTooManyRequests)
		}
		if rr.Header().Get("Retry-After") != "30" {
			t.Errorf("Retry-After = %q, want 30", rr.Header().Get("Retry-After"))
		}
	})

	t.Run("storage unavailable", func(t *testing.T) {
		sync := &mockSync{err: domain.ErrStorageUnavailable}
		rr, _ := serve(t, newTestServer(nil, nil, sync), http.MethodPost, "/api/v1/sync")
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestHandleOpenAPI(t *testing.T) {
	srv := newTestServer(nil, nil, nil)

	rr, body := serve(t, srv, http.MethodGet, "/openapi.json")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if body["openapi"] != "3.0.3" {
		t.Errorf("openapi = %v", body["openapi"])
	}
	paths := body["paths"].(map[string]interface{})
	if _, ok := paths["/api/v1/packages/{packageId}/layers/{layer}/records"]; !ok {
		t.Error("records path missing from OpenAPI document")
	}

	rr, _ = serve(t, srv, http.MethodGet, "/openapi.yaml")
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Body.String(), "openapi:") {
		t.Errorf("yaml status = %d", rr.Code)
	}
}

func TestMountMetrics(t *testing.T) {
	srv := newTestServer(nil, nil, nil)
	m := &mockMetrics{}
	srv.MountMetrics("/metrics", m)

	rr, _ := serve(t, srv, http.MethodGet, "/metrics")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "gpkg_packages_loaded") {
		t.Errorf("metrics status = %d, body = %q", rr.Code, rr.Body.String())
	}

	serve(t, srv, http.MethodGet, "/health")
	if m.requests != 2 {
		t.Errorf("middleware saw %d requests, want 2", m.requests)
	}
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &domain.ValidationError{Field: "limit", Message: "bad"}, http.StatusBadRequest},
		{"unknown layer", domain.UnknownLayer("x"), http.StatusNotFound},
		{"package", domain.ErrPackageNotFound, http.StatusNotFound},
		{"not a geopackage", domain.ErrNotAGeoPackage, http.StatusBadRequest},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"session closed", domain.ErrSessionClosed, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	srv := newTestServer(nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.handleError(rr, tt.err)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestBoolToStatus(t *testing.T) {
	if boolToStatus(true) != "ok" || boolToStatus(false) != "unhealthy" {
		t.Error("boolToStatus mismatch")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := newTestServer(nil, nil, nil)
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	rr := httptest.NewRecorder()
	srv.recoveryMiddleware(panicky).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["message"] != "internal server error" {
		t.Errorf("body = %v", body)
	}
}
