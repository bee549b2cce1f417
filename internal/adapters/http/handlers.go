package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/jobrunner/gpkgkit/internal/domain"
	"github.com/jobrunner/gpkgkit/internal/geom"
)

// retryAfterSeconds is sent with 429 responses of the sync endpoint.
const retryAfterSeconds = 30

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":          boolToStatus(details.Healthy),
		"ready":           details.Ready,
		"packages_loaded": details.PackagesLoaded,
		"packages_ready":  details.PackagesReady,
		"components":      details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleListPackages returns all registered packages.
func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := s.browser.ListPackages(r.Context())
	if err != nil {
		s.handleError(w, err)
		return
	}

	response := make([]map[string]interface{}, len(packages))
	for i := range packages {
		response[i] = formatPackage(&packages[i])
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"packages": response,
		"count":    len(packages),
	})
}

// handleGetPackage returns a specific package with its layers.
func (s *Server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.browser.GetPackage(r.Context(), mux.Vars(r)["packageId"])
	if err != nil {
		s.handleError(w, err)
		return
	}

	resp := formatPackage(pkg)
	resp["layers"] = formatLayers(pkg.Layers)
	s.writeJSON(w, http.StatusOK, resp)
}

// handleGetLayers returns layers for a specific package.
func (s *Server) handleGetLayers(w http.ResponseWriter, r *http.Request) {
	packageID := mux.Vars(r)["packageId"]

	pkg, err := s.browser.GetPackage(r.Context(), packageID)
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"package_id": packageID,
		"layers":     formatLayers(pkg.Layers),
		"count":      len(pkg.Layers),
	})
}

// handleGetLayer returns one layer.
func (s *Server) handleGetLayer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	layer, err := s.browser.GetLayer(r.Context(), vars["packageId"], vars["layer"])
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, formatLayer(layer))
}

// handleDescribeLayer returns the field layout of a layer.
func (s *Server) handleDescribeLayer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	desc, err := s.browser.DescribeLayer(r.Context(), vars["packageId"], vars["layer"])
	if err != nil {
		s.handleError(w, err)
		return
	}

	fields := make([]map[string]interface{}, 0, len(desc.Fields)+1)
	fields = append(fields, map[string]interface{}{
		"name":     domain.FIDColumn,
		"type":     domain.FieldInteger.String(),
		"nullable": false,
		"primary":  true,
	})
	for _, f := range desc.Fields {
		field := map[string]interface{}{
			"name":     f.Name,
			"type":     f.Type.String(),
			"nullable": f.Nullable,
		}
		if f.IsGeometry() {
			field["geometry_type"] = f.Geometry.String()
		}
		fields = append(fields, field)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"layer":       desc.Layer,
		"kind":        desc.Kind(),
		"description": desc.Description,
		"fields":      fields,
	})
}

// handleRecords returns up to ?limit= records of a layer. The limit is
// capped at the configured maximum.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	packageID, layerName := vars["packageId"], vars["layer"]

	limit, err := s.parseLimit(r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	layer, err := s.browser.GetLayer(r.Context(), packageID, layerName)
	if err != nil {
		s.handleError(w, err)
		return
	}

	records := make([]map[string]interface{}, 0)
	for rec, err := range s.browser.Records(r.Context(), packageID, layerName, limit) {
		if err != nil {
			s.handleError(w, err)
			return
		}
		records = append(records, formatRecord(rec))
	}

	resp := map[string]interface{}{
		"package_id": packageID,
		"layer":      layerName,
		"records":    records,
		"count":      len(records),
		"limit":      limit,
	}
	if layer.SRSID != nil {
		resp["srs_id"] = *layer.SRSID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// parseLimit reads ?limit=. A missing or zero limit means the maximum.
func (s *Server) parseLimit(r *http.Request) (int, error) {
	maxRecords := s.config.MaxRecords
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return maxRecords, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, &domain.ValidationError{
			Field:   "limit",
			Value:   raw,
			Message: "must be a non-negative integer",
		}
	}
	if limit == 0 || (maxRecords > 0 && limit > maxRecords) {
		return maxRecords, nil
	}
	return limit, nil
}

// handleSync handles the sync trigger endpoint.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.sync.TriggerSync(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		}
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleOpenAPI returns the OpenAPI document as JSON.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	doc, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("failed to get OpenAPI spec", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc)
}

// handleOpenAPIYAML returns the embedded OpenAPI document unchanged.
func (s *Server) handleOpenAPIYAML(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openAPIYAML)
}

// formatPackage formats a GeoPackage for JSON output.
func formatPackage(pkg *domain.GeoPackage) map[string]interface{} {
	return map[string]interface{}{
		"id":          pkg.ID,
		"name":        pkg.Name,
		"path":        pkg.Path,
		"size":        pkg.Size,
		"layer_count": pkg.LayerCount(),
		"loaded_at":   pkg.LoadedAt,
	}
}

func formatLayers(layers []domain.Layer) []map[string]interface{} {
	out := make([]map[string]interface{}, len(layers))
	for i := range layers {
		out[i] = formatLayer(&layers[i])
	}
	return out
}

// formatLayer formats a layer for JSON output. Geometry details are only
// present for feature layers.
func formatLayer(l *domain.Layer) map[string]interface{} {
	out := map[string]interface{}{
		"name":         l.Name,
		"kind":         l.Kind,
		"description":  l.Description,
		"last_change":  l.LastChange,
		"record_count": l.RecordCount,
	}
	if l.SRSID != nil {
		out["srs_id"] = *l.SRSID
	}
	if l.HasGeometry() {
		out["geometry_column"] = l.GeometryColumn
		out["geometry_type"] = l.GeometryType.String()
	}
	if l.Extent != nil && !l.Extent.Empty {
		out["extent"] = map[string]interface{}{
			"min_x": l.Extent.MinX,
			"min_y": l.Extent.MinY,
			"max_x": l.Extent.MaxX,
			"max_y": l.Extent.MaxY,
		}
	}
	return out
}

// formatRecord renders geometry values as WKT; every other value is
// passed through to the JSON encoder.
func formatRecord(rec domain.Record) map[string]interface{} {
	out := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		if g, ok := v.(geom.Geometry); ok {
			out[k] = map[string]interface{}{
				"type": geom.SubtypeOf(g).String(),
				"wkt":  fmt.Sprint(g),
			}
			continue
		}
		out[k] = v
	}
	return out
}

// handleError maps domain errors onto HTTP status codes.
func (s *Server) handleError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		s.writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		s.writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfterSeconds))
	case errors.Is(err, domain.ErrUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
