package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/sells-group/sitescore/internal/export"
	"github.com/sells-group/sitescore/internal/geo"
	"github.com/sells-group/sitescore/internal/raster"
	"github.com/sells-group/sitescore/internal/scoring"
	"github.com/sells-group/sitescore/internal/store"
	"github.com/sells-group/sitescore/internal/zoning"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "region": s.regionName})
}

// scoreResponse is a breakdown with the score rendered as null when the point
// is outside the region.
type scoreResponse struct {
	scoring.Breakdown
	Score   *float64 `json:"score"`
	Outcome string   `json:"outcome"`
	Tier    string   `json:"tier"`
	Region  string   `json:"region"`
}

func (s *Server) newScoreResponse(b scoring.Breakdown) scoreResponse {
	resp := scoreResponse{
		Breakdown: b,
		Outcome:   b.Outcome.String(),
		Tier:      b.Tier.String(),
		Region:    s.regionName,
	}
	if !scoring.IsUndefined(b.Score) {
		score := b.Score
		resp.Score = &score
	}
	return resp
}

// scoreCacheKey identifies a score lookup by its exact coordinate, so a hit
// always returns the breakdown of the requested point.
func scoreCacheKey(p geo.Coordinate) string {
	return strconv.FormatFloat(p.Lat, 'g', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'g', -1, 64)
}

func parseFloatParam(r *http.Request, name string) (float64, bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, true, fmt.Errorf("%s must be a number", name)
	}
	return v, true, nil
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	lat, okLat, err := parseFloatParam(r, "lat")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lng, okLng, err := parseFloatParam(r, "lng")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !okLat || !okLng {
		writeError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}

	p := geo.Coordinate{Lat: lat, Lng: lng}
	if !p.Valid() {
		writeError(w, http.StatusBadRequest, "lat must be within [-90, 90] and lng within [-180, 180]")
		return
	}

	key := scoreCacheKey(p)
	if cached, ok := s.cache.Get(key); ok {
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, cached)
		return
	}

	b := s.engine.Breakdown(p)
	s.metrics.ObserveTier(b.Tier)
	s.metrics.ObserveOutcome(b.Outcome)

	resp := s.newScoreResponse(b)
	s.cache.Set(key, resp, gocache.DefaultExpiration)
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, resp)
}

type rasterResponse struct {
	Region      string         `json:"region"`
	Spec        raster.Spec    `json:"spec"`
	Summary     raster.Summary `json:"summary"`
	ElapsedSecs float64        `json:"elapsed_secs"`
	RunID       string         `json:"run_id,omitempty"`
}

// gridFromQuery overrides the default grid with any bounds or dimensions
// given in the query string.
func (s *Server) gridFromQuery(r *http.Request) (raster.Spec, error) {
	spec := s.grid
	for name, dst := range map[string]*float64{
		"lng_start": &spec.LngStart,
		"lng_stop":  &spec.LngStop,
		"lat_start": &spec.LatStart,
		"lat_stop":  &spec.LatStop,
	} {
		v, ok, err := parseFloatParam(r, name)
		if err != nil {
			return spec, err
		}
		if ok {
			*dst = v
		}
	}
	for name, dst := range map[string]*int{"cols": &spec.Cols, "rows": &spec.Rows} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return spec, fmt.Errorf("%s must be an integer", name)
		}
		*dst = n
	}
	return spec, nil
}

func (s *Server) handleRaster(w http.ResponseWriter, r *http.Request) {
	spec, err := s.gridFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := spec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit := s.cfg.MaxRasterCells; limit > 0 && !spec.CellsWithin(limit) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("grid of %dx%d cells exceeds limit of %d", spec.Cols, spec.Rows, limit))
		return
	}

	field, err := raster.Rasterize(r.Context(), s.engine, spec, s.workers)
	if err != nil {
		s.log.Error("rasterise failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "rasterise failed")
		return
	}
	s.metrics.ObserveRaster(s.regionName, field.Elapsed)

	resp := rasterResponse{
		Region:      s.regionName,
		Spec:        spec,
		Summary:     field.Summary(),
		ElapsedSecs: field.Elapsed.Seconds(),
	}

	if r.URL.Query().Get("save") == "true" {
		if s.store == nil {
			writeError(w, http.StatusBadRequest, "no store configured")
			return
		}
		run, err := s.store.CreateRun(r.Context(), s.regionName, spec)
		if err == nil {
			err = s.store.SaveField(r.Context(), run.ID, field)
		}
		if err != nil {
			s.log.Error("save field failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "save failed")
			return
		}
		resp.RunID = run.ID
	}

	writeJSON(w, http.StatusOK, resp)
}

type zoneSetSummary struct {
	Zones int            `json:"zones"`
	Codes map[string]int `json:"codes"`
	BBox  *geo.BBox      `json:"bbox,omitempty"`
}

func summariseSet(set *zoning.Set) zoneSetSummary {
	out := zoneSetSummary{Zones: set.Len(), Codes: set.CodeCounts()}
	if b, ok := set.Bounds(); ok {
		out.BBox = &b
	}
	return out
}

func (s *Server) handleZones(w http.ResponseWriter, _ *http.Request) {
	zones := s.engine.Zones()
	writeJSON(w, http.StatusOK, map[string]zoneSetSummary{
		"include": summariseSet(zones.Include),
		"exclude": summariseSet(zones.Exclude),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Region: q.Get("region"),
		Status: store.RunStatus(q.Get("status")),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.log.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*store.Run, bool) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return nil, false
		}
		s.log.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get run failed")
		return nil, false
	}
	return run, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunCSV(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	if run.Status != store.RunStatusComplete {
		writeError(w, http.StatusConflict, "run has no saved field")
		return
	}
	field, err := s.store.LoadField(r.Context(), run.ID)
	if err != nil {
		s.log.Error("load field failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load field failed")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", run.ID+".csv"))
	if err := export.WriteCSV(w, field); err != nil {
		s.log.Error("write csv failed", zap.Error(err))
	}
}
