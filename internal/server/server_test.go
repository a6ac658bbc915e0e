package server

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sitescore/internal/config"
	"github.com/sells-group/sitescore/internal/geo"
	"github.com/sells-group/sitescore/internal/observability"
	"github.com/sells-group/sitescore/internal/proximity"
	"github.com/sells-group/sitescore/internal/raster"
	"github.com/sells-group/sitescore/internal/region"
	"github.com/sells-group/sitescore/internal/scoring"
	"github.com/sells-group/sitescore/internal/store"
	"github.com/sells-group/sitescore/internal/zoning"
)

func box(minLng, minLat, maxLng, maxLat float64) geo.Ring {
	return geo.Ring{
		{Lat: minLat, Lng: minLng},
		{Lat: maxLat, Lng: minLng},
		{Lat: maxLat, Lng: maxLng},
		{Lat: minLat, Lng: maxLng},
	}
}

func zone(code string, r geo.Ring) zoning.Zone {
	return zoning.Zone{Code: code, BBox: r.Bounds(), Polygons: []geo.CompoundPolygon{{Outer: r}}}
}

func testEngine(t *testing.T, obs scoring.Observer) *scoring.Engine {
	t.Helper()
	zones, err := zoning.Partition([]zoning.Zone{
		zone("GRZ1", box(145.3, -37.5, 145.5, -37.3)),
		zone("IN1Z", box(144.3, -37.5, 144.5, -37.3)),
	}, zoning.NewCodeList("IN1Z"), zoning.NewCodeList("GRZ1"))
	require.NoError(t, err)

	mw := 500.0
	e, err := scoring.NewEngine(scoring.Options{
		Region: &region.Definition{
			Name:    "square",
			Outer:   box(143.5, -38.5, 146.5, -35.5),
			Precise: box(144, -38, 146, -36),
		},
		Zones: zones,
		Index: proximity.NewIndex(
			[]proximity.Station{{Name: "Plant", Location: geo.Coordinate{Lat: -37, Lng: 145}, GenerationMW: &mw}},
			[]proximity.Cable{{ID: "east", Lines: [][]geo.Coordinate{{{Lat: -37, Lng: 147.5}, {Lat: -37.2, Lng: 147.6}}}}},
		),
		Thresholds: scoring.DefaultThresholds(),
		Observer:   obs,
	})
	require.NoError(t, err)
	return e
}

type testServer struct {
	handler http.Handler
	metrics *observability.Collector
	store   store.Store
}

func newTestServer(t *testing.T, cfg config.ServerConfig, withStore bool) testServer {
	t.Helper()
	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	var st store.Store
	if withStore {
		sq, err := store.NewSQLite(filepath.Join(t.TempDir(), "server.db"))
		require.NoError(t, err)
		t.Cleanup(func() { sq.Close() }) //nolint:errcheck
		require.NoError(t, sq.Migrate(t.Context()))
		st = sq
	}

	srv, err := New(Options{
		Engine:     testEngine(t, nil),
		RegionName: "square",
		Grid:       raster.Spec{LngStart: 144.5, LngStop: 145.5, LatStart: -36.5, LatStop: -37.5, Cols: 3, Rows: 3},
		Workers:    2,
		Config:     cfg,
		Metrics:    metrics,
		Store:      st,
	})
	require.NoError(t, err)
	return testServer{handler: srv.Handler(), metrics: metrics, store: st}
}

func defaultServerConfig() config.ServerConfig {
	return config.ServerConfig{
		RatePerSecond:  1000,
		Burst:          1000,
		CacheTTLSecs:   60,
		MaxRasterCells: 100,
	}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNew_RequiresEngine(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorContains(t, err, "engine is required")
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, defaultServerConfig(), false)

	rec := get(t, ts.handler, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "square", body["region"])
}

func TestScore_NearStation(t *testing.T) {
	ts := newTestServer(t, defaultServerConfig(), false)

	rec := get(t, ts.handler, "/v1/score?lat=-37.05&lng=145")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	body := decode(t, rec)
	assert.InDelta(t, 1.0, body["score"], 1e-9)
	assert.Equal(t, "scored", body["outcome"])
	assert.Equal(t, scoring.ClassNeutral, body["class"])
	assert.InDelta(t, 1.0, body["station_score"], 1e-9)
	assert.InDelta(t, 500.0, body["nearby_mw"], 1e-9)

	again := get(t, ts.handler, "/v1/score?lat=-37.05&lng=145")
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, "HIT", again.Header().Get("X-Cache"))

	nearby := get(t, ts.handler, "/v1/score?lat=-37.05&lng=145.000001")
	require.Equal(t, http.StatusOK, nearby.Code)
	assert.Equal(t, "MISS", nearby.Header().Get("X-Cache"))
}

func TestScore_ExactPointNearZoneEdge(t *testing.T) {
	ts := newTestServer(t, defaultServerConfig(), false)
	engine := testEngine(t, nil)

	// GRZ1's western edge is at lng 145.3; both points are well under a metre
	// from it and round to the edge at five decimals.
	for _, lng := range []string{"145.300004", "145.299996"} {
		rec := get(t, ts.handler, "/v1/score?lat=-37.4&lng="+lng)
		require.Equal(t, http.StatusOK, rec.Code, lng)
		body := decode(t, rec)

		v, err := strconv.ParseFloat(lng, 64)
		require.NoError(t, err)
		p := geo.Coordinate{Lat: -37.4, Lng: v}

		assert.Equal(t, map[string]any{"lat": -37.4, "lng": v}, body["point"], lng)
		assert.InDelta(t, engine.Rate(p), body["score"], 1e-12, lng)
		assert.Equal(t, engine.Breakdown(p).Outcome.String(), body["outcome"], lng)
	}

	inside := decode(t, get(t, ts.handler, "/v1/score?lat=-37.4&lng=145.300004"))
	assert.Equal(t, "excluded", inside["outcome"])
	outside := decode(t, get(t, ts.handler, "/v1/score?lat=-37.4&lng=145.299996"))
	assert.Equal(t, "scored", outside["outcome"])
}

func TestScore_OutsideRegionIsNull(t *testing.T) {
	ts := newTestServer(t, defaultServerConfig(), false)

	rec := get(t, ts.handler, "/v1/score?lat=-30&lng=145")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	score, present := body["score"]
	assert.True(t, present)
	assert.Nil(t, score)
	assert.Equal(t, "outside", body["outcome"])
	assert.Equal(t, "outer", body["tier"])
	assert.Equal(t, scoring.ClassOutside, body["class"])
}

func TestScore_ExcludedZone(t *testing.T) {
	ts := newTestServer(t, defaultServerConfig(), false)

	body := decode(t, get(t, ts.handler, "/v1/score?lat=-37.4&lng=145.4"))
	assert.Equal(t, 0.0, body["score"])
	assert.Equal(t, "excluded", body["outcome"])
	assert.Equal(t, "GRZ1", body["excluded_by"])
}

func TestScore_BadRequests(t *testing.T) {
	ts := newTestServer(t, defaultServerConfig(), false)

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"missing lng", "/v1/score?lat=-37", "lat and lng are required"},
		{"not a number", "/v1/score?lat=abc&lng=145", "lat must be a number"},
		{"out of range", "/v1/score?lat=-95&lng=145", "lat must be within"},
		{"nan", "/v1/score?lat=NaN&lng=145", "lat must be within"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, ts.handler, tt.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode(t, rec)["error"], tt.want)
		})
	}
}

func TestRaster_DefaultGrid(t *testing.T) {
	ts := newTestServer(t, defaultServerConfig(), false)

	rec := get(t, ts.handler, "/v1/raster")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rasterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Spec.Cols)
	assert.Equal(t, 9, resp.Summary.Cells)
	assert.Equal(t, 9, resp.Summary.Defined)
	assert.Empty(t, resp.RunID)
}

func TestRaster_QueryOverrides(t *testing.T) {
	ts := newTestServer(t, defaultServerConfig(), false)

	rec := get(t, ts.handler, "/v1/raster?cols=2&rows=4&lat_start=-30")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rasterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 8, resp.Summary.Cells)
	assert.Equal(t, -30.0, resp.Spec.LatStart)
	// The first row lies north of the region.
	assert.GreaterOrEqual(t, resp.Summary.Undefined, 2)
}

func TestRaster_Rejections(t *testing.T) {
	ts := newTestServer(t, defaultServerConfig(), false)

	rec := get(t, ts.handler, "/v1/raster?cols=20&rows=20")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "exceeds limit of 100")

	for _, n := range []string{"4294967296", "3037000500"} {
		rec = get(t, ts.handler, "/v1/raster?cols="+n+"&rows="+n)
		assert.Equal(t, http.StatusBadRequest, rec.Code, n)
		assert.Contains(t, decode(t, rec)["error"], "exceeds", n)
	}

	rec = get(t, ts.handler, "/v1/raster?cols=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, ts.handler, "/v1/raster?rows=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, ts.handler, "/v1/raster?save=true")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "no store configured")
}

func TestRaster_SaveAndFetchRun(t *testing.T) {
	ts := newTestServer(t, defaultServerConfig(), true)

	rec := get(t, ts.handler, "/v1/raster?save=true")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp rasterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)

	rec = get(t, ts.handler, "/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, resp.RunID, runs[0].ID)
	assert.Equal(t, store.RunStatusComplete, runs[0].Status)

	rec = get(t, ts.handler, "/v1/runs/"+resp.RunID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resp.RunID, decode(t, rec)["id"])

	rec = get(t, ts.handler, "/v1/runs/"+resp.RunID+"/field.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 10)
	assert.Equal(t, []string{"lng", "lat", "score"}, records[0])
}

func TestRuns_NotFoundAndFilters(t *testing.T) {
	ts := newTestServer(t, defaultServerConfig(), true)

	rec := get(t, ts.handler, "/v1/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, ts.handler, "/v1/runs?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, ts.handler, "/v1/runs?region=nowhere")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestRuns_PendingHasNoCSV(t *testing.T) {
	ts := newTestServer(t, defaultServerConfig(), true)
	run, err := ts.store.CreateRun(t.Context(), "square", raster.Spec{LngStart: 144, LngStop: 145, LatStart: -37, LatStop: -38, Cols: 2, Rows: 2})
	require.NoError(t, err)

	rec := get(t, ts.handler, "/v1/runs/"+run.ID+"/field.csv")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRuns_NotRoutedWithoutStore(t *testing.T) {
	ts := newTestServer(t, defaultServerConfig(), false)

	rec := get(t, ts.handler, "/v1/runs")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestZones(t *testing.T) {
	ts := newTestServer(t, defaultServerConfig(), false)

	rec := get(t, ts.handler, "/v1/zones")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]zoneSetSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body["include"].Zones)
	assert.Equal(t, map[string]int{"IN1Z": 1}, body["include"].Codes)
	assert.Equal(t, map[string]int{"GRZ1": 1}, body["exclude"].Codes)
	require.NotNil(t, body["exclude"].BBox)
	assert.Equal(t, 145.3, body["exclude"].BBox.MinLng)
}

func TestRateLimit(t *testing.T) {
	cfg := defaultServerConfig()
	cfg.RatePerSecond = 0.001
	cfg.Burst = 1
	ts := newTestServer(t, cfg, false)

	first := get(t, ts.handler, "/v1/zones")
	assert.Equal(t, http.StatusOK, first.Code)

	second := get(t, ts.handler, "/v1/zones")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))

	// Health and metrics are not limited.
	assert.Equal(t, http.StatusOK, get(t, ts.handler, "/health").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, defaultServerConfig(), false)

	get(t, ts.handler, "/v1/score?lat=-30&lng=145")
	get(t, ts.handler, "/v1/raster")

	rec := get(t, ts.handler, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `sitescore_cells_total{outcome="outside"} 1`)
	assert.Contains(t, body, `sitescore_region_tier_total{tier="outer"} 1`)
	assert.Contains(t, body, `sitescore_raster_duration_seconds_count{region="square"} 1`)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, defaultServerConfig(), false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://maps.example.com")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestScoreCacheKey(t *testing.T) {
	assert.Equal(t, "-37.123456,145", scoreCacheKey(geo.Coordinate{Lat: -37.123456, Lng: 145}))
	assert.NotEqual(t,
		scoreCacheKey(geo.Coordinate{Lat: -37.4, Lng: 145.300004}),
		scoreCacheKey(geo.Coordinate{Lat: -37.4, Lng: 145.299996}),
	)
}
