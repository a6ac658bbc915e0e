// Package server exposes the scoring engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/sitescore/internal/config"
	"github.com/sells-group/sitescore/internal/observability"
	"github.com/sells-group/sitescore/internal/raster"
	"github.com/sells-group/sitescore/internal/scoring"
	"github.com/sells-group/sitescore/internal/store"
)

// Options configures a Server. Engine is required; Metrics and Store are
// optional.
type Options struct {
	Engine     *scoring.Engine
	RegionName string
	Grid       raster.Spec
	Workers    int
	Config     config.ServerConfig
	Metrics    *observability.Collector
	Store      store.Store
}

// Server serves score lookups, rasterisations and saved runs.
type Server struct {
	engine     *scoring.Engine
	regionName string
	grid       raster.Spec
	workers    int
	cfg        config.ServerConfig
	metrics    *observability.Collector
	store      store.Store

	cache   *gocache.Cache
	limiter *rate.Limiter
	log     *zap.Logger
}

// New builds a Server. A non-positive rate disables limiting.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, eris.New("server: engine is required")
	}

	ttl := time.Duration(opts.Config.CacheTTLSecs) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	var limiter *rate.Limiter
	if opts.Config.RatePerSecond > 0 {
		burst := opts.Config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.Config.RatePerSecond), burst)
	}

	return &Server{
		engine:     opts.Engine,
		regionName: opts.RegionName,
		grid:       opts.Grid,
		workers:    opts.Workers,
		cfg:        opts.Config,
		metrics:    opts.Metrics,
		store:      opts.Store,
		cache:      gocache.New(ttl, 2*ttl),
		limiter:    limiter,
		log:        zap.L().With(zap.String("component", "server")),
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Get("/score", s.handleScore)
		r.Get("/raster", s.handleRaster)
		r.Get("/zones", s.handleZones)
		if s.store != nil {
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{runID}", s.handleGetRun)
			r.Get("/runs/{runID}/field.csv", s.handleRunCSV)
		}
	})
	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.AllowedOrigins
}

// ListenAndServe serves on the configured port until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("server shutdown", zap.Error(err))
		}
	}()

	s.log.Info("starting server", zap.Int("port", port), zap.String("region", s.regionName))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}
