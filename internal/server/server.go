// Package server implements the Pinpoint HTTP API
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nainya/pinpoint/internal/logger"
	"github.com/nainya/pinpoint/internal/metrics"
	"github.com/nainya/pinpoint/pkg/dataset"
	"github.com/nainya/pinpoint/pkg/mapcache"
	"github.com/nainya/pinpoint/pkg/store"
	"github.com/nainya/pinpoint/pkg/wikidata"
)

// Searcher resolves free text to candidate entities. *wikidata.Client implements it.
type Searcher interface {
	Search(ctx context.Context, text string, kind wikidata.SearchKind) []wikidata.EntityRef
}

// Fetcher runs a dataset config end to end. *pipeline.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, cfg dataset.Config) ([]dataset.Record, error)
}

// Options wires a Server. Metrics and Logger may be nil.
type Options struct {
	Addr              string
	StaticDir         string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	// MetricsAddr is the observability listener; empty disables it
	MetricsAddr string
	Gatherer    prometheus.Gatherer

	// WatchStore reloads the store when its document changes on disk
	WatchStore bool

	Store    *store.Store
	Searcher Searcher
	Fetcher  Fetcher
	MapCache *mapcache.Cache
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
}

// Server serves the dataset builder API and the static front end
type Server struct {
	opts      Options
	store     *store.Store
	searcher  Searcher
	fetcher   Fetcher
	mapCache  *mapcache.Cache
	metrics   *metrics.Metrics
	log       *logger.Logger
	startTime time.Time
	ready     atomic.Bool
}

// NewServer creates a server instance
func NewServer(opts Options) (*Server, error) {
	if opts.Store == nil || opts.Searcher == nil || opts.Fetcher == nil || opts.MapCache == nil {
		return nil, errors.New("server: store, searcher, fetcher and map cache are required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = 10 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		opts:      opts,
		store:     opts.Store,
		searcher:  opts.Searcher,
		fetcher:   opts.Fetcher,
		mapCache:  opts.MapCache,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		startTime: time.Now(),
	}
	s.metrics.UpdateStoreStats(s.store.Len())
	return s, nil
}

// Handler returns the API router
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		HTTPMetricsMiddleware(s.metrics, s.log),
	)
	s.SetupRoutes(r)
	return r
}

// SetupRoutes registers all routes on router
func (s *Server) SetupRoutes(router chi.Router) {
	router.Route("/api", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Post("/preview", s.handlePreview)
		r.Post("/save", s.handleSave)
		r.Post("/delete", s.handleDelete)
	})
	router.Get("/datasets", s.handleDatasets)
	router.Get("/proxy_map", s.handleProxyMap)
	router.Get("/*", s.handleStatic)
}

// Run serves the API, the observability endpoints and the optional store
// watcher until ctx is cancelled, then shuts everything down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.log.LogServerStart(s.opts.Addr, s.store.Path())

	lis, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
	}

	eg.Go(func() error {
		s.ready.Store(true)
		s.log.LogServerReady(lis.Addr().String())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	var obs *ObservabilityServer
	if s.opts.MetricsAddr != "" {
		obs = NewObservabilityServer(s.opts.MetricsAddr, s.opts.Gatherer, s.log, s.health)
		eg.Go(obs.Start)
	}

	if s.opts.WatchStore {
		eg.Go(func() error {
			return s.watchStore(egctx)
		})
	}

	eg.Go(func() error {
		s.metrics.RunUptime(egctx.Done())
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		s.ready.Store(false)
		s.log.LogServerShutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if obs != nil {
			err = errors.Join(err, obs.Shutdown(shutdownCtx))
		}
		return err
	})

	return eg.Wait()
}

// HealthStatus is reported by the observability /health endpoint
type HealthStatus struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	Ready         bool   `json:"ready"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Datasets      int    `json:"datasets"`
}

func (s *Server) health() HealthStatus {
	return HealthStatus{
		Status:        "healthy",
		Service:       "pinpoint",
		Ready:         s.ready.Load(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Datasets:      s.store.Len(),
	}
}
