// ABOUTME: Wires configuration into the Wikidata client, fetch pipeline, store and map cache
// ABOUTME: Shared by every command; serve additionally attaches Prometheus metrics

package cli

import (
	"net/http"

	"github.com/nainya/pinpoint/internal/config"
	"github.com/nainya/pinpoint/internal/logger"
	"github.com/nainya/pinpoint/internal/metrics"
	"github.com/nainya/pinpoint/pkg/dataset"
	"github.com/nainya/pinpoint/pkg/mapcache"
	"github.com/nainya/pinpoint/pkg/pipeline"
	"github.com/nainya/pinpoint/pkg/store"
	"github.com/nainya/pinpoint/pkg/wikidata"
)

type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics

	client  *wikidata.Client
	fetcher *pipeline.Fetcher
}

func newApp(cfg *config.Config, log *logger.Logger) *app {
	a := &app{cfg: cfg, log: log}
	a.buildClients()
	return a
}

// withMetrics rebuilds the clients with metric hooks attached
func (a *app) withMetrics(m *metrics.Metrics) {
	a.metrics = m
	a.buildClients()
}

func (a *app) buildClients() {
	opts := wikidata.Options{
		SPARQLEndpoint: a.cfg.Wikidata.SPARQLEndpoint,
		APIEndpoint:    a.cfg.Wikidata.APIEndpoint,
		UserAgent:      a.cfg.Wikidata.UserAgent,
		Language:       a.cfg.Wikidata.Language,
		SearchLimit:    a.cfg.Wikidata.SearchLimit,
		HTTPClient:     &http.Client{Timeout: a.cfg.Wikidata.Timeout},
		Logger:         *a.log.UpstreamLogger("wikidata").GetZerolog(),
	}
	if a.metrics != nil {
		opts.Observe = a.metrics.RecordUpstreamRequest
	}
	a.client = wikidata.NewClient(opts)

	a.fetcher = pipeline.NewFetcher(a.client, *a.log.GetZerolog())
	if a.metrics != nil {
		m := a.metrics
		a.fetcher.OnRecords = func(t dataset.Type, n int) {
			m.RecordFetchedRecords(string(t), n)
		}
	}
}

func (a *app) openStore() (*store.Store, error) {
	return store.Open(store.Options{
		Path:    a.cfg.Store.Path,
		DataDir: a.cfg.Store.DataDir,
		Fetcher: a.fetcher,
		Logger:  *a.log.StoreLogger("dataset").GetZerolog(),
	})
}

func (a *app) openMapCache() (*mapcache.Cache, error) {
	opts := mapcache.Options{
		Dir:          a.cfg.MapCache.Dir,
		UserAgent:    a.cfg.MapCache.UserAgent,
		AllowedHosts: a.cfg.MapCache.AllowedHosts,
		HTTPClient:   &http.Client{Timeout: a.cfg.MapCache.Timeout},
		Logger:       *a.log.UpstreamLogger("mapshape").GetZerolog(),
	}
	if a.metrics != nil {
		opts.Observe = a.metrics.RecordUpstreamRequest
	}
	return mapcache.New(opts)
}
