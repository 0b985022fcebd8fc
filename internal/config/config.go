// ABOUTME: Process configuration types and their defaults
// ABOUTME: Values are layered by Load; Validate checks the merged result

// Package config holds the layered process configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/nainya/pinpoint/pkg/mapcache"
	"github.com/nainya/pinpoint/pkg/wikidata"
)

// Default values
const (
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 8000
	DefaultStaticDir         = "static"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultMetricsPort       = 9090
	DefaultStorePath         = "datasets.json"
	DefaultDataDir           = "static"
	DefaultMapCacheDir       = "static/maps"
	DefaultUpstreamTimeout   = 60 * time.Second
	DefaultLogLevel          = "info"
)

// Config holds all configuration options
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Store    StoreConfig    `koanf:"store"`
	Wikidata WikidataConfig `koanf:"wikidata"`
	MapCache MapCacheConfig `koanf:"mapcache"`
	Log      LogConfig      `koanf:"log"`
	Verbose  bool           `koanf:"verbose"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	StaticDir         string        `koanf:"static_dir"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
	Port    int  `koanf:"port"`
}

// StoreConfig locates the dataset document and the data files beside it
type StoreConfig struct {
	Path    string `koanf:"path"`
	DataDir string `koanf:"data_dir"`
	Watch   bool   `koanf:"watch"`
}

type WikidataConfig struct {
	SPARQLEndpoint string        `koanf:"sparql_endpoint"`
	APIEndpoint    string        `koanf:"api_endpoint"`
	UserAgent      string        `koanf:"user_agent"`
	Language       string        `koanf:"language"`
	SearchLimit    int           `koanf:"search_limit"`
	Timeout        time.Duration `koanf:"timeout"`
}

type MapCacheConfig struct {
	Dir          string        `koanf:"dir"`
	UserAgent    string        `koanf:"user_agent"`
	AllowedHosts []string      `koanf:"allowed_hosts"`
	Timeout      time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
	Caller bool   `koanf:"caller"`
}

// defaults returns the lowest configuration layer as flat koanf keys
func defaults() map[string]any {
	return map[string]any{
		"server.host":                DefaultHost,
		"server.port":                DefaultPort,
		"server.static_dir":          DefaultStaticDir,
		"server.read_header_timeout": DefaultReadHeaderTimeout.String(),
		"server.shutdown_timeout":    DefaultShutdownTimeout.String(),
		"metrics.enabled":            true,
		"metrics.port":               DefaultMetricsPort,
		"store.path":                 DefaultStorePath,
		"store.data_dir":             DefaultDataDir,
		"store.watch":                false,
		"wikidata.sparql_endpoint":   wikidata.DefaultSPARQLEndpoint,
		"wikidata.api_endpoint":      wikidata.DefaultAPIEndpoint,
		"wikidata.user_agent":        wikidata.DefaultUserAgent,
		"wikidata.language":          wikidata.DefaultLanguage,
		"wikidata.search_limit":      wikidata.DefaultSearchLimit,
		"wikidata.timeout":           DefaultUpstreamTimeout.String(),
		"mapcache.dir":               DefaultMapCacheDir,
		"mapcache.user_agent":        mapcache.DefaultUserAgent,
		"mapcache.allowed_hosts":     []string{},
		"mapcache.timeout":           DefaultUpstreamTimeout.String(),
		"log.level":                  DefaultLogLevel,
		"log.pretty":                 false,
		"log.caller":                 false,
		"verbose":                    false,
	}
}

// Validate checks the merged configuration
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port))
	}
	if c.Metrics.Enabled && c.Metrics.Port == c.Server.Port {
		errs = append(errs, fmt.Errorf("metrics.port must differ from server.port (%d)", c.Server.Port))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Store.DataDir == "" {
		errs = append(errs, errors.New("store.data_dir is required"))
	}
	if c.MapCache.Dir == "" {
		errs = append(errs, errors.New("mapcache.dir is required"))
	}
	if c.Wikidata.SPARQLEndpoint == "" || c.Wikidata.APIEndpoint == "" {
		errs = append(errs, errors.New("wikidata endpoints are required"))
	}
	if c.Wikidata.SearchLimit <= 0 {
		errs = append(errs, fmt.Errorf("wikidata.search_limit must be positive, got %d", c.Wikidata.SearchLimit))
	}
	return errors.Join(errs...)
}
