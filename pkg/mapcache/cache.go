// ABOUTME: Read-through cache of shape files keyed by md5 of the normalized URL
// ABOUTME: Entries are permanent; failed fetches leave no entry behind

package mapcache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/nainya/pinpoint/pkg/fsutil"
)

// DefaultUserAgent identifies shape fetches to the remote host
const DefaultUserAgent = "PinpointGame/1.0"

const maxShapeBytes = 64 << 20

// Status reports how a lookup was served
type Status string

const (
	StatusHit  Status = "hit"
	StatusMiss Status = "miss"
)

// Options configures a Cache
type Options struct {
	Dir          string
	UserAgent    string
	AllowedHosts []string // empty = any public host
	HTTPClient   *http.Client
	Logger       zerolog.Logger

	// Observe, if set, is called once per remote fetch
	Observe func(endpoint, status string, duration time.Duration)
}

// Cache stores fetched shapes as <key>.json files under Dir
type Cache struct {
	dir          string
	userAgent    string
	allowedHosts []string
	http         *http.Client
	log          zerolog.Logger
	observe      func(endpoint, status string, duration time.Duration)
	group        singleflight.Group
}

// New creates a cache, creating Dir if needed
func New(opts Options) (*Cache, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("cache dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Cache{
		dir:          opts.Dir,
		userAgent:    opts.UserAgent,
		allowedHosts: opts.AllowedHosts,
		http:         hc,
		log:          opts.Logger,
		observe:      opts.Observe,
	}, nil
}

// NormalizeURL decodes '+' to space, as form-encoded query values arrive
func NormalizeURL(rawURL string) string {
	return strings.ReplaceAll(rawURL, "+", " ")
}

// Key returns the cache key for rawURL: hex md5 of the normalized URL
func Key(rawURL string) string {
	sum := md5.Sum([]byte(NormalizeURL(rawURL)))
	return hex.EncodeToString(sum[:])
}

// Path returns the cache file path for rawURL
func (c *Cache) Path(rawURL string) string {
	return filepath.Join(c.dir, Key(rawURL)+".json")
}

// Get returns the shape bytes for rawURL, fetching and caching on a miss
func (c *Cache) Get(ctx context.Context, rawURL string) ([]byte, error) {
	data, _, err := c.Lookup(ctx, rawURL)
	return data, err
}

// Lookup is Get that also reports whether the cache served the request.
// A cached file is returned unconditionally: there is no freshness check.
func (c *Cache) Lookup(ctx context.Context, rawURL string) ([]byte, Status, error) {
	normalized := NormalizeURL(rawURL)
	path := c.Path(rawURL)

	data, err := os.ReadFile(path)
	if err == nil {
		return data, StatusHit, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("read cache file: %w", err)
	}

	if err := ValidateURL(normalized, c.allowedHosts); err != nil {
		return nil, "", err
	}

	// Concurrent misses for the same key share one fetch. It outlives any
	// single caller's cancellation; each caller stops waiting on its own ctx.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(Key(rawURL), func() (any, error) {
		if data, err := os.ReadFile(path); err == nil {
			return data, nil
		}
		data, err := c.fetch(fetchCtx, normalized)
		if err != nil {
			return nil, err
		}
		if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write cache file: %w", err)
		}
		c.log.Debug().Str("url", normalized).Str("file", path).Int("bytes", len(data)).Msg("Cached map shape")
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, "", res.Err
		}
		return res.Val.([]byte), StatusMiss, nil
	}
}

func (c *Cache) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	start := time.Now()
	data, err := c.doFetch(ctx, rawURL)
	if c.observe != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.observe("mapshape", status, time.Since(start))
	}
	if err != nil {
		c.log.Error().Err(err).Str("url", rawURL).Msg("Error fetching map")
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return data, nil
}

func (c *Cache) doFetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxShapeBytes))
}
