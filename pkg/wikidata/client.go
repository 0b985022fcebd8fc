// ABOUTME: HTTP client for Wikidata entity search and SPARQL execution
// ABOUTME: Single blocking request per call, no retries, fixed identifying User-Agent

package wikidata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Default endpoints and identification
const (
	DefaultSPARQLEndpoint = "https://query.wikidata.org/sparql"
	DefaultAPIEndpoint    = "https://www.wikidata.org/w/api.php"
	DefaultUserAgent      = "PinpointGame/1.1 (https://github.com/pinpoint.linush.org; linush@example.com)"
	DefaultLanguage       = "en"
	DefaultSearchLimit    = 10
)

// Endpoint labels passed to Options.Observe
const (
	EndpointSearch = "search"
	EndpointSPARQL = "sparql"
)

// maxBodyBytes bounds how much of a response body is read
const maxBodyBytes = 64 << 20

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	SPARQLEndpoint string
	APIEndpoint    string
	UserAgent      string
	Language       string
	SearchLimit    int
	HTTPClient     *http.Client
	Logger         zerolog.Logger

	// Observe, if set, is called once per upstream request with the endpoint
	// label, "success" or "error", and the request duration.
	Observe func(endpoint, status string, duration time.Duration)
}

// Client resolves entity names and runs SPARQL queries
type Client struct {
	opts Options
	http *http.Client
	log  zerolog.Logger
}

// NewClient creates a client from opts
func NewClient(opts Options) *Client {
	if opts.SPARQLEndpoint == "" {
		opts.SPARQLEndpoint = DefaultSPARQLEndpoint
	}
	if opts.APIEndpoint == "" {
		opts.APIEndpoint = DefaultAPIEndpoint
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{opts: opts, http: hc, log: opts.Logger}
}

// Search resolves free text to at most SearchLimit candidate entities.
// Failures are logged and yield an empty list; Search never returns an error.
// Property search is not supported by the endpoint in practice, so property
// ids have to be supplied literally by the caller.
func (c *Client) Search(ctx context.Context, text string, kind SearchKind) []EntityRef {
	results, err := c.search(ctx, text, kind)
	if err != nil {
		c.log.Error().
			Err(err).
			Str("endpoint", EndpointSearch).
			Str("search", text).
			Msg("Entity search failed")
		return []EntityRef{}
	}
	return results
}

func (c *Client) search(ctx context.Context, text string, kind SearchKind) ([]EntityRef, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []EntityRef{}, nil
	}
	if kind == "" {
		kind = KindItem
	}

	params := url.Values{}
	params.Set("action", "wbsearchentities")
	params.Set("format", "json")
	params.Set("language", c.opts.Language)
	params.Set("type", string(kind))
	params.Set("search", text)
	params.Set("limit", strconv.Itoa(c.opts.SearchLimit))

	body, err := c.get(ctx, EndpointSearch, c.opts.APIEndpoint, params, "application/json")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearchFailed, err)
	}
	if resp.Search == nil {
		return []EntityRef{}, nil
	}
	if len(resp.Search) > c.opts.SearchLimit {
		resp.Search = resp.Search[:c.opts.SearchLimit]
	}
	return resp.Search, nil
}

// Execute runs a SPARQL query and returns its bindings.
// Any failure is wrapped in ErrQueryFailed.
func (c *Client) Execute(ctx context.Context, query string) (*QueryResult, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("query", query)

	body, err := c.get(ctx, EndpointSPARQL, c.opts.SPARQLEndpoint, params, "application/sparql-results+json")
	if err != nil {
		c.log.Error().
			Err(err).
			Str("endpoint", EndpointSPARQL).
			Int("query_bytes", len(query)).
			Msg("SPARQL query failed")
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	var result QueryResult
	if err := json.Unmarshal(body, &result); err != nil {
		c.log.Error().
			Err(err).
			Str("endpoint", EndpointSPARQL).
			Msg("SPARQL response is not valid JSON")
		return nil, fmt.Errorf("%w: decode response: %v", ErrQueryFailed, err)
	}

	c.log.Debug().
		Int("bindings", len(result.Results.Bindings)).
		Msg("SPARQL query completed")
	return &result, nil
}

func (c *Client) get(ctx context.Context, endpoint, base string, params url.Values, accept string) ([]byte, error) {
	start := time.Now()
	body, err := c.do(ctx, base, params, accept)
	if c.opts.Observe != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.opts.Observe(endpoint, status, time.Since(start))
	}
	return body, err
}

func (c *Client) do(ctx context.Context, base string, params url.Values, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
