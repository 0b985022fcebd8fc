// Package pipeline runs the dataset fetch: compile the config into SPARQL,
// execute it, and normalize the bindings into records.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nainya/pinpoint/pkg/dataset"
	"github.com/nainya/pinpoint/pkg/sparql"
	"github.com/nainya/pinpoint/pkg/wikidata"
)

// Executor runs a compiled query. *wikidata.Client implements it.
type Executor interface {
	Execute(ctx context.Context, query string) (*wikidata.QueryResult, error)
}

// Fetcher turns dataset configs into records
type Fetcher struct {
	exec Executor
	log  zerolog.Logger

	// OnRecords, if set, is called after every successful fetch
	OnRecords func(t dataset.Type, n int)
}

// NewFetcher creates a fetcher over exec
func NewFetcher(exec Executor, log zerolog.Logger) *Fetcher {
	return &Fetcher{exec: exec, log: log}
}

// Fetch validates cfg, runs its query and returns the normalized records.
// A successful query with no usable rows yields an empty slice and no error;
// an execution failure is returned wrapped (wikidata.ErrQueryFailed).
func (f *Fetcher) Fetch(ctx context.Context, cfg dataset.Config) ([]dataset.Record, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	query := sparql.Compile(cfg)
	f.log.Debug().
		Str("item_type", cfg.ItemType).
		Str("dataset_type", string(cfg.DatasetType)).
		Int("constraints", len(cfg.Constraints)).
		Str("query", query).
		Msg("Fetching dataset")

	raw, err := f.exec.Execute(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch %s dataset: %w", cfg.DatasetType, err)
	}

	records := dataset.Normalize(raw, cfg.DatasetType)
	rows := 0
	if raw != nil {
		rows = len(raw.Results.Bindings)
	}
	if dropped := rows - len(records); dropped > 0 {
		f.log.Debug().
			Int("rows", rows).
			Int("dropped", dropped).
			Msg("Skipped malformed result rows")
	}
	if f.OnRecords != nil {
		f.OnRecords(cfg.DatasetType, len(records))
	}
	return records, nil
}
