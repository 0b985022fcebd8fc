// ABOUTME: Single-writer dataset store backed by one JSON document
// ABOUTME: Loads on open, flushes the whole document on every mutation

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nainya/pinpoint/pkg/dataset"
	"github.com/nainya/pinpoint/pkg/fsutil"
	"github.com/nainya/pinpoint/pkg/prompt"
)

// Fetcher produces the current records for a config. *pipeline.Fetcher
// implements it.
type Fetcher interface {
	Fetch(ctx context.Context, cfg dataset.Config) ([]dataset.Record, error)
}

// Options configures a Store
type Options struct {
	Path    string // store document
	DataDir string // directory holding per-dataset data files
	Fetcher Fetcher
	Logger  zerolog.Logger

	// NewID mints the unique suffix shared by a new entry's id and filename.
	// Defaults to a random UUID.
	NewID func() string
}

// SaveRequest carries everything needed to create or update a dataset.
// An empty ID creates a new dataset.
type SaveRequest struct {
	ID                string         `json:"id,omitempty"`
	Config            dataset.Config `json:"config"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	PromptTemplate    string         `json:"prompt_template"`
	SubPromptTemplate string         `json:"sub_prompt_template"`
}

// Store owns the in-memory dataset list. All reads and writes go through mu,
// so concurrent saves and deletes are serialized.
type Store struct {
	mu      sync.Mutex
	path    string
	dataDir string
	fetcher Fetcher
	log     zerolog.Logger
	newID   func() string

	entries []dataset.Entry
	exists  bool // a store document has been loaded or written
}

// Open creates a store and loads its document if one exists.
// A document that exists but cannot be parsed is an error.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if opts.DataDir == "" {
		opts.DataDir = filepath.Dir(opts.Path)
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	s := &Store{
		path:    opts.Path,
		dataDir: opts.DataDir,
		fetcher: opts.Fetcher,
		log:     opts.Logger,
		newID:   opts.NewID,
		entries: []dataset.Entry{},
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the store document path
func (s *Store) Path() string {
	return s.path
}

// DataPath returns the path of a data file referenced by an entry
func (s *Store) DataPath(filename string) string {
	return filepath.Join(s.dataDir, filename)
}

// Reload replaces the in-memory list with the document on disk.
// On error the in-memory list is left unchanged.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, exists, err := s.load()
	if err != nil {
		return err
	}
	s.entries = entries
	s.exists = exists

	s.log.Debug().
		Str("path", s.path).
		Int("entries", len(entries)).
		Bool("exists", exists).
		Msg("Loaded dataset store")
	return nil
}

func (s *Store) load() ([]dataset.Entry, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []dataset.Entry{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read store %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []dataset.Entry{}, true, nil
	}

	var entries []dataset.Entry
	if err := fsutil.ReadJSONFile(s.path, &entries); err != nil {
		return nil, false, fmt.Errorf("load store: %w", err)
	}
	if entries == nil {
		entries = []dataset.Entry{}
	}
	return entries, true, nil
}

// List returns a copy of all entries in insertion order, or ErrNoStore if
// no document exists yet.
func (s *Store) List() ([]dataset.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exists {
		return nil, ErrNoStore
	}
	out := make([]dataset.Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = cloneEntry(e)
	}
	return out, nil
}

// Get returns the entry with the given id
func (s *Store) Get(id string) (dataset.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return dataset.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneEntry(s.entries[idx]), nil
}

// Len returns the number of stored datasets
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Records reads the data file of the dataset with the given id
func (s *Store) Records(id string) ([]dataset.Record, error) {
	entry, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	var records []dataset.Record
	if err := fsutil.ReadJSONFile(s.DataPath(entry.Filename), &records); err != nil {
		return nil, fmt.Errorf("read data for %s: %w", id, err)
	}
	return records, nil
}

// Save re-fetches live data for req.Config and persists it.
//
// Without an id a new entry is appended with a freshly minted id and
// filename. With an id the entry must exist (ErrNotFound otherwise); its data
// file is overwritten and the metadata replaced at the same position.
// A fetch that yields no records fails with dataset.ErrEmptyResult and
// leaves the store untouched.
func (s *Store) Save(ctx context.Context, req SaveRequest) (string, error) {
	if s.fetcher == nil {
		return "", fmt.Errorf("store has no fetcher configured")
	}

	// Fail fast on an unknown id or unusable entry before spending a query on it
	if req.ID != "" {
		existing, err := s.Get(req.ID)
		if err != nil {
			return "", err
		}
		if !isLocalFilename(existing.Filename) {
			return "", fmt.Errorf("dataset %s: data file %q is outside the data directory", req.ID, existing.Filename)
		}
	}

	// The network fetch runs outside the lock
	records, err := s.fetcher.Fetch(ctx, req.Config)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", dataset.ErrEmptyResult
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		id       string
		filename string
		idx      = -1
	)
	if req.ID != "" {
		idx = s.indexOf(req.ID)
		if idx < 0 {
			// Deleted while the fetch was running
			return "", fmt.Errorf("%w: %s", ErrNotFound, req.ID)
		}
		id = req.ID
		filename = s.entries[idx].Filename
		if !isLocalFilename(filename) {
			return "", fmt.Errorf("dataset %s: data file %q is outside the data directory", id, filename)
		}
	} else {
		suffix := s.newID()
		id = "custom_" + suffix
		filename = "dataset_" + suffix + ".json"
		if s.indexOf(id) >= 0 {
			return "", fmt.Errorf("minted id %s already exists", id)
		}
	}

	cfg := req.Config
	cfg.Constraints = slices.Clone(cfg.Constraints)
	promptTemplate := req.PromptTemplate
	if strings.TrimSpace(promptTemplate) == "" {
		promptTemplate = dataset.DefaultPromptTemplate
	}
	dataKeys := dataset.DataKeys(cfg.DatasetType)
	for _, tmpl := range []string{promptTemplate, req.SubPromptTemplate} {
		if unknown := prompt.Unknown(tmpl, dataKeys); len(unknown) > 0 {
			s.log.Warn().
				Str("template", tmpl).
				Str("placeholders", prompt.Describe(unknown)).
				Msg("Prompt template references fields missing from records")
		}
	}

	entry := dataset.Entry{
		ID:                id,
		Name:              req.Name,
		Description:       req.Description,
		Type:              cfg.DatasetType,
		Filename:          filename,
		PromptTemplate:    promptTemplate,
		SubPromptTemplate: req.SubPromptTemplate,
		Config:            &cfg,
		DataKeys:          dataKeys,
	}

	dataPath := s.DataPath(filename)
	if err := fsutil.WriteJSONFile(dataPath, records); err != nil {
		return "", fmt.Errorf("write data file: %w", err)
	}

	next := slices.Clone(s.entries)
	if idx >= 0 {
		next[idx] = entry
	} else {
		next = append(next, entry)
	}

	if err := s.flush(next); err != nil {
		if idx < 0 {
			// A new data file without an entry would be an orphan
			if rmErr := os.Remove(dataPath); rmErr != nil {
				s.log.Warn().Err(rmErr).Str("file", dataPath).Msg("Failed to remove data file after store write failure")
			}
		}
		return "", err
	}

	s.log.Info().
		Str("id", id).
		Str("filename", filename).
		Int("records", len(records)).
		Bool("update", idx >= 0).
		Int("total", len(next)).
		Msg("Saved dataset")
	return id, nil
}

// Delete removes a dataset's metadata entry and then, best effort, its data
// file. A file that cannot be removed is logged and left behind as an orphan.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	target := s.entries[idx]

	next := slices.Delete(slices.Clone(s.entries), idx, idx+1)
	if err := s.flush(next); err != nil {
		return err
	}

	s.removeDataFile(target.Filename)
	s.log.Info().Str("id", id).Int("total", len(next)).Msg("Deleted dataset")
	return nil
}

func (s *Store) removeDataFile(filename string) {
	if !isLocalFilename(filename) {
		s.log.Warn().Str("filename", filename).Msg("Refusing to remove data file outside the data directory")
		return
	}
	path := s.DataPath(filename)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Err(err).Str("file", path).Msg("Failed to remove data file; leaving orphan")
	}
}

// flush writes entries as the store document and adopts them in memory.
// Callers hold mu.
func (s *Store) flush(entries []dataset.Entry) error {
	if err := fsutil.WriteJSONFile(s.path, entries); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	s.entries = entries
	s.exists = true
	return nil
}

// isLocalFilename reports whether filename names a file directly inside the
// data directory. Entries may come from a hand-edited document.
func isLocalFilename(filename string) bool {
	return filename != "" && filename != "." && filename != ".." && filepath.Base(filename) == filename
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.entries, func(e dataset.Entry) bool { return e.ID == id })
}

func cloneEntry(e dataset.Entry) dataset.Entry {
	e.DataKeys = maps.Clone(e.DataKeys)
	if e.Config != nil {
		cfg := *e.Config
		cfg.Constraints = slices.Clone(cfg.Constraints)
		e.Config = &cfg
	}
	return e
}
