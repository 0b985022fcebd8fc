package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/pinpoint/pkg/dataset"
	"github.com/nainya/pinpoint/pkg/wikidata"
)

type stubFetcher struct {
	mu      sync.Mutex
	records []dataset.Record
	err     error
	calls   int
}

func (f *stubFetcher) Fetch(_ context.Context, _ dataset.Config) ([]dataset.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.records, f.err
}

func (f *stubFetcher) set(records []dataset.Record, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records, f.err = records, err
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%04d", n)
	}
}

func setupTestStore(t *testing.T) (*Store, *stubFetcher, string) {
	t.Helper()
	dir := t.TempDir()
	fetcher := &stubFetcher{records: []dataset.Record{
		dataset.NewPointRecord("Paris", "Q90", 48.8566, 2.3522),
		dataset.NewPointRecord("Lyon", "Q456", 45.76, 4.84),
	}}
	s, err := Open(Options{
		Path:    filepath.Join(dir, "datasets.json"),
		DataDir: dir,
		Fetcher: fetcher,
		Logger:  zerolog.Nop(),
		NewID:   sequentialIDs(),
	})
	require.NoError(t, err)
	return s, fetcher, dir
}

func cityRequest(name string) SaveRequest {
	return SaveRequest{
		Config:         dataset.NewConfig("Q515", dataset.Point),
		Name:           name,
		Description:    "Large French cities",
		PromptTemplate: "Find {label}",
	}
}

func readDocument(t *testing.T, path string) []dataset.Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []dataset.Entry
	require.NoError(t, json.Unmarshal(data, &entries))
	return entries
}

func TestListWithoutDocument(t *testing.T) {
	s, _, _ := setupTestStore(t)

	_, err := s.List()
	assert.ErrorIs(t, err, ErrNoStore)
	assert.Equal(t, 0, s.Len())
}

func TestSaveCreatesThenAppends(t *testing.T) {
	s, _, dir := setupTestStore(t)
	ctx := context.Background()

	id1, err := s.Save(ctx, cityRequest("Cities A"))
	require.NoError(t, err)

	entries := readDocument(t, s.Path())
	require.Len(t, entries, 1)
	first := entries[0]
	assert.Equal(t, id1, first.ID)
	assert.Equal(t, "custom_0001", first.ID)
	assert.Equal(t, "dataset_0001.json", first.Filename)
	assert.Equal(t, dataset.Point, first.Type)
	assert.Equal(t, "Find {label}", first.PromptTemplate)
	assert.Equal(t, map[string]string{"label": "label", "lat": "lat", "lng": "lng"}, first.DataKeys)
	require.NotNil(t, first.Config)
	assert.Equal(t, "Q515", first.Config.ItemType)

	id2, err := s.Save(ctx, cityRequest("Cities B"))
	require.NoError(t, err)

	entries = readDocument(t, s.Path())
	require.Len(t, entries, 2)
	assert.Equal(t, first, entries[0], "first entry must be unchanged")
	assert.Equal(t, id2, entries[1].ID)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
	assert.NotEqual(t, entries[0].Filename, entries[1].Filename)

	for _, e := range entries {
		assert.FileExists(t, filepath.Join(dir, e.Filename))
	}
}

func TestSaveWritesNormalizedRecords(t *testing.T) {
	s, _, dir := setupTestStore(t)

	id, err := s.Save(context.Background(), cityRequest("Cities"))
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "dataset_0001.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"label":"Paris","id":"Q90","lat":48.8566,"lng":2.3522},
		{"label":"Lyon","id":"Q456","lat":45.76,"lng":4.84}
	]`, string(raw))

	records, err := s.Records(id)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSaveUpdatesInPlace(t *testing.T) {
	s, fetcher, dir := setupTestStore(t)
	ctx := context.Background()

	idA, err := s.Save(ctx, cityRequest("A"))
	require.NoError(t, err)
	idB, err := s.Save(ctx, cityRequest("B"))
	require.NoError(t, err)
	_, err = s.Save(ctx, cityRequest("C"))
	require.NoError(t, err)

	before := readDocument(t, s.Path())

	fetcher.set([]dataset.Record{dataset.NewPointRecord("Marseille", "Q23482", 43.3, 5.37)}, nil)
	update := cityRequest("B renamed")
	update.ID = idB
	update.Config.MinPopulation = 500000

	gotID, err := s.Save(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, idB, gotID)

	after := readDocument(t, s.Path())
	require.Len(t, after, 3)
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, before[2], after[2])
	assert.Equal(t, idB, after[1].ID)
	assert.Equal(t, before[1].Filename, after[1].Filename)
	assert.Equal(t, "B renamed", after[1].Name)
	assert.Equal(t, int64(500000), after[1].Config.MinPopulation)
	assert.Equal(t, idA, after[0].ID)

	raw, err := os.ReadFile(filepath.Join(dir, after[1].Filename))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Marseille")
}

func TestSaveUnknownIDFailsWithoutFetching(t *testing.T) {
	s, fetcher, _ := setupTestStore(t)

	req := cityRequest("X")
	req.ID = "custom_missing"
	_, err := s.Save(context.Background(), req)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, fetcher.calls)
	assert.NoFileExists(t, s.Path())
}

func TestSaveEmptyResultLeavesStoreUntouched(t *testing.T) {
	s, fetcher, dir := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, cityRequest("Seed"))
	require.NoError(t, err)
	docBefore, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	fetcher.set([]dataset.Record{}, nil)
	_, err = s.Save(ctx, cityRequest("Empty"))
	assert.ErrorIs(t, err, dataset.ErrEmptyResult)

	docAfter, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, docBefore, docAfter)
	assert.Equal(t, 1, s.Len())

	files, err := filepath.Glob(filepath.Join(dir, "dataset_*.json"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestSaveFetchFailureLeavesStoreUntouched(t *testing.T) {
	s, fetcher, _ := setupTestStore(t)
	fetcher.set(nil, fmt.Errorf("fetch: %w", wikidata.ErrQueryFailed))

	_, err := s.Save(context.Background(), cityRequest("X"))
	assert.ErrorIs(t, err, wikidata.ErrQueryFailed)
	assert.NoFileExists(t, s.Path())
}

func TestSaveDefaultsPromptTemplate(t *testing.T) {
	s, _, _ := setupTestStore(t)
	req := cityRequest("X")
	req.PromptTemplate = "  "

	id, err := s.Save(context.Background(), req)
	require.NoError(t, err)

	e, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, dataset.DefaultPromptTemplate, e.PromptTemplate)
}

func TestDeleteRemovesEntryAndFile(t *testing.T) {
	s, _, dir := setupTestStore(t)
	ctx := context.Background()

	idA, err := s.Save(ctx, cityRequest("A"))
	require.NoError(t, err)
	idB, err := s.Save(ctx, cityRequest("B"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(idA))

	entries := readDocument(t, s.Path())
	require.Len(t, entries, 1)
	assert.Equal(t, idB, entries[0].ID)
	assert.NoFileExists(t, filepath.Join(dir, "dataset_0001.json"))
	assert.FileExists(t, filepath.Join(dir, "dataset_0002.json"))
}

func TestDeleteUnknownIDLeavesStoreUntouched(t *testing.T) {
	s, _, _ := setupTestStore(t)

	_, err := s.Save(context.Background(), cityRequest("A"))
	require.NoError(t, err)
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	err = s.Delete("custom_nope")
	assert.ErrorIs(t, err, ErrNotFound)

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDeleteToleratesMissingDataFile(t *testing.T) {
	s, _, dir := setupTestStore(t)

	id, err := s.Save(context.Background(), cityRequest("A"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "dataset_0001.json")))

	require.NoError(t, s.Delete(id))
	entries, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteNeverEscapesDataDir(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "keep.json")
	require.NoError(t, os.WriteFile(outside, []byte("{}"), 0o644))

	doc := []dataset.Entry{{ID: "custom_evil", Filename: "../" + filepath.Base(filepath.Dir(outside)) + "/keep.json"}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(dir, "datasets.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	s, err := Open(Options{Path: path, DataDir: dir, Logger: zerolog.Nop()})
	require.NoError(t, err)

	require.NoError(t, s.Delete("custom_evil"))
	assert.FileExists(t, outside)
}

func TestOpenLoadsExistingDocument(t *testing.T) {
	s, _, dir := setupTestStore(t)
	_, err := s.Save(context.Background(), cityRequest("A"))
	require.NoError(t, err)

	reopened, err := Open(Options{Path: s.Path(), DataDir: dir, Logger: zerolog.Nop()})
	require.NoError(t, err)

	entries, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "A", entries[0].Name)
}

func TestOpenRejectsCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "datasets.json")
	require.NoError(t, os.WriteFile(path, []byte("[{"), 0o644))

	_, err := Open(Options{Path: path, DataDir: dir})
	assert.Error(t, err)
}

func TestOpenAcceptsLegacyEntriesWithoutConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "datasets.json")
	legacy := `[{"id":"custom_1700000000","name":"Old","description":"","type":"polygon",
		"filename":"dataset_1700000000.json","prompt_template":"Where is {label}?",
		"sub_prompt_template":"","data_keys":{"label":"label","geoShapeUrl":"geoShapeUrl"}}]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s, err := Open(Options{Path: path, DataDir: dir})
	require.NoError(t, err)

	e, err := s.Get("custom_1700000000")
	require.NoError(t, err)
	assert.Nil(t, e.Config)
	assert.Equal(t, dataset.Polygon, e.Type)
}

func TestReloadPicksUpExternalEdits(t *testing.T) {
	s, _, _ := setupTestStore(t)
	_, err := s.Save(context.Background(), cityRequest("A"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.Path(), []byte(`[]`), 0o644))
	require.NoError(t, s.Reload())

	entries, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListReturnsCopies(t *testing.T) {
	s, _, _ := setupTestStore(t)
	id, err := s.Save(context.Background(), cityRequest("A"))
	require.NoError(t, err)

	entries, err := s.List()
	require.NoError(t, err)
	entries[0].Name = "mutated"
	entries[0].DataKeys["label"] = "mutated"

	e, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "A", e.Name)
	assert.Equal(t, "label", e.DataKeys["label"])
}

func TestConcurrentSavesAreSerialized(t *testing.T) {
	s, _, _ := setupTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Save(context.Background(), cityRequest(fmt.Sprintf("D%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, readDocument(t, s.Path()), 10)
	assert.Equal(t, 10, s.Len())
}

func TestSaveWarnsOnUnknownPromptPlaceholders(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	s, err := Open(Options{
		Path:    filepath.Join(dir, "datasets.json"),
		DataDir: dir,
		Fetcher: &stubFetcher{records: []dataset.Record{dataset.NewPointRecord("Paris", "Q90", 48.8566, 2.3522)}},
		Logger:  zerolog.New(&buf),
		NewID:   sequentialIDs(),
	})
	require.NoError(t, err)

	req := cityRequest("Cities")
	req.PromptTemplate = "Outline {geoShapeUrl}"
	id, err := s.Save(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "{geoShapeUrl}")

	entry, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "Outline {geoShapeUrl}", entry.PromptTemplate)
}

func openWithDocument(t *testing.T, doc string) (*Store, *stubFetcher, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "datasets.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	fetcher := &stubFetcher{records: []dataset.Record{dataset.NewPointRecord("Paris", "Q90", 48.8566, 2.3522)}}
	s, err := Open(Options{
		Path:    path,
		DataDir: dir,
		Fetcher: fetcher,
		Logger:  zerolog.Nop(),
		NewID:   sequentialIDs(),
	})
	require.NoError(t, err)
	return s, fetcher, dir
}

func documentEntries(t *testing.T, path string) []json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var docs []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &docs))
	return docs
}

const capitalsEntry = `{"id":"capitals","name":"Capitals","description":"World capitals","type":"point",
	"filename":"capitals.json","prompt_template":"Where is {label}?","sub_prompt_template":null,
	"data_keys":{"label":"label","lat":"lat","lng":"lng"},
	"config":{"item_type":"q5119","constraints":[],"dataset_type":"point"},
	"difficulty":"hard","icon":"city.svg"}`

func TestUntouchedEntriesStayVerbatim(t *testing.T) {
	doc := `[` + capitalsEntry + `,
		{"id":"custom_1","name":"Mine","description":"","type":"point","filename":"dataset_1.json",
		"prompt_template":"Where is {label}?","sub_prompt_template":"","data_keys":{"label":"label"}}]`
	s, _, dir := openWithDocument(t, doc)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataset_1.json"), []byte("[]"), 0o644))

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	listed, err := json.Marshal(entries[0])
	require.NoError(t, err)
	assert.JSONEq(t, capitalsEntry, string(listed))

	// The typed view is still available
	assert.Equal(t, "Capitals", entries[0].Name)
	require.NotNil(t, entries[0].Config)
	assert.Equal(t, "Q5119", entries[0].Config.ItemType)

	require.NoError(t, s.Delete("custom_1"))
	docs := documentEntries(t, s.Path())
	require.Len(t, docs, 1)
	assert.JSONEq(t, capitalsEntry, string(docs[0]))

	_, err = s.Save(context.Background(), cityRequest("Appended"))
	require.NoError(t, err)
	docs = documentEntries(t, s.Path())
	require.Len(t, docs, 2)
	assert.JSONEq(t, capitalsEntry, string(docs[0]))
	assert.NotContains(t, string(docs[1]), "difficulty")
}

func TestOpenAcceptsUnusualConfigs(t *testing.T) {
	doc := `[
		{"id":"negative","name":"N","type":"point","filename":"n.json",
		 "config":{"item_type":"Q515","dataset_type":"point","min_pop":-1,"limit":100}},
		{"id":"odd","name":"O","type":"point","filename":"o.json",
		 "config":{"item_type":"Q515","min_pop":"lots"}}
	]`
	s, _, _ := openWithDocument(t, doc)

	negative, err := s.Get("negative")
	require.NoError(t, err)
	require.NotNil(t, negative.Config)
	assert.Equal(t, int64(-1), negative.Config.MinPopulation)
	require.NoError(t, negative.Config.Validate())

	odd, err := s.Get("odd")
	require.NoError(t, err)
	assert.Nil(t, odd.Config)
	assert.Contains(t, string(odd.Raw()), `"lots"`)
}

func TestSaveRefusesDataFileOutsideDataDir(t *testing.T) {
	doc := `[{"id":"custom_evil","name":"Evil","type":"point","filename":"../escaped.json"}]`
	s, fetcher, dir := openWithDocument(t, doc)

	req := cityRequest("Evil")
	req.ID = "custom_evil"
	_, err := s.Save(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside the data directory")
	assert.Zero(t, fetcher.calls)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dir), "escaped.json"))
}

func TestDeleteSucceedsWhenDataFileCannotBeRemoved(t *testing.T) {
	s, _, dir := setupTestStore(t)

	id, err := s.Save(context.Background(), cityRequest("A"))
	require.NoError(t, err)

	// A non-empty directory in place of the data file makes removal fail
	dataPath := filepath.Join(dir, "dataset_0001.json")
	require.NoError(t, os.Remove(dataPath))
	require.NoError(t, os.MkdirAll(filepath.Join(dataPath, "nested"), 0o755))

	require.NoError(t, s.Delete(id))

	entries, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, readDocument(t, s.Path()))
	assert.DirExists(t, dataPath)
}
