// ABOUTME: HTTP handlers for search, preview, save, delete, dataset listing and map proxying
// ABOUTME: API errors are {"detail": ...}; listing, proxy and static errors are {"message": ...}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nainya/pinpoint/pkg/dataset"
	"github.com/nainya/pinpoint/pkg/mapcache"
	"github.com/nainya/pinpoint/pkg/store"
	"github.com/nainya/pinpoint/pkg/wikidata"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// DeleteRequest is the body of POST /api/delete
type DeleteRequest struct {
	ID string `json:"id"`
}

// SaveResponse is returned by POST /api/save
type SaveResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "query parameter q is required"})
		return
	}

	kind := wikidata.KindItem
	if t := r.URL.Query().Get("type"); t != "" {
		kind = wikidata.SearchKind(t)
	}
	if kind != wikidata.KindItem && kind != wikidata.KindProperty {
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "type must be item or property"})
		return
	}

	results := s.searcher.Search(r.Context(), q, kind)
	if results == nil {
		results = []wikidata.EntityRef{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var cfg dataset.Config
	if !decodeBody(w, r, &cfg) {
		return
	}

	records, err := s.fetcher.Fetch(r.Context(), cfg)
	if err != nil {
		if errors.Is(err, dataset.ErrInvalidConfig) {
			writeJSON(w, http.StatusBadRequest, detailResponse{Detail: err.Error()})
			return
		}
		s.log.HTTPLogger("/api/preview").Error("Preview failed").Err(err).Send()
		writeJSON(w, http.StatusInternalServerError, detailResponse{Detail: "Failed to fetch data from Wikidata"})
		return
	}
	if records == nil {
		records = []dataset.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req store.SaveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start := time.Now()
	id, err := s.store.Save(r.Context(), req)
	s.recordStoreOperation("save", start, err)
	if err != nil {
		switch {
		case errors.Is(err, dataset.ErrInvalidConfig):
			writeJSON(w, http.StatusBadRequest, detailResponse{Detail: err.Error()})
		case errors.Is(err, dataset.ErrEmptyResult):
			writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "No items found to save"})
		case errors.Is(err, store.ErrNotFound):
			writeJSON(w, http.StatusNotFound, detailResponse{Detail: "Dataset not found"})
		case errors.Is(err, wikidata.ErrQueryFailed):
			writeJSON(w, http.StatusInternalServerError, detailResponse{Detail: "Failed to fetch data"})
		default:
			writeJSON(w, http.StatusInternalServerError, detailResponse{Detail: "Failed to save dataset"})
		}
		return
	}

	writeJSON(w, http.StatusOK, SaveResponse{Message: "Dataset saved successfully", ID: id})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start := time.Now()
	err := s.store.Delete(req.ID)
	s.recordStoreOperation("delete", start, err)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, detailResponse{Detail: "Dataset not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, detailResponse{Detail: "Failed to delete dataset"})
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Dataset deleted"})
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List()
	if err != nil {
		if errors.Is(err, store.ErrNoStore) {
			writeJSON(w, http.StatusNotFound, messageResponse{Message: "Datasets not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Error reading datasets"})
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleProxyMap(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "query parameter url is required"})
		return
	}

	data, status, err := s.mapCache.Lookup(r.Context(), rawURL)
	if err != nil {
		s.metrics.RecordMapCacheLookup("error")
		if errors.Is(err, mapcache.ErrURLNotAllowed) {
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: err.Error()})
		return
	}
	s.metrics.RecordMapCacheLookup(string(status))

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", strings.ToUpper(string(status)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) recordStoreOperation(op string, start time.Time, err error) {
	duration := time.Since(start)
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordStoreOperation(op, status, duration)
	s.metrics.UpdateStoreStats(s.store.Len())
	s.log.LogStoreOperation(op, duration, s.store.Len(), err)
}

// decodeBody reads a JSON body into v, writing a 400 on failure
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// writeJSON writes a JSON response with the given status code
// writeJSON encodes before writing the status so a failed encode is a clean 500
func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
