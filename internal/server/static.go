package server

import (
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// handleStatic serves files from the static directory; "/" maps to index.html.
// Cleaning against "/" keeps the resolved path inside the directory.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = "index.html"
	}
	full := filepath.Join(s.opts.StaticDir, filepath.FromSlash(name))

	f, err := os.Open(full)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.HTTPLogger("/*").Warn("Failed to open static file").Err(err).Str("file", full).Send()
		}
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "File not found"})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "File not found"})
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
