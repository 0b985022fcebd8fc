package server

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// watchStore reloads the store when its document is changed out of band.
// The parent directory is watched because atomic renames replace the file.
func (s *Server) watchStore(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(s.store.Path())
	log := s.log.WithFields(map[string]interface{}{
		"component": "watcher",
		"store":     target,
	})
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		log.Error("Failed to watch store directory").Err(err).Str("dir", filepath.Dir(target)).Send()
		// Keep serving without reloads
		<-ctx.Done()
		return nil
	}

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			log.Debug("Store document changed").Str("op", event.Op.String()).Send()
			debounceTimer = time.AfterFunc(reloadDebounce, s.reloadStore)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Store watcher error").Err(err).Send()
		}
	}
}

func (s *Server) reloadStore() {
	start := time.Now()
	err := s.store.Reload()
	s.recordStoreOperation("reload", start, err)
	if err != nil {
		s.log.Warn("Store reload failed; keeping previous contents").Err(err).Send()
	}
}
