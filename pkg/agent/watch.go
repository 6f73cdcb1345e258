package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/fsnotify/fsnotify"
)

// watchDebounce batches the burst of events an editor or config
// management tool produces for one save
const watchDebounce = 250 * time.Millisecond

// WatchFile calls onChange whenever path is written, created, renamed or
// removed. The parent directory is watched so atomic replacements are seen.
func WatchFile(ctx context.Context, path string, onChange func()) error {
	logger := log.WithComponent("watch")

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logger.Info().Str("path", path).Msg("Watching desired configuration")

	target := filepath.Clean(path)
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op == fsnotify.Chmod {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			logger.Debug().Str("path", path).Msg("Desired configuration changed")
			onChange()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}
