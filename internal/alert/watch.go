package alert

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/colony/pkg/models"
)

// Follow calls fn for every alert file that appears in dir until ctx is
// cancelled. Existing files are not replayed; use List for those.
func Follow(ctx context.Context, dir string, fn func(models.HumanAlert)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Alerts are published by rename, so Create covers them.
			if !ev.Has(fsnotify.Create) || !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			a, err := ReadFile(ev.Name)
			if err != nil {
				log.Printf("[alert] skipping %s: %v", filepath.Base(ev.Name), err)
				continue
			}
			fn(a)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[alert] watcher error: %v", err)
		}
	}
}
