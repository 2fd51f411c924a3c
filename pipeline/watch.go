package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch rebuilds whenever a .schema file in the schema set's directories
// changes. Events are debounced so editors that write in bursts trigger a
// single recompile. Blocks until ctx is cancelled.
func (r *Runner) Watch(ctx context.Context, entry string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool)
	addDirs := func(res *Result) {
		for _, f := range res.Merged.Files {
			dir := filepath.Dir(filepath.FromSlash(f.Path))
			if watched[dir] {
				continue
			}
			if err := watcher.Add(dir); err != nil {
				r.log.Warn().Err(err).Str("dir", dir).Msg("cannot watch directory")
				continue
			}
			watched[dir] = true
			r.log.Debug().Str("dir", dir).Msg("watching directory")
		}
	}

	// Always watch the entry's directory, even while the entry fails to
	// parse and the file list is empty.
	entryDir := filepath.Dir(entry)
	if err := watcher.Add(entryDir); err != nil {
		return fmt.Errorf("watch %s: %w", entryDir, err)
	}
	watched[entryDir] = true

	rebuild := func() {
		res, err := r.Build(entry)
		if err != nil {
			r.log.Error().Err(err).Msg("build failed")
			return
		}
		for _, d := range res.Diags {
			r.log.Warn().Str("code", string(d.Code)).Msg(d.Error())
		}
		if res.OK() {
			r.log.Info().Msg("build succeeded")
		}
		addDirs(res)
	}

	rebuild()
	r.log.Info().Str("entry", entry).Msg("watching for changes")

	// The timer is armed by file events and fires once they go quiet.
	timer := time.NewTimer(r.cfg.Watch.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".schema") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			r.log.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("schema file changed")
			timer.Reset(r.cfg.Watch.Debounce)

		case <-timer.C:
			rebuild()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Error().Err(err).Msg("file watcher error")

		case <-ctx.Done():
			return nil
		}
	}
}
