package intake

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/TobiSchelling/leadflow/internal/config"
)

// Watcher re-runs intake when a local csv feed file changes. Bursts of
// events within the debounce interval trigger a single run.
type Watcher struct {
	files    map[string]bool
	dirs     map[string]bool
	debounce time.Duration
	onChange func(ctx context.Context) error
	log      zerolog.Logger
}

// NewWatcher watches the local csv feeds among feeds.
func NewWatcher(feeds []config.Feed, debounce time.Duration, onChange func(ctx context.Context) error, logger zerolog.Logger) (*Watcher, error) {
	w := &Watcher{
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
		debounce: debounce,
		onChange: onChange,
		log:      logger.With().Str("component", "watcher").Logger(),
	}
	for _, f := range feeds {
		if f.Kind != config.KindCSV {
			continue
		}
		abs, err := filepath.Abs(config.ExpandHome(f.Location))
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", f.Location, err)
		}
		w.files[abs] = true
		w.dirs[filepath.Dir(abs)] = true
	}
	if len(w.files) == 0 {
		return nil, fmt.Errorf("no local csv feeds to watch")
	}
	return w, nil
}

// Files returns the number of watched feed files.
func (w *Watcher) Files() int {
	return len(w.files)
}

// Run blocks until ctx is done, invoking onChange after each debounced
// burst of writes to a watched file. Directories are watched so editors
// that replace files on save are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	for dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		w.log.Debug().Str("dir", dir).Msg("Watching directory")
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Feed file changed")
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Stack().Err(err).Msg("Watcher error")

		case <-timer.C:
			if err := w.onChange(ctx); err != nil {
				w.log.Error().Stack().Err(err).Msg("Re-running intake failed")
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return w.files[abs]
}
