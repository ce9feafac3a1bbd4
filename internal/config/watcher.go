package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ReloadCallback receives the freshly loaded config after the file on
// disk changed and passed validation.
type ReloadCallback func(cfg *Config)

// Watcher monitors the config file and reloads it on change. Editors
// often write via rename, so the parent directory is watched rather
// than the file itself.
type Watcher struct {
	watcher            *fsnotify.Watcher
	configPath         string
	stabilityThreshold time.Duration
	onReload           ReloadCallback
	done               chan struct{}
	debounceTimer      *time.Timer
	debounceMu         sync.Mutex
	stopOnce           sync.Once
}

// NewWatcher creates a config file watcher. stabilityThreshold bounds
// how long after the last write the reload fires; zero means 100ms.
func NewWatcher(configPath string, stabilityThreshold time.Duration, onReload ReloadCallback) (*Watcher, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path is required")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if stabilityThreshold == 0 {
		stabilityThreshold = 100 * time.Millisecond
	}

	return &Watcher{
		watcher:            watcher,
		configPath:         configPath,
		stabilityThreshold: stabilityThreshold,
		onReload:           onReload,
		done:               make(chan struct{}),
	}, nil
}

// Start starts watching the config file's directory
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.configPath)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.eventLoop()

	log.Info().
		Str("path", w.configPath).
		Msg("Config watcher started")

	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	log.Info().Msg("Config watcher stopped")
	return nil
}

// eventLoop processes file system events
func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	// Debounce rapid successive writes
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.stabilityThreshold, func() {
		select {
		case <-w.done:
			return
		default:
			w.reload()
		}
	})
}

// reload re-reads the config file. A file that fails to load or
// validate keeps the previous config in effect.
func (w *Watcher) reload() {
	cfg, err := Load(w.configPath)
	if err != nil {
		log.Error().
			Err(err).
			Str("path", w.configPath).
			Msg("Config reload failed; keeping previous config")
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Error().
			Err(err).
			Str("path", w.configPath).
			Msg("Reloaded config is invalid; keeping previous config")
		return
	}

	log.Info().Str("path", w.configPath).Msg("Config reloaded")

	if w.onReload != nil {
		w.onReload(cfg)
	}
}
