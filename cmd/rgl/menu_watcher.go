package main

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/stlalpha/rgl/internal/config"
	"github.com/stlalpha/rgl/internal/menu"
)

// menuWatcher recompiles the menus file when it changes and hands each
// valid result to the engine. An invalid file is logged and the running
// menus are kept.
type menuWatcher struct {
	path    string
	opts    menu.Options
	engine  *menu.Engine
	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

func newMenuWatcher(path string, opts menu.Options, engine *menu.Engine) *menuWatcher {
	return &menuWatcher{path: path, opts: opts, engine: engine, done: make(chan struct{})}
}

// Start watches the directory holding the menus file, so editors that
// replace the file by rename are still seen.
func (mw *menuWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(mw.path)); err != nil {
		w.Close()
		return err
	}
	mw.watcher = w
	go mw.watchLoop(w)
	log.Debug().Str("menus", mw.path).Msg("menus file watcher started")
	return nil
}

// Stop ends the watch loop. Safe to call more than once.
func (mw *menuWatcher) Stop() {
	mw.once.Do(func() {
		close(mw.done)
		if mw.watcher != nil {
			mw.watcher.Close()
		}
	})
}

func (mw *menuWatcher) watchLoop(w *fsnotify.Watcher) {
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond
	target := filepath.Clean(mw.path)

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDuration, mw.reload)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("menus file watcher error")

		case <-mw.done:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}

func (mw *menuWatcher) reload() {
	doc, err := config.LoadMenus(mw.path)
	if err != nil {
		log.Error().Err(err).Msg("failed to reload menus, keeping current menus")
		return
	}
	set, err := menu.Compile(doc, mw.opts)
	if err != nil {
		log.Error().Err(err).Msg("reloaded menus are invalid, keeping current menus")
		return
	}
	for _, id := range set.Unreachable {
		log.Warn().Str("menu", id).Msg("menu is unreachable")
	}
	mw.engine.Swap(set)
	log.Info().Int("menus", set.Len()).Msg("menus reloaded")
}
