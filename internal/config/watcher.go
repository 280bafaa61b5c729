package config

import (
	"errors"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to a set of files. It watches their directories
// so that editors that save by renaming a temporary file are noticed too.
//
// Changes are collected in the background and handed out by Poll, which
// never blocks, so the editor's idle tick can drain them.
type Watcher struct {
	fsw *fsnotify.Watcher

	mu      sync.Mutex
	files   map[string]bool
	dirs    map[string]bool
	changed []string
	errs    []error
	closed  bool

	wg sync.WaitGroup
}

// NewWatcher starts a watcher with nothing watched.
func NewWatcher() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:   fsw,
		files: make(map[string]bool),
		dirs:  make(map[string]bool),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Watch adds path. The file need not exist yet; its directory must.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if !w.dirs[dir] {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	w.files[abs] = true
	return nil
}

// Poll returns the watched files changed since the last call, each once,
// and any watch errors. It never blocks.
func (w *Watcher) Poll() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	changed, errs := w.changed, w.errs
	w.changed, w.errs = nil, nil
	return changed, errors.Join(errs...)
}

// Close stops watching. Poll keeps returning what was collected before.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
				w.record(filepath.Clean(ev.Name))
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			w.errs = append(w.errs, err)
			w.mu.Unlock()
		}
	}
}

func (w *Watcher) record(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files[path] && !slices.Contains(w.changed, path) {
		w.changed = append(w.changed, path)
	}
}
