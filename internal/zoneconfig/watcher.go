package zoneconfig

import (
	"log"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/brinkbyte/edgegw/internal/zones"
)

// ReloadFunc applies a freshly-parsed document's descriptors, typically
// a pair of zones.LineManager.Reconfigure / zones.PolygonManager.Reconfigure
// calls with removeMissing=true.
type ReloadFunc func(lines []zones.LineDescriptor, polygons []zones.PolygonDescriptor) error

// Watcher watches one zone configuration file for changes and reloads
// it on write, debounced to coalesce the burst of events a single save
// can produce (editors commonly write+rename+chmod on save).
type Watcher struct {
	path     string
	reload   ReloadFunc
	debounce time.Duration

	fsw  *fsnotify.Watcher
	quit chan struct{}
	done chan struct{}
}

// NewWatcher constructs a Watcher for path. Call Start to begin
// watching; it loads the file once synchronously before returning.
func NewWatcher(path string, reload ReloadFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path: path, reload: reload, debounce: 200 * time.Millisecond,
		fsw: fsw, quit: make(chan struct{}), done: make(chan struct{}),
	}
	return w, nil
}

// Start performs an initial load and begins watching for changes.
func (w *Watcher) Start() error {
	if err := w.loadAndApply(); err != nil {
		return err
	}
	if err := w.fsw.Add(w.path); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *Watcher) loadAndApply() error {
	lines, polygons, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	return w.reload(lines, polygons)
}

func (w *Watcher) run() {
	defer close(w.done)
	var pending *time.Timer

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, w.onChange)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("zoneconfig: watcher error for %s: %v", w.path, err)

		case <-w.quit:
			if pending != nil {
				pending.Stop()
			}
			return
		}
	}
}

func (w *Watcher) onChange() {
	if err := w.loadAndApply(); err != nil {
		log.Printf("zoneconfig: reload of %s failed, keeping previous configuration: %v", w.path, err)
	}
}

// Stop halts the watcher and releases its OS resources.
func (w *Watcher) Stop() {
	close(w.quit)
	<-w.done
	w.fsw.Close()
}
