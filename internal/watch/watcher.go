package watch

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher follows a single answer file. The parent directory is watched
// because editors often save by writing a temp file and renaming it over
// the original.
type Watcher struct {
	fileAbs  string
	hub      *Hub
	onChange func()
	w        *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher broadcasts answer-changed for every write, create, or rename of
// fileAbs. onChange, if set, runs before the broadcast.
func NewWatcher(fileAbs string, hub *Hub, onChange func()) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(fileAbs)); err != nil {
		_ = w.Close()
		return nil, err
	}

	ww := &Watcher{fileAbs: filepath.Clean(fileAbs), hub: hub, onChange: onChange, w: w, done: make(chan struct{})}
	go ww.loop()
	return ww, nil
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.w.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case <-w.w.Errors:
			// ignore
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != w.fileAbs {
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	if w.onChange != nil {
		w.onChange()
	}
	w.hub.Broadcast(Event{Type: EventAnswerChanged, Path: filepath.Base(w.fileAbs)})
}
