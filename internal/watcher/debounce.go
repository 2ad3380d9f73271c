package watcher

import (
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

type debounceEntry struct {
	timer *time.Timer
	event Event
}

type debouncer struct {
	duration time.Duration
	entries  map[string]debounceEntry
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{
		duration: duration,
		entries:  make(map[string]debounceEntry),
	}
}

// schedule records event for path and (re)arms its timer. The returned bool
// is true when a pending event was replaced.
func (debouncer *debouncer) schedule(path string, event Event, flush func(string)) bool {
	if debouncer == nil {
		return false
	}
	entry := debouncer.entries[path]
	dropped := entry.timer != nil
	if dropped {
		event.Op |= entry.event.Op
	}
	entry.event = event
	if entry.timer == nil {
		entry.timer = time.AfterFunc(debouncer.duration, func() {
			flush(path)
		})
	} else {
		entry.timer.Reset(debouncer.duration)
	}
	debouncer.entries[path] = entry
	return dropped
}

func (debouncer *debouncer) pop(path string) (Event, bool) {
	if debouncer == nil {
		return Event{}, false
	}
	entry, ok := debouncer.entries[path]
	if !ok {
		return Event{}, false
	}
	delete(debouncer.entries, path)
	return entry.event, true
}

func (debouncer *debouncer) stop() {
	if debouncer == nil {
		return
	}
	for _, entry := range debouncer.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	debouncer.entries = nil
}

func (watcher *Watcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return
	}
	if _, ok := watcher.dirs[path]; ok && event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		watcher.lostDirs[path] = true
		watcher.mutex.Unlock()
		watcher.logWarn("watched directory removed", map[string]string{"path": path})
		return
	}
	if watcher.files[path] == nil || event.Op == fsnotify.Chmod {
		watcher.mutex.Unlock()
		return
	}

	entry := Event{
		Path:      path,
		Op:        event.Op,
		Timestamp: time.Now().UTC(),
	}
	if watcher.debouncer != nil {
		if dropped := watcher.debouncer.schedule(path, entry, watcher.flush); dropped {
			atomic.AddUint64(&watcher.eventsDropped, 1)
		}
	}
	watcher.mutex.Unlock()
}

func (watcher *Watcher) flush(path string) {
	watcher.mutex.Lock()
	if watcher.closed || watcher.debouncer == nil {
		watcher.mutex.Unlock()
		return
	}
	event, ok := watcher.debouncer.pop(path)
	if !ok {
		watcher.mutex.Unlock()
		return
	}
	ignoreContent := watcher.ignoreContent
	watcher.mutex.Unlock()

	if !ignoreContent && event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
		if !watcher.contentChanged(path) {
			atomic.AddUint64(&watcher.eventsSuppressed, 1)
			return
		}
	} else if !ignoreContent {
		watcher.contentChanged(path)
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return
	}
	callbacks := watcher.callbacksForPathLocked(path)
	watcher.mutex.Unlock()

	for _, callback := range callbacks {
		callback(event)
		atomic.AddUint64(&watcher.eventsDelivered, 1)
	}
}
