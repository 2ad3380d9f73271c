package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"srcwatch/internal/fsutil"

	"github.com/fsnotify/fsnotify"
)

type watchHandle struct {
	watcher *Watcher
	path    string
	id      uint64
	once    sync.Once
}

func (handle *watchHandle) Close() error {
	if handle == nil || handle.watcher == nil {
		return nil
	}
	var err error
	handle.once.Do(func() {
		err = handle.watcher.removeCallback(handle.path, handle.id, true)
	})
	return err
}

// Watch registers a callback for changes to a single file.
func (watcher *Watcher) Watch(path string, callback func(Event)) (Handle, error) {
	if watcher == nil {
		return nil, errors.New("watcher is nil")
	}
	if path == "" {
		return nil, errors.New("path is required")
	}
	if callback == nil {
		return nil, errors.New("callback is required")
	}

	path, err := fsutil.AbsPath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("watch %s: is a directory", path)
	}
	fingerprint, fingerprintErr := fingerprintFile(path)

	dir := filepath.Dir(path)

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil, ErrWatcherClosed
	}

	entry := watcher.files[path]
	needsAdd := entry == nil
	if needsAdd && watcher.activeWatches >= watcher.maxWatches {
		watcher.mutex.Unlock()
		return nil, ErrMaxWatchesExceeded
	}
	if needsAdd {
		entry = &fileEntry{
			fingerprint:    fingerprint,
			hasFingerprint: fingerprintErr == nil,
		}
		watcher.files[path] = entry
		watcher.activeWatches++
	}
	watcher.nextID++
	registration := callbackEntry{id: watcher.nextID, callback: callback}
	entry.callbacks = append(entry.callbacks, registration)

	needsDir := false
	if needsAdd {
		watcher.dirs[dir]++
		needsDir = watcher.dirs[dir] == 1
	}
	activeCount := watcher.activeWatches
	notify := watcher.watcher
	watcher.mutex.Unlock()

	if needsDir && notify != nil {
		if err := notify.Add(dir); err != nil {
			_ = watcher.removeCallback(path, registration.id, false)
			watcher.logWarn("watch add failed", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
			return nil, err
		}
	}
	if needsAdd {
		watcher.logDebug("watch added", path, activeCount)
	}

	return &watchHandle{watcher: watcher, path: path, id: registration.id}, nil
}

// removeCallback drops one registration. When the last file in a directory
// goes away the directory watch is released too, unless release is false.
func (watcher *Watcher) removeCallback(path string, id uint64, release bool) error {
	if watcher == nil {
		return nil
	}

	dir := filepath.Dir(path)
	removedFile := false
	removeDir := false

	watcher.mutex.Lock()
	entry := watcher.files[path]
	if entry != nil {
		for index, candidate := range entry.callbacks {
			if candidate.id == id {
				entry.callbacks = append(entry.callbacks[:index], entry.callbacks[index+1:]...)
				break
			}
		}
		if len(entry.callbacks) == 0 {
			delete(watcher.files, path)
			removedFile = true
			if watcher.activeWatches > 0 {
				watcher.activeWatches--
			}
			if count := watcher.dirs[dir]; count <= 1 {
				delete(watcher.dirs, dir)
				delete(watcher.lostDirs, dir)
				removeDir = true
			} else {
				watcher.dirs[dir] = count - 1
			}
		}
	}
	activeCount := watcher.activeWatches
	notify := watcher.watcher
	closed := watcher.closed
	watcher.mutex.Unlock()

	if removedFile {
		watcher.logDebug("watch removed", path, activeCount)
	}
	if !removeDir || !release || closed || notify == nil {
		return nil
	}
	if err := notify.Remove(dir); err != nil {
		if errors.Is(err, fsnotify.ErrNonExistentWatch) || errors.Is(err, fsnotify.ErrClosed) {
			return nil
		}
		watcher.logWarn("watch remove failed", map[string]string{
			"path":  dir,
			"error": err.Error(),
		})
		return err
	}
	return nil
}

// WatchedFiles returns the number of files with at least one registration.
func (watcher *Watcher) WatchedFiles() int {
	if watcher == nil {
		return 0
	}
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	return len(watcher.files)
}

func (watcher *Watcher) callbacksForPathLocked(path string) []func(Event) {
	entry := watcher.files[path]
	if entry == nil {
		return nil
	}
	callbacks := make([]func(Event), 0, len(entry.callbacks))
	for _, registration := range entry.callbacks {
		callbacks = append(callbacks, registration.callback)
	}
	return callbacks
}
