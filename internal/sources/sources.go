package sources

import (
	"errors"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"srcwatch/internal/fsutil"
	"srcwatch/internal/logging"
	"srcwatch/internal/watcher"
)

// Options configures a Watcher.
type Options struct {
	// Watch creates the per-file subscriptions. Required.
	Watch watcher.Watch
	// Modules lists the currently loaded modules. Nil means only the entry
	// script is watched.
	Modules ModuleLister
	// Classifier decides which module files are local. Defaults to the entry
	// script's directory with no exclusions.
	Classifier *Classifier
	Logger     *logging.Logger
}

// Watcher tracks the local source files of a running program and keeps
// exactly one watch per file.
type Watcher struct {
	script     Script
	onChange   func(watcher.Event)
	watch      watcher.Watch
	modules    ModuleLister
	classifier *Classifier
	logger     *logging.Logger

	mutex       sync.Mutex
	watched     map[string]watcher.Handle
	lastModules []Module
	closed      bool
}

// New creates a Watcher and immediately watches the entry script. A failed
// subscription is logged and retried by the next Refresh.
func New(script Script, onChange func(watcher.Event), options Options) *Watcher {
	if abs, err := fsutil.AbsPath(script.Path); err == nil {
		script.Path = abs
	}

	classifier := options.Classifier
	if classifier == nil {
		classifier, _ = NewClassifier(filepath.Dir(script.Path), nil, nil)
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(nil, logging.LevelInfo, nil)
	}

	sourcesWatcher := &Watcher{
		script:     script,
		onChange:   onChange,
		watch:      options.Watch,
		modules:    options.Modules,
		classifier: classifier,
		logger:     logger.With(map[string]string{"srcwatch.category": "sources"}),
		watched:    make(map[string]watcher.Handle),
	}

	sourcesWatcher.mutex.Lock()
	sourcesWatcher.watchLocked(script.Path)
	sourcesWatcher.mutex.Unlock()
	return sourcesWatcher
}

// Script returns the entry script reference.
func (sourcesWatcher *Watcher) Script() Script {
	return sourcesWatcher.script
}

// Refresh reconciles the watched set with the modules loaded right now:
// new local files get a watch, files that were unloaded or are no longer
// local lose theirs, and files already watched are left alone.
func (sourcesWatcher *Watcher) Refresh() {
	if sourcesWatcher == nil {
		return
	}
	sourcesWatcher.mutex.Lock()
	defer sourcesWatcher.mutex.Unlock()
	if sourcesWatcher.closed {
		return
	}

	target := sourcesWatcher.targetLocked()

	removed := 0
	for path, handle := range sourcesWatcher.watched {
		if _, ok := target[path]; ok {
			continue
		}
		delete(sourcesWatcher.watched, path)
		removed++
		if handle == nil {
			continue
		}
		if err := handle.Close(); err != nil {
			sourcesWatcher.logger.Warn("release watch failed", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
		}
	}

	added := 0
	for path := range target {
		if _, ok := sourcesWatcher.watched[path]; ok {
			continue
		}
		if sourcesWatcher.watchLocked(path) {
			added++
		}
	}

	if added > 0 || removed > 0 {
		sourcesWatcher.logger.Debug("watched sources refreshed", map[string]string{
			"added":   strconv.Itoa(added),
			"removed": strconv.Itoa(removed),
			"watched": strconv.Itoa(len(sourcesWatcher.watched)),
		})
	}
}

// targetLocked computes the entry script plus every local module file.
func (sourcesWatcher *Watcher) targetLocked() map[string]struct{} {
	target := map[string]struct{}{sourcesWatcher.script.Path: {}}

	modules := sourcesWatcher.lastModules
	if sourcesWatcher.modules != nil {
		listed, err := sourcesWatcher.modules.Modules()
		if err != nil {
			sourcesWatcher.logger.Warn("list modules failed", map[string]string{
				"error": err.Error(),
			})
		} else {
			modules = listed
			sourcesWatcher.lastModules = listed
		}
	}

	for _, module := range modules {
		if module.File == "" {
			continue
		}
		path, err := fsutil.AbsPath(module.File)
		if err != nil {
			continue
		}
		if !sourcesWatcher.classifier.IsLocal(path) {
			continue
		}
		target[path] = struct{}{}
	}
	return target
}

func (sourcesWatcher *Watcher) watchLocked(path string) bool {
	if sourcesWatcher.watch == nil {
		return false
	}
	handle, err := sourcesWatcher.watch.Watch(path, sourcesWatcher.onChange)
	if err != nil {
		sourcesWatcher.logger.Warn("watch source failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return false
	}
	sourcesWatcher.watched[path] = handle
	return true
}

// WatchedPaths returns the sorted set of watched files.
func (sourcesWatcher *Watcher) WatchedPaths() []string {
	if sourcesWatcher == nil {
		return nil
	}
	sourcesWatcher.mutex.Lock()
	defer sourcesWatcher.mutex.Unlock()

	paths := make([]string, 0, len(sourcesWatcher.watched))
	for path := range sourcesWatcher.watched {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Close releases every watch. Later calls to Refresh do nothing.
func (sourcesWatcher *Watcher) Close() error {
	if sourcesWatcher == nil {
		return nil
	}
	sourcesWatcher.mutex.Lock()
	defer sourcesWatcher.mutex.Unlock()
	if sourcesWatcher.closed {
		return nil
	}
	sourcesWatcher.closed = true

	var closeErr error
	for path, handle := range sourcesWatcher.watched {
		delete(sourcesWatcher.watched, path)
		if handle == nil {
			continue
		}
		if err := handle.Close(); err != nil {
			closeErr = errors.Join(closeErr, err)
		}
	}
	return closeErr
}
