package watcher

import (
	"sync"
	"time"

	"srcwatch/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Event represents a single change to a watched file.
type Event struct {
	Path      string
	Op        fsnotify.Op
	Timestamp time.Time
}

// Handle releases watcher resources for a registration.
type Handle interface {
	Close() error
}

// Watch registers a callback for changes to one file.
type Watch interface {
	Watch(path string, callback func(Event)) (Handle, error)
}

// WatchFunc adapts a function to the Watch interface.
type WatchFunc func(path string, callback func(Event)) (Handle, error)

func (fn WatchFunc) Watch(path string, callback func(Event)) (Handle, error) {
	return fn(path, callback)
}

// Options controls watcher behavior.
type Options struct {
	Logger          *logging.Logger
	Debounce        time.Duration
	MaxWatches      int
	RecoverInterval time.Duration
	ErrorHandler    func(error)
	// IgnoreContent delivers every write, even when the bytes on disk did not change.
	IgnoreContent bool
}

// Metrics reports watcher activity counters.
type Metrics struct {
	ActiveWatches    int
	WatchedDirs      int
	EventsDelivered  uint64
	EventsDropped    uint64
	EventsSuppressed uint64
	Errors           uint64
	RestartAttempts  int
}

// Watcher is the concrete fsnotify-backed implementation.
type Watcher struct {
	watcher         *fsnotify.Watcher
	mutex           sync.Mutex
	files           map[string]*fileEntry
	dirs            map[string]int
	lostDirs        map[string]bool
	debouncer       *debouncer
	events          chan fsnotify.Event
	errors          chan error
	done            chan struct{}
	closed          bool
	logger          *logging.Logger
	maxWatches      int
	activeWatches   int
	recoverInterval time.Duration
	errorHandler    func(error)
	ignoreContent   bool
	nextID          uint64

	restartMutex    sync.Mutex
	restartTimer    *time.Timer
	restartAttempts int

	eventsDelivered  uint64
	eventsDropped    uint64
	eventsSuppressed uint64
	errorCount       uint64
}

type fileEntry struct {
	callbacks      []callbackEntry
	fingerprint    uint64
	hasFingerprint bool
}

type callbackEntry struct {
	id       uint64
	callback func(Event)
}
