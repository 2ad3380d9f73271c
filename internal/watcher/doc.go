// Package watcher provides the per-file change subscriptions used by srcwatch.
//
// A Watcher registers the parent directory of every watched file with fsnotify
// and routes events back to the file's callbacks, so editors that save by
// writing a temp file and renaming it over the original keep being observed.
// Delivery is best-effort: bursts are debounced per path and writes that leave
// the file contents unchanged are suppressed.
package watcher
