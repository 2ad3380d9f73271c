// Package metrics exposes srcwatch counters in the Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"srcwatch/internal/watcher"
)

type Registry struct {
	reruns        atomic.Int64
	startFailures atomic.Int64
	refreshes     atomic.Int64
	refreshNanos  atomic.Int64
	watchedFiles  atomic.Int64
	exits         sync.Map

	mu      sync.Mutex
	watcher func() watcher.Metrics
}

func (r *Registry) IncRerun() {
	if r == nil {
		return
	}
	r.reruns.Add(1)
}

func (r *Registry) IncStartFailure() {
	if r == nil {
		return
	}
	r.startFailures.Add(1)
}

// RecordExit counts a program exit by its status label.
func (r *Registry) RecordExit(status string) {
	if r == nil {
		return
	}
	if strings.TrimSpace(status) == "" {
		status = "unknown"
	}
	value, _ := r.exits.LoadOrStore(status, &atomic.Int64{})
	value.(*atomic.Int64).Add(1)
}

// RecordRefresh records one reconciliation and the resulting watched set size.
func (r *Registry) RecordRefresh(duration time.Duration, watched int) {
	if r == nil {
		return
	}
	r.refreshes.Add(1)
	r.refreshNanos.Add(duration.Nanoseconds())
	r.watchedFiles.Store(int64(watched))
}

// SetWatcher registers the source of file watcher counters.
func (r *Registry) SetWatcher(stats func() watcher.Metrics) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.watcher = stats
	r.mu.Unlock()
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "srcwatch_reruns_total", "Program restarts caused by source changes", r.reruns.Load())
	writeCounter(writer, "srcwatch_start_failures_total", "Program starts that failed", r.startFailures.Load())
	writeGauge(writer, "srcwatch_watched_files", "Files in the watched set after the last refresh", r.watchedFiles.Load())

	writeHelp(writer, "srcwatch_refresh_duration_seconds", "Watched set reconciliation time in seconds")
	fmt.Fprintln(writer, "# TYPE srcwatch_refresh_duration_seconds summary")
	fmt.Fprintf(writer, "srcwatch_refresh_duration_seconds_sum %.6f\n", float64(r.refreshNanos.Load())/float64(time.Second))
	fmt.Fprintf(writer, "srcwatch_refresh_duration_seconds_count %d\n", r.refreshes.Load())

	statuses := r.exitStatuses()
	sort.Strings(statuses)
	writeHelp(writer, "srcwatch_program_exits_total", "Program exits by status")
	fmt.Fprintln(writer, "# TYPE srcwatch_program_exits_total counter")
	for _, status := range statuses {
		value, _ := r.exits.Load(status)
		fmt.Fprintf(writer, "srcwatch_program_exits_total{status=%s} %d\n", formatLabel(status), value.(*atomic.Int64).Load())
	}

	r.mu.Lock()
	stats := r.watcher
	r.mu.Unlock()
	if stats != nil {
		current := stats()
		writeGauge(writer, "srcwatch_watcher_active_watches", "Registered file callbacks", int64(current.ActiveWatches))
		writeGauge(writer, "srcwatch_watcher_dirs", "Directories subscribed with the OS", int64(current.WatchedDirs))
		writeCounter(writer, "srcwatch_watcher_events_delivered_total", "Change events delivered to callbacks", int64(current.EventsDelivered))
		writeCounter(writer, "srcwatch_watcher_events_dropped_total", "Change events dropped", int64(current.EventsDropped))
		writeCounter(writer, "srcwatch_watcher_events_suppressed_total", "Writes suppressed because contents did not change", int64(current.EventsSuppressed))
		writeCounter(writer, "srcwatch_watcher_errors_total", "File watcher errors", int64(current.Errors))
		writeGauge(writer, "srcwatch_watcher_restart_attempts", "Consecutive file watcher restart attempts", int64(current.RestartAttempts))
	}
	return nil
}

// Handler serves WritePrometheus over HTTP.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_ = r.WritePrometheus(w)
	})
}

func (r *Registry) exitStatuses() []string {
	var statuses []string
	r.exits.Range(func(key, value any) bool {
		if status, ok := key.(string); ok {
			statuses = append(statuses, status)
		}
		return true
	})
	return statuses
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func writeGauge(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s gauge\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
