//go:build !windows

package runner

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"srcwatch/internal/metrics"
	"srcwatch/internal/notify"
	"srcwatch/internal/watcher"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestRunRestartsOnChange(t *testing.T) {
	var output syncBuffer
	var starts sync.WaitGroup
	var mu sync.Mutex
	startCount := 0

	hub := notify.NewHub()
	messages, cancelSub := hub.Subscribe(8)
	defer cancelSub()

	runner := New(Options{
		Command:     []string{"sh", "-c", "echo started; sleep 30"},
		Stdout:      &output,
		StopTimeout: time.Second,
		Hub:         hub,
		AfterStart: func() {
			mu.Lock()
			startCount++
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	starts.Add(1)
	done := make(chan error, 1)
	go func() {
		defer starts.Done()
		done <- runner.Run(ctx)
	}()

	waitFor(t, 5*time.Second, func() bool { return strings.Count(output.String(), "started") == 1 })

	runner.Notify(watcher.Event{Path: "/src/main.go", Op: fsnotify.Write})
	waitFor(t, 5*time.Second, func() bool { return strings.Count(output.String(), "started") == 2 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
	starts.Wait()

	mu.Lock()
	defer mu.Unlock()
	if startCount != 2 {
		t.Fatalf("expected AfterStart twice, got %d", startCount)
	}

	var types []string
	for len(messages) > 0 {
		types = append(types, (<-messages).Type)
	}
	if len(types) < 2 || types[0] != notify.TypeSourceChanged || types[1] != notify.TypeRerun {
		t.Fatalf("unexpected notifications %v", types)
	}
}

func TestRunWaitsAfterExit(t *testing.T) {
	var output syncBuffer
	hub := notify.NewHub()
	messages, cancelSub := hub.Subscribe(8)
	defer cancelSub()

	registry := &metrics.Registry{}
	runner := New(Options{
		Command: []string{"sh", "-c", "echo ran; exit 3"},
		Stdout:  &output,
		Hub:     hub,
		Metrics: registry,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case message := <-messages:
		if message.Type != notify.TypeExited || message.Detail != "3" {
			t.Fatalf("unexpected message %+v", message)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected exited notification")
	}

	time.Sleep(100 * time.Millisecond)
	if got := strings.Count(output.String(), "ran"); got != 1 {
		t.Fatalf("expected a single run before any change, got %d", got)
	}

	runner.Notify(watcher.Event{Path: "/src/main.go"})
	waitFor(t, 5*time.Second, func() bool { return strings.Count(output.String(), "ran") == 2 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned %v", err)
	}

	var text bytes.Buffer
	if err := registry.WritePrometheus(&text); err != nil {
		t.Fatalf("write metrics: %v", err)
	}
	if !strings.Contains(text.String(), "srcwatch_reruns_total 1\n") {
		t.Fatalf("expected one rerun:\n%s", text.String())
	}
	if !strings.Contains(text.String(), `srcwatch_program_exits_total{status="3"}`) {
		t.Fatalf("expected exit status 3 recorded:\n%s", text.String())
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	runner := New(Options{
		Command:     []string{"sh", "-c", "trap '' TERM; echo ready; while true; do sleep 1; done"},
		StopTimeout: 200 * time.Millisecond,
	})
	var output syncBuffer
	runner.options.Stdout = &output

	current, err := runner.start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return strings.Contains(output.String(), "ready") })

	started := time.Now()
	runner.stop(current)
	if elapsed := time.Since(started); elapsed < 200*time.Millisecond {
		t.Fatalf("expected stop to wait for the TERM timeout, took %s", elapsed)
	}
	select {
	case <-current.exited:
	default:
		t.Fatal("expected child to have exited")
	}
}

func TestNotifyCoalesces(t *testing.T) {
	runner := New(Options{Command: []string{"true"}})
	runner.Notify(watcher.Event{Path: "a"})
	runner.Notify(watcher.Event{Path: "b"})
	if len(runner.changes) != 1 {
		t.Fatalf("expected one pending change, got %d", len(runner.changes))
	}
	if event := <-runner.changes; event.Path != "a" {
		t.Fatalf("expected first change to be kept, got %q", event.Path)
	}
}

func TestRunRequiresCommand(t *testing.T) {
	if err := New(Options{}).Run(context.Background()); err == nil {
		t.Fatal("expected error for empty command")
	}
}
