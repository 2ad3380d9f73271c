package sources

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"srcwatch/internal/watcher"

	"github.com/google/go-cmp/cmp"
)

type fixture struct {
	root    string
	script  string
	module1 string
	module2 string
	watch   *fakeWatch
	table   *moduleTable

	mu       sync.Mutex
	received []watcher.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := filepath.Join(t.TempDir(), "project")
	return &fixture{
		root:    root,
		script:  filepath.Join(root, "not_a_real_script.go"),
		module1: filepath.Join(root, "dummy", "dummy_module1.go"),
		module2: filepath.Join(root, "dummy", "dummy_module2.go"),
		watch:   newFakeWatch(),
		table:   newModuleTable(),
	}
}

func (f *fixture) onChange(event watcher.Event) {
	f.mu.Lock()
	f.received = append(f.received, event)
	f.mu.Unlock()
}

func (f *fixture) receivedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, 0, len(f.received))
	for _, event := range f.received {
		paths = append(paths, event.Path)
	}
	return paths
}

func (f *fixture) newWatcher(t *testing.T, classifier *Classifier) *Watcher {
	t.Helper()
	sourcesWatcher := New(Script{Path: f.script, Args: []string{"--flag"}}, f.onChange, Options{
		Watch:      f.watch,
		Modules:    f.table,
		Classifier: classifier,
	})
	t.Cleanup(func() {
		_ = sourcesWatcher.Close()
	})
	return sourcesWatcher
}

// assertBoundToCallback checks that invoking the recorded callback reaches
// the callback the watcher was constructed with.
func (f *fixture) assertBoundToCallback(t *testing.T, call watchCall) {
	t.Helper()
	sentinel := watcher.Event{Path: "sentinel:" + call.path}
	call.callback(sentinel)
	paths := f.receivedPaths()
	if len(paths) == 0 || paths[len(paths)-1] != sentinel.Path {
		t.Fatalf("callback for %q is not the construction callback (received %v)", call.path, paths)
	}
}

func TestJustScript(t *testing.T) {
	f := newFixture(t)
	sourcesWatcher := f.newWatcher(t, nil)

	calls := f.watch.sortedCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 watch on construction, got %d", len(calls))
	}
	if calls[0].path != f.script {
		t.Fatalf("expected watch on %q, got %q", f.script, calls[0].path)
	}
	f.assertBoundToCallback(t, calls[0])

	f.watch.reset()
	sourcesWatcher.Refresh()
	sourcesWatcher.Refresh()
	sourcesWatcher.Refresh()
	sourcesWatcher.Refresh()

	if count := f.watch.callCount(); count != 0 {
		t.Fatalf("expected no new watches, got %d", count)
	}
	if released := f.watch.releasedPaths(); len(released) != 0 {
		t.Fatalf("expected no released watches, got %v", released)
	}
	if diff := cmp.Diff([]string{f.script}, sourcesWatcher.WatchedPaths()); diff != "" {
		t.Fatalf("watched paths mismatch (-want +got):\n%s", diff)
	}
}

func TestScriptAndTwoModulesAtOnce(t *testing.T) {
	f := newFixture(t)
	sourcesWatcher := f.newWatcher(t, nil)
	if count := f.watch.callCount(); count != 1 {
		t.Fatalf("expected 1 watch on construction, got %d", count)
	}

	f.table.load("dummy/module1", f.module1)
	f.table.load("dummy/module2", f.module2)

	f.watch.reset()
	sourcesWatcher.Refresh()

	calls := f.watch.sortedCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 new watches, got %d", len(calls))
	}
	if calls[0].path != f.module1 || calls[1].path != f.module2 {
		t.Fatalf("expected watches on modules, got %q and %q", calls[0].path, calls[1].path)
	}
	for _, call := range calls {
		f.assertBoundToCallback(t, call)
	}

	want := []string{f.module1, f.module2, f.script}
	if diff := cmp.Diff(want, sourcesWatcher.WatchedPaths()); diff != "" {
		t.Fatalf("watched paths mismatch (-want +got):\n%s", diff)
	}

	f.watch.reset()
	sourcesWatcher.Refresh()

	if count := f.watch.callCount(); count != 0 {
		t.Fatalf("expected no new watches, got %d", count)
	}
	if released := f.watch.releasedPaths(); len(released) != 0 {
		t.Fatalf("expected no released watches, got %v", released)
	}
}

func TestScriptAndTwoModulesInSeries(t *testing.T) {
	f := newFixture(t)
	sourcesWatcher := f.newWatcher(t, nil)

	f.table.load("dummy/module1", f.module1)
	f.watch.reset()
	sourcesWatcher.Refresh()

	calls := f.watch.sortedCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 new watch, got %d", len(calls))
	}
	if calls[0].path != f.module1 {
		t.Fatalf("expected watch on %q, got %q", f.module1, calls[0].path)
	}
	f.assertBoundToCallback(t, calls[0])

	f.table.load("dummy/module2", f.module2)
	f.watch.reset()
	sourcesWatcher.Refresh()

	calls = f.watch.sortedCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 new watch, got %d", len(calls))
	}
	if calls[0].path != f.module2 {
		t.Fatalf("expected watch on %q, got %q", f.module2, calls[0].path)
	}
	f.assertBoundToCallback(t, calls[0])
}

func TestRefreshIsIdempotent(t *testing.T) {
	f := newFixture(t)
	once := f.newWatcher(t, nil)
	f.table.load("dummy/module1", f.module1)
	f.table.load("dummy/module2", f.module2)
	once.Refresh()
	afterOnce := once.WatchedPaths()
	openAfterOnce := f.watch.totalOpen()

	once.Refresh()
	if diff := cmp.Diff(afterOnce, once.WatchedPaths()); diff != "" {
		t.Fatalf("second refresh changed watched set (-once +twice):\n%s", diff)
	}
	if open := f.watch.totalOpen(); open != openAfterOnce {
		t.Fatalf("expected %d open handles, got %d", openAfterOnce, open)
	}
	for _, path := range afterOnce {
		if count := f.watch.openCount(path); count != 1 {
			t.Fatalf("expected exactly one handle for %q, got %d", path, count)
		}
	}
}

func TestRefreshReleasesUnloadedModules(t *testing.T) {
	f := newFixture(t)
	sourcesWatcher := f.newWatcher(t, nil)
	f.table.load("dummy/module1", f.module1)
	f.table.load("dummy/module2", f.module2)
	sourcesWatcher.Refresh()

	f.table.unload("dummy/module1")
	f.watch.reset()
	sourcesWatcher.Refresh()

	if count := f.watch.callCount(); count != 0 {
		t.Fatalf("expected no new watches, got %d", count)
	}
	if diff := cmp.Diff([]string{f.module1}, f.watch.releasedPaths()); diff != "" {
		t.Fatalf("released paths mismatch (-want +got):\n%s", diff)
	}
	if f.watch.openCount(f.module1) != 0 {
		t.Fatal("expected unloaded module handle to be released")
	}
	if diff := cmp.Diff([]string{f.module2, f.script}, sourcesWatcher.WatchedPaths()); diff != "" {
		t.Fatalf("watched paths mismatch (-want +got):\n%s", diff)
	}
}

func TestRefreshSkipsNonLocalModules(t *testing.T) {
	f := newFixture(t)
	outside := filepath.Join(filepath.Dir(f.root), "elsewhere", "lib.go")
	vendored := filepath.Join(f.root, "vendor", "github.com", "dep", "dep.go")
	generated := filepath.Join(f.root, "dummy", "zz_generated.go")

	classifier, err := NewClassifier(f.root, []string{filepath.Join(f.root, "vendor")}, []string{"**/zz_generated.go"})
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	sourcesWatcher := f.newWatcher(t, classifier)

	f.table.load("dummy/module1", f.module1)
	f.table.load("elsewhere", outside)
	f.table.load("vendored", vendored)
	f.table.load("generated", generated)
	f.table.load("builtin", "")
	sourcesWatcher.Refresh()

	if diff := cmp.Diff([]string{f.module1, f.script}, sourcesWatcher.WatchedPaths()); diff != "" {
		t.Fatalf("watched paths mismatch (-want +got):\n%s", diff)
	}
}

func TestRefreshReleasesReclassifiedModules(t *testing.T) {
	f := newFixture(t)
	sourcesWatcher := f.newWatcher(t, nil)
	f.table.load("dummy/module1", f.module1)
	sourcesWatcher.Refresh()

	moved := filepath.Join(filepath.Dir(f.root), "moved", "dummy_module1.go")
	f.table.load("dummy/module1", moved)
	f.watch.reset()
	sourcesWatcher.Refresh()

	if diff := cmp.Diff([]string{f.module1}, f.watch.releasedPaths()); diff != "" {
		t.Fatalf("released paths mismatch (-want +got):\n%s", diff)
	}
	if count := f.watch.callCount(); count != 0 {
		t.Fatalf("expected no new watches, got %d", count)
	}
}

func TestRefreshResolvesRelativeModulePaths(t *testing.T) {
	f := newFixture(t)
	wd, err := filepath.Abs(".")
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	f.script = filepath.Join(wd, "main.go")
	sourcesWatcher := f.newWatcher(t, nil)

	f.table.load("local", "local_module.go")
	sourcesWatcher.Refresh()

	want := []string{filepath.Join(wd, "local_module.go"), f.script}
	if diff := cmp.Diff(want, sourcesWatcher.WatchedPaths()); diff != "" {
		t.Fatalf("watched paths mismatch (-want +got):\n%s", diff)
	}
}

func TestRefreshRetriesFailedWatches(t *testing.T) {
	f := newFixture(t)
	f.watch.fail(f.script)
	sourcesWatcher := f.newWatcher(t, nil)
	if paths := sourcesWatcher.WatchedPaths(); len(paths) != 0 {
		t.Fatalf("expected no watched paths after failed subscribe, got %v", paths)
	}

	f.table.load("dummy/module1", f.module1)
	f.watch.fail(f.module1)
	sourcesWatcher.Refresh()
	if paths := sourcesWatcher.WatchedPaths(); len(paths) != 0 {
		t.Fatalf("expected failed paths to be skipped, got %v", paths)
	}

	f.watch.heal(f.script)
	f.watch.heal(f.module1)
	sourcesWatcher.Refresh()
	if diff := cmp.Diff([]string{f.module1, f.script}, sourcesWatcher.WatchedPaths()); diff != "" {
		t.Fatalf("watched paths mismatch (-want +got):\n%s", diff)
	}
}

func TestRefreshKeepsSetWhenListingFails(t *testing.T) {
	f := newFixture(t)
	sourcesWatcher := f.newWatcher(t, nil)
	f.table.load("dummy/module1", f.module1)
	sourcesWatcher.Refresh()

	f.table.setErr(errors.New("load failed"))
	f.watch.reset()
	sourcesWatcher.Refresh()

	if released := f.watch.releasedPaths(); len(released) != 0 {
		t.Fatalf("expected no released watches, got %v", released)
	}
	if diff := cmp.Diff([]string{f.module1, f.script}, sourcesWatcher.WatchedPaths()); diff != "" {
		t.Fatalf("watched paths mismatch (-want +got):\n%s", diff)
	}
}

func TestCloseReleasesAllHandles(t *testing.T) {
	f := newFixture(t)
	sourcesWatcher := f.newWatcher(t, nil)
	f.table.load("dummy/module1", f.module1)
	f.table.load("dummy/module2", f.module2)
	sourcesWatcher.Refresh()

	if err := sourcesWatcher.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if open := f.watch.totalOpen(); open != 0 {
		t.Fatalf("expected all handles released, %d still open", open)
	}
	if paths := sourcesWatcher.WatchedPaths(); len(paths) != 0 {
		t.Fatalf("expected empty watched set, got %v", paths)
	}

	f.watch.reset()
	sourcesWatcher.Refresh()
	if count := f.watch.callCount(); count != 0 {
		t.Fatalf("expected refresh after close to do nothing, got %d watches", count)
	}
	if err := sourcesWatcher.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestNilListerWatchesOnlyScript(t *testing.T) {
	f := newFixture(t)
	sourcesWatcher := New(Script{Path: f.script}, f.onChange, Options{Watch: f.watch})
	defer sourcesWatcher.Close()

	sourcesWatcher.Refresh()
	if diff := cmp.Diff([]string{f.script}, sourcesWatcher.WatchedPaths()); diff != "" {
		t.Fatalf("watched paths mismatch (-want +got):\n%s", diff)
	}
	if got := sourcesWatcher.Script().Path; got != f.script {
		t.Fatalf("expected script %q, got %q", f.script, got)
	}
}

func TestModuleListerFunc(t *testing.T) {
	lister := ModuleListerFunc(func() ([]Module, error) {
		return []Module{{Name: "a", File: "/src/a.go"}}, nil
	})
	modules, err := lister.Modules()
	if err != nil {
		t.Fatalf("modules: %v", err)
	}
	if diff := cmp.Diff([]Module{{Name: "a", File: "/src/a.go"}}, modules); diff != "" {
		t.Fatalf("modules mismatch (-want +got):\n%s", diff)
	}
}
