package sources

import (
	"errors"
	"sort"
	"sync"

	"srcwatch/internal/watcher"
)

type watchCall struct {
	path     string
	callback func(watcher.Event)
}

// fakeWatch records every subscription instead of touching the filesystem.
type fakeWatch struct {
	mu       sync.Mutex
	calls    []watchCall
	open     map[string]int
	released []string
	failures map[string]error
}

func newFakeWatch() *fakeWatch {
	return &fakeWatch{
		open:     make(map[string]int),
		failures: make(map[string]error),
	}
}

func (watch *fakeWatch) Watch(path string, callback func(watcher.Event)) (watcher.Handle, error) {
	watch.mu.Lock()
	defer watch.mu.Unlock()
	if err := watch.failures[path]; err != nil {
		return nil, err
	}
	watch.calls = append(watch.calls, watchCall{path: path, callback: callback})
	watch.open[path]++
	return &fakeHandle{watch: watch, path: path}, nil
}

func (watch *fakeWatch) fail(path string) {
	watch.mu.Lock()
	watch.failures[path] = errors.New("no such file")
	watch.mu.Unlock()
}

func (watch *fakeWatch) heal(path string) {
	watch.mu.Lock()
	delete(watch.failures, path)
	watch.mu.Unlock()
}

// reset forgets recorded calls, like resetting a mock between steps.
func (watch *fakeWatch) reset() {
	watch.mu.Lock()
	watch.calls = nil
	watch.released = nil
	watch.mu.Unlock()
}

func (watch *fakeWatch) callCount() int {
	watch.mu.Lock()
	defer watch.mu.Unlock()
	return len(watch.calls)
}

func (watch *fakeWatch) sortedCalls() []watchCall {
	watch.mu.Lock()
	defer watch.mu.Unlock()
	calls := append([]watchCall(nil), watch.calls...)
	sort.Slice(calls, func(i, j int) bool {
		return calls[i].path < calls[j].path
	})
	return calls
}

func (watch *fakeWatch) releasedPaths() []string {
	watch.mu.Lock()
	defer watch.mu.Unlock()
	paths := append([]string(nil), watch.released...)
	sort.Strings(paths)
	return paths
}

func (watch *fakeWatch) openCount(path string) int {
	watch.mu.Lock()
	defer watch.mu.Unlock()
	return watch.open[path]
}

func (watch *fakeWatch) totalOpen() int {
	watch.mu.Lock()
	defer watch.mu.Unlock()
	total := 0
	for _, count := range watch.open {
		total += count
	}
	return total
}

type fakeHandle struct {
	watch *fakeWatch
	path  string
	once  sync.Once
}

func (handle *fakeHandle) Close() error {
	handle.once.Do(func() {
		handle.watch.mu.Lock()
		handle.watch.open[handle.path]--
		if handle.watch.open[handle.path] == 0 {
			delete(handle.watch.open, handle.path)
		}
		handle.watch.released = append(handle.watch.released, handle.path)
		handle.watch.mu.Unlock()
	})
	return nil
}

// moduleTable stands in for the host's table of loaded modules.
type moduleTable struct {
	mu      sync.Mutex
	modules map[string]string
	err     error
}

func newModuleTable() *moduleTable {
	return &moduleTable{modules: make(map[string]string)}
}

func (table *moduleTable) load(name, file string) {
	table.mu.Lock()
	table.modules[name] = file
	table.mu.Unlock()
}

func (table *moduleTable) unload(name string) {
	table.mu.Lock()
	delete(table.modules, name)
	table.mu.Unlock()
}

func (table *moduleTable) setErr(err error) {
	table.mu.Lock()
	table.err = err
	table.mu.Unlock()
}

func (table *moduleTable) Modules() ([]Module, error) {
	table.mu.Lock()
	defer table.mu.Unlock()
	if table.err != nil {
		return nil, table.err
	}
	modules := make([]Module, 0, len(table.modules))
	for name, file := range table.modules {
		modules = append(modules, Module{Name: name, File: file})
	}
	return modules, nil
}
