// Package gomodules lists the source files a Go program loads, for use as
// the module table of a sources.Watcher.
package gomodules

import (
	"errors"
	"fmt"
	"go/build"
	"os"
	"path/filepath"
	"strings"

	"srcwatch/internal/sources"

	"golang.org/x/tools/go/packages"
)

const loadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedEmbedFiles |
	packages.NeedImports |
	packages.NeedDeps |
	packages.NeedModule

// Lister loads the import graph of Patterns (relative to Dir) and reports
// every Go and embedded file of every package in it.
type Lister struct {
	Dir        string
	Patterns   []string
	BuildFlags []string
	Env        []string
}

// ForEntry returns a Lister for the package containing entry, which may be
// a main file or a main package directory.
func ForEntry(entry string) (*Lister, error) {
	abs, err := filepath.Abs(entry)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	dir := abs
	if !info.IsDir() {
		dir = filepath.Dir(abs)
	}
	return &Lister{Dir: dir, Patterns: []string{"."}}, nil
}

// Modules implements sources.ModuleLister. Packages with type or syntax
// errors still contribute their files so a broken edit keeps being watched.
func (lister *Lister) Modules() ([]sources.Module, error) {
	if lister == nil {
		return nil, errors.New("lister is nil")
	}
	patterns := lister.Patterns
	if len(patterns) == 0 {
		patterns = []string{"."}
	}

	config := &packages.Config{
		Mode:       loadMode,
		Dir:        lister.Dir,
		BuildFlags: lister.BuildFlags,
	}
	if len(lister.Env) > 0 {
		config.Env = append(os.Environ(), lister.Env...)
	}

	pkgs, err := packages.Load(config, patterns...)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}

	seen := make(map[string]struct{})
	modules := make([]sources.Module, 0)
	add := func(name, file string) {
		if file == "" {
			return
		}
		if _, ok := seen[file]; ok {
			return
		}
		seen[file] = struct{}{}
		modules = append(modules, sources.Module{Name: name, File: file})
	}

	packages.Visit(pkgs, nil, func(pkg *packages.Package) {
		for _, file := range pkg.GoFiles {
			add(pkg.PkgPath, file)
		}
		for _, file := range pkg.EmbedFiles {
			add(pkg.PkgPath, file)
		}
	})
	return modules, nil
}

// DefaultExcludes returns the folders whose files never count as local for a
// project rooted at root: the Go installation, the module cache and the
// project's vendor directory.
func DefaultExcludes(root string) []string {
	excludes := make([]string, 0, 3)
	if goroot := strings.TrimSpace(build.Default.GOROOT); goroot != "" {
		excludes = append(excludes, goroot)
	}
	if cache := moduleCache(); cache != "" {
		excludes = append(excludes, cache)
	}
	if strings.TrimSpace(root) != "" {
		excludes = append(excludes, filepath.Join(root, "vendor"))
	}
	return excludes
}

func moduleCache() string {
	if cache := strings.TrimSpace(os.Getenv("GOMODCACHE")); cache != "" {
		return cache
	}
	gopath := filepath.SplitList(build.Default.GOPATH)
	if len(gopath) == 0 || strings.TrimSpace(gopath[0]) == "" {
		return ""
	}
	return filepath.Join(gopath[0], "pkg", "mod")
}
