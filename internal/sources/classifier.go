package sources

import (
	"fmt"
	"path/filepath"
	"strings"

	"srcwatch/internal/fsutil"

	"github.com/gobwas/glob"
)

// Classifier decides whether a file belongs to the local project.
type Classifier struct {
	sourceRoot string
	exclude    []string
	patterns   []glob.Glob
}

// NewClassifier builds a classifier rooted at sourceRoot. Files under any of
// exclude, or matching any of patterns, are never local. Patterns use '/' as
// the separator and are matched against the slash form of absolute paths.
func NewClassifier(sourceRoot string, exclude []string, patterns []string) (*Classifier, error) {
	if strings.TrimSpace(sourceRoot) == "" {
		return nil, fmt.Errorf("source root is required")
	}
	root, err := fsutil.AbsPath(sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve source root: %w", err)
	}

	classifier := &Classifier{sourceRoot: root}
	for _, folder := range exclude {
		if strings.TrimSpace(folder) == "" {
			continue
		}
		abs, err := fsutil.AbsPath(folder)
		if err != nil {
			continue
		}
		classifier.exclude = append(classifier.exclude, abs)
	}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		compiled, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", pattern, err)
		}
		classifier.patterns = append(classifier.patterns, compiled)
	}
	return classifier, nil
}

// SourceRoot returns the absolute project root.
func (classifier *Classifier) SourceRoot() string {
	if classifier == nil {
		return ""
	}
	return classifier.sourceRoot
}

// IsLocal reports whether path is under the source root and not excluded.
// Exclusion always wins over source-root membership.
func (classifier *Classifier) IsLocal(path string) bool {
	if classifier == nil {
		return false
	}
	if !fsutil.FileIsInFolder(path, classifier.sourceRoot) {
		return false
	}
	if fsutil.FileIsInAnyFolder(path, classifier.exclude) {
		return false
	}
	if len(classifier.patterns) > 0 {
		abs, err := fsutil.AbsPath(path)
		if err != nil {
			return false
		}
		slashed := filepath.ToSlash(abs)
		for _, pattern := range classifier.patterns {
			if pattern.Match(slashed) {
				return false
			}
		}
	}
	return true
}
