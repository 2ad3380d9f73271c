package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"srcwatch/internal/config"
	"srcwatch/internal/fsutil"
	"srcwatch/internal/gomodules"
	"srcwatch/internal/logging"
	"srcwatch/internal/sources"
)

// session holds everything resolved from the entry argument and config.
type session struct {
	entry      string
	dir        string
	config     config.Config
	logger     *logging.Logger
	classifier *sources.Classifier
	lister     *gomodules.Lister
}

func newSession(cmd *cobra.Command, flags *globalFlags, entry string, logOut io.Writer) (*session, error) {
	script, dir, err := resolveEntry(entry)
	if err != nil {
		return nil, &usageError{err: err}
	}

	configPath := flags.configPath
	if configPath == "" {
		configPath = config.FindFile(dir)
	}
	cfg, err := config.Load(configPath, flags.overrides(cmd.Flags()))
	if err != nil {
		return nil, err
	}

	logger := logging.NewLoggerWithOutput(nil, cfg.LogLevel, logOut)
	if configPath != "" {
		logger.Debug("config loaded", map[string]string{"path": configPath})
	}

	root := cfg.SourceRoot
	if root == "" {
		root = dir
	}
	exclude := append(gomodules.DefaultExcludes(root), cfg.Exclude...)
	classifier, err := sources.NewClassifier(root, exclude, cfg.ExcludePatterns)
	if err != nil {
		return nil, err
	}

	lister, err := gomodules.ForEntry(script)
	if err != nil {
		return nil, err
	}

	return &session{
		entry:      script,
		dir:        dir,
		config:     cfg,
		logger:     logger,
		classifier: classifier,
		lister:     lister,
	}, nil
}

// resolveEntry returns the entry file to watch and the directory the program
// runs in. A directory entry must contain main.go.
func resolveEntry(entry string) (string, string, error) {
	abs, err := fsutil.AbsPath(entry)
	if err != nil {
		return "", "", fmt.Errorf("resolve entry %q: %w", entry, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", "", fmt.Errorf("entry %q: %w", entry, err)
	}
	if !info.IsDir() {
		return abs, filepath.Dir(abs), nil
	}
	mainFile := filepath.Join(abs, "main.go")
	if info, err := os.Stat(mainFile); err != nil || info.IsDir() {
		return "", "", fmt.Errorf("directory %q has no main.go; pass the main file instead", entry)
	}
	return mainFile, abs, nil
}
