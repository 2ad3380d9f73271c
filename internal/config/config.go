// Package config resolves srcwatch settings from defaults, an optional
// TOML or YAML file, SRCWATCH_* environment variables and flag overrides,
// in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"srcwatch/internal/logging"
)

const envPrefix = "SRCWATCH_"

const (
	KeySourceRoot      = "source-root"
	KeyExclude         = "exclude"
	KeyExcludePatterns = "exclude-patterns"
	KeyDebounceMS      = "debounce-ms"
	KeyMaxWatches      = "max-watches"
	KeyLogLevel        = "log-level"
	KeyCommand         = "command"
	KeyListen          = "listen"
	KeyStopTimeoutMS   = "stop-timeout-ms"
	KeyIgnoreContent   = "ignore-content"
)

var knownKeys = []string{
	KeySourceRoot,
	KeyExclude,
	KeyExcludePatterns,
	KeyDebounceMS,
	KeyMaxWatches,
	KeyLogLevel,
	KeyCommand,
	KeyListen,
	KeyStopTimeoutMS,
	KeyIgnoreContent,
}

// DefaultFileNames are probed, in order, by FindFile.
var DefaultFileNames = []string{".srcwatch.toml", ".srcwatch.yaml", ".srcwatch.yml"}

type Config struct {
	// SourceRoot is the project folder; empty means the entry's directory.
	SourceRoot      string
	Exclude         []string
	ExcludePatterns []string
	Debounce        time.Duration
	MaxWatches      int
	LogLevel        logging.Level
	// Command runs the entry. "{entry}" and "{dir}" are substituted.
	Command       []string
	Listen        string
	StopTimeout   time.Duration
	IgnoreContent bool
}

func Defaults() Config {
	return Config{
		Debounce:    100 * time.Millisecond,
		MaxWatches:  1000,
		LogLevel:    logging.LevelInfo,
		Command:     []string{"go", "run", "."},
		StopTimeout: 5 * time.Second,
	}
}

// FindFile returns the first default config file present in dir, or "".
func FindFile(dir string) string {
	for _, name := range DefaultFileNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// Load resolves a Config. A missing file at path is not an error; an
// unparseable one is.
func Load(path string, overrides map[string]any) (Config, error) {
	values := make(map[string]any)

	if strings.TrimSpace(path) != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		} else {
			decoded, err := decodeFile(path, payload)
			if err != nil {
				return Config{}, err
			}
			for key, value := range decoded {
				values[key] = value
			}
		}
	}

	for _, key := range knownKeys {
		if value, ok := os.LookupEnv(envName(key)); ok {
			values[key] = value
		}
	}

	for key, value := range overrides {
		normalized := NormalizeKey(key)
		if normalized == "" {
			continue
		}
		values[normalized] = value
	}

	return fromValues(values)
}

func envName(key string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func fromValues(values map[string]any) (Config, error) {
	cfg := Defaults()

	cfg.SourceRoot = stringSetting(values, KeySourceRoot, cfg.SourceRoot)
	if exclude, ok := listSetting(values, KeyExclude, pathListSeparator); ok {
		cfg.Exclude = exclude
	}
	if patterns, ok := listSetting(values, KeyExcludePatterns, ","); ok {
		cfg.ExcludePatterns = patterns
	}
	if debounce := intSetting(values, KeyDebounceMS, 0); debounce > 0 {
		cfg.Debounce = time.Duration(debounce) * time.Millisecond
	}
	if maxWatches := intSetting(values, KeyMaxWatches, 0); maxWatches > 0 {
		cfg.MaxWatches = int(maxWatches)
	}
	if raw := stringSetting(values, KeyLogLevel, ""); raw != "" {
		level, ok := logging.ParseLevel(raw)
		if !ok {
			return Config{}, fmt.Errorf("invalid %s %q", KeyLogLevel, raw)
		}
		cfg.LogLevel = level
	}
	if command, ok := listSetting(values, KeyCommand, ""); ok && len(command) > 0 {
		cfg.Command = command
	}
	cfg.Listen = stringSetting(values, KeyListen, cfg.Listen)
	if timeout := intSetting(values, KeyStopTimeoutMS, 0); timeout > 0 {
		cfg.StopTimeout = time.Duration(timeout) * time.Millisecond
	}
	cfg.IgnoreContent = boolSetting(values, KeyIgnoreContent, cfg.IgnoreContent)

	return cfg, nil
}

// ExpandCommand substitutes the entry placeholders and appends args.
func (cfg Config) ExpandCommand(entry string, args []string) []string {
	dir := entry
	if info, err := os.Stat(entry); err == nil && !info.IsDir() {
		dir = filepath.Dir(entry)
	}
	expanded := make([]string, 0, len(cfg.Command)+len(args))
	for _, part := range cfg.Command {
		part = strings.ReplaceAll(part, "{entry}", entry)
		part = strings.ReplaceAll(part, "{dir}", dir)
		expanded = append(expanded, part)
	}
	return append(expanded, args...)
}
