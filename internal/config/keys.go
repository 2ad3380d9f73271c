package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// NormalizeKey lowercases key and maps '_' to '-' in every dotted segment.
func NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	parts := strings.Split(key, ".")
	for i, part := range parts {
		parts[i] = strings.ReplaceAll(strings.ToLower(part), "_", "-")
	}
	return strings.Join(parts, ".")
}

// decodeFile parses a config payload by file extension and returns its
// flattened, normalized keys.
func decodeFile(path string, payload []byte) (map[string]any, error) {
	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		if _, err := toml.Decode(string(payload), &raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return flatten(raw), nil
}

func flatten(raw map[string]any) map[string]any {
	flat := make(map[string]any)
	flattenMap("", raw, flat)

	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	normalized := make(map[string]any, len(flat))
	for _, key := range keys {
		normalizedKey := NormalizeKey(key)
		if _, exists := normalized[normalizedKey]; exists {
			continue
		}
		normalized[normalizedKey] = flat[key]
	}
	return normalized
}

func flattenMap(prefix string, raw map[string]any, out map[string]any) {
	for key, value := range raw {
		joined := key
		if prefix != "" {
			joined = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			flattenMap(joined, nested, out)
			continue
		}
		out[joined] = value
	}
}
