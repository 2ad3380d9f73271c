package config

import (
	"os"
	"strconv"
	"strings"
)

func stringSetting(values map[string]any, key string, fallback string) string {
	value, ok := values[NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := value.(string); ok {
		return strings.TrimSpace(parsed)
	}
	return fallback
}

func intSetting(values map[string]any, key string, fallback int64) int64 {
	value, ok := values[NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := asInt64(value); ok {
		return parsed
	}
	if text, ok := value.(string); ok {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolSetting(values map[string]any, key string, fallback bool) bool {
	value, ok := values[NormalizeKey(key)]
	if !ok {
		return fallback
	}
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(typed)); err == nil {
			return parsed
		}
	}
	return fallback
}

// listSetting accepts a list value, or a string split on sep.
func listSetting(values map[string]any, key string, sep string) ([]string, bool) {
	value, ok := values[NormalizeKey(key)]
	if !ok {
		return nil, false
	}
	var items []string
	switch typed := value.(type) {
	case []string:
		items = typed
	case []any:
		for _, item := range typed {
			if text, ok := item.(string); ok {
				items = append(items, text)
			}
		}
	case string:
		if sep == "" {
			items = strings.Fields(typed)
		} else {
			items = strings.Split(typed, sep)
		}
	default:
		return nil, false
	}

	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			cleaned = append(cleaned, item)
		}
	}
	return cleaned, true
}

func asInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int64:
		return typed, true
	case int:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case uint64:
		return int64(typed), true
	case uint:
		return int64(typed), true
	case float64:
		if typed == float64(int64(typed)) {
			return int64(typed), true
		}
	}
	return 0, false
}

var pathListSeparator = string(os.PathListSeparator)
