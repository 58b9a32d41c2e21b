// Package tomlkeys flattens TOML documents into normalized dotted keys so
// that tables, dotted keys and environment overrides address the same value.
package tomlkeys

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Store struct {
	flat map[string]any
}

func New() Store {
	return Store{flat: map[string]any{}}
}

func Decode(data []byte) (Store, error) {
	raw := map[string]any{}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return Store{}, err
	}
	return FromRaw(raw), nil
}

func FromRaw(raw map[string]any) Store {
	flat := make(map[string]any)
	flattenMap("", raw, flat)

	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	store := New()
	for _, key := range keys {
		normalized := NormalizeKey(key)
		if _, exists := store.flat[normalized]; exists {
			continue
		}
		store.flat[normalized] = flat[key]
	}
	return store
}

func (s Store) Flat() map[string]any {
	flat := make(map[string]any, len(s.flat))
	for key, value := range s.flat {
		flat[key] = value
	}
	return flat
}

// Set stores value under key; an empty key is ignored.
func (s Store) Set(key string, value any) {
	normalized := NormalizeKey(key)
	if normalized == "" {
		return
	}
	s.flat[normalized] = value
}

// Merge copies every key of other over s.
func (s Store) Merge(other Store) {
	for key, value := range other.flat {
		s.flat[key] = value
	}
}

func (s Store) Has(key string) bool {
	_, ok := s.flat[NormalizeKey(key)]
	return ok
}

// String returns string values as-is and renders scalars; it fails only for
// missing keys and tables.
func (s Store) String(key string) (string, bool) {
	value, ok := s.flat[NormalizeKey(key)]
	if !ok {
		return "", false
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed), true
	case bool, int64, float64:
		return fmt.Sprint(typed), true
	default:
		return "", false
	}
}

func (s Store) Bool(key string) (bool, bool) {
	value, ok := s.flat[NormalizeKey(key)]
	if !ok {
		return false, false
	}
	switch typed := value.(type) {
	case bool:
		return typed, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		return parsed, err == nil
	default:
		return false, false
	}
}

func (s Store) Int(key string) (int64, bool) {
	value, ok := s.flat[NormalizeKey(key)]
	if !ok {
		return 0, false
	}
	switch typed := value.(type) {
	case int64:
		return typed, true
	case int:
		return int64(typed), true
	case float64:
		if typed == float64(int64(typed)) {
			return int64(typed), true
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		return parsed, err == nil
	}
	return 0, false
}

// Duration accepts Go duration strings ("1500ms") and bare numbers, which
// are read as seconds.
func (s Store) Duration(key string) (time.Duration, bool) {
	value, ok := s.flat[NormalizeKey(key)]
	if !ok {
		return 0, false
	}
	switch typed := value.(type) {
	case time.Duration:
		return typed, true
	case int64:
		return time.Duration(typed) * time.Second, true
	case int:
		return time.Duration(typed) * time.Second, true
	case float64:
		return time.Duration(typed * float64(time.Second)), true
	case string:
		trimmed := strings.TrimSpace(typed)
		if parsed, err := time.ParseDuration(trimmed); err == nil {
			return parsed, true
		}
		if seconds, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return time.Duration(seconds * float64(time.Second)), true
		}
	}
	return 0, false
}

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

func flattenMap(prefix string, raw map[string]any, out map[string]any) {
	for key, value := range raw {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			flattenMap(full, nested, out)
			continue
		}
		out[full] = value
	}
}
