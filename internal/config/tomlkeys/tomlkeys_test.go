package tomlkeys

import (
	"testing"
	"time"
)

func TestTableAndDottedKeysAreEquivalent(t *testing.T) {
	cases := []string{
		"[server]\nport = 9000\n",
		"server.port = 9000\n",
	}
	for _, input := range cases {
		store, err := Decode([]byte(input))
		if err != nil {
			t.Fatalf("decode toml: %v", err)
		}
		value, ok := store.Int("server.port")
		if !ok || value != 9000 {
			t.Fatalf("expected 9000, got %d (%v)", value, ok)
		}
	}
}

func TestNormalizationHandlesUnderscoresAndCase(t *testing.T) {
	store, err := Decode([]byte("[Worker]\nMARKER_DIR = \"/tmp/flags\"\n"))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	value, ok := store.String("worker.marker-dir")
	if !ok || value != "/tmp/flags" {
		t.Fatalf("expected normalized key to resolve, got %q", value)
	}
}

func TestDurationForms(t *testing.T) {
	store, err := Decode([]byte("a = \"1500ms\"\nb = 3\nc = 0.5\nd = \"2\"\n"))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	cases := map[string]time.Duration{
		"a": 1500 * time.Millisecond,
		"b": 3 * time.Second,
		"c": 500 * time.Millisecond,
		"d": 2 * time.Second,
	}
	for key, want := range cases {
		got, ok := store.Duration(key)
		if !ok || got != want {
			t.Fatalf("%s: expected %s, got %s (%v)", key, want, got, ok)
		}
	}
}

func TestMergeAndSet(t *testing.T) {
	base, _ := Decode([]byte("[log]\nlevel = \"info\"\n"))
	overlay, _ := Decode([]byte("[log]\nlevel = \"debug\"\n"))
	base.Merge(overlay)
	base.Set("server.port", "8123")

	if level, _ := base.String("log.level"); level != "debug" {
		t.Fatalf("expected overlay to win, got %q", level)
	}
	if port, ok := base.Int("server.port"); !ok || port != 8123 {
		t.Fatalf("expected string int to parse, got %d", port)
	}
}
