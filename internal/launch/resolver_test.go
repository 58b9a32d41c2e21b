package launch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMergeEnvOverridesAndAppends(t *testing.T) {
	merged := MergeEnv([]string{"A=1", "B=2", "C=3"}, map[string]string{"B": "two", "D": "4"})
	want := []string{"A=1", "C=3", "B=two", "D=4"}
	if strings.Join(merged, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, merged)
	}
}

func TestResolverFindsWorkerRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	resolver := Resolver{Candidates: []string{missing, root}}
	if got := resolver.WorkerRoot(); got != root {
		t.Fatalf("expected root %q, got %q", root, got)
	}
	if got := resolver.WorkDir(); got != root {
		t.Fatalf("expected workdir %q, got %q", root, got)
	}

	t.Setenv(envPythonPath, "/opt/site")
	env := resolver.Environ(map[string]string{"LEROBOT_ENTER_FLAG": "/tmp/flag"})
	wantPath := envPythonPath + "=" + filepath.Join(root, "src") + string(os.PathListSeparator) + "/opt/site"
	if !containsEntry(env, wantPath) {
		t.Fatalf("expected %q in env", wantPath)
	}
	if !containsEntry(env, envPythonUnbuffered+"=1") || !containsEntry(env, "LEROBOT_ENTER_FLAG=/tmp/flag") {
		t.Fatalf("expected unbuffered and flag entries in env")
	}
}

func TestResolverFallsBackToCurrentDirectory(t *testing.T) {
	resolver := Resolver{Root: filepath.Join(t.TempDir(), "nope")}
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if got := resolver.WorkDir(); got != cwd {
		t.Fatalf("expected cwd %q, got %q", cwd, got)
	}
	for _, entry := range resolver.Environ(nil) {
		if strings.HasPrefix(entry, envPythonPath+"=") && strings.Contains(entry, "nope") {
			t.Fatalf("did not expect missing root on path: %q", entry)
		}
	}
}

func containsEntry(env []string, want string) bool {
	for _, entry := range env {
		if entry == want {
			return true
		}
	}
	return false
}
