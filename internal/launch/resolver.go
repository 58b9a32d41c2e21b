package launch

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	envPythonPath       = "PYTHONPATH"
	envPythonUnbuffered = "PYTHONUNBUFFERED"
)

// Resolver supplies the environment and working directory for workers.
// Root is the worker checkout whose src/ directory must be importable.
type Resolver struct {
	Root string
	// Candidates are probed in order when Root is empty.
	Candidates []string
}

// DefaultCandidates looks for a lerobot checkout next to the executable and
// under the current directory.
func DefaultCandidates() []string {
	candidates := []string{}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "..", "lerobot"))
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, "lerobot"))
	}
	return candidates
}

// WorkerRoot returns the first root containing a src directory, or "".
func (r Resolver) WorkerRoot() string {
	candidates := r.Candidates
	if strings.TrimSpace(r.Root) != "" {
		candidates = []string{r.Root}
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		info, err := os.Stat(filepath.Join(candidate, "src"))
		if err != nil || !info.IsDir() {
			continue
		}
		if abs, err := filepath.Abs(candidate); err == nil {
			return abs
		}
		return candidate
	}
	return ""
}

// WorkDir falls back to the current directory when no worker root exists.
func (r Resolver) WorkDir() string {
	if root := r.WorkerRoot(); root != "" {
		return root
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// Environ extends the parent environment with the worker's source path,
// unbuffered output and any extra variables.
func (r Resolver) Environ(extra map[string]string) []string {
	overrides := map[string]string{
		envPythonUnbuffered: "1",
	}
	if root := r.WorkerRoot(); root != "" {
		src := filepath.Join(root, "src")
		if existing := os.Getenv(envPythonPath); existing != "" {
			overrides[envPythonPath] = src + string(os.PathListSeparator) + existing
		} else {
			overrides[envPythonPath] = src
		}
	}
	for key, value := range extra {
		overrides[key] = value
	}
	return MergeEnv(os.Environ(), overrides)
}

// MergeEnv replaces or appends overrides; appended keys are sorted.
func MergeEnv(base []string, overrides map[string]string) []string {
	merged := make([]string, 0, len(base)+len(overrides))
	for _, entry := range base {
		key, _, _ := strings.Cut(entry, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		merged = append(merged, entry)
	}
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		merged = append(merged, key+"="+overrides[key])
	}
	return merged
}
