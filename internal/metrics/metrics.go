package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Registry counts session lifecycle events per session kind.
type Registry struct {
	kinds     sync.Map
	startedAt time.Time
}

type kindStats struct {
	started       atomic.Int64
	dryRun        atomic.Int64
	spawnFailures atomic.Int64
	exited        atomic.Int64
	cancelled     atomic.Int64
	rejected      atomic.Int64
	interrupts    atomic.Int64
	terminates    atomic.Int64
	kills         atomic.Int64
	running       atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{startedAt: time.Now()}
}

func (r *Registry) IncStarted(kind string) {
	if r == nil {
		return
	}
	stats := r.stats(kind)
	stats.started.Add(1)
	stats.running.Add(1)
}

func (r *Registry) IncDryRun(kind string) {
	if r == nil {
		return
	}
	r.stats(kind).dryRun.Add(1)
}

func (r *Registry) IncSpawnFailure(kind string) {
	if r == nil {
		return
	}
	r.stats(kind).spawnFailures.Add(1)
}

func (r *Registry) IncRejected(kind string) {
	if r == nil {
		return
	}
	r.stats(kind).rejected.Add(1)
}

func (r *Registry) IncExited(kind string) {
	if r == nil {
		return
	}
	stats := r.stats(kind)
	stats.exited.Add(1)
	stats.running.Add(-1)
}

func (r *Registry) IncCancelled(kind string) {
	if r == nil {
		return
	}
	r.stats(kind).cancelled.Add(1)
}

// RecordEscalation counts the hardest stop step a worker needed.
func (r *Registry) RecordEscalation(kind, step string) {
	if r == nil {
		return
	}
	stats := r.stats(kind)
	switch step {
	case "interrupt":
		stats.interrupts.Add(1)
	case "terminate":
		stats.terminates.Add(1)
	case "kill":
		stats.kills.Add(1)
	}
}

func (r *Registry) Running(kind string) int64 {
	if r == nil {
		return 0
	}
	return r.stats(kind).running.Load()
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	kinds := r.kindNames()
	sort.Strings(kinds)

	writeGauge(writer, "robopanel_uptime_seconds", "Seconds since the panel started", time.Since(r.startedAt).Seconds())

	counters := []struct {
		name  string
		help  string
		value func(*kindStats) int64
	}{
		{"robopanel_sessions_started_total", "Worker processes spawned", func(s *kindStats) int64 { return s.started.Load() }},
		{"robopanel_sessions_dry_run_total", "Dry-run sessions accepted", func(s *kindStats) int64 { return s.dryRun.Load() }},
		{"robopanel_sessions_spawn_failures_total", "Worker spawn failures", func(s *kindStats) int64 { return s.spawnFailures.Load() }},
		{"robopanel_sessions_rejected_total", "Starts refused by the active session guard", func(s *kindStats) int64 { return s.rejected.Load() }},
		{"robopanel_sessions_exited_total", "Worker processes reaped", func(s *kindStats) int64 { return s.exited.Load() }},
		{"robopanel_sessions_cancelled_total", "Sessions stopped on request", func(s *kindStats) int64 { return s.cancelled.Load() }},
		{"robopanel_stop_interrupt_total", "Stops completed by interrupt", func(s *kindStats) int64 { return s.interrupts.Load() }},
		{"robopanel_stop_terminate_total", "Stops that needed terminate", func(s *kindStats) int64 { return s.terminates.Load() }},
		{"robopanel_stop_kill_total", "Stops that needed kill", func(s *kindStats) int64 { return s.kills.Load() }},
	}
	for _, counter := range counters {
		writeHelp(writer, counter.name, counter.help)
		fmt.Fprintf(writer, "# TYPE %s counter\n", counter.name)
		for _, kind := range kinds {
			fmt.Fprintf(writer, "%s{kind=%s} %d\n", counter.name, formatLabel(kind), counter.value(r.stats(kind)))
		}
	}

	writeHelp(writer, "robopanel_sessions_running", "Workers currently running")
	fmt.Fprintln(writer, "# TYPE robopanel_sessions_running gauge")
	for _, kind := range kinds {
		fmt.Fprintf(writer, "robopanel_sessions_running{kind=%s} %d\n", formatLabel(kind), r.stats(kind).running.Load())
	}
	return nil
}

func (r *Registry) stats(kind string) *kindStats {
	if strings.TrimSpace(kind) == "" {
		kind = "unknown"
	}
	value, _ := r.kinds.LoadOrStore(kind, &kindStats{})
	return value.(*kindStats)
}

func (r *Registry) kindNames() []string {
	var names []string
	r.kinds.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	return names
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeGauge(writer io.Writer, metric, help string, value float64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s gauge\n", metric)
	fmt.Fprintf(writer, "%s %.3f\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
