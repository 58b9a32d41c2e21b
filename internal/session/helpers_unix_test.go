//go:build !windows

package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"robopanel/internal/launch"
	"robopanel/internal/metrics"
	"robopanel/internal/process"
)

type scriptBuilder struct {
	scripts map[Kind]string
	argv    []string
	err     error
}

func (b scriptBuilder) Build(kind Kind, participants Participants) (launch.Command, error) {
	if b.err != nil {
		return launch.Command{}, b.err
	}
	if len(b.argv) > 0 {
		return launch.NewCommand(b.argv...), nil
	}
	return launch.NewCommand("/bin/sh", "-c", b.scripts[kind]), nil
}

func scripts(calibration, teleop string) scriptBuilder {
	return scriptBuilder{scripts: map[Kind]string{
		KindCalibration:   calibration,
		KindTeleoperation: teleop,
	}}
}

type testEnv struct {
	manager *Manager
	workers *process.Registry
	metrics *metrics.Registry
}

func newTestManager(t *testing.T, builder CommandBuilder, adjust func(*Options)) testEnv {
	t.Helper()
	stop := process.Options{
		InterruptWait: 300 * time.Millisecond,
		TerminateWait: 300 * time.Millisecond,
	}
	workers := process.NewRegistry(stop)
	registry := metrics.NewRegistry()
	opts := Options{
		Builder:     builder,
		Environment: launch.Resolver{Root: t.TempDir()},
		MarkerDir:   t.TempDir(),
		Stop:        stop,
		KillWait:    2 * time.Second,
		Workers:     workers,
		Metrics:     registry,
	}
	if adjust != nil {
		adjust(&opts)
	}
	manager := NewManager(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := manager.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("shutdown: %v", err)
		}
	})
	return testEnv{manager: manager, workers: workers, metrics: registry}
}

func waitFor(t *testing.T, timeout time.Duration, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, session *Session, timeout time.Duration) {
	t.Helper()
	select {
	case <-session.Done():
	case <-time.After(timeout):
		t.Fatalf("session %s did not finish; logs: %v", session.ID, session.Logs())
	}
}

func hasLine(session *Session, want string) bool {
	for _, line := range session.Logs() {
		if line == want {
			return true
		}
	}
	return false
}

func hasLinePrefix(session *Session, prefix string) bool {
	for _, line := range session.Logs() {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func startOK(t *testing.T, manager *Manager, req StartRequest) *Session {
	t.Helper()
	result := manager.Start(context.Background(), req)
	if !result.OK || result.Session == nil {
		t.Fatalf("start failed: %+v", result)
	}
	return result.Session
}

func assertInvariant(t *testing.T, snapshot Snapshot) {
	t.Helper()
	if snapshot.Running == (snapshot.ReturnCode != nil) {
		t.Fatalf("running=%v but return_code=%v", snapshot.Running, snapshot.ReturnCode)
	}
}
