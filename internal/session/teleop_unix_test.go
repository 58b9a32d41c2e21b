//go:build !windows

package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"robopanel/internal/process"
)

func TestTeleopGuardRejectsDifferentPair(t *testing.T) {
	env := newTestManager(t, scripts("", "echo ready; exec sleep 30"), nil)
	existing := startOK(t, env.manager, StartRequest{Kind: KindTeleoperation, Participants: PairOf("leader-a", "follower-a")})
	waitFor(t, 5*time.Second, "ready", func() bool { return hasLine(existing, "ready") })
	before := existing.Snapshot()

	result := env.manager.Start(context.Background(), StartRequest{Kind: KindTeleoperation, Participants: PairOf("leader-b", "follower-b")})
	if result.OK || result.Message != "Another teleop session is already running. Stop it first." {
		t.Fatalf("unexpected result %+v", result)
	}
	if !result.Conflict || result.Session == nil || result.Session.ID != existing.ID {
		t.Fatalf("expected conflict reporting the running session, got %+v", result)
	}

	after := existing.Snapshot()
	if !after.Running || after.PID != before.PID || len(after.Logs) != len(before.Logs) {
		t.Fatalf("expected existing session untouched, before=%+v after=%+v", before, after)
	}
	active, ok := env.manager.Active()
	if !ok || active.ID != existing.ID {
		t.Fatalf("expected active slot to keep the existing session")
	}
	if teleops := env.manager.List(KindTeleoperation); len(teleops) != 1 {
		t.Fatalf("expected one teleop session, got %d", len(teleops))
	}
}

func TestTeleopGuardReusesSamePair(t *testing.T) {
	env := newTestManager(t, scripts("", "exec sleep 30"), nil)
	existing := startOK(t, env.manager, StartRequest{Kind: KindTeleoperation, Participants: PairOf("leader", "follower")})

	result := env.manager.Start(context.Background(), StartRequest{Kind: KindTeleoperation, Participants: PairOf("leader", "follower")})
	if !result.OK || !result.Reused || result.Message != "Teleop already running." {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Session.ID != existing.ID || result.Session.PID() != existing.PID() {
		t.Fatalf("expected the running session to be returned")
	}
}

func TestTeleopGuardIgnoresFinishedSession(t *testing.T) {
	env := newTestManager(t, scripts("", "exit 0"), nil)
	first := startOK(t, env.manager, StartRequest{Kind: KindTeleoperation, Participants: PairOf("leader-a", "follower-a")})
	waitDone(t, first, 5*time.Second)

	if _, ok := env.manager.Active(); ok {
		t.Fatalf("expected active slot to be released after exit")
	}
	second := startOK(t, env.manager, StartRequest{Kind: KindTeleoperation, Participants: PairOf("leader-b", "follower-b")})
	if second.ID == first.ID {
		t.Fatalf("expected a new session")
	}
}

func TestTeleopGuardIgnoresDryRunSession(t *testing.T) {
	env := newTestManager(t, scripts("", "exec sleep 30"), nil)
	dry := startOK(t, env.manager, StartRequest{Kind: KindTeleoperation, Participants: PairOf("l", "f"), DryRun: true})
	if dry.Snapshot().Logs[0] != "[dry-run] "+dry.Command.Readable {
		t.Fatalf("unexpected dry-run log %v", dry.Logs())
	}

	real := startOK(t, env.manager, StartRequest{Kind: KindTeleoperation, Participants: PairOf("l2", "f2")})
	if !real.Running() {
		t.Fatalf("expected dry-run session not to block a real start")
	}
}

func TestTeleopSpawnFailureReleasesSlot(t *testing.T) {
	env := newTestManager(t, scriptBuilder{argv: []string{"/definitely/not/teleop"}}, nil)

	result := env.manager.Start(context.Background(), StartRequest{Kind: KindTeleoperation, Participants: PairOf("l", "f")})
	if result.OK || result.Session == nil {
		t.Fatalf("unexpected result %+v", result)
	}
	if !strings.HasPrefix(result.Session.Logs()[0], "Failed to start teleop: ") {
		t.Fatalf("unexpected log %v", result.Session.Logs())
	}
	if _, ok := env.manager.Active(); ok {
		t.Fatalf("expected failed spawn not to occupy the active slot")
	}
}

func TestStopPairWithoutActiveSession(t *testing.T) {
	env := newTestManager(t, scripts("", "exec sleep 30"), nil)

	result, session := env.manager.StopPair(context.Background(), "", "")
	if result.OK || result.Message != "No active teleop session." || session != nil {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestStopPairMismatch(t *testing.T) {
	env := newTestManager(t, scripts("", "exec sleep 30"), nil)
	existing := startOK(t, env.manager, StartRequest{Kind: KindTeleoperation, Participants: PairOf("leader", "follower")})

	result, _ := env.manager.StopPair(context.Background(), "leader", "someone-else")
	if result.OK || result.Message != "Active teleop session does not match the requested leader/follower." {
		t.Fatalf("unexpected result %+v", result)
	}
	if !existing.Running() {
		t.Fatalf("expected session to keep running")
	}
}

func TestStopPairDryRun(t *testing.T) {
	env := newTestManager(t, scripts("", "true"), nil)
	startOK(t, env.manager, StartRequest{Kind: KindTeleoperation, Participants: PairOf("l", "f"), DryRun: true})

	result, session := env.manager.StopPair(context.Background(), "l", "f")
	if !result.OK || result.Message != "Dry-run teleop stopped." || session == nil {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, ok := env.manager.Active(); ok {
		t.Fatalf("expected active slot to be released")
	}
}

func TestStopPairInterruptsWorker(t *testing.T) {
	env := newTestManager(t, scripts("", "echo ready; exec sleep 30"), nil)
	existing := startOK(t, env.manager, StartRequest{Kind: KindTeleoperation, Participants: PairOf("leader", "follower")})
	waitFor(t, 5*time.Second, "ready", func() bool { return hasLine(existing, "ready") })

	result, session := env.manager.StopPair(context.Background(), "leader", "follower")
	if !result.OK || result.Message != "Stopped teleop (code=-2)." {
		t.Fatalf("unexpected result %+v; logs %v", result, existing.Logs())
	}
	if session.ID != existing.ID || session.Running() {
		t.Fatalf("expected the stopped session to be returned")
	}
	for _, want := range []string{"[panel] stop requested", "[panel] interrupt sent", "Teleop exited (code=-2)."} {
		if !hasLine(existing, want) {
			t.Fatalf("expected %q in %v", want, existing.Logs())
		}
	}
	if hasLine(existing, "[panel] terminate sent") {
		t.Fatalf("expected escalation to stop at interrupt, got %v", existing.Logs())
	}
}

func TestStopPairEscalatesToKill(t *testing.T) {
	script := `trap '' INT TERM; echo ready; while :; do sleep 0.1; done`
	env := newTestManager(t, scripts("", script), func(opts *Options) {
		opts.Stop = process.Options{}
	})
	existing := startOK(t, env.manager, StartRequest{Kind: KindTeleoperation, Participants: PairOf("leader", "follower")})
	waitFor(t, 5*time.Second, "ready", func() bool { return hasLine(existing, "ready") })

	started := time.Now()
	result, _ := env.manager.StopPair(context.Background(), "leader", "follower")
	elapsed := time.Since(started)
	if !result.OK || result.Message != "Stopped teleop (code=-9)." {
		t.Fatalf("unexpected result %+v; logs %v", result, existing.Logs())
	}
	if elapsed > 6*time.Second {
		t.Fatalf("expected stop within the escalation window, took %s", elapsed)
	}
	if elapsed < 3*time.Second {
		t.Fatalf("expected both waits to elapse before kill, took %s", elapsed)
	}
	for _, want := range []string{"[panel] interrupt sent", "[panel] terminate sent", "[panel] kill sent"} {
		if !hasLine(existing, want) {
			t.Fatalf("expected %q in %v", want, existing.Logs())
		}
	}
	snapshot := existing.Snapshot()
	assertInvariant(t, snapshot)
	if snapshot.Running {
		t.Fatalf("expected stopped session")
	}
	select {
	case <-existing.Joined():
	case <-time.After(5 * time.Second):
		t.Fatalf("expected the output pump to end once the group is killed")
	}
	if _, ok := env.manager.Active(); ok {
		t.Fatalf("expected active slot to be released")
	}
}
