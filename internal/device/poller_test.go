package device

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"robopanel/internal/robot"
)

func TestPollerRefreshAndSnapshot(t *testing.T) {
	poller := NewPoller(Options{Enumerator: EnumeratorFunc(func() (map[string]string, error) {
		return map[string]string{"/dev/ttyACM0": "SO101 Leader"}, nil
	})})

	ports := poller.Refresh()
	if ports["/dev/ttyACM0"] != "SO101 Leader" {
		t.Fatalf("unexpected ports %v", ports)
	}
	snapshot := poller.Snapshot()
	snapshot["/dev/ttyACM1"] = "mutated"
	if len(poller.Snapshot()) != 1 {
		t.Fatalf("expected snapshot to be a copy")
	}
}

func TestPollerFailureYieldsEmptySnapshot(t *testing.T) {
	calls := 0
	poller := NewPoller(Options{Enumerator: EnumeratorFunc(func() (map[string]string, error) {
		calls++
		if calls == 1 {
			return map[string]string{"COM3": "leader"}, nil
		}
		return nil, errors.New("permission denied")
	})})

	poller.Refresh()
	poller.Refresh()
	if ports := poller.Snapshot(); len(ports) != 0 {
		t.Fatalf("expected empty snapshot after failure, got %v", ports)
	}
}

func TestPollerStartStop(t *testing.T) {
	var calls atomic.Int32
	poller := NewPoller(Options{
		Interval: 10 * time.Millisecond,
		Enumerator: EnumeratorFunc(func() (map[string]string, error) {
			calls.Add(1)
			return map[string]string{}, nil
		}),
	})
	poller.Start(context.Background())
	poller.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() < 3 {
		t.Fatalf("expected repeated polling, got %d calls", calls.Load())
	}
	poller.Stop()
	stopped := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != stopped {
		t.Fatalf("expected polling to stop")
	}
	poller.Stop()
}

func TestDecorate(t *testing.T) {
	now := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	ports := map[string]string{"COM13": "USB Serial"}

	online, ok := Decorate(robot.Robot{ComPort: "com13"}, ports, now)
	if !ok || online.Status != robot.StatusOnline || online.LastSeen == nil || !online.LastSeen.Equal(now) {
		t.Fatalf("expected online robot, got %+v", online)
	}

	previous := now.Add(-time.Hour)
	offline, ok := Decorate(robot.Robot{ComPort: "COM14", LastSeen: &previous}, ports, now)
	if ok || offline.Status != robot.StatusOffline || !offline.LastSeen.Equal(previous) {
		t.Fatalf("expected offline robot keeping last_seen, got %+v", offline)
	}
}
