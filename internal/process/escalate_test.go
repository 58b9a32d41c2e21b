package process

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type recordingSignaler struct {
	mu      sync.Mutex
	sent    []Signal
	failOn  map[Signal]error
	exitOn  Signal
	exitNow func()
}

func (s *recordingSignaler) Signal(target Target, sig Signal) error {
	s.mu.Lock()
	s.sent = append(s.sent, sig)
	s.mu.Unlock()
	if err := s.failOn[sig]; err != nil {
		return err
	}
	if s.exitNow != nil && sig == s.exitOn {
		s.exitNow()
	}
	return nil
}

func (s *recordingSignaler) signals() []Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Signal(nil), s.sent...)
}

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) add(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

func (r *lineRecorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func fastOptions(signaler Signaler, lines *lineRecorder) Options {
	return Options{
		InterruptWait: 20 * time.Millisecond,
		TerminateWait: 20 * time.Millisecond,
		Signaler:      signaler,
		Log:           lines.add,
	}
}

func TestEscalateStopsAfterInterrupt(t *testing.T) {
	done := make(chan struct{})
	signaler := &recordingSignaler{exitOn: SignalInterrupt, exitNow: func() { close(done) }}
	lines := &lineRecorder{}

	outcome := Escalate(context.Background(), Target{PID: 42, Done: done}, fastOptions(signaler, lines))

	if !outcome.Exited || outcome.Step != StepInterrupt {
		t.Fatalf("expected exit after interrupt, got %+v", outcome)
	}
	if got := signaler.signals(); !reflect.DeepEqual(got, []Signal{SignalInterrupt}) {
		t.Fatalf("expected only interrupt, got %v", got)
	}
	want := []string{LineStopRequested, LineInterruptSent}
	if got := lines.list(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected lines %v, got %v", want, got)
	}
}

func TestEscalateReachesKillWhenIgnored(t *testing.T) {
	done := make(chan struct{})
	signaler := &recordingSignaler{}
	lines := &lineRecorder{}

	outcome := Escalate(context.Background(), Target{PID: 42, PGID: 42, Done: done}, fastOptions(signaler, lines))

	if outcome.Exited || outcome.Step != StepKill {
		t.Fatalf("expected kill step, got %+v", outcome)
	}
	wantSignals := []Signal{SignalInterrupt, SignalTerminate, SignalKill}
	if got := signaler.signals(); !reflect.DeepEqual(got, wantSignals) {
		t.Fatalf("expected %v, got %v", wantSignals, got)
	}
	wantLines := []string{LineStopRequested, LineInterruptSent, LineTerminateSent, LineKillSent}
	if got := lines.list(); !reflect.DeepEqual(got, wantLines) {
		t.Fatalf("expected lines %v, got %v", wantLines, got)
	}
}

func TestEscalateContinuesWhenInterruptFails(t *testing.T) {
	done := make(chan struct{})
	failure := errors.New("no such mechanism")
	signaler := &recordingSignaler{
		failOn:  map[Signal]error{SignalInterrupt: failure},
		exitOn:  SignalTerminate,
		exitNow: func() { close(done) },
	}
	lines := &lineRecorder{}

	outcome := Escalate(context.Background(), Target{PID: 42, Done: done}, fastOptions(signaler, lines))

	if !outcome.Exited || outcome.Step != StepTerminate {
		t.Fatalf("expected exit after terminate, got %+v", outcome)
	}
	if !errors.Is(outcome.Err, failure) {
		t.Fatalf("expected interrupt failure recorded, got %v", outcome.Err)
	}
	var signalErr *SignalError
	if !errors.As(outcome.Err, &signalErr) || signalErr.Signal != SignalInterrupt {
		t.Fatalf("expected SignalError for interrupt, got %v", outcome.Err)
	}
	for _, line := range lines.list() {
		if line == LineInterruptSent {
			t.Fatalf("did not expect interrupt line after failed signal")
		}
	}
}

func TestEscalateAlreadyExited(t *testing.T) {
	done := make(chan struct{})
	close(done)
	signaler := &recordingSignaler{}

	outcome := Escalate(context.Background(), Target{PID: 42, Done: done}, Options{Signaler: signaler})

	if !outcome.Exited || outcome.Step != StepNone {
		t.Fatalf("expected no-op outcome, got %+v", outcome)
	}
	if len(signaler.signals()) != 0 {
		t.Fatalf("expected no signals, got %v", signaler.signals())
	}
}

func TestEscalateCancelledContextSkipsWaits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	signaler := &recordingSignaler{}

	start := time.Now()
	outcome := Escalate(ctx, Target{PID: 42, Done: make(chan struct{})}, Options{
		InterruptWait: time.Minute,
		TerminateWait: time.Minute,
		Signaler:      signaler,
	})

	if outcome.Step != StepKill {
		t.Fatalf("expected kill step, got %+v", outcome)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("expected cancelled context to skip waits")
	}
}

func TestEscalateWithoutPID(t *testing.T) {
	outcome := Escalate(context.Background(), Target{}, Options{})
	if !errors.Is(outcome.Err, ErrNoTarget) {
		t.Fatalf("expected ErrNoTarget, got %v", outcome.Err)
	}
}
