package process

import (
	"context"
	"errors"
	"os"
	"time"
)

const (
	DefaultInterruptWait = 2 * time.Second
	DefaultTerminateWait = 2 * time.Second
)

// Log lines emitted into the session log as the stop sequence advances.
const (
	LineStopRequested = "[panel] stop requested"
	LineInterruptSent = "[panel] interrupt sent"
	LineTerminateSent = "[panel] terminate sent"
	LineKillSent      = "[panel] kill sent"
)

type Signal int

const (
	SignalInterrupt Signal = iota
	SignalTerminate
	SignalKill
)

func (s Signal) String() string {
	switch s {
	case SignalInterrupt:
		return "interrupt"
	case SignalTerminate:
		return "terminate"
	default:
		return "kill"
	}
}

// Step is the hardest signal the stop sequence had to use.
type Step string

const (
	StepNone      Step = "none"
	StepInterrupt Step = "interrupt"
	StepTerminate Step = "terminate"
	StepKill      Step = "kill"
)

// Target identifies a running worker. When PGID is positive the whole
// process group is signaled. Done must be closed by whoever reaps the process.
type Target struct {
	PID  int
	PGID int
	Done <-chan struct{}
}

type Signaler interface {
	Signal(target Target, sig Signal) error
}

type Options struct {
	InterruptWait time.Duration
	TerminateWait time.Duration
	// Log receives one line per escalation step.
	Log      func(line string)
	Signaler Signaler
}

type Outcome struct {
	Step   Step
	Exited bool
	Err    error
}

var ErrNoTarget = errors.New("no process to stop")

// Escalate stops target with interrupt, then terminate, then kill, waiting a
// bounded time after the first two. A failed signal does not stop the
// sequence. Cancelling ctx skips the remaining waits and goes straight to kill,
// so request-scoped callers pass a context detached from the client; only the
// host shutdown deadline should cut the sequence short.
func Escalate(ctx context.Context, target Target, opts Options) Outcome {
	if target.PID <= 0 {
		return Outcome{Step: StepNone, Err: ErrNoTarget}
	}
	if exited(target.Done) {
		return Outcome{Step: StepNone, Exited: true}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if target.Done == nil {
		stop := make(chan struct{})
		defer close(stop)
		target.Done = pollExit(target.PID, stop)
	}

	interruptWait := opts.InterruptWait
	if interruptWait <= 0 {
		interruptWait = DefaultInterruptWait
	}
	terminateWait := opts.TerminateWait
	if terminateWait <= 0 {
		terminateWait = DefaultTerminateWait
	}
	signaler := opts.Signaler
	if signaler == nil {
		signaler = DefaultSignaler()
	}
	logLine := opts.Log
	if logLine == nil {
		logLine = func(string) {}
	}

	outcome := Outcome{Step: StepInterrupt}
	logLine(LineStopRequested)
	if err := signaler.Signal(target, SignalInterrupt); err != nil {
		outcome.Err = errors.Join(outcome.Err, signalError(SignalInterrupt, err))
	} else {
		logLine(LineInterruptSent)
	}
	if waitDone(ctx, target.Done, interruptWait) {
		outcome.Exited = true
		return outcome
	}

	outcome.Step = StepTerminate
	if err := signaler.Signal(target, SignalTerminate); err != nil {
		outcome.Err = errors.Join(outcome.Err, signalError(SignalTerminate, err))
	} else {
		logLine(LineTerminateSent)
	}
	if waitDone(ctx, target.Done, terminateWait) {
		outcome.Exited = true
		return outcome
	}

	outcome.Step = StepKill
	if err := signaler.Signal(target, SignalKill); err != nil {
		outcome.Err = errors.Join(outcome.Err, signalError(SignalKill, err))
	} else {
		logLine(LineKillSent)
	}
	return outcome
}

func exited(done <-chan struct{}) bool {
	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func waitDone(ctx context.Context, done <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return exited(done)
	case <-ctx.Done():
		return exited(done)
	}
}

type SignalError struct {
	Signal Signal
	Err    error
}

func (e *SignalError) Error() string {
	return "send " + e.Signal.String() + ": " + e.Err.Error()
}

func (e *SignalError) Unwrap() error {
	return e.Err
}

func signalError(sig Signal, err error) error {
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return &SignalError{Signal: sig, Err: err}
}

const pollInterval = 50 * time.Millisecond

// pollExit closes the returned channel once pid is gone. Used for targets
// whose reaper does not publish a done channel.
func pollExit(pid int, stop <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			if !isAlive(pid) {
				close(done)
				return
			}
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
	return done
}
