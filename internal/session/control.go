package session

import (
	"context"
	"fmt"
	"time"

	"robopanel/internal/process"
)

// Result is the outcome of a control operation. Control operations never
// return Go errors; failures are described in Message.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func failure(message string) Result {
	return Result{Message: message}
}

func success(message string) Result {
	return Result{OK: true, Message: message}
}

const (
	msgNotFound   = "Session not found."
	msgDryRunNoIO = "Dry-run session does not accept input."
)

// SendEnter writes a single newline to the worker's stdin.
func (m *Manager) SendEnter(id string) Result {
	session, res, ok := m.inputTarget(id)
	if !ok {
		return res
	}
	if err := session.handle.WriteInput([]byte("\n")); err != nil {
		return failure("Failed to send input: " + err.Error())
	}
	return success("ENTER sent.")
}

// SendStop touches the stop marker and then writes a newline, so the
// calibration worker finishes the current step instead of advancing.
func (m *Manager) SendStop(id string) Result {
	session, res, ok := m.inputTarget(id)
	if !ok {
		return res
	}
	if session.MarkerPath == "" {
		return failure("Stop input is only supported for calibration sessions.")
	}
	if err := touchMarker(session.MarkerPath); err != nil {
		return failure("Failed to send input: " + err.Error())
	}
	if err := session.handle.WriteInput([]byte("\n")); err != nil {
		return failure("Failed to send input: " + err.Error())
	}
	return success("Stop ENTER sent.")
}

// SendInput writes data followed by a newline.
func (m *Manager) SendInput(id, data string) Result {
	session, res, ok := m.inputTarget(id)
	if !ok {
		return res
	}
	if err := session.handle.WriteInput([]byte(data + "\n")); err != nil {
		return failure("Failed to send input: " + err.Error())
	}
	return success("Input sent.")
}

func (m *Manager) inputTarget(id string) (*Session, Result, bool) {
	session, ok := m.Get(id)
	if !ok {
		return nil, failure(msgNotFound), false
	}
	if session.DryRun {
		return nil, failure(msgDryRunNoIO), false
	}
	if session.handle == nil || session.exited() || !session.Running() {
		return nil, failure(fmt.Sprintf("%s process is not running.", m.policyFor(session.Kind).label)), false
	}
	return session, Result{}, true
}

// Cancel stops a session's worker with the interrupt, terminate, kill
// escalation. Stopping a session that already ended succeeds without effect.
func (m *Manager) Cancel(ctx context.Context, id string) Result {
	session, ok := m.Get(id)
	if !ok {
		return failure(msgNotFound)
	}
	pol := m.policyFor(session.Kind)
	if session.DryRun {
		m.releaseActive(session.ID)
		return success("Dry-run session closed.")
	}
	if session.handle == nil || session.exited() || !session.Running() {
		m.releaseActive(session.ID)
		return success(fmt.Sprintf("%s already stopped.", pol.label))
	}

	code := m.terminate(ctx, session)
	m.metrics.IncCancelled(string(session.Kind))
	return success(fmt.Sprintf("%s cancelled (code=%d).", pol.label, code))
}

// StopPair stops the active teleoperation session if it drives the given
// leader and follower.
func (m *Manager) StopPair(ctx context.Context, leaderID, followerID string) (Result, *Session) {
	session, ok := m.Active()
	if !ok {
		return failure("No active teleop session."), nil
	}
	if !session.Participants.SamePair(PairOf(leaderID, followerID)) {
		return failure("Active teleop session does not match the requested leader/follower."), session
	}
	if session.DryRun {
		m.releaseActive(session.ID)
		return success("Dry-run teleop stopped."), session
	}
	if session.handle == nil || session.exited() || !session.Running() {
		m.releaseActive(session.ID)
		return success("Teleop already stopped."), session
	}

	code := m.terminate(ctx, session)
	m.metrics.IncCancelled(string(session.Kind))
	return success(fmt.Sprintf("Stopped teleop (code=%d).", code)), session
}

// terminate runs the stop escalation and settles the terminal state. The
// watcher normally records the exit status; if it has not done so shortly
// after the kill, the session is closed with the kill signal's code and the
// watcher's later report is ignored.
func (m *Manager) terminate(ctx context.Context, session *Session) int {
	if ctx == nil {
		ctx = context.Background()
	}
	opts := m.stopOptions
	opts.Log = session.appendLine

	outcome := process.Escalate(ctx, session.handle.Target(session.done), opts)
	m.metrics.RecordEscalation(string(session.Kind), string(outcome.Step))
	logger := m.logger.ForSession(session.ID, string(session.Kind))
	fields := map[string]string{"step": string(outcome.Step)}
	if outcome.Err != nil {
		fields["error"] = outcome.Err.Error()
		logger.Warn("worker stop signal failed", fields)
	}

	if !outcome.Exited {
		timer := time.NewTimer(m.killWait)
		select {
		case <-session.done:
		case <-timer.C:
			if session.finish(killedCode) {
				m.metrics.IncExited(string(session.Kind))
			}
			logger.Warn("worker not reaped after kill", fields)
		}
		timer.Stop()
	}

	removeMarker(session.MarkerPath)
	m.releaseActive(session.ID)
	code, _ := session.ReturnCode()
	fields["code"] = fmt.Sprint(code)
	logger.Info("worker stopped", fields)
	return code
}
