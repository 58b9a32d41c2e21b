//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func GroupID(pid int) int {
	if pid <= 0 {
		return 0
	}
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		return 0
	}
	return pgid
}

// ConfigureGroup makes the command the leader of a new process group so
// that signals reach any children it launches.
func ConfigureGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

type unixSignaler struct{}

func DefaultSignaler() Signaler {
	return unixSignaler{}
}

func (unixSignaler) Signal(target Target, sig Signal) error {
	signal := unix.SIGKILL
	switch sig {
	case SignalInterrupt:
		signal = unix.SIGINT
	case SignalTerminate:
		signal = unix.SIGTERM
	}
	pid := target.PID
	if target.PGID > 0 {
		pid = -target.PGID
	}
	err := unix.Kill(pid, signal)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

// ExitCode returns the exit status, or the negated signal number when the
// process was killed by a signal.
func ExitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return -int(status.Signal())
	}
	return state.ExitCode()
}

func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}
