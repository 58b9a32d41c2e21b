//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

var errSignalUnsupported = errors.New("signal not supported on windows")

func GroupID(pid int) int {
	return 0
}

func ConfigureGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}

type windowsSignaler struct{}

func DefaultSignaler() Signaler {
	return windowsSignaler{}
}

// Only kill is deliverable; interrupt and terminate report an error so the
// escalation moves on.
func (windowsSignaler) Signal(target Target, sig Signal) error {
	if sig != SignalKill {
		return errSignalUnsupported
	}
	proc, err := os.FindProcess(target.PID)
	if err != nil {
		return err
	}
	return proc.Kill()
}

func ExitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}

func isAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = proc.Release()
	return true
}
