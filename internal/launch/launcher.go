package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"robopanel/internal/process"
)

var ErrEmptyCommand = errors.New("empty command")

type Spec struct {
	Command Command
	Env     []string
	Dir     string
	// ProcessGroup starts the worker as the leader of its own process group.
	ProcessGroup bool
}

// Spawner starts worker processes.
type Spawner interface {
	Spawn(ctx context.Context, spec Spec) (*Handle, error)
}

type ExecSpawner struct{}

// Spawn starts the worker with a writable stdin and a single readable stream
// carrying both stdout and stderr. The context only bounds the start itself;
// the worker outlives it.
func (ExecSpawner) Spawn(ctx context.Context, spec Spec) (*Handle, error) {
	if spec.Command.Empty() {
		return nil, ErrEmptyCommand
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	cmd := exec.Command(spec.Command.Args[0], spec.Command.Args[1:]...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir
	if spec.ProcessGroup {
		process.ConfigureGroup(cmd)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	reader, writer, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = writer
	cmd.Stderr = writer

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = reader.Close()
		_ = writer.Close()
		return nil, err
	}
	// The child holds its own copy; closing ours lets the reader see EOF
	// once every process in the worker tree has exited.
	_ = writer.Close()

	pid := cmd.Process.Pid
	pgid := 0
	if spec.ProcessGroup {
		pgid = process.GroupID(pid)
		if pgid <= 0 {
			pgid = pid
		}
	}
	return &Handle{
		cmd:    cmd,
		stdin:  stdin,
		output: reader,
		PID:    pid,
		PGID:   pgid,
	}, nil
}

// Handle owns a started worker. Wait must be called exactly once, by the
// lifecycle watcher.
type Handle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	output io.ReadCloser

	PID  int
	PGID int

	inputMu sync.Mutex
}

// NewHandle wraps an already started command; used by alternative spawners.
func NewHandle(cmd *exec.Cmd, stdin io.WriteCloser, output io.ReadCloser, pgid int) *Handle {
	pid := 0
	if cmd != nil && cmd.Process != nil {
		pid = cmd.Process.Pid
	}
	return &Handle{cmd: cmd, stdin: stdin, output: output, PID: pid, PGID: pgid}
}

func (h *Handle) Output() io.ReadCloser {
	return h.output
}

// WriteInput writes data to the worker's stdin. Concurrent callers are
// serialized so their lines never interleave.
func (h *Handle) WriteInput(data []byte) error {
	if h == nil || h.stdin == nil {
		return os.ErrClosed
	}
	h.inputMu.Lock()
	defer h.inputMu.Unlock()
	_, err := h.stdin.Write(data)
	return err
}

// Wait blocks until the worker exits and returns its exit code.
func (h *Handle) Wait() (int, error) {
	if h == nil || h.cmd == nil {
		return -1, ErrEmptyCommand
	}
	err := h.cmd.Wait()
	code := process.ExitCode(h.cmd.ProcessState)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = nil
	}
	return code, err
}

func (h *Handle) Target(done <-chan struct{}) process.Target {
	return process.Target{PID: h.PID, PGID: h.PGID, Done: done}
}
