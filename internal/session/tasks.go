package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc"

	"robopanel/internal/logging"
)

// supervise starts the output pump and lifecycle watcher for a spawned
// session. Both belong to the session's own group; the manager's task group
// joins that group so shutdown can wait for everything.
func (m *Manager) supervise(session *Session, pol policy) {
	logger := m.logger.ForSession(session.ID, string(session.Kind))
	var group conc.WaitGroup
	group.Go(func() {
		pumpOutput(session, logger.Worker())
	})
	group.Go(func() {
		m.watch(session, pol)
	})
	m.tasks.Go(func() {
		defer close(session.joined)
		if recovered := group.WaitAndRecover(); recovered != nil {
			logger.Error("session task panicked", map[string]string{
				"panic": fmt.Sprint(recovered.Value),
			})
		}
	})
}

// pumpOutput copies the merged worker output into the session log, one
// non-empty line at a time, until the stream ends. Lines are mirrored to
// logger at debug level.
func pumpOutput(session *Session, logger *logging.Logger) {
	output := session.handle.Output()
	if output == nil {
		return
	}
	defer output.Close()

	reader := bufio.NewReader(output)
	for {
		line, err := reader.ReadString('\n')
		if clean := strings.TrimRight(line, "\r\n"); clean != "" {
			session.appendLine(clean)
			logger.Debug(clean, nil)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				session.appendLine("[panel] output reader stopped: " + err.Error())
			}
			return
		}
	}
}

// watch reaps the worker. It is the only untimed wait in the session and the
// normal writer of the terminal state.
func (m *Manager) watch(session *Session, pol policy) {
	code := -1
	defer func() {
		if session.finish(code) {
			m.metrics.IncExited(string(session.Kind))
		}
		if recorded, ok := session.ReturnCode(); ok {
			code = recorded
		}
		session.appendLine(fmt.Sprintf("%s exited (code=%d).", pol.label, code))
		removeMarker(session.MarkerPath)
		m.releaseActive(session.ID)
		m.workers.Unregister(session.handle.PID)
		close(session.done)
		m.logger.ForSession(session.ID, string(session.Kind)).Info("worker exited", map[string]string{
			"code": strconv.Itoa(code),
		})
	}()

	exitCode, err := session.handle.Wait()
	code = exitCode
	if err != nil {
		session.appendLine("[panel] wait failed: " + err.Error())
	}
}
