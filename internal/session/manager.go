package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"robopanel/internal/launch"
	"robopanel/internal/logging"
	"robopanel/internal/metrics"
	"robopanel/internal/process"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidParticipants = errors.New("invalid participants")
	ErrManagerClosed       = errors.New("session manager is shutting down")
)

// DefaultKillWait bounds how long a stop waits for the watcher to reap the
// worker after the kill signal.
const DefaultKillWait = 2 * time.Second

// MarkerEnv tells the calibration worker where its stop marker lives.
const MarkerEnv = "LEROBOT_ENTER_FLAG"

// CommandBuilder turns a session request into the worker command line.
type CommandBuilder interface {
	Build(kind Kind, participants Participants) (launch.Command, error)
}

// Environment supplies the worker environment and working directory.
type Environment interface {
	Environ(extra map[string]string) []string
	WorkDir() string
}

type Options struct {
	Builder     CommandBuilder
	Spawner     launch.Spawner
	Environment Environment
	// MarkerDir holds calibration stop markers; defaults to os.TempDir().
	MarkerDir string
	Stop      process.Options
	KillWait  time.Duration
	// Workers, when set, tracks live worker pids for host shutdown.
	Workers          *process.Registry
	Metrics          *metrics.Registry
	Logger           *logging.Logger
	CalibrationLines int
	TeleopLines      int
}

// Manager is the session registry. mu guards sessions and the active
// teleoperation slot; startMu serializes guarded starts so the
// check-then-spawn sequence is atomic without holding mu across fork/exec.
type Manager struct {
	mu       sync.Mutex
	startMu  sync.Mutex
	sessions map[string]*Session
	activeID string

	builder          CommandBuilder
	spawner          launch.Spawner
	environment      Environment
	markerDir        string
	stopOptions      process.Options
	killWait         time.Duration
	workers          *process.Registry
	metrics          *metrics.Registry
	logger           *logging.Logger
	tracer           trace.Tracer
	calibrationLines int
	teleopLines      int

	// lifecycle is read-held by every Start and write-held by Shutdown, so
	// no task is added to the group once Shutdown has begun waiting.
	lifecycle sync.RWMutex
	tasks     conc.WaitGroup
	closed    atomic.Bool
}

type StartRequest struct {
	Kind         Kind
	Participants Participants
	DryRun       bool
}

// StartResult reports the outcome of Start. Session is nil only when no
// session could be created at all (bad request or shutdown). Reused is set
// when an identical teleoperation session was already running; Conflict when
// a different one was, in which case Session is that running session.
type StartResult struct {
	Session  *Session
	OK       bool
	Message  string
	Reused   bool
	Conflict bool
}

func NewManager(opts Options) *Manager {
	spawner := opts.Spawner
	if spawner == nil {
		spawner = launch.ExecSpawner{}
	}
	var environment Environment = opts.Environment
	if environment == nil {
		environment = launch.Resolver{Candidates: launch.DefaultCandidates()}
	}
	markerDir := opts.MarkerDir
	if markerDir == "" {
		markerDir = os.TempDir()
	}
	killWait := opts.KillWait
	if killWait <= 0 {
		killWait = DefaultKillWait
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	calibrationLines := opts.CalibrationLines
	if calibrationLines <= 0 {
		calibrationLines = DefaultCalibrationLogLines
	}
	teleopLines := opts.TeleopLines
	if teleopLines <= 0 {
		teleopLines = DefaultTeleoperationLogLines
	}
	return &Manager{
		sessions:         make(map[string]*Session),
		builder:          opts.Builder,
		spawner:          spawner,
		environment:      environment,
		markerDir:        markerDir,
		stopOptions:      opts.Stop,
		killWait:         killWait,
		workers:          opts.Workers,
		metrics:          opts.Metrics,
		logger:           logger.Component("session"),
		tracer:           otel.Tracer("robopanel/session"),
		calibrationLines: calibrationLines,
		teleopLines:      teleopLines,
	}
}

// Start creates a session. Dry-run sessions are terminal immediately with
// return code 0; spawn failures are terminal with return code -1.
func (m *Manager) Start(ctx context.Context, req StartRequest) StartResult {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := m.tracer.Start(ctx, "session.start", trace.WithAttributes(
		attribute.String("session.kind", string(req.Kind)),
		attribute.Bool("session.dry_run", req.DryRun),
	))
	defer span.End()

	result := m.start(ctx, req)
	if result.Session != nil {
		span.SetAttributes(attribute.String("session.id", result.Session.ID))
	}
	if !result.OK {
		span.SetStatus(codes.Error, result.Message)
	}
	return result
}

func (m *Manager) start(ctx context.Context, req StartRequest) StartResult {
	m.lifecycle.RLock()
	defer m.lifecycle.RUnlock()
	if m.closed.Load() {
		return StartResult{Message: ErrManagerClosed.Error()}
	}
	if err := req.Participants.validate(req.Kind); err != nil {
		return StartResult{Message: err.Error()}
	}
	pol := m.policyFor(req.Kind)

	if pol.exclusive {
		m.startMu.Lock()
		defer m.startMu.Unlock()
		if current, ok := m.Active(); ok && current.Running() {
			if current.Participants.SamePair(req.Participants) {
				return StartResult{Session: current, OK: true, Reused: true, Message: "Teleop already running."}
			}
			m.metrics.IncRejected(string(req.Kind))
			m.logger.Warn("teleop start refused", map[string]string{
				logging.FieldSession: current.ID,
				"leader_id":          req.Participants.LeaderID,
				"follower_id":        req.Participants.FollowerID,
			})
			return StartResult{Session: current, Conflict: true, Message: "Another teleop session is already running. Stop it first."}
		}
	}

	if m.builder == nil {
		return StartResult{Message: "no command builder configured"}
	}
	command, err := m.builder.Build(req.Kind, req.Participants)
	if err != nil {
		return StartResult{Message: err.Error()}
	}

	session := newSession(req.Kind, req.Participants, req.DryRun, command, pol.capacity)
	if pol.marker {
		session.MarkerPath = filepath.Join(m.markerDir, "lerobot_enter_"+session.ID+".flag")
	}
	logger := m.logger.ForSession(session.ID, string(req.Kind))

	if req.DryRun {
		session.appendLine("[dry-run] " + command.Readable)
		session.closeWithoutWorker(0)
		m.store(session, pol.exclusive)
		m.metrics.IncDryRun(string(req.Kind))
		logger.Info("dry-run session accepted", nil)
		return StartResult{Session: session, OK: true, Message: fmt.Sprintf("Dry-run %s accepted.", lowerLabel(pol))}
	}

	extra := map[string]string{}
	if session.MarkerPath != "" {
		extra[MarkerEnv] = session.MarkerPath
	}
	handle, err := m.spawner.Spawn(ctx, launch.Spec{
		Command:      command,
		Env:          m.environment.Environ(extra),
		Dir:          m.environment.WorkDir(),
		ProcessGroup: pol.processGroup,
	})
	if err != nil {
		session.appendLine(fmt.Sprintf("Failed to start %s: %v", lowerLabel(pol), err))
		session.closeWithoutWorker(-1)
		m.store(session, false)
		m.metrics.IncSpawnFailure(string(req.Kind))
		logger.Error("worker spawn failed", map[string]string{"error": err.Error()})
		return StartResult{Session: session, Message: err.Error()}
	}

	session.handle = handle
	session.appendLine("Starting: " + command.Readable)
	session.appendLine(fmt.Sprintf("%s process started (pid=%d).", pol.label, handle.PID))
	session.markRunning()
	m.store(session, pol.exclusive)
	m.workers.Register(process.Entry{
		PID:  handle.PID,
		PGID: handle.PGID,
		Name: string(req.Kind) + ":" + session.ID,
		Done: session.done,
	})
	m.metrics.IncStarted(string(req.Kind))
	logger.Info("worker started", map[string]string{"pid": strconv.Itoa(handle.PID)})

	m.supervise(session, pol)
	return StartResult{Session: session, OK: true, Message: fmt.Sprintf("%s started (pid=%d).", pol.label, handle.PID)}
}

func lowerLabel(pol policy) string {
	if pol.label == "Teleop" {
		return "teleop"
	}
	return "calibration"
}

func (m *Manager) store(session *Session, occupyActive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	if occupyActive {
		m.activeID = session.ID
	}
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	return session, ok
}

// Active returns the session occupying the teleoperation slot.
func (m *Manager) Active() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeID == "" {
		return nil, false
	}
	session, ok := m.sessions[m.activeID]
	return session, ok
}

func (m *Manager) releaseActive(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeID == id {
		m.activeID = ""
	}
}

func (m *Manager) Snapshot(id string) (Snapshot, bool) {
	session, ok := m.Get(id)
	if !ok {
		return Snapshot{}, false
	}
	return session.Snapshot(), true
}

// List returns snapshots of one kind (or all kinds when kind is empty),
// newest first.
func (m *Manager) List(kind Kind) []Snapshot {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		if kind != "" && session.Kind != kind {
			continue
		}
		sessions = append(sessions, session)
	}
	m.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	snapshots := make([]Snapshot, 0, len(sessions))
	for _, session := range sessions {
		snapshots = append(snapshots, session.Snapshot())
	}
	return snapshots
}

// Wait blocks until every output pump and lifecycle watcher has returned
// or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown refuses new sessions, stops every running worker and joins the
// background tasks.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.lifecycle.Lock()
	m.closed.Store(true)
	m.lifecycle.Unlock()

	m.mu.Lock()
	running := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		if session.Running() {
			running = append(running, session)
		}
	}
	m.mu.Unlock()

	var group conc.WaitGroup
	for _, session := range running {
		session := session
		group.Go(func() {
			m.terminate(ctx, session)
		})
	}
	group.Wait()
	return m.Wait(ctx)
}
