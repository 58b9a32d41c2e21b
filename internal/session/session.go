package session

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"robopanel/internal/launch"
)

// Session is one supervised worker run. ID, Kind, Participants, DryRun,
// Command, MarkerPath and CreatedAt never change after creation.
type Session struct {
	ID           string
	Kind         Kind
	Participants Participants
	DryRun       bool
	Command      launch.Command
	MarkerPath   string
	CreatedAt    time.Time

	log    *LineBuffer
	handle *launch.Handle
	// done is closed once the worker has been reaped, or at creation for
	// sessions that never had a worker.
	done   chan struct{}
	joined chan struct{}

	mu         sync.Mutex
	running    bool
	returnCode *int
}

// Snapshot is an immutable view of a session for callers.
type Snapshot struct {
	SessionID  string    `json:"session_id"`
	Kind       Kind      `json:"kind"`
	RobotID    string    `json:"robot_id,omitempty"`
	LeaderID   string    `json:"leader_id,omitempty"`
	FollowerID string    `json:"follower_id,omitempty"`
	Logs       []string  `json:"logs"`
	Running    bool      `json:"running"`
	DryRun     bool      `json:"dry_run"`
	ReturnCode *int      `json:"return_code"`
	Command    string    `json:"command"`
	PID        int       `json:"pid,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func newID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func newSession(kind Kind, participants Participants, dryRun bool, command launch.Command, capacity int) *Session {
	return &Session{
		ID:           newID(),
		Kind:         kind,
		Participants: participants,
		DryRun:       dryRun,
		Command:      command,
		CreatedAt:    time.Now().UTC(),
		log:          NewLineBuffer(capacity),
		done:         make(chan struct{}),
		joined:       make(chan struct{}),
	}
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Session) ReturnCode() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.returnCode == nil {
		return 0, false
	}
	return *s.returnCode, true
}

func (s *Session) Logs() []string {
	return s.log.Lines()
}

func (s *Session) LastLine() (string, bool) {
	return s.log.Last()
}

func (s *Session) PID() int {
	if s.handle == nil {
		return 0
	}
	return s.handle.PID
}

// Done is closed when the session reaches its terminal state through the
// worker exiting (or immediately for sessions without a worker).
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Joined is closed once the output pump and lifecycle watcher have returned.
func (s *Session) Joined() <-chan struct{} {
	return s.joined
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	running := s.running
	var code *int
	if s.returnCode != nil {
		value := *s.returnCode
		code = &value
	}
	s.mu.Unlock()

	return Snapshot{
		SessionID:  s.ID,
		Kind:       s.Kind,
		RobotID:    s.Participants.RobotID,
		LeaderID:   s.Participants.LeaderID,
		FollowerID: s.Participants.FollowerID,
		Logs:       s.log.Lines(),
		Running:    running,
		DryRun:     s.DryRun,
		ReturnCode: code,
		Command:    s.Command.Readable,
		PID:        s.PID(),
		CreatedAt:  s.CreatedAt,
	}
}

func (s *Session) appendLine(line string) {
	s.log.Append(line)
}

func (s *Session) markRunning() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
}

// finish moves the session to its terminal state. Only the first call has
// any effect; later calls report false.
func (s *Session) finish(code int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.returnCode != nil {
		return false
	}
	value := code
	s.returnCode = &value
	s.running = false
	return true
}

// closeWithoutWorker marks a session that never had (or no longer has) a
// worker to reap: dry-run or failed spawn.
func (s *Session) closeWithoutWorker(code int) {
	s.finish(code)
	close(s.done)
	close(s.joined)
}

func (s *Session) exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
