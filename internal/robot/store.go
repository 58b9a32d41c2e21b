package robot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"robopanel/internal/logging"
	"robopanel/internal/watcher"
)

const DefaultSeenInterval = 5 * time.Second

type Options struct {
	Catalog *Catalog
	Logger  *logging.Logger
	// SeenInterval is the minimum spacing between last_seen writes.
	SeenInterval time.Duration
}

type document struct {
	Robots []Robot `json:"robots"`
}

// Store is the JSON-file robot registry. Every mutation is written through
// to disk; last_seen updates are coalesced by a rate limiter and flushed on
// Close.
type Store struct {
	path    string
	catalog *Catalog
	logger  *logging.Logger
	seen    *rate.Limiter

	mu          sync.Mutex
	robots      []Robot
	dirty       bool
	lastWritten []byte
}

func Open(path string, opts Options) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("robot store path required")
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	interval := opts.SeenInterval
	if interval <= 0 {
		interval = DefaultSeenInterval
	}
	store := &Store{
		path:    trimmed,
		catalog: catalog,
		logger:  logger.Component("robots"),
		seen:    rate.NewLimiter(rate.Every(interval), 1),
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(trimmed)
	switch {
	case errors.Is(err, os.ErrNotExist):
		store.robots = []Robot{}
	case err != nil:
		return nil, err
	default:
		robots, parseErr := decode(data)
		if parseErr != nil {
			store.backupCorruptFile(parseErr)
			robots = []Robot{}
		}
		store.robots = robots
		store.lastWritten = data
	}
	return store, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Catalog() *Catalog {
	return s.catalog
}

func (s *Store) List() []Robot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Robot, 0, len(s.robots))
	for _, r := range s.robots {
		out = append(out, r.clone())
	}
	return out
}

func (s *Store) Get(id string) (Robot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.indexLocked(id)
	if index < 0 {
		return Robot{}, false
	}
	return s.robots[index].clone(), true
}

func (s *Store) Add(payload Create) (Robot, error) {
	payload.Name = strings.TrimSpace(payload.Name)
	payload.ComPort = strings.TrimSpace(payload.ComPort)
	if payload.Name == "" {
		return Robot{}, fmt.Errorf("%w: name is required", ErrInvalidRobot)
	}
	if payload.ComPort == "" {
		return Robot{}, fmt.Errorf("%w: com_port is required", ErrInvalidRobot)
	}
	if err := s.catalog.Validate(payload.Model, payload.Role); err != nil {
		return Robot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTakenLocked(payload.Name, "") {
		return Robot{}, ErrDuplicateName
	}
	record := Robot{
		ID:      uuid.NewString(),
		Name:    payload.Name,
		Model:   payload.Model,
		Role:    payload.Role,
		ComPort: payload.ComPort,
	}
	s.robots = append(s.robots, record)
	if err := s.saveLocked(); err != nil {
		s.robots = s.robots[:len(s.robots)-1]
		return Robot{}, err
	}
	s.logger.Info("robot added", map[string]string{
		logging.FieldRobot: record.ID,
		"name":             record.Name,
		"role":             record.Role,
	})
	return record.clone(), nil
}

func (s *Store) Update(id string, patch Update) (Robot, error) {
	return s.mutate(id, func(r *Robot) error {
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return fmt.Errorf("%w: name is required", ErrInvalidRobot)
			}
			if s.nameTakenLocked(name, id) {
				return ErrDuplicateName
			}
			r.Name = name
		}
		if patch.ComPort != nil {
			port := strings.TrimSpace(*patch.ComPort)
			if port == "" {
				return fmt.Errorf("%w: com_port is required", ErrInvalidRobot)
			}
			r.ComPort = port
		}
		return nil
	})
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.indexLocked(id)
	if index < 0 {
		return ErrRobotNotFound
	}
	previous := s.robots
	next := make([]Robot, 0, len(s.robots)-1)
	next = append(next, s.robots[:index]...)
	next = append(next, s.robots[index+1:]...)
	s.robots = next
	if err := s.saveLocked(); err != nil {
		s.robots = previous
		return err
	}
	s.logger.Info("robot deleted", map[string]string{logging.FieldRobot: id})
	return nil
}

func (s *Store) SetCalibration(id string, calibration Calibration) (Robot, error) {
	if calibration.UpdatedAt.IsZero() {
		calibration.UpdatedAt = time.Now().UTC()
	}
	return s.mutate(id, func(r *Robot) error {
		stored := calibration
		stored.Joints = append([]JointCalibration(nil), calibration.Joints...)
		r.Calibration = &stored
		r.HasCalibration = true
		return nil
	})
}

func (s *Store) ClearCalibration(id string) (Robot, error) {
	return s.mutate(id, func(r *Robot) error {
		r.Calibration = nil
		r.HasCalibration = false
		return nil
	})
}

// MarkSeen records that a robot's port was present at at. The write to disk
// is skipped when the limiter has no budget; Flush or Close persists it.
func (s *Store) MarkSeen(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.indexLocked(id)
	if index < 0 {
		return ErrRobotNotFound
	}
	seen := at.UTC()
	s.robots[index].LastSeen = &seen
	if !s.seen.Allow() {
		s.dirty = true
		return nil
	}
	return s.saveLocked()
}

// Flush writes pending last_seen updates.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.saveLocked()
}

func (s *Store) Close() error {
	return s.Flush()
}

// Watch reloads the store when the file is changed by another writer.
func (s *Store) Watch(w *watcher.Watcher) error {
	return w.WatchFile(s.path, func(watcher.Event) {
		if err := s.Reload(); err != nil {
			s.logger.Warn("robot store reload failed", map[string]string{"error": err.Error()})
		}
	})
}

// Reload re-reads the file. Content identical to the last write is ignored
// and a file that fails to parse leaves the in-memory state unchanged.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		data = nil
	} else if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if data != nil && bytes.Equal(data, s.lastWritten) {
		return nil
	}
	robots := []Robot{}
	if data != nil {
		robots, err = decode(data)
		if err != nil {
			return err
		}
	}
	s.robots = robots
	s.lastWritten = data
	s.logger.Info("robot store reloaded", map[string]string{"robots": fmt.Sprint(len(robots))})
	return nil
}

func (s *Store) mutate(id string, apply func(*Robot) error) (Robot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.indexLocked(id)
	if index < 0 {
		return Robot{}, ErrRobotNotFound
	}
	previous := s.robots[index].clone()
	updated := s.robots[index].clone()
	if err := apply(&updated); err != nil {
		return Robot{}, err
	}
	s.robots[index] = updated
	if err := s.saveLocked(); err != nil {
		s.robots[index] = previous
		return Robot{}, err
	}
	return updated.clone(), nil
}

func (s *Store) indexLocked(id string) int {
	for i, r := range s.robots {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) nameTakenLocked(name, exceptID string) bool {
	for _, r := range s.robots {
		if r.ID != exceptID && strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}

func (s *Store) saveLocked() error {
	records := make([]Robot, 0, len(s.robots))
	for _, r := range s.robots {
		r.Status = ""
		records = append(records, r)
	}
	payload, err := json.MarshalIndent(document{Robots: records}, "", "  ")
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	if err := writeFileAtomic(s.path, payload); err != nil {
		return fmt.Errorf("save robots: %w", err)
	}
	s.lastWritten = payload
	s.dirty = false
	return nil
}

func decode(data []byte) ([]Robot, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Robots == nil {
		doc.Robots = []Robot{}
	}
	for i := range doc.Robots {
		doc.Robots[i].Status = ""
	}
	return doc.Robots, nil
}

func writeFileAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, ".robots-*.json")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	defer func() {
		_ = tempFile.Close()
		_ = os.Remove(tempName)
	}()

	if _, err := tempFile.Write(payload); err != nil {
		return err
	}
	if err := tempFile.Sync(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tempName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tempName, path); err != nil {
		return err
	}
	if dirHandle, err := os.Open(dir); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}
	return nil
}

func (s *Store) backupCorruptFile(cause error) {
	timestamp := time.Now().UTC().Format("20060102T150405Z")
	backupPath := fmt.Sprintf("%s.%s.bck", s.path, timestamp)
	if err := os.Rename(s.path, backupPath); err != nil {
		s.logger.Warn("robot store backup failed", map[string]string{
			"path":  s.path,
			"error": err.Error(),
		})
		return
	}
	s.logger.Warn("robot store backed up", map[string]string{
		"path":   s.path,
		"backup": backupPath,
		"error":  cause.Error(),
	})
}
