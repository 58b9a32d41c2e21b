package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"robopanel/internal/commands"
	"robopanel/internal/launch"
	"robopanel/internal/logging"
	"robopanel/internal/metrics"
	"robopanel/internal/process"
	"robopanel/internal/robot"
	"robopanel/internal/session"
)

type staticPorts map[string]string

func (p staticPorts) Snapshot() map[string]string {
	cloned := make(map[string]string, len(p))
	for port, description := range p {
		cloned[port] = description
	}
	return cloned
}

type testServer struct {
	handler *Handler
	mux     *http.ServeMux
	store   *robot.Store
	logger  *logging.Logger
}

type serverConfig struct {
	dryRun  bool
	python  string
	token   string
	ports   staticPorts
	catalog *robot.Catalog
}

func newTestServer(t *testing.T, cfg serverConfig) *testServer {
	t.Helper()
	catalog := cfg.catalog
	if catalog == nil {
		catalog = robot.DefaultCatalog()
	}
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(200), logging.LevelDebug, nil)
	store, err := robot.Open(filepath.Join(t.TempDir(), "robots.json"), robot.Options{
		Catalog:      catalog,
		Logger:       logger,
		SeenInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	python := cfg.python
	if python == "" {
		python = commands.DefaultPython
	}
	stop := process.Options{InterruptWait: 300 * time.Millisecond, TerminateWait: 300 * time.Millisecond}
	registry := metrics.NewRegistry()
	manager := session.NewManager(session.Options{
		Builder:     commands.NewBuilder(python, store, catalog),
		Environment: launch.Resolver{Root: t.TempDir()},
		MarkerDir:   t.TempDir(),
		Stop:        stop,
		KillWait:    2 * time.Second,
		Workers:     process.NewRegistry(stop),
		Metrics:     registry,
		Logger:      logger,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := manager.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("shutdown: %v", err)
		}
	})

	dryRun := cfg.dryRun
	ports := cfg.ports
	if ports == nil {
		ports = staticPorts{}
	}
	handler := &Handler{
		Sessions:        manager,
		Robots:          store,
		Ports:           ports,
		Metrics:         registry,
		Logger:          logger,
		AuthToken:       cfg.token,
		DryRun:          func() bool { return dryRun },
		FleetInterval:   50 * time.Millisecond,
		SessionInterval: 20 * time.Millisecond,
		StartedAt:       time.Now().UTC(),
	}
	mux := http.NewServeMux()
	RegisterRoutes(mux, handler)
	return &testServer{handler: handler, mux: mux, store: store, logger: logger}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return s.doWithToken(t, method, path, body, s.handler.AuthToken)
}

func (s *testServer) doWithToken(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	return s.send(t, context.Background(), method, path, body, token)
}

// doWithContext serves a request bound to ctx, as when the client goes away
// while the handler is still working.
func (s *testServer) doWithContext(t *testing.T, ctx context.Context, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return s.send(t, ctx, method, path, body, s.handler.AuthToken)
}

func (s *testServer) send(t *testing.T, ctx context.Context, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader).WithContext(ctx)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) addRobot(t *testing.T, name, role, port string) robot.Robot {
	t.Helper()
	r, err := s.store.Add(robot.Create{Name: name, Model: "so101", Role: role, ComPort: port})
	if err != nil {
		t.Fatalf("add robot: %v", err)
	}
	return r
}

func (s *testServer) calibrate(t *testing.T, id string) {
	t.Helper()
	_, err := s.store.SetCalibration(id, robot.Calibration{Joints: []robot.JointCalibration{
		{Name: "shoulder_pan", Min: 700, Max: 3400, Current: 2048},
	}})
	if err != nil {
		t.Fatalf("set calibration: %v", err)
	}
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(rec.Body.Bytes(), &value); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return value
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	expectStatus(t, rec, status)
	payload := decodeBody[errorResponse](t, rec)
	if payload.Message != message {
		t.Fatalf("expected message %q, got %q", message, payload.Message)
	}
}
