package commands

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"robopanel/internal/robot"
	"robopanel/internal/session"
)

type robotMap map[string]robot.Robot

func (m robotMap) Get(id string) (robot.Robot, bool) {
	r, ok := m[id]
	return r, ok
}

type fakeInfo struct{ dir bool }

func (f fakeInfo) Name() string       { return "" }
func (f fakeInfo) Size() int64        { return 0 }
func (f fakeInfo) Mode() fs.FileMode  { return 0o755 }
func (f fakeInfo) ModTime() time.Time { return time.Time{} }
func (f fakeInfo) IsDir() bool        { return f.dir }
func (f fakeInfo) Sys() any           { return nil }

var (
	leader   = robot.Robot{ID: "l1", Name: "Lefty", Model: "so101", Role: robot.RoleLeader, ComPort: "COM3"}
	follower = robot.Robot{ID: "f1", Name: "Follow Me", Model: "so101", Role: robot.RoleFollower, ComPort: "COM4"}
)

func newTestBuilder(scripts map[string]string) *Builder {
	builder := NewBuilder("/opt/venv/bin/python", robotMap{"l1": leader, "f1": follower}, robot.DefaultCatalog())
	builder.LookPath = func(file string) (string, error) {
		if file == "/opt/venv/bin/python" {
			return file, nil
		}
		if path, ok := scripts[file]; ok {
			return path, nil
		}
		return "", errors.New("not found")
	}
	builder.Stat = func(name string) (os.FileInfo, error) {
		for _, path := range scripts {
			if path == name {
				return fakeInfo{}, nil
			}
		}
		return nil, os.ErrNotExist
	}
	return builder
}

func TestCalibrationLeaderUsesTeleopKey(t *testing.T) {
	command := newTestBuilder(nil).Calibration(leader)
	want := []string{
		"/opt/venv/bin/python", "-u", "-m", CalibrateModule,
		"--teleop.type=so101_leader", "--teleop.port=COM3", "--teleop.id=Lefty",
	}
	if strings.Join(command.Args, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, command.Args)
	}
}

func TestCalibrationFollowerUsesRobotKey(t *testing.T) {
	command := newTestBuilder(nil).Calibration(follower)
	if command.Args[4] != "--robot.type=so101_follower" || command.Args[6] != "--robot.id=Follow Me" {
		t.Fatalf("unexpected args %v", command.Args)
	}
	if !strings.HasSuffix(command.Readable, "'--robot.id=Follow Me'") {
		t.Fatalf("expected quoted readable command, got %q", command.Readable)
	}
}

func TestTeleoperationPrefersScriptNextToInterpreter(t *testing.T) {
	script := filepath.Join("/opt/venv/bin", TeleoperateScript)
	builder := newTestBuilder(map[string]string{"venv": script})
	command := builder.Teleoperation(leader, follower)
	if command.Args[0] != script {
		t.Fatalf("expected console script, got %v", command.Args)
	}
	want := []string{
		"--robot.type=so101_follower", "--robot.port=COM4", "--robot.id=Follow Me",
		"--teleop.type=so101_leader", "--teleop.port=COM3", "--teleop.id=Lefty",
	}
	if strings.Join(command.Args[1:], "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, command.Args[1:])
	}
	if !builder.Available() {
		t.Fatalf("expected worker to be available")
	}
}

func TestTeleoperationUsesScriptOnPath(t *testing.T) {
	builder := newTestBuilder(map[string]string{TeleoperateScript: "/usr/local/bin/lerobot-teleoperate"})
	command := builder.Teleoperation(leader, follower)
	if command.Args[0] != "/usr/local/bin/lerobot-teleoperate" {
		t.Fatalf("expected PATH script, got %v", command.Args)
	}
}

func TestTeleoperationFallsBackToModule(t *testing.T) {
	builder := newTestBuilder(nil)
	command := builder.Teleoperation(leader, follower)
	if strings.Join(command.Args[:4], " ") != "/opt/venv/bin/python -u -m "+TeleoperateModule {
		t.Fatalf("expected module fallback, got %v", command.Args)
	}
	if builder.Available() {
		t.Fatalf("expected worker to be unavailable without an entry point")
	}
}

func TestBuildResolvesParticipants(t *testing.T) {
	builder := newTestBuilder(nil)
	command, err := builder.Build(session.KindTeleoperation, session.PairOf("l1", "f1"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if command.Empty() {
		t.Fatalf("expected a command")
	}
	if _, err := builder.Build(session.KindCalibration, session.CalibrationOf("ghost")); !errors.Is(err, ErrUnknownRobot) {
		t.Fatalf("expected unknown robot, got %v", err)
	}
	if _, err := builder.Build(session.KindTeleoperation, session.PairOf("l1", "ghost")); !errors.Is(err, ErrUnknownRobot) {
		t.Fatalf("expected unknown follower, got %v", err)
	}
}
