package commands

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"robopanel/internal/launch"
	"robopanel/internal/robot"
	"robopanel/internal/session"
)

const (
	DefaultPython     = "python3"
	CalibrateModule   = "lerobot.scripts.lerobot_calibrate"
	TeleoperateModule = "lerobot.scripts.lerobot_teleoperate"
	TeleoperateScript = "lerobot-teleoperate"
)

var ErrUnknownRobot = errors.New("robot not found")

// Robots resolves robot ids at build time.
type Robots interface {
	Get(id string) (robot.Robot, bool)
}

// Builder produces lerobot worker command lines for sessions.
type Builder struct {
	Python  string
	Robots  Robots
	Catalog *robot.Catalog
	// LookPath and Stat are replaceable for tests.
	LookPath func(file string) (string, error)
	Stat     func(name string) (os.FileInfo, error)
}

func NewBuilder(python string, robots Robots, catalog *robot.Catalog) *Builder {
	return &Builder{Python: python, Robots: robots, Catalog: catalog}
}

func (b *Builder) Build(kind session.Kind, participants session.Participants) (launch.Command, error) {
	switch kind {
	case session.KindCalibration:
		r, err := b.robot(participants.RobotID)
		if err != nil {
			return launch.Command{}, err
		}
		return b.Calibration(r), nil
	case session.KindTeleoperation:
		leader, err := b.robot(participants.LeaderID)
		if err != nil {
			return launch.Command{}, err
		}
		follower, err := b.robot(participants.FollowerID)
		if err != nil {
			return launch.Command{}, err
		}
		return b.Teleoperation(leader, follower), nil
	default:
		return launch.Command{}, fmt.Errorf("unknown session kind %q", kind)
	}
}

// Calibration runs the calibrate module unbuffered. Leaders are addressed as
// the teleoperator side, everything else as the robot side.
func (b *Builder) Calibration(r robot.Robot) launch.Command {
	key := "robot"
	if r.IsLeader() {
		key = "teleop"
	}
	return launch.NewCommand(
		b.python(),
		"-u",
		"-m",
		CalibrateModule,
		fmt.Sprintf("--%s.type=%s", key, b.Catalog.DeviceType(r)),
		fmt.Sprintf("--%s.port=%s", key, r.ComPort),
		fmt.Sprintf("--%s.id=%s", key, r.Name),
	)
}

// Teleoperation prefers the installed console script and falls back to the
// module entry point.
func (b *Builder) Teleoperation(leader, follower robot.Robot) launch.Command {
	args := []string{
		"--robot.type=" + b.Catalog.DeviceType(follower),
		"--robot.port=" + follower.ComPort,
		"--robot.id=" + follower.Name,
		"--teleop.type=" + b.Catalog.DeviceType(leader),
		"--teleop.port=" + leader.ComPort,
		"--teleop.id=" + leader.Name,
	}
	if script := b.consoleScript(TeleoperateScript); script != "" {
		return launch.NewCommand(append([]string{script}, args...)...)
	}
	return launch.NewCommand(append([]string{b.python(), "-u", "-m", TeleoperateModule}, args...)...)
}

// Available reports whether real worker commands can run here: the
// interpreter resolves and a lerobot entry point is installed next to it or
// on PATH.
func (b *Builder) Available() bool {
	if _, err := b.lookPath(b.python()); err != nil {
		return false
	}
	return b.consoleScript(TeleoperateScript) != ""
}

func (b *Builder) robot(id string) (robot.Robot, error) {
	if b.Robots == nil {
		return robot.Robot{}, fmt.Errorf("%w: %s", ErrUnknownRobot, id)
	}
	r, ok := b.Robots.Get(id)
	if !ok {
		return robot.Robot{}, fmt.Errorf("%w: %s", ErrUnknownRobot, id)
	}
	return r, nil
}

func (b *Builder) python() string {
	if python := strings.TrimSpace(b.Python); python != "" {
		return python
	}
	return DefaultPython
}

func (b *Builder) consoleScript(name string) string {
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if interpreter, err := b.lookPath(b.python()); err == nil {
		if resolved, err := filepath.EvalSymlinks(interpreter); err == nil {
			interpreter = resolved
		}
		candidate := filepath.Join(filepath.Dir(interpreter), name)
		if info, err := b.stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	if found, err := b.lookPath(name); err == nil {
		return found
	}
	return ""
}

func (b *Builder) lookPath(file string) (string, error) {
	if b.LookPath != nil {
		return b.LookPath(file)
	}
	return exec.LookPath(file)
}

func (b *Builder) stat(name string) (os.FileInfo, error) {
	if b.Stat != nil {
		return b.Stat(name)
	}
	return os.Stat(name)
}
