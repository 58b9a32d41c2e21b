package session

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindCalibration   Kind = "calibration"
	KindTeleoperation Kind = "teleoperation"
)

const (
	DefaultCalibrationLogLines   = 400
	DefaultTeleoperationLogLines = 600
)

func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindCalibration:
		return KindCalibration, nil
	case KindTeleoperation, "teleop":
		return KindTeleoperation, nil
	default:
		return "", fmt.Errorf("unknown session kind %q", value)
	}
}

// Participants names the robots a session drives: RobotID for calibration,
// the leader/follower pair for teleoperation.
type Participants struct {
	RobotID    string `json:"robot_id,omitempty"`
	LeaderID   string `json:"leader_id,omitempty"`
	FollowerID string `json:"follower_id,omitempty"`
}

func CalibrationOf(robotID string) Participants {
	return Participants{RobotID: robotID}
}

func PairOf(leaderID, followerID string) Participants {
	return Participants{LeaderID: leaderID, FollowerID: followerID}
}

func (p Participants) SamePair(other Participants) bool {
	return p.LeaderID == other.LeaderID && p.FollowerID == other.FollowerID
}

func (p Participants) validate(kind Kind) error {
	switch kind {
	case KindCalibration:
		if strings.TrimSpace(p.RobotID) == "" {
			return fmt.Errorf("%w: calibration needs a robot", ErrInvalidParticipants)
		}
	case KindTeleoperation:
		if strings.TrimSpace(p.LeaderID) == "" || strings.TrimSpace(p.FollowerID) == "" {
			return fmt.Errorf("%w: teleoperation needs a leader and a follower", ErrInvalidParticipants)
		}
	default:
		return fmt.Errorf("unknown session kind %q", kind)
	}
	return nil
}

// policy captures how the two session kinds differ.
type policy struct {
	label        string
	capacity     int
	exclusive    bool
	marker       bool
	processGroup bool
}

func (m *Manager) policyFor(kind Kind) policy {
	switch kind {
	case KindTeleoperation:
		return policy{
			label:        "Teleop",
			capacity:     m.teleopLines,
			exclusive:    true,
			processGroup: true,
		}
	default:
		return policy{
			label:    "Calibration",
			capacity: m.calibrationLines,
			marker:   true,
		}
	}
}
