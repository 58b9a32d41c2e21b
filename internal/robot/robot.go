package robot

import (
	"errors"
	"time"
)

const (
	RoleLeader   = "leader"
	RoleFollower = "follower"

	StatusOnline  = "online"
	StatusOffline = "offline"
)

var (
	ErrRobotNotFound   = errors.New("robot not found")
	ErrDuplicateName   = errors.New("a robot with that name already exists")
	ErrInvalidRobot    = errors.New("invalid robot")
	ErrUnsupportedRole = errors.New("unsupported role")
	ErrUnsupported     = errors.New("unsupported model")
)

type JointCalibration struct {
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Current float64 `json:"current"`
}

// Calibration is the stored result of a calibration run as submitted by the
// operator. Worker output is never parsed into it.
type Calibration struct {
	Joints    []JointCalibration `json:"joints"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type Robot struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Model          string       `json:"model"`
	Role           string       `json:"role"`
	ComPort        string       `json:"com_port"`
	Status         string       `json:"status,omitempty"`
	HasCalibration bool         `json:"has_calibration"`
	Calibration    *Calibration `json:"calibration"`
	LastSeen       *time.Time   `json:"last_seen"`
}

func (r Robot) IsLeader() bool {
	return r.Role == RoleLeader
}

type Create struct {
	Name    string `json:"name"`
	Model   string `json:"model"`
	Role    string `json:"role"`
	ComPort string `json:"com_port"`
}

// Update carries the editable fields; nil leaves a field unchanged.
type Update struct {
	Name    *string `json:"name"`
	ComPort *string `json:"com_port"`
}

func (r Robot) clone() Robot {
	out := r
	if r.Calibration != nil {
		calibration := *r.Calibration
		calibration.Joints = append([]JointCalibration(nil), r.Calibration.Joints...)
		out.Calibration = &calibration
	}
	if r.LastSeen != nil {
		seen := *r.LastSeen
		out.LastSeen = &seen
	}
	if out.Status == "" {
		out.Status = StatusOffline
	}
	return out
}
