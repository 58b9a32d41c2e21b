package api

import (
	"net/http"
	"time"

	"robopanel/internal/device"
	"robopanel/internal/logging"
	"robopanel/internal/metrics"
	"robopanel/internal/robot"
	"robopanel/internal/session"
)

const (
	DefaultFleetInterval   = 2 * time.Second
	DefaultSessionInterval = 200 * time.Millisecond
)

// PortSource supplies the current serial port snapshot.
type PortSource interface {
	Snapshot() map[string]string
}

type Handler struct {
	Sessions       *session.Manager
	Robots         *robot.Store
	Ports          PortSource
	Metrics        *metrics.Registry
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
	// DryRun decides, per start request, whether to skip spawning workers.
	DryRun func() bool

	FleetInterval   time.Duration
	SessionInterval time.Duration
	StartedAt       time.Time
	Now             func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *Handler) dryRun() bool {
	return h.DryRun != nil && h.DryRun()
}

func (h *Handler) ports() map[string]string {
	if h.Ports == nil {
		return map[string]string{}
	}
	return h.Ports.Snapshot()
}

func (h *Handler) fleetInterval() time.Duration {
	if h.FleetInterval > 0 {
		return h.FleetInterval
	}
	return DefaultFleetInterval
}

func (h *Handler) sessionInterval() time.Duration {
	if h.SessionInterval > 0 {
		return h.SessionInterval
	}
	return DefaultSessionInterval
}

// withStatus decorates r with its presence and records last_seen when online.
func (h *Handler) withStatus(r robot.Robot, ports map[string]string) robot.Robot {
	decorated, online := device.Decorate(r, ports, h.now())
	if online {
		if err := h.Robots.MarkSeen(r.ID, *decorated.LastSeen); err != nil && h.Logger != nil {
			h.Logger.Warn("mark robot seen failed", map[string]string{
				logging.FieldRobot: r.ID,
				"error":            err.Error(),
			})
		}
	}
	return decorated
}

func (h *Handler) fleet() []robot.Robot {
	ports := h.ports()
	robots := h.Robots.List()
	for i := range robots {
		robots[i] = h.withStatus(robots[i], ports)
	}
	return robots
}

func (h *Handler) requireRobot(id string) (robot.Robot, *apiError) {
	r, ok := h.Robots.Get(id)
	if !ok {
		return robot.Robot{}, &apiError{Status: http.StatusNotFound, Message: "Robot not found", Code: codeRobotNotFound}
	}
	return h.withStatus(r, h.ports()), nil
}

func (h *Handler) requireSession(id string, kind session.Kind, missing string) (*session.Session, *apiError) {
	s, ok := h.Sessions.Get(id)
	if !ok || s.Kind != kind {
		return nil, &apiError{Status: http.StatusNotFound, Message: missing, Code: codeSessionNotFound}
	}
	return s, nil
}
