package api

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"robopanel/internal/robot"
	"robopanel/internal/session"
)

type fleetStatusMessage struct {
	Type   string            `json:"type"`
	Robots []robot.Robot     `json:"robots"`
	Ports  map[string]string `json:"ports"`
}

type streamMissingMessage struct {
	Error     string `json:"error"`
	SessionID string `json:"session_id,omitempty"`
	RobotID   string `json:"robot_id,omitempty"`
}

func (h *Handler) serveFleetStream(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		logWSError(h.Logger, r, wsError{Status: http.StatusBadRequest, Message: "websocket upgrade failed", Err: err})
		return
	}
	defer conn.Close()

	spanCtx, span := startWebSocketSpan(r, "/ws/robots")
	defer span.End()

	ctx := watchClose(spanCtx, conn)
	wsErr := pollStream(ctx, conn, h.fleetInterval(), true, func() (any, *wsError) {
		ports := h.ports()
		robots := h.Robots.List()
		for i := range robots {
			robots[i] = h.withStatus(robots[i], ports)
		}
		return fleetStatusMessage{Type: "fleet_status", Robots: robots, Ports: ports}, nil
	})
	if wsErr != nil {
		writeWSError(w, r, conn, h.Logger, *wsErr)
	}
}

func (h *Handler) serveCalibrationStream(w http.ResponseWriter, r *http.Request) {
	h.serveSessionStream(w, r, "/ws/calibration/{id}", session.KindCalibration, func(s *session.Session) (any, *streamMissingMessage) {
		snapshot := s.Snapshot()
		target, ok := h.Robots.Get(s.Participants.RobotID)
		if !ok {
			return nil, &streamMissingMessage{Error: "robot_missing", SessionID: s.ID, RobotID: s.Participants.RobotID}
		}
		return calibrationView(snapshot, h.withStatus(target, h.ports())), nil
	})
}

func (h *Handler) serveTeleopStream(w http.ResponseWriter, r *http.Request) {
	h.serveSessionStream(w, r, "/ws/teleop/{id}", session.KindTeleoperation, func(s *session.Session) (any, *streamMissingMessage) {
		return s.Snapshot(), nil
	})
}

// serveSessionStream pushes a snapshot of one session every session interval.
// Unknown sessions get a not_found message followed by a 4404 close.
func (h *Handler) serveSessionStream(w http.ResponseWriter, r *http.Request, route string, kind session.Kind, view func(*session.Session) (any, *streamMissingMessage)) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	id := r.PathValue("id")
	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		logWSError(h.Logger, r, wsError{Status: http.StatusBadRequest, Message: "websocket upgrade failed", Err: err})
		return
	}
	defer conn.Close()

	spanCtx, span := startWebSocketSpan(r, route, attribute.String("session.id", id))
	defer span.End()

	missing := func(message streamMissingMessage) *wsError {
		_ = conn.WriteJSON(message)
		return &wsError{Status: http.StatusNotFound, Message: message.Error}
	}

	s, ok := h.Sessions.Get(id)
	if !ok || s.Kind != kind {
		writeWSError(w, r, conn, h.Logger, *missing(streamMissingMessage{Error: "not_found", SessionID: id}))
		return
	}

	ctx := watchClose(spanCtx, conn)
	wsErr := pollStream(ctx, conn, h.sessionInterval(), false, func() (any, *wsError) {
		payload, gone := view(s)
		if gone != nil {
			return nil, missing(*gone)
		}
		return payload, nil
	})
	if wsErr != nil {
		writeWSError(w, r, conn, h.Logger, *wsErr)
	}
}
