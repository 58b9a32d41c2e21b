package api

import (
	"net/http"
	"strconv"
	"time"

	"robopanel/internal/logging"
	"robopanel/internal/session"
	"robopanel/internal/version"
)

type statusResponse struct {
	Status        string    `json:"status"`
	ServerTime    time.Time `json:"server_time"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Version       string    `json:"version"`
	DryRun        bool      `json:"dry_run"`
	Robots        int       `json:"robots"`
	Ports         int       `json:"ports"`
	Calibrations  int       `json:"calibrations_running"`
	ActiveTeleop  string    `json:"active_teleop,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	now := h.now()
	response := statusResponse{
		Status:     "ok",
		ServerTime: now,
		Version:    version.GetVersionInfo().Version,
		DryRun:     h.dryRun(),
		Robots:     len(h.Robots.List()),
		Ports:      len(h.ports()),
	}
	if !h.StartedAt.IsZero() {
		response.UptimeSeconds = int64(now.Sub(h.StartedAt) / time.Second)
	}
	for _, snapshot := range h.Sessions.List(session.KindCalibration) {
		if snapshot.Running {
			response.Calibrations++
		}
	}
	if active, ok := h.Sessions.Active(); ok && active.Running() {
		response.ActiveTeleop = active.ID
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}

func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	writeJSON(w, http.StatusOK, version.GetVersionInfo())
	return nil
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := h.Metrics.WritePrometheus(w); err != nil && h.Logger != nil {
		h.Logger.Warn("metrics write failed", map[string]string{"error": err.Error()})
	}
	return nil
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	if h.Logger == nil || h.Logger.Buffer() == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "log buffer unavailable"}
	}
	query := logging.Query{}
	values := r.URL.Query()
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid limit"}
		}
		query.Limit = limit
	}
	if raw := values.Get("level"); raw != "" {
		level, ok := logging.ParseLevel(raw)
		if !ok {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid level"}
		}
		query.MinLevel = level
	}
	if raw := values.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid since"}
		}
		query.Since = since
	}
	writeJSON(w, http.StatusOK, h.Logger.Buffer().Query(query))
	return nil
}

func (h *Handler) handlePorts(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ports": h.ports()})
	return nil
}
