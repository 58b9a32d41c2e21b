package api

import (
	"net/http"
)

// RegisterRoutes mounts the control plane on mux.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	logger := h.Logger
	if logger != nil {
		logger = logger.Component("api")
	}
	rest := func(route string, handler apiHandler) {
		mux.Handle(route, tracingMiddleware(route, loggingMiddleware(logger, route, restHandler(h.AuthToken, handler))))
	}
	ws := func(route string, handler http.HandlerFunc) {
		mux.Handle(route, securityHeadersMiddleware(cacheControlNoStore, loggingMiddleware(logger, route, handler)))
	}

	mux.Handle("/health", tracingMiddleware("/health", restHandler("", h.handleHealth)))
	rest("/api/status", h.handleStatus)
	rest("/api/version", h.handleVersion)
	rest("/api/metrics", h.handleMetrics)
	rest("/api/logs", h.handleLogs)

	rest("/ports", h.handlePorts)
	rest("/robots", h.handleRobots)
	rest("/robots/{id}", h.handleRobot)
	rest("/robots/{id}/calibration", h.handleRobotCalibration)
	rest("/robots/{id}/calibration/start", h.handleCalibrationStart)

	rest("/calibration", h.handleCalibrationList)
	rest("/calibration/{id}", h.handleCalibrationSession)
	rest("/calibration/{id}/enter", h.handleCalibrationEnter)
	rest("/calibration/{id}/input", h.handleCalibrationInput)
	rest("/calibration/{id}/stop", h.handleCalibrationStop)

	rest("/teleop", h.handleTeleopList)
	rest("/teleop/start", h.handleTeleopStart)
	rest("/teleop/stop", h.handleTeleopStop)
	rest("/teleop/active", h.handleTeleopActive)
	rest("/teleop/{id}", h.handleTeleopSession)

	ws("/ws/robots", h.serveFleetStream)
	ws("/ws/calibration/{id}", h.serveCalibrationStream)
	ws("/ws/teleop/{id}", h.serveTeleopStream)
	ws("/ws/logs", (&LogsHandler{Logger: h.Logger, AuthToken: h.AuthToken, AllowedOrigins: h.AllowedOrigins}).ServeHTTP)

	mux.Handle("/", securityHeadersMiddleware(cacheControlNoStore, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, &apiError{Status: http.StatusNotFound, Message: "not found"})
	})))
}
