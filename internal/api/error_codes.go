package api

import "net/http"

// Machine-readable codes carried in the error envelope. Panel clients branch
// on these instead of the human-readable message.
const (
	codeInvalidRequest   = "invalid_request"
	codeUnauthorized     = "unauthorized"
	codeNotFound         = "not_found"
	codeMethodNotAllowed = "method_not_allowed"
	codePayloadTooLarge  = "payload_too_large"
	codeUnavailable      = "service_unavailable"
	codeInternal         = "internal_error"

	codeRobotNotFound    = "robot_not_found"
	codeDuplicateName    = "duplicate_robot_name"
	codeUnsupportedModel = "unsupported_model"
	codeUnsupportedRole  = "unsupported_role"
	codeSessionNotFound  = "session_not_found"
	codeSessionControl   = "session_control_failed"
	codeTeleopBusy       = "teleop_busy"
	codeTeleopPairing    = "teleop_pairing"
	codeSpawnFailed      = "worker_spawn_failed"
)

// code reports the envelope code: the handler's own when set, otherwise one
// derived from the status.
func (err *apiError) code() string {
	if err.Code != "" {
		return err.Code
	}
	switch err.Status {
	case http.StatusBadRequest:
		return codeInvalidRequest
	case http.StatusUnauthorized:
		return codeUnauthorized
	case http.StatusNotFound:
		return codeNotFound
	case http.StatusMethodNotAllowed:
		return codeMethodNotAllowed
	case http.StatusConflict:
		return codeTeleopBusy
	case http.StatusRequestEntityTooLarge:
		return codePayloadTooLarge
	case http.StatusServiceUnavailable:
		return codeUnavailable
	}
	if err.Status >= http.StatusInternalServerError {
		return codeInternal
	}
	return ""
}
