package api

import (
	"errors"
	"net/http"

	"robopanel/internal/robot"
)

func robotError(err error) *apiError {
	switch {
	case errors.Is(err, robot.ErrRobotNotFound):
		return &apiError{Status: http.StatusNotFound, Message: "Robot not found", Code: codeRobotNotFound}
	case errors.Is(err, robot.ErrDuplicateName):
		return &apiError{Status: http.StatusBadRequest, Message: "A robot with that name already exists.", Code: codeDuplicateName}
	case errors.Is(err, robot.ErrUnsupported):
		return &apiError{Status: http.StatusBadRequest, Message: "Unsupported model: " + unwrapDetail(err), Code: codeUnsupportedModel}
	case errors.Is(err, robot.ErrUnsupportedRole):
		return &apiError{Status: http.StatusBadRequest, Message: "Unsupported role: " + unwrapDetail(err), Code: codeUnsupportedRole}
	case errors.Is(err, robot.ErrInvalidRobot):
		return &apiError{Status: http.StatusBadRequest, Message: err.Error()}
	default:
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
}

// unwrapDetail returns the text after the sentinel prefix of a wrapped error.
func unwrapDetail(err error) string {
	message := err.Error()
	if inner := errors.Unwrap(err); inner != nil {
		prefix := inner.Error() + ": "
		if len(message) > len(prefix) && message[:len(prefix)] == prefix {
			return message[len(prefix):]
		}
	}
	return message
}

func (h *Handler) handleRobots(w http.ResponseWriter, r *http.Request) *apiError {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.fleet())
		return nil
	case http.MethodPost:
		var payload robot.Create
		if err := decodeJSON(w, r, &payload, false); err != nil {
			return err
		}
		created, err := h.Robots.Add(payload)
		if err != nil {
			return robotError(err)
		}
		writeJSON(w, http.StatusOK, h.withStatus(created, h.ports()))
		return nil
	default:
		return methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) handleRobot(w http.ResponseWriter, r *http.Request) *apiError {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		found, err := h.requireRobot(id)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, found)
		return nil
	case http.MethodPatch:
		var patch robot.Update
		if err := decodeJSON(w, r, &patch, false); err != nil {
			return err
		}
		updated, err := h.Robots.Update(id, patch)
		if err != nil {
			return robotError(err)
		}
		writeJSON(w, http.StatusOK, h.withStatus(updated, h.ports()))
		return nil
	case http.MethodDelete:
		if err := h.Robots.Delete(id); err != nil {
			return robotError(err)
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
		return nil
	default:
		return methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (h *Handler) handleRobotCalibration(w http.ResponseWriter, r *http.Request) *apiError {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		found, err := h.requireRobot(id)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, found.Calibration)
		return nil
	case http.MethodPost:
		var calibration robot.Calibration
		if err := decodeJSON(w, r, &calibration, false); err != nil {
			return err
		}
		updated, err := h.Robots.SetCalibration(id, calibration)
		if err != nil {
			return robotError(err)
		}
		writeJSON(w, http.StatusOK, h.withStatus(updated, h.ports()))
		return nil
	case http.MethodDelete:
		updated, err := h.Robots.ClearCalibration(id)
		if err != nil {
			return robotError(err)
		}
		writeJSON(w, http.StatusOK, h.withStatus(updated, h.ports()))
		return nil
	default:
		return methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}
