package api

import (
	"context"
	"net/http"
	"strings"

	"robopanel/internal/robot"
	"robopanel/internal/session"
)

type calibrationSessionResponse struct {
	SessionID  string      `json:"session_id"`
	Robot      robot.Robot `json:"robot"`
	Logs       []string    `json:"logs"`
	Running    bool        `json:"running"`
	DryRun     bool        `json:"dry_run"`
	ReturnCode *int        `json:"return_code"`
	Command    string      `json:"command"`
}

type controlResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

type cancelResponse struct {
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
}

type calibrationStartRequest struct {
	Override bool `json:"override"`
}

type calibrationInputRequest struct {
	Data string `json:"data"`
}

type teleopRequest struct {
	LeaderID   string `json:"leader_id"`
	FollowerID string `json:"follower_id"`
}

type teleopResponse struct {
	Message string            `json:"message"`
	DryRun  bool              `json:"dry_run"`
	Reused  bool              `json:"reused,omitempty"`
	Session *session.Snapshot `json:"session,omitempty"`
}

type teleopStopResponse struct {
	Stopped bool              `json:"stopped"`
	Message string            `json:"message"`
	Session *session.Snapshot `json:"session,omitempty"`
}

type teleopActiveResponse struct {
	Active  bool              `json:"active"`
	Session *session.Snapshot `json:"session"`
}

const calibrationMissing = "Calibration session not found."
const teleopMissing = "Teleop session not found."

func calibrationView(snapshot session.Snapshot, r robot.Robot) calibrationSessionResponse {
	return calibrationSessionResponse{
		SessionID:  snapshot.SessionID,
		Robot:      r,
		Logs:       snapshot.Logs,
		Running:    snapshot.Running,
		DryRun:     snapshot.DryRun,
		ReturnCode: snapshot.ReturnCode,
		Command:    snapshot.Command,
	}
}

func controlResult(result session.Result) *apiError {
	if result.OK {
		return nil
	}
	return &apiError{Status: http.StatusBadRequest, Message: result.Message, Code: codeSessionControl}
}

func (h *Handler) handleCalibrationList(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	writeJSON(w, http.StatusOK, h.Sessions.List(session.KindCalibration))
	return nil
}

func (h *Handler) handleCalibrationStart(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, http.MethodPost)
	}
	var payload calibrationStartRequest
	if err := decodeJSON(w, r, &payload, true); err != nil {
		return err
	}
	target, apiErr := h.requireRobot(r.PathValue("id"))
	if apiErr != nil {
		return apiErr
	}

	dryRun := h.dryRun()
	result := h.Sessions.Start(r.Context(), session.StartRequest{
		Kind:         session.KindCalibration,
		Participants: session.CalibrationOf(target.ID),
		DryRun:       dryRun,
	})
	if result.Session == nil {
		return &apiError{Status: http.StatusInternalServerError, Message: result.Message, Code: codeInternal}
	}
	snapshot := result.Session.Snapshot()
	if !dryRun && !snapshot.Running && snapshot.ReturnCode != nil && *snapshot.ReturnCode != 0 {
		detail := "Failed to start calibration."
		if last, ok := result.Session.LastLine(); ok {
			detail = last
		}
		return &apiError{Status: http.StatusInternalServerError, Message: detail, Code: codeSpawnFailed}
	}
	writeJSON(w, http.StatusOK, calibrationView(snapshot, target))
	return nil
}

func (h *Handler) handleCalibrationSession(w http.ResponseWriter, r *http.Request) *apiError {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		s, apiErr := h.requireSession(id, session.KindCalibration, calibrationMissing)
		if apiErr != nil {
			return apiErr
		}
		target, apiErr := h.requireRobot(s.Participants.RobotID)
		if apiErr != nil {
			return apiErr
		}
		writeJSON(w, http.StatusOK, calibrationView(s.Snapshot(), target))
		return nil
	case http.MethodDelete:
		if _, apiErr := h.requireSession(id, session.KindCalibration, calibrationMissing); apiErr != nil {
			return apiErr
		}
		result := h.Sessions.Cancel(stopContext(r), id)
		if apiErr := controlResult(result); apiErr != nil {
			return apiErr
		}
		writeJSON(w, http.StatusOK, cancelResponse{Cancelled: true, Message: result.Message})
		return nil
	default:
		return methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

// stopContext keeps the request's trace values but not its cancellation, so
// a client that disconnects mid-stop still gets the full interrupt and
// terminate waits.
func stopContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (h *Handler) calibrationControl(w http.ResponseWriter, r *http.Request, send func(id string) session.Result) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, http.MethodPost)
	}
	id := r.PathValue("id")
	if _, apiErr := h.requireSession(id, session.KindCalibration, calibrationMissing); apiErr != nil {
		return apiErr
	}
	result := send(id)
	if apiErr := controlResult(result); apiErr != nil {
		return apiErr
	}
	writeJSON(w, http.StatusOK, controlResponse{Sent: true, Message: result.Message})
	return nil
}

func (h *Handler) handleCalibrationEnter(w http.ResponseWriter, r *http.Request) *apiError {
	return h.calibrationControl(w, r, h.Sessions.SendEnter)
}

func (h *Handler) handleCalibrationStop(w http.ResponseWriter, r *http.Request) *apiError {
	return h.calibrationControl(w, r, h.Sessions.SendStop)
}

func (h *Handler) handleCalibrationInput(w http.ResponseWriter, r *http.Request) *apiError {
	var payload calibrationInputRequest
	if r.Method == http.MethodPost {
		if err := decodeJSON(w, r, &payload, true); err != nil {
			return err
		}
	}
	return h.calibrationControl(w, r, func(id string) session.Result {
		return h.Sessions.SendInput(id, payload.Data)
	})
}

func (h *Handler) handleTeleopList(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	writeJSON(w, http.StatusOK, h.Sessions.List(session.KindTeleoperation))
	return nil
}

func (h *Handler) handleTeleopStart(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, http.MethodPost)
	}
	var payload teleopRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		return err
	}
	leader, apiErr := h.requireRobot(strings.TrimSpace(payload.LeaderID))
	if apiErr != nil {
		return apiErr
	}
	follower, apiErr := h.requireRobot(strings.TrimSpace(payload.FollowerID))
	if apiErr != nil {
		return apiErr
	}
	if apiErr := validatePair(leader, follower); apiErr != nil {
		return apiErr
	}

	dryRun := h.dryRun()
	result := h.Sessions.Start(r.Context(), session.StartRequest{
		Kind:         session.KindTeleoperation,
		Participants: session.PairOf(leader.ID, follower.ID),
		DryRun:       dryRun,
	})
	switch {
	case result.Conflict:
		return &apiError{Status: http.StatusConflict, Message: result.Message, Code: codeTeleopBusy}
	case !result.OK:
		return &apiError{Status: http.StatusInternalServerError, Message: result.Message, Code: codeSpawnFailed}
	}
	snapshot := result.Session.Snapshot()
	writeJSON(w, http.StatusOK, teleopResponse{
		Message: result.Message,
		DryRun:  snapshot.DryRun,
		Reused:  result.Reused,
		Session: &snapshot,
	})
	return nil
}

func validatePair(leader, follower robot.Robot) *apiError {
	switch {
	case leader.Model != follower.Model:
		return &apiError{Status: http.StatusBadRequest, Message: "Leader and follower must be the same model.", Code: codeTeleopPairing}
	case !follower.HasCalibration:
		return &apiError{Status: http.StatusBadRequest, Message: "Follower needs calibration first.", Code: codeTeleopPairing}
	case !leader.HasCalibration:
		return &apiError{Status: http.StatusBadRequest, Message: "Leader needs calibration first.", Code: codeTeleopPairing}
	case follower.Role != robot.RoleFollower:
		return &apiError{Status: http.StatusBadRequest, Message: "Select a follower arm to control.", Code: codeTeleopPairing}
	case leader.Role != robot.RoleLeader:
		return &apiError{Status: http.StatusBadRequest, Message: "Teleop must start from a leader arm.", Code: codeTeleopPairing}
	}
	return nil
}

func (h *Handler) handleTeleopStop(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, http.MethodPost)
	}
	var payload teleopRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		return err
	}
	result, stopped := h.Sessions.StopPair(stopContext(r), strings.TrimSpace(payload.LeaderID), strings.TrimSpace(payload.FollowerID))
	if apiErr := controlResult(result); apiErr != nil {
		return apiErr
	}
	response := teleopStopResponse{Stopped: true, Message: result.Message}
	if stopped != nil {
		snapshot := stopped.Snapshot()
		response.Session = &snapshot
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}

func (h *Handler) handleTeleopActive(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	response := teleopActiveResponse{}
	if active, ok := h.Sessions.Active(); ok {
		snapshot := active.Snapshot()
		response.Active = snapshot.Running
		response.Session = &snapshot
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}

func (h *Handler) handleTeleopSession(w http.ResponseWriter, r *http.Request) *apiError {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		s, apiErr := h.requireSession(id, session.KindTeleoperation, teleopMissing)
		if apiErr != nil {
			return apiErr
		}
		writeJSON(w, http.StatusOK, s.Snapshot())
		return nil
	case http.MethodDelete:
		if _, apiErr := h.requireSession(id, session.KindTeleoperation, teleopMissing); apiErr != nil {
			return apiErr
		}
		result := h.Sessions.Cancel(stopContext(r), id)
		if apiErr := controlResult(result); apiErr != nil {
			return apiErr
		}
		writeJSON(w, http.StatusOK, cancelResponse{Cancelled: true, Message: result.Message})
		return nil
	default:
		return methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}
