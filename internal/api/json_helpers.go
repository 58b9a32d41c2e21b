package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, err *apiError) {
	if err == nil {
		return
	}
	writeJSON(w, err.Status, errorResponse{
		Message: err.Message,
		Detail:  err.Message,
		Code:    err.code(),
	})
}

// decodeJSON reads a JSON body into target. An empty body leaves target
// untouched when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any, optional bool) *apiError {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &apiError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		}
		return &apiError{Status: http.StatusBadRequest, Message: "invalid request body: " + err.Error()}
	}
	return nil
}
