// Package httputil holds the JSON response helpers shared by HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"subsnap/pkg/platform/sentinel"
)

// Error codes returned in the "error" field of error envelopes.
const (
	CodeBadRequest = "bad_request"
	CodeNotFound   = "not_found"
	CodeConflict   = "conflict"
	CodeInternal   = "internal_error"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// BadRequestError marks an error caused by the request itself.
type BadRequestError struct {
	Msg string
}

func (e *BadRequestError) Error() string { return e.Msg }

// WriteError maps err to a status and writes the error envelope. Internal
// errors never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	status, code, description := classify(err)
	body := map[string]string{"error": code}
	if description != "" {
		body["error_description"] = description
	}
	WriteJSON(w, status, body)
}

func classify(err error) (int, string, string) {
	var bad *BadRequestError
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, CodeBadRequest, bad.Msg
	case errors.Is(err, sentinel.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, err.Error()
	case errors.Is(err, sentinel.ErrRunInProgress):
		return http.StatusConflict, CodeConflict, err.Error()
	default:
		return http.StatusInternalServerError, CodeInternal, ""
	}
}
