package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"challenge-engine/internal/domain"
	"challenge-engine/internal/logger"
)

const userHeader = "X-User-ID"

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type envelope struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

// writeError maps the error kind to a status code. data, when non-nil, is sent
// alongside the error (a duplicate issue returns the existing certificate).
func writeError(w http.ResponseWriter, log *logger.Logger, err error, data any) {
	status, kind := statusFor(err)
	message := err.Error()
	var derr *domain.Error
	if errors.As(err, &derr) && derr.Message != "" {
		message = derr.Message
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed", "error", err)
		message = "internal error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data, Error: &errorBody{Kind: kind, Message: message}})
}

func statusFor(err error) (int, string) {
	switch domain.KindOf(err) {
	case domain.ErrValidation:
		return http.StatusBadRequest, "validation"
	case domain.ErrForbidden:
		return http.StatusForbidden, "forbidden"
	case domain.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case domain.ErrStateConflict:
		return http.StatusConflict, "state_conflict"
	case domain.ErrAlreadyExists:
		return http.StatusConflict, "already_exists"
	case domain.ErrCapacityExceeded:
		return http.StatusConflict, "capacity_exceeded"
	case domain.ErrLocked:
		return http.StatusLocked, "locked"
	}
	return http.StatusInternalServerError, "internal"
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Validationf("request", "invalid JSON body: %v", err)
	}
	return nil
}
