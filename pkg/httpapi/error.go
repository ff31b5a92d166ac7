package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iota-uz/bothub/pkg/serrors"
)

// ErrorEnvelope standardizes JSON error responses for API namespaces.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

// StatusOf maps an error kind onto an HTTP status.
func StatusOf(err error) int {
	var be *serrors.BaseError
	if !errors.As(err, &be) {
		return http.StatusInternalServerError
	}
	switch be.Kind {
	case serrors.KindNotFound:
		return http.StatusNotFound
	case serrors.KindConflict:
		return http.StatusConflict
	case serrors.KindAuthorization:
		return http.StatusForbidden
	case serrors.KindValidation:
		return http.StatusBadRequest
	case serrors.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

// WriteServiceError writes err as an envelope. Untyped errors never leak
// their text to the client.
func WriteServiceError(w http.ResponseWriter, err error, meta map[string]string) error {
	var be *serrors.BaseError
	if !errors.As(err, &be) {
		return WriteError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error", meta)
	}
	return WriteError(w, StatusOf(err), be.Code, be.Message, meta)
}
