package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/loomworks/loom/pkg/apperr"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standardized error body
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// WriteAppError maps an error through the apperr taxonomy. Internal and
// dependency causes are hidden behind generic messages; validation errors
// keep their specific, actionable text.
func WriteAppError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal(err)
	}

	message := appErr.Message
	if appErr.Kind == apperr.KindInternal {
		message = "internal error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Kind.HTTPStatus())
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:     message,
		Kind:      appErr.Kind.String(),
		Retryable: appErr.Retryable(),
	})
}

// WriteValidationError writes a validation error response (422)
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteAppError(w, apperr.New(apperr.KindValidation, message))
}

// WriteUnauthorized writes the generic authentication failure (401)
func WriteUnauthorized(w http.ResponseWriter) {
	WriteAppError(w, apperr.Authentication())
}

// WriteForbidden writes the generic authorization failure (403)
func WriteForbidden(w http.ResponseWriter) {
	WriteAppError(w, apperr.Authorization())
}

// WriteNotFoundError writes a not found error response (404)
func WriteNotFoundError(w http.ResponseWriter, entity string) {
	WriteAppError(w, apperr.NotFound(entity))
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteAppError(w, apperr.Conflict(message))
}

// WriteInternalError writes an internal server error response (500)
func WriteInternalError(w http.ResponseWriter, err error) {
	WriteAppError(w, apperr.Internal(err))
}

// WriteCreated writes a successful creation response (201) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
