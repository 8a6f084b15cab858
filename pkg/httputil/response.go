package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/observability"
)

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// writeJSON is WriteJSON for handlers. The status line is already out when
// encoding fails, so the failure goes to the request logger.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if err := WriteJSON(w, status, data); err != nil {
		observability.FromContext(r.Context()).WithError(err).
			Warnf("failed to write %d response for %s %s", status, r.Method, r.URL.Path)
	}
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, ErrorResponse{Error: message})
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, r *http.Request, status int, err error) {
	WriteErrorMessage(w, r, status, err.Error())
}

// WriteDomainError maps err to its status code. Errors without a status are
// logged and answered with a generic 500 so internals never reach clients.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := domain.StatusCode(err)
	if status == http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).
			Errorf("%s %s failed", r.Method, r.URL.Path)
		WriteInternalError(w, r)
		return
	}
	WriteError(w, r, status, err)
}

// WriteInternalError writes a 500 without details
func WriteInternalError(w http.ResponseWriter, r *http.Request) {
	WriteErrorMessage(w, r, http.StatusInternalServerError, "internal server error")
}

// WriteSuccess writes a 200 response with JSON data
func WriteSuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	writeJSON(w, r, http.StatusOK, data)
}

// WriteCreated writes a 201 response with JSON data
func WriteCreated(w http.ResponseWriter, r *http.Request, data interface{}) {
	writeJSON(w, r, http.StatusCreated, data)
}

// WriteNoContent writes a 204 response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a 400 error
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, http.StatusBadRequest, message)
}

// WriteUnauthorized writes a 401 error
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, http.StatusUnauthorized, message)
}

// WriteForbidden writes a 403 error
func WriteForbidden(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, http.StatusForbidden, message)
}

// WriteTooManyRequests writes a 429 error
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, http.StatusTooManyRequests, message)
}
