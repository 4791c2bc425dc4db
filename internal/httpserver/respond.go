package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message,omitempty"`
	Resource string `json:"resource,omitempty"`
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, errStr, message string) {
	Respond(w, status, ErrorResponse{
		Error:   errStr,
		Message: message,
	})
}

// RespondAppError maps a typed *apperr.Error to its HTTP status and writes
// the JSON envelope, never leaking internal details (§7 propagation policy).
// A Quota or RateLimited error's RetryAfter becomes a Retry-After header
// (whole seconds, rounded up so a sub-second budget still yields at least
// 1), and a Quota error's Resource is echoed in the body so the client knows
// which cap it hit.
func RespondAppError(w http.ResponseWriter, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		slog.Error("unmapped error reached httpserver", "error", err)
		RespondError(w, http.StatusInternalServerError, string(apperr.KindInternal), "internal error")
		return
	}

	status := apperr.StatusFor(appErr.Kind)
	message := appErr.Message
	if appErr.Kind == apperr.KindInternal {
		slog.Error("internal error", "error", appErr.Err)
		message = "internal error"
	}
	if appErr.RetryAfter > 0 {
		seconds := int(appErr.RetryAfter / time.Second)
		if appErr.RetryAfter%time.Second != 0 {
			seconds++
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	Respond(w, status, ErrorResponse{
		Error:    string(appErr.Kind),
		Message:  message,
		Resource: appErr.Resource,
	})
}
