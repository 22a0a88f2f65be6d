package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/diewo77/go-budgets/httpx"
	"github.com/diewo77/go-budgets/internal/services"
)

type errorDetails struct {
	Reason string            `json:"reason,omitempty"`
	Amount string            `json:"amount,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusFor maps an engine error kind to its HTTP status.
func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindInvalidState, services.KindConflict:
		return http.StatusConflict
	case services.KindMissingReference, services.KindValidation:
		return http.StatusBadRequest
	case services.KindInsufficientFunds, services.KindLimitExceeded:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": kind, "details": {...}}.
// Operational errors are logged and their cause is not exposed.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var e *services.Error
	if !errors.As(err, &e) || e.Kind == services.KindOperational {
		log.Error("request failed", "error", err)
		httpx.JSONError(w, http.StatusInternalServerError, string(services.KindOperational),
			errorDetails{Reason: "internal error"})
		return
	}
	details := errorDetails{Reason: e.Reason, Fields: e.Fields}
	if !e.Amount.IsZero() {
		details.Amount = e.Amount.StringFixed(2)
	}
	httpx.JSONError(w, statusFor(e.Kind), string(e.Kind), details)
}

// badRequest reports a malformed request before it reaches the engine.
func badRequest(w http.ResponseWriter, err error) {
	httpx.JSONError(w, http.StatusBadRequest, string(services.KindValidation), errorDetails{Reason: err.Error()})
}

// pathID reads the {id} path value, answering 400 itself when it is invalid.
func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		badRequest(w, err)
		return 0, false
	}
	return id, true
}

// decode reads the JSON body, answering 400 itself when it is invalid.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.Decode(r, dst); err != nil {
		badRequest(w, err)
		return false
	}
	return true
}
