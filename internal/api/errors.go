package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dokzlo13/xlightd/internal/command"
	"github.com/dokzlo13/xlightd/internal/controller"
	"github.com/dokzlo13/xlightd/internal/core"
)

// Error is the body of every failed response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Error codes.
const (
	CodeValidation  = "validation_error"
	CodeNotFound    = "not_found"
	CodeCapacity    = "capacity_exceeded"
	CodeUnavailable = "unavailable"
	CodeInternal    = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeErr maps err onto a status code and writes it.
func writeErr(w http.ResponseWriter, err error) {
	body := Error{Message: err.Error()}

	var verr *command.ValidationError
	switch {
	case errors.As(err, &verr):
		body.Status, body.Code, body.Field = http.StatusBadRequest, CodeValidation, verr.Field
	case errors.Is(err, command.ErrUnknownClass),
		errors.Is(err, command.ErrUnknownOp),
		errors.Is(err, core.ErrInvalidScheduleSpec),
		errors.Is(err, core.ErrUnsupportedOp):
		body.Status, body.Code = http.StatusBadRequest, CodeValidation
	case errors.Is(err, core.ErrNotFound):
		body.Status, body.Code = http.StatusNotFound, CodeNotFound
	case errors.Is(err, core.ErrCapacityExceeded):
		body.Status, body.Code = http.StatusInsufficientStorage, CodeCapacity
	case errors.Is(err, controller.ErrStopped):
		body.Status, body.Code = http.StatusServiceUnavailable, CodeUnavailable
	default:
		body.Status, body.Code = http.StatusInternalServerError, CodeInternal
	}
	writeJSON(w, body.Status, body)
}
