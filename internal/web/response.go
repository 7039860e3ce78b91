package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"virtual-fitting-room/internal/catalog"
	"virtual-fitting-room/internal/imagecodec"
	"virtual-fitting-room/internal/logging"
	"virtual-fitting-room/internal/session"
	"virtual-fitting-room/internal/tryon"
)

// Response is the JSON envelope for every API reply.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, Response{Error: &ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
	}})
}

// writeError maps domain errors onto HTTP statuses. Anything unrecognised is
// logged and reported as a 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeErrorCode(w, r, http.StatusNotFound, "NOT_FOUND", "session not found")
	case errors.Is(err, catalog.ErrNotFound):
		writeErrorCode(w, r, http.StatusNotFound, "NOT_FOUND", "product not found")
	case errors.Is(err, tryon.ErrGenerationInFlight):
		writeErrorCode(w, r, http.StatusConflict, "GENERATION_IN_FLIGHT", err.Error())
	case errors.Is(err, tryon.ErrInvalidTransition):
		writeErrorCode(w, r, http.StatusConflict, "INVALID_STATE", err.Error())
	case errors.Is(err, tryon.ErrSessionClosed):
		writeErrorCode(w, r, http.StatusGone, "SESSION_CLOSED", err.Error())
	case errors.Is(err, imagecodec.ErrTooLarge):
		writeErrorCode(w, r, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", tryon.TooLargeMessage)
	case errors.Is(err, imagecodec.ErrRead):
		writeErrorCode(w, r, http.StatusBadRequest, "UNREADABLE_FILE", tryon.ReadMessage)
	default:
		logging.FromContext(r.Context(), fallback).ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		writeErrorCode(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeErrorCode(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			fields[fe.Field()] = "is required"
		default:
			fields[fe.Field()] = "failed on '" + fe.Tag() + "' validation"
		}
	}
	writeJSON(w, http.StatusBadRequest, Response{Error: &ErrorResponse{
		Code:      "VALIDATION_ERROR",
		Message:   "request validation failed",
		Fields:    fields,
		RequestID: middleware.GetReqID(r.Context()),
	}})
}
