package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/safar/dealership/internal/apperr"
	"github.com/safar/dealership/internal/database"
	"github.com/safar/dealership/internal/logger"
	"github.com/safar/dealership/internal/opportunity"
)

const requestIDHeader = "X-Request-ID"

type errorBody struct {
	Error      string            `json:"error"`
	RequestID  string            `json:"request_id,omitempty"`
	Violations map[string]string `json:"violations,omitempty"`
}

// withRequestID tags every request with an id, echoes it back and puts a
// logger carrying it into the request context.
func withRequestID(base zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		l := logger.WithRequestID(base, id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(l.WithContext(r.Context())))

		l.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("request served")
	})
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("encode JSON response")
	}
}

func respondMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, r, status, errorBody{Error: message, RequestID: w.Header().Get(requestIDHeader)})
}

// respondError maps the error taxonomy onto HTTP statuses. Unexpected
// errors are logged and reported without detail.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), RequestID: w.Header().Get(requestIDHeader)}

	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		body.Violations = ve.Violations
	}
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg("request failed")
		if status == http.StatusInternalServerError {
			body.Error = "internal error"
		}
	}
	respondJSON(w, r, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusUnprocessableEntity
	case database.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInvariant),
		errors.Is(err, opportunity.ErrWrongStage),
		errors.Is(err, database.ErrStateConflict),
		errors.Is(err, database.ErrOptimisticLockFailed):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrNumberingConflict):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.NewValidationError("body", "invalid_json")
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.NewValidationError("id", "invalid")
	}
	return id, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil {
		return v
	}
	return fallback
}
