package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"chat-server/internal/auth"
	"chat-server/internal/database"
	"chat-server/internal/models"
	"chat-server/internal/realtime"
	"chat-server/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure maps a service or core error onto an HTTP status.
func writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}

	var rerr *realtime.Error
	if errors.As(err, &rerr) {
		writeJSON(w, status, map[string]string{
			"error": realtime.DetailOf(err),
			"code":  string(rerr.Code),
		})
		return
	}
	writeError(w, status, message)
}

func statusFor(err error) int {
	var rerr *realtime.Error
	if errors.As(err, &rerr) {
		switch rerr.Code {
		case realtime.CodeAuthenticationFailed:
			return http.StatusUnauthorized
		case realtime.CodeInvalidRequest:
			return http.StatusBadRequest
		case realtime.CodeUnauthorized:
			return http.StatusForbidden
		case realtime.CodeNotFound:
			return http.StatusNotFound
		case realtime.CodePersistenceFailed:
			return http.StatusServiceUnavailable
		case realtime.CodeRateLimited:
			return http.StatusTooManyRequests
		}
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrGroupMissing),
		errors.Is(err, services.ErrUserMissing),
		errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// historyQuery reads ?limit=N&before=RFC3339.
func historyQuery(r *http.Request) (models.HistoryQuery, error) {
	var q models.HistoryQuery
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, errors.New("invalid limit")
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return q, errors.New("invalid before timestamp")
		}
		q.Before = t
	}
	return q.Normalize(), nil
}
