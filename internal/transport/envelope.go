// Package transport is the External Interface Adapter: a thin REST and
// WebSocket surface over internal/instance.Controller. It owns no
// domain state of its own, translating HTTP/WS requests into
// Controller calls and Controller results (and pushbus events) back
// into the wire format. Adapted from the teacher's internal/api
// (REST) and internal/session (WebSocket) packages.
package transport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ndrandal/marketsim/internal/marketerr"
)

// envelope is the response shape every REST endpoint returns, wrapping
// either a successful payload or a marketerr.Error.
type envelope struct {
	Success   bool           `json:"success"`
	Data      any            `json:"data,omitempty"`
	Error     *errorPayload  `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type errorPayload struct {
	Code    marketerr.Code `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeJSON writes a successful envelope.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Timestamp: time.Now()})
}

// writeError writes a failed envelope, mapping err's marketerr.Code to
// an HTTP status when err is a *marketerr.Error, and to 500 otherwise.
func writeError(w http.ResponseWriter, err error) {
	code, status, msg, details := classify(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{
		Success:   false,
		Error:     &errorPayload{Code: code, Message: msg, Details: details},
		Timestamp: time.Now(),
	})
}

func classify(err error) (marketerr.Code, int, string, map[string]any) {
	me, ok := marketerr.As(err)
	if !ok {
		return marketerr.Internal, http.StatusInternalServerError, err.Error(), nil
	}
	return me.Code, statusFor(me.Code), me.Message, me.Details
}

func statusFor(code marketerr.Code) int {
	switch code {
	case marketerr.InstanceNotFound, marketerr.RequestNotFound, marketerr.TemplateNotFound, marketerr.SeriesNotFound, marketerr.StockNotFound, marketerr.UnknownObject:
		return http.StatusNotFound
	case marketerr.ValidationFailed, marketerr.InvalidAcceleration, marketerr.InsufficientShares, marketerr.OversubscribedShares, marketerr.TimestampRegression, marketerr.IllegalTransition:
		return http.StatusBadRequest
	case marketerr.Forbidden:
		return http.StatusForbidden
	case marketerr.InstanceBusy, marketerr.IllegalState:
		return http.StatusConflict
	case marketerr.StageTimeout:
		return http.StatusGatewayTimeout
	case marketerr.Cancelled:
		return http.StatusGone
	case marketerr.WorkerCrashed, marketerr.LaggingSubscriber:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// parseIntParam parses an integer query parameter, falling back to def
// on absence or malformed input.
func parseIntParam(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// parseTimeParam parses an RFC3339 query parameter, falling back to def
// on absence or malformed input.
func parseTimeParam(r *http.Request, key string, def time.Time) time.Time {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return def
	}
	return t
}
