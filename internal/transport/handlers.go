package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ndrandal/marketsim/internal/marketerr"
	"github.com/ndrandal/marketsim/internal/series"
)

type createRequest struct {
	TemplateId string `json:"templateId"`
	Name       string `json:"name"`
}

type createResponse struct {
	InstanceId string `json:"instanceId"`
	RequestId  string `json:"requestId"`
}

// handleCreate submits a new market instance build and returns both
// the reserved instance id and the in-flight request id immediately;
// callers poll handleProgress for completion.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, marketerr.Withf(marketerr.ValidationFailed, "malformed request body: %v", err))
		return
	}
	if req.TemplateId == "" || req.Name == "" {
		writeError(w, marketerr.New(marketerr.ValidationFailed, "templateId and name are required"))
		return
	}

	instanceId, requestId, err := s.ctrl.Create(req.TemplateId, req.Name, userIdFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, createResponse{InstanceId: instanceId, RequestId: requestId})
}

// userIdFrom extracts the caller's owner id from the X-User-Id header.
// An empty value means the caller is unscoped: it sees every instance
// and owns nothing in particular. No authentication is performed here;
// the header is trusted as-is.
func userIdFrom(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

// handleProgress reports the factory's progress record for a build request.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	requestId := r.PathValue("requestId")
	rec, err := s.ctrl.GetProgress(requestId)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleList returns a summary of every instance the caller owns (or
// every instance, if the caller is unscoped).
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.List(userIdFrom(r)))
}

// handleDetail returns the full roster and overview stats for one
// instance, failing with Forbidden if the caller does not own it.
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	details, err := s.ctrl.GetDetails(id, userIdFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// handleDestroy tears down one instance and every object it owns,
// failing with Forbidden if the caller does not own it.
func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.ctrl.Destroy(id, userIdFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "destroyed"})
}

// handleExport returns a durable snapshot of one instance's state, the
// same instance.Export value internal/store persists.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	export, err := s.ctrl.Export(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

// handleKLine returns aggregated OHLCV buckets for one stock.
func (s *Server) handleKLine(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	symbol := r.PathValue("symbol")

	g := series.Granularity(r.URL.Query().Get("granularity"))
	if g == "" {
		g = series.Granularity1m
	}
	if !g.Valid() {
		writeError(w, marketerr.Withf(marketerr.ValidationFailed, "unknown granularity %q", g))
		return
	}

	now := time.Now()
	start := parseTimeParam(r, "start", now.Add(-24*time.Hour))
	end := parseTimeParam(r, "end", now)
	limit := parseIntParam(r, "limit", series.DefaultQueryLimit)

	buckets, err := s.ctrl.GetKLine(id, symbol, g, start, end, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

// handleGetTime returns one instance's current simulated time.
func (s *Server) handleGetTime(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.ctrl.GetTime(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]time.Time{"simulatedTime": t})
}

type setAccelerationRequest struct {
	Acceleration float64 `json:"acceleration"`
}

// handleSetAcceleration adjusts how fast one instance's simulated time
// advances relative to wall time.
func (s *Server) handleSetAcceleration(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req setAccelerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, marketerr.Withf(marketerr.ValidationFailed, "malformed request body: %v", err))
		return
	}
	if err := s.ctrl.SetAcceleration(id, req.Acceleration); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"acceleration": req.Acceleration})
}

// handleHealthz reports process uptime for liveness probes.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startAt).Truncate(time.Second).String(),
	})
}
