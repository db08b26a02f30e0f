package transport

import (
	"net/http"
	"time"

	"github.com/ndrandal/marketsim/internal/instance"
)

// Server exposes one Controller over REST and WebSocket. One Server
// serves every market instance the process owns; routing to a
// specific instance happens by path parameter, not by server instance.
type Server struct {
	ctrl       *instance.Controller
	startAt    time.Time
	bufferSize int
}

// NewServer wraps ctrl. bufferSize sets the per-WebSocket-client
// backlog before a slow client is dropped from its pushbus subscriber
// (pushbus.DefaultBufferSize if <= 0).
func NewServer(ctrl *instance.Controller, bufferSize int) *Server {
	return &Server{ctrl: ctrl, startAt: time.Now(), bufferSize: bufferSize}
}

// Register attaches every REST and WebSocket route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /market-instances", s.handleCreate)
	mux.HandleFunc("GET /market-instances/progress/{requestId}", s.handleProgress)
	mux.HandleFunc("GET /market-instances", s.handleList)
	mux.HandleFunc("GET /market-instances/{id}", s.handleDetail)
	mux.HandleFunc("DELETE /market-instances/{id}", s.handleDestroy)
	mux.HandleFunc("GET /market-instances/{id}/export", s.handleExport)
	mux.HandleFunc("GET /market-instances/{id}/stocks/{symbol}/kline", s.handleKLine)
	mux.HandleFunc("GET /market-instances/{id}/time", s.handleGetTime)
	mux.HandleFunc("PATCH /market-instances/{id}/time", s.handleSetAcceleration)
	mux.HandleFunc("GET /market-instances/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /market-instances/progress/stream", s.handleProgressStream)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
}
