package handlers

import (
	"net/http"

	"github.com/Yummy-sk/live-vision/internal/capture"
	"github.com/Yummy-sk/live-vision/internal/util"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// StreamingHandlers contains handlers for streaming routes
type StreamingHandlers struct {
	serverService ServerService
	upgrader      websocket.Upgrader
	log           *logrus.Entry
}

// NewStreamingHandlers creates a new streaming handlers instance
func NewStreamingHandlers() *StreamingHandlers {
	return &StreamingHandlers{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // No authentication, any origin may watch
			},
		},
		log: util.GetLogger().WithField("component", "handlers"),
	}
}

// SetServerService sets the server service dependency
func (h *StreamingHandlers) SetServerService(service ServerService) {
	h.serverService = service
}

// HandleFrameStream upgrades the request and streams annotated frames over
// the resulting WebSocket until either side goes away
func (h *StreamingHandlers) HandleFrameStream(w http.ResponseWriter, r *http.Request) {
	if h.serverService == nil {
		http.Error(w, "Server not ready", http.StatusServiceUnavailable)
		return
	}

	release, err := h.serverService.AcquireConnection()
	if err != nil {
		h.log.WithError(err).WithField("remote", r.RemoteAddr).Warn("Rejecting WebSocket connection")
		if errors.Is(err, ErrTooManyConnections) {
			http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		} else {
			http.Error(w, "Server unavailable", http.StatusServiceUnavailable)
		}
		return
	}
	defer release()

	// Upgrade writes the HTTP error response itself on failure
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).WithField("remote", r.RemoteAddr).Warn("Failed to upgrade WebSocket")
		return
	}

	if err := h.serverService.ServeConnection(conn, r.RemoteAddr); err != nil {
		fields := logrus.Fields{"remote": r.RemoteAddr}
		var srcErr *capture.SourceUnavailableError
		if errors.As(err, &srcErr) {
			h.log.WithError(err).WithFields(fields).Error("Frame source unavailable")
			return
		}
		h.log.WithError(err).WithFields(fields).Warn("WebSocket connection ended with error")
	}
}
