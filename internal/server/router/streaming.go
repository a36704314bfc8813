package router

import (
	"net/http"

	"github.com/Yummy-sk/live-vision/internal/server/handlers"
)

// DefaultStreamPath is used when the service reports no path
const DefaultStreamPath = "/ws"

// StreamingRouter serves the frame stream endpoint
type StreamingRouter struct {
	handlers *handlers.StreamingHandlers
	path     string
}

// RegisterRoutes registers the WebSocket upgrade route. Nothing else is
// served; every other path gets the mux's 404.
func (r *StreamingRouter) RegisterRoutes(mux *http.ServeMux, service handlers.ServerService) {
	r.handlers = handlers.NewStreamingHandlers()
	r.path = DefaultStreamPath

	if service != nil {
		r.handlers.SetServerService(service)
		if p := service.StreamPath(); p != "" {
			r.path = p
		}
	}

	mux.HandleFunc(r.path, r.handlers.HandleFrameStream)
}

// Pattern returns the path this router serves
func (r *StreamingRouter) Pattern() string {
	return r.path
}
