package router

import (
	"net/http"

	"github.com/Yummy-sk/live-vision/internal/server/handlers"
)

// Router mounts one group of endpoints on the server mux. Pattern reports
// what was mounted so the server can log it.
type Router interface {
	RegisterRoutes(mux *http.ServeMux, service handlers.ServerService)
	Pattern() string
}
