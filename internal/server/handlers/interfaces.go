package handlers

import (
	"github.com/Yummy-sk/live-vision/internal/stream"
	"github.com/pkg/errors"
)

// ErrTooManyConnections is returned when every connection slot is taken
var ErrTooManyConnections = errors.New("too many connections")

// ServerService defines the server operations that handlers need
type ServerService interface {
	// StreamPath is the WebSocket upgrade path
	StreamPath() string

	// AcquireConnection reserves a connection slot; the returned func
	// releases it and is safe to call more than once
	AcquireConnection() (release func(), err error)

	// ServeConnection blocks until the connection is closed
	ServeConnection(conn stream.Conn, remoteAddr string) error
}
