package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Yummy-sk/live-vision/config"
	"github.com/Yummy-sk/live-vision/internal/capture"
	"github.com/Yummy-sk/live-vision/internal/frame"
	"github.com/Yummy-sk/live-vision/internal/server/handlers"
	"github.com/Yummy-sk/live-vision/internal/server/router"
	"github.com/Yummy-sk/live-vision/internal/stream"
	"github.com/Yummy-sk/live-vision/internal/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// ErrServerStopped is returned for connections that arrive during shutdown
var ErrServerStopped = errors.New("server stopped")

// LoopFactory builds a fresh capture loop for one connection
type LoopFactory func(log *logrus.Entry) *capture.Loop

// StreamServer accepts WebSocket connections and runs one supervisor per
// connection. Connections share nothing but the startup settings.
type StreamServer struct {
	settings   config.Settings
	overflow   frame.OverflowPolicy
	newLoop    LoopFactory
	httpServer *http.Server
	mux        *http.ServeMux
	log        *logrus.Entry

	slots    *semaphore.Weighted
	sessions sync.WaitGroup
	active   atomic.Int64
	served   atomic.Uint64

	// State
	mu        sync.RWMutex
	running   bool
	stopping  bool
	startTime time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewStreamServer creates a server for the given settings. newLoop is called
// once per accepted connection.
func NewStreamServer(settings config.Settings, newLoop LoopFactory) (*StreamServer, error) {
	if newLoop == nil {
		return nil, errors.New("a capture loop factory is required")
	}
	overflow, err := frame.ParseOverflowPolicy(settings.Stream.Overflow)
	if err != nil {
		return nil, err
	}

	maxConns := settings.Server.MaxConnections
	if maxConns < 1 {
		maxConns = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &StreamServer{
		settings: settings,
		overflow: overflow,
		newLoop:  newLoop,
		mux:      http.NewServeMux(),
		log:      util.GetLogger().WithField("component", "server"),
		slots:    semaphore.NewWeighted(int64(maxConns)),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the HTTP handler with access logging, for embedding or tests
func (s *StreamServer) Handler() http.Handler {
	return loggingMiddleware(s.mux)
}

// Start listens on the configured address and blocks until the server stops
func (s *StreamServer) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	if s.stopping {
		s.mu.Unlock()
		return ErrServerStopped
	}
	s.running = true
	s.startTime = time.Now()
	s.httpServer = &http.Server{
		Addr:     s.settings.Server.Addr(),
		Handler:  s.Handler(),
		ErrorLog: util.StdLogger(logrus.WarnLevel),
		// No read/write/idle timeouts: connections are long-lived streams
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"addr":            httpServer.Addr,
		"path":            s.settings.Server.Path,
		"source":          s.settings.Capture.Source,
		"max_connections": s.settings.Server.MaxConnections,
	}).Info("Stream server listening")

	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.Wrapf(err, "failed to listen on %s", httpServer.Addr)
}

// Stop cancels every connection, shuts down the listener and waits for the
// supervisors to finish, bounded by ctx.
func (s *StreamServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	s.running = false
	httpServer := s.httpServer
	s.mu.Unlock()

	// Supervisors close their sockets with 1001 once this is cancelled
	s.cancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
			// Force close if graceful shutdown fails
			if err := httpServer.Close(); err != nil {
				s.log.WithError(err).Warn("HTTP server force close error")
			}
		}
	}

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.WithFields(logrus.Fields{
			"served": s.served.Load(),
			"uptime": s.GetUptime().Round(time.Second),
		}).Info("Stream server stopped")
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "%d connections still open", s.active.Load())
	}
}

// setupRoutes registers the routers on the mux
func (s *StreamServer) setupRoutes() {
	routers := []router.Router{
		&router.StreamingRouter{},
	}
	for _, r := range routers {
		r.RegisterRoutes(s.mux, s)
		s.log.WithField("path", r.Pattern()).Debug("Registered route")
	}
}

// ServerService interface implementations for handlers

// StreamPath returns the WebSocket upgrade path
func (s *StreamServer) StreamPath() string {
	return s.settings.Server.Path
}

// AcquireConnection reserves a connection slot without waiting
func (s *StreamServer) AcquireConnection() (func(), error) {
	s.mu.RLock()
	stopping := s.stopping
	s.mu.RUnlock()
	if stopping {
		return nil, ErrServerStopped
	}

	if !s.slots.TryAcquire(1) {
		return nil, handlers.ErrTooManyConnections
	}
	var once sync.Once
	return func() {
		once.Do(func() { s.slots.Release(1) })
	}, nil
}

// ServeConnection supervises an upgraded connection until it closes
func (s *StreamServer) ServeConnection(conn stream.Conn, remoteAddr string) error {
	s.mu.RLock()
	if s.stopping {
		s.mu.RUnlock()
		conn.Close()
		return ErrServerStopped
	}
	s.sessions.Add(1)
	s.mu.RUnlock()
	defer s.sessions.Done()

	s.active.Add(1)
	defer s.active.Add(-1)
	s.served.Add(1)

	id := uuid.NewString()
	log := util.GetLogger().WithFields(logrus.Fields{
		"conn":   id,
		"remote": remoteAddr,
	})

	sup := stream.NewSupervisor(conn, s.newLoop(log), stream.Options{
		ID:           id,
		Buffer:       s.settings.Stream.Buffer,
		Overflow:     s.overflow,
		WriteTimeout: s.settings.Stream.WriteTimeout,
		AckMessage:   s.settings.Stream.AckMessage,
		Logger:       log,
	})
	return sup.Serve(s.ctx)
}

// ActiveConnections returns the number of connections being served
func (s *StreamServer) ActiveConnections() int {
	return int(s.active.Load())
}

// GetUptime returns server uptime
func (s *StreamServer) GetUptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status   int
	length   int
	hijacked bool
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.status = code
	lw.ResponseWriter.WriteHeader(code)
}

func (lw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lw.status == 0 {
		lw.status = http.StatusOK
	}
	n, err := lw.ResponseWriter.Write(b)
	lw.length += n
	return n, err
}

func (lw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := lw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("http.Hijacker interface is not supported")
	}
	conn, rw, err := hj.Hijack()
	if err == nil {
		lw.hijacked = true
		lw.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

func loggingMiddleware(next http.Handler) http.Handler {
	log := util.GetLogger().WithField("component", "http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   lw.status,
			"bytes":    lw.length,
			"duration": time.Since(start).Round(time.Millisecond),
			"remote":   r.RemoteAddr,
			"upgraded": lw.hijacked,
		}).Info("HTTP request")
	})
}
