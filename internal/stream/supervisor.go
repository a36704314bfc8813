package stream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Yummy-sk/live-vision/internal/capture"
	"github.com/Yummy-sk/live-vision/internal/frame"
	"github.com/Yummy-sk/live-vision/internal/util"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultAckMessage answers every inbound text message
const DefaultAckMessage = "Hello, WebSocket!"

// Conn is a full-duplex WebSocket connection. *websocket.Conn satisfies it.
type Conn interface {
	OutboundConn
	ReadMessage() (messageType int, p []byte, err error)
}

// State is the lifecycle state of a supervised connection
type State int32

const (
	StateEstablishing State = iota
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateEstablishing:
		return "establishing"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a supervisor
type Options struct {
	ID           string // generated when empty
	Buffer       int
	Overflow     frame.OverflowPolicy
	WriteTimeout time.Duration
	AckMessage   string
	Logger       *logrus.Entry
}

// Summary describes a finished connection
type Summary struct {
	ID       string
	Duration time.Duration
	Capture  capture.Stats
	Sent     uint64
	Dropped  uint64
}

// Supervisor owns one connection: it runs the capture loop, the sender and
// the inbound reader for that connection and tears all of them down as soon
// as any one stops.
type Supervisor struct {
	id      string
	conn    Conn
	writer  *ExclusiveWriter
	capture *capture.Loop
	opts    Options
	log     *logrus.Entry
	state   atomic.Int32
	summary atomic.Pointer[Summary]
}

// NewSupervisor takes ownership of conn. The capture loop must not have
// been run before.
func NewSupervisor(conn Conn, loop *capture.Loop, opts Options) *Supervisor {
	if opts.AckMessage == "" {
		opts.AckMessage = DefaultAckMessage
	}
	if opts.Buffer < 1 {
		opts.Buffer = 1
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	log := opts.Logger
	if log == nil {
		log = util.GetLogger().WithField("component", "stream")
	}
	log = log.WithField("conn", id)

	return &Supervisor{
		id:      id,
		conn:    conn,
		writer:  NewExclusiveWriter(conn, opts.WriteTimeout),
		capture: loop,
		opts:    opts,
		log:     log,
	}
}

// ID returns the connection id used in logs
func (s *Supervisor) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Summary returns the connection summary once Serve has returned
func (s *Supervisor) Summary() (Summary, bool) {
	sum := s.summary.Load()
	if sum == nil {
		return Summary{}, false
	}
	return *sum, true
}

// Serve streams frames to the connection until the client goes away, a
// write fails, the frame source fails, or ctx is done. The connection is
// closed when Serve returns. The returned error is nil for an ordinary
// disconnect.
func (s *Supervisor) Serve(ctx context.Context) error {
	started := time.Now()

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := frame.NewChannel(s.opts.Buffer, s.opts.Overflow)
	sender := NewSender(s.writer, s.log)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		defer frames.Close()

		err := s.capture.Run(gctx, frames)
		var srcErr *capture.SourceUnavailableError
		if errors.As(err, &srcErr) {
			s.log.WithError(err).Error("Closing connection, frame source unavailable")
			s.writer.Close(websocket.CloseInternalServerErr, "frame source unavailable")
		}
		return err
	})

	g.Go(func() error {
		defer cancel()
		return sender.Run(gctx, frames)
	})

	// Unblocks the inbound reader once anything above has stopped
	g.Go(func() error {
		<-gctx.Done()
		s.setState(StateClosing)

		code := websocket.CloseNormalClosure
		if parent.Err() != nil {
			code = websocket.CloseGoingAway
		}
		s.writer.Close(code, "")
		return nil
	})

	s.setState(StateStreaming)
	s.log.Info("WebSocket connection established")

	s.readLoop(gctx)
	cancel()

	err := g.Wait()
	s.setState(StateClosed)

	summary := &Summary{
		ID:       s.id,
		Duration: time.Since(started),
		Capture:  s.capture.Stats(),
		Sent:     sender.Sent(),
		Dropped:  frames.Dropped(),
	}
	s.summary.Store(summary)

	s.log.WithFields(logrus.Fields{
		"duration": summary.Duration.Round(time.Millisecond),
		"captured": summary.Capture.Captured,
		"sent":     summary.Sent,
		"dropped":  summary.Dropped,
	}).Info("WebSocket connection closed")

	return err
}

// readLoop consumes inbound messages until the connection fails or closes.
// Text messages get the acknowledgement; everything else is ignored.
func (s *Supervisor) readLoop(ctx context.Context) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				s.log.WithError(err).Debug("Inbound reader stopped")
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				s.log.Debug("WebSocket closed by client")
			default:
				s.log.WithError(err).Warn("WebSocket error")
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		s.log.WithField("message", string(data)).Info("Received message")
		if err := s.writer.Send(TextMessage(s.opts.AckMessage)); err != nil {
			s.log.WithError(err).Warn("Failed to send message back to the client")
		}
	}
}

// setState only moves forward through the lifecycle
func (s *Supervisor) setState(state State) {
	for {
		prev := State(s.state.Load())
		if prev >= state {
			return
		}
		if s.state.CompareAndSwap(int32(prev), int32(state)) {
			s.log.WithFields(logrus.Fields{"from": prev, "to": state}).Debug("Connection state changed")
			return
		}
	}
}
