package stream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// ErrWriterClosed is returned by sends after the writer has been closed
var ErrWriterClosed = errors.New("connection writer closed")

// OutboundConn is the outbound half of a WebSocket connection.
// *websocket.Conn satisfies it.
type OutboundConn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Message is one outbound WebSocket data message
type Message struct {
	Type int
	Data []byte
}

// BinaryMessage wraps an encoded frame
func BinaryMessage(data []byte) Message {
	return Message{Type: websocket.BinaryMessage, Data: data}
}

// TextMessage wraps a text payload
func TextMessage(text string) Message {
	return Message{Type: websocket.TextMessage, Data: []byte(text)}
}

// ExclusiveWriter is the only path to a connection's outbound half. It
// serializes concurrent callers, and once a write fails every later send
// fails with the same error so nothing is written after a broken message.
type ExclusiveWriter struct {
	mu      sync.Mutex
	conn    OutboundConn
	timeout time.Duration
	err     error
	closed  bool
}

// NewExclusiveWriter wraps conn. A positive timeout sets a write deadline
// before every message.
func NewExclusiveWriter(conn OutboundConn, timeout time.Duration) *ExclusiveWriter {
	return &ExclusiveWriter{conn: conn, timeout: timeout}
}

// Send writes a single message
func (w *ExclusiveWriter) Send(msg Message) error {
	return w.SendBatch(msg)
}

// SendBatch writes msgs back to back under one lock acquisition, so no
// other caller's message can land between them.
func (w *ExclusiveWriter) SendBatch(msgs ...Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	if w.closed {
		return ErrWriterClosed
	}

	for _, msg := range msgs {
		if w.timeout > 0 {
			if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
				w.err = errors.Wrap(err, "failed to set write deadline")
				return w.err
			}
		}
		if err := w.conn.WriteMessage(msg.Type, msg.Data); err != nil {
			w.err = errors.Wrapf(err, "failed to write %s message", messageTypeName(msg.Type))
			return w.err
		}
	}
	return nil
}

// Err returns the write error that broke the connection, if any
func (w *ExclusiveWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close sends a close frame with code and reason, unless the connection is
// already broken, and closes the socket. Only the first call has an effect.
func (w *ExclusiveWriter) Close(code int, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.err == nil {
		timeout := w.timeout
		if timeout <= 0 {
			timeout = time.Second
		}
		msg := websocket.FormatCloseMessage(code, reason)
		// The peer may already be gone; the socket is closed regardless
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout))
	}
	return w.conn.Close()
}

func messageTypeName(t int) string {
	switch t {
	case websocket.TextMessage:
		return "text"
	case websocket.BinaryMessage:
		return "binary"
	case websocket.CloseMessage:
		return "close"
	case websocket.PingMessage:
		return "ping"
	case websocket.PongMessage:
		return "pong"
	default:
		return "unknown"
	}
}
