package stream

import (
	"encoding/binary"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeConn records outbound messages and replays scripted inbound ones
type fakeConn struct {
	mu        sync.Mutex
	written   []Message
	attempts  int
	failAt    int // 1-based write attempt that fails, 0 for never
	closeCode int
	delay     time.Duration // per write, like a slow client

	inbound   chan Message
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan Message, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg, ok := <-c.inbound:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
		}
		return msg.Type, msg.Data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closed:
		return errors.New("use of closed network connection")
	default:
	}

	c.attempts++
	if c.failAt > 0 && c.attempts >= c.failAt {
		return errors.New("broken pipe")
	}
	c.written = append(c.written, Message{Type: messageType, Data: append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if messageType == websocket.CloseMessage && len(data) >= 2 {
		c.closeCode = int(binary.BigEndian.Uint16(data))
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.written...)
}

func (c *fakeConn) code() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// send queues an inbound message from the client
func (c *fakeConn) send(msg Message) {
	c.inbound <- msg
}

// hangUp simulates the client closing the connection
func (c *fakeConn) hangUp() {
	close(c.inbound)
}

// requirePairs checks that every binary message is immediately followed by
// its numeric text message and returns the metrics in order, plus how many
// other text messages were seen.
func requirePairs(t *testing.T, msgs []Message, ack string) (metrics []int, acks int) {
	t.Helper()
	for i := 0; i < len(msgs); i++ {
		msg := msgs[i]
		switch msg.Type {
		case websocket.BinaryMessage:
			require.Less(t, i+1, len(msgs), "binary message %d has no metric", i)
			next := msgs[i+1]
			require.Equal(t, websocket.TextMessage, next.Type, "message after binary %d is not text", i)
			metric, err := strconv.Atoi(string(next.Data))
			require.NoError(t, err, "message after binary %d is %q, not a metric", i, next.Data)
			metrics = append(metrics, metric)
			i++
		case websocket.TextMessage:
			require.Equal(t, ack, string(msg.Data), "unexpected text message %d", i)
			acks++
		default:
			t.Fatalf("unexpected message type %d at %d", msg.Type, i)
		}
	}
	return metrics, acks
}
