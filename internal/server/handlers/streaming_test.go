package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Yummy-sk/live-vision/internal/stream"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockServerService for testing
type MockServerService struct {
	acquireErr error
	acquired   atomic.Int32
	released   atomic.Int32

	mu      sync.Mutex
	remotes []string
}

func (m *MockServerService) StreamPath() string { return "/ws" }

func (m *MockServerService) AcquireConnection() (func(), error) {
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	m.acquired.Add(1)
	return func() { m.released.Add(1) }, nil
}

// ServeConnection answers one text message and hangs up
func (m *MockServerService) ServeConnection(conn stream.Conn, remoteAddr string) error {
	m.mu.Lock()
	m.remotes = append(m.remotes, remoteAddr)
	m.mu.Unlock()

	defer conn.Close()
	if _, _, err := conn.ReadMessage(); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, []byte("served"))
}

func (m *MockServerService) served() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.remotes)
}

func TestHandleFrameStreamWithoutService(t *testing.T) {
	h := NewStreamingHandlers()

	rec := httptest.NewRecorder()
	h.HandleFrameStream(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleFrameStreamRejectsWhenFull(t *testing.T) {
	svc := &MockServerService{acquireErr: ErrTooManyConnections}
	h := NewStreamingHandlers()
	h.SetServerService(svc)

	rec := httptest.NewRecorder()
	h.HandleFrameStream(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many connections")
	assert.Zero(t, svc.served())
}

func TestHandleFrameStreamReleasesSlotOnBadUpgrade(t *testing.T) {
	svc := &MockServerService{}
	h := NewStreamingHandlers()
	h.SetServerService(svc)

	rec := httptest.NewRecorder()
	h.HandleFrameStream(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int32(1), svc.acquired.Load())
	assert.Equal(t, int32(1), svc.released.Load())
	assert.Zero(t, svc.served())
}

func TestHandleFrameStreamUpgrades(t *testing.T) {
	svc := &MockServerService{}
	h := NewStreamingHandlers()
	h.SetServerService(svc)

	ts := httptest.NewServer(http.HandlerFunc(h.HandleFrameStream))
	defer ts.Close()

	// Any origin is accepted
	header := http.Header{"Origin": []string{"http://example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, messageType)
	assert.Equal(t, "served", string(data))

	require.Eventually(t, func() bool {
		return svc.released.Load() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, svc.served())
}
