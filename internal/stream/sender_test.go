package stream

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Yummy-sk/live-vision/internal/frame"
	"github.com/Yummy-sk/live-vision/internal/util"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filledChannel(t *testing.T, metrics ...int) *frame.Channel {
	t.Helper()
	ch := frame.NewChannel(len(metrics), frame.Block)
	for i, m := range metrics {
		require.NoError(t, ch.Push(context.Background(), frame.Packet{
			Data:   []byte(fmt.Sprintf("jpeg-%d", i+1)),
			Metric: m,
			Seq:    uint64(i + 1),
		}))
	}
	ch.Close()
	return ch
}

func TestSenderWritesBinaryThenText(t *testing.T) {
	conn := newFakeConn()
	sender := NewSender(NewExclusiveWriter(conn, 0), util.GetLogger().WithField("test", t.Name()))

	metrics := []int{0, 3, 3, 0, 12}
	require.NoError(t, sender.Run(context.Background(), filledChannel(t, metrics...)))

	msgs := conn.messages()
	require.Len(t, msgs, 2*len(metrics))
	for i, m := range metrics {
		assert.Equal(t, websocket.BinaryMessage, msgs[2*i].Type)
		assert.Equal(t, fmt.Sprintf("jpeg-%d", i+1), string(msgs[2*i].Data))
		assert.Equal(t, websocket.TextMessage, msgs[2*i+1].Type)
		assert.Equal(t, fmt.Sprint(m), string(msgs[2*i+1].Data))
	}
	assert.Equal(t, uint64(len(metrics)), sender.Sent())
}

func TestSenderStopsAtFirstWriteFailure(t *testing.T) {
	for _, failAt := range []int{1, 2, 3, 4, 5} {
		t.Run(fmt.Sprintf("message %d", failAt), func(t *testing.T) {
			conn := newFakeConn()
			conn.failAt = failAt
			sender := NewSender(NewExclusiveWriter(conn, 0), util.GetLogger().WithField("test", t.Name()))

			err := sender.Run(context.Background(), filledChannel(t, 1, 2, 3, 4))
			require.Error(t, err)

			// Messages before k were written, nothing from k onwards
			assert.Len(t, conn.messages(), failAt-1)
			assert.Equal(t, uint64((failAt-1)/2), sender.Sent())
		})
	}
}

func TestSenderStopsOnCancel(t *testing.T) {
	conn := newFakeConn()
	sender := NewSender(NewExclusiveWriter(conn, 0), util.GetLogger().WithField("test", t.Name()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := frame.NewChannel(4, frame.DropOldest)
	assert.NoError(t, sender.Run(ctx, ch))
	assert.Empty(t, conn.messages())
}

func TestSenderDropsQueuedPacketsOnCancel(t *testing.T) {
	conn := newFakeConn()
	sender := NewSender(NewExclusiveWriter(conn, 0), util.GetLogger().WithField("test", t.Name()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, sender.Run(ctx, filledChannel(t, 1, 2, 3)))
	assert.Empty(t, conn.messages())
	assert.Zero(t, sender.Sent())
}

func TestSenderWriterClosedDuringTeardownIsClean(t *testing.T) {
	conn := newFakeConn()
	conn.delay = 20 * time.Millisecond
	writer := NewExclusiveWriter(conn, 0)
	sender := NewSender(writer, util.GetLogger().WithField("test", t.Name()))

	ctx, cancel := context.WithCancel(context.Background())
	ch := frame.NewChannel(8, frame.Block)
	for i := 1; i <= 8; i++ {
		require.NoError(t, ch.Push(context.Background(), frame.Packet{Data: []byte("jpeg"), Metric: i, Seq: uint64(i)}))
	}

	done := make(chan error, 1)
	go func() {
		done <- sender.Run(ctx, ch)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	require.NoError(t, writer.Close(websocket.CloseGoingAway, ""))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("sender did not stop")
	}
	assert.Less(t, sender.Sent(), uint64(8))
}
