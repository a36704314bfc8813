// Package client is a small WebSocket consumer of the frame stream, used by
// the watch command to check a running server from a terminal.
package client

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Options configures a Watcher
type Options struct {
	URL   string
	Count int  // frames to receive before hanging up, 0 for no limit
	Ping  bool // send one text message after connecting
	Out   io.Writer
}

// Result summarizes a watch session
type Result struct {
	Frames   int
	Acks     int
	Faces    int // sum of all frame metrics
	Bytes    int
	Duration time.Duration
}

// Watcher connects to a frame stream and reports every frame it receives
type Watcher struct {
	opts   Options
	dialer *websocket.Dialer
}

// NewWatcher creates a watcher
func NewWatcher(opts Options) *Watcher {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Watcher{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Run watches until Count frames arrived, the server closes the connection,
// or ctx is done. A close initiated by the server is only an error when its
// code says something went wrong.
func (w *Watcher) Run(ctx context.Context) (Result, error) {
	var res Result
	started := time.Now()

	conn, resp, err := w.dialer.DialContext(ctx, w.opts.URL, nil)
	if err != nil {
		if resp != nil {
			return res, errors.Wrapf(err, "server refused connection: %s", resp.Status)
		}
		return res, errors.Wrapf(err, "failed to connect to %s", w.opts.URL)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	fmt.Fprintf(w.opts.Out, "Connected to %s\n", color.CyanString(w.opts.URL))

	if w.opts.Ping {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
			return res, errors.Wrap(err, "failed to send ping")
		}
	}

	frameSize := -1
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			res.Duration = time.Since(started)
			return res, w.readError(ctx, err)
		}

		switch messageType {
		case websocket.BinaryMessage:
			frameSize = len(data)

		case websocket.TextMessage:
			if frameSize < 0 {
				res.Acks++
				fmt.Fprintf(w.opts.Out, "%s %s\n", color.YellowString("ack"), data)
				continue
			}

			metric, err := strconv.Atoi(string(data))
			if err != nil {
				return res, errors.Errorf("frame %d: expected a face count, got %q", res.Frames+1, data)
			}
			res.Frames++
			res.Faces += metric
			res.Bytes += frameSize
			w.printFrame(res.Frames, frameSize, metric)
			frameSize = -1

			if w.opts.Count > 0 && res.Frames >= w.opts.Count {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				res.Duration = time.Since(started)
				return res, nil
			}
		}
	}
}

func (w *Watcher) printFrame(n, size, faces int) {
	facesColor := color.New(color.Faint)
	if faces > 0 {
		facesColor = color.New(color.FgGreen, color.Bold)
	}
	fmt.Fprintf(w.opts.Out, "frame %-6d %8d bytes  faces: %s\n", n, size, facesColor.Sprint(faces))
}

func (w *Watcher) readError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		fmt.Fprintf(w.opts.Out, "Server closed the connection: %d %s\n", closeErr.Code, closeErr.Text)
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return nil
		}
		return errors.Wrap(err, "stream closed")
	}
	return errors.Wrap(err, "failed to read from stream")
}
