package stream

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/Yummy-sk/live-vision/internal/frame"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Sender drains a frame channel onto a connection. Every packet becomes a
// binary message with the image followed by a text message with the count.
type Sender struct {
	writer *ExclusiveWriter
	log    *logrus.Entry
	sent   atomic.Uint64
}

// NewSender creates a sender writing through w
func NewSender(w *ExclusiveWriter, log *logrus.Entry) *Sender {
	return &Sender{writer: w, log: log}
}

// Run sends packets until the channel is closed and drained, ctx is done,
// or a write fails. Only a write failure is reported as an error; the
// failed packet is not retried. Packets still queued when ctx is done are
// dropped, and a write that fails after that is part of teardown.
func (s *Sender) Run(ctx context.Context, frames *frame.Channel) error {
	for {
		pkt, err := frames.Pop(ctx)
		if err != nil {
			if errors.Is(err, frame.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "receive frame")
		}
		if ctx.Err() != nil {
			return nil
		}

		err = s.writer.SendBatch(
			BinaryMessage(pkt.Data),
			TextMessage(strconv.Itoa(pkt.Metric)),
		)
		if err != nil {
			if ctx.Err() != nil {
				s.log.WithError(err).WithField("seq", pkt.Seq).Debug("Dropped frame during teardown")
				return nil
			}
			s.log.WithError(err).WithField("seq", pkt.Seq).Warn("Failed to send frame over WebSocket")
			return errors.Wrapf(err, "send frame %d", pkt.Seq)
		}
		s.sent.Add(1)
	}
}

// Sent returns how many packets were fully written
func (s *Sender) Sent() uint64 {
	return s.sent.Load()
}
