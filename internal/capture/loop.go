package capture

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Yummy-sk/live-vision/internal/frame"
	"github.com/Yummy-sk/live-vision/internal/util"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultInterval is the delay between captures, about 15 frames per second
	DefaultInterval = 66 * time.Millisecond
	// DefaultQuality trades image fidelity for bandwidth
	DefaultQuality = 30
)

// LoopOptions configures a capture loop
type LoopOptions struct {
	Interval time.Duration
	Quality  int
	Logger   *logrus.Entry
}

// Loop drives a Source at a fixed cadence and pushes encoded packets into a
// frame channel. A Loop runs once; create one per connection.
type Loop struct {
	source   Source
	codec    Codec
	interval time.Duration
	quality  int
	log      *logrus.Entry

	captured     atomic.Uint64
	skipped      atomic.Uint64
	readFailures atomic.Uint64
	encodeFails  atomic.Uint64
	badMetrics   atomic.Uint64
	pushed       atomic.Uint64
}

// Stats is a snapshot of a loop's counters
type Stats struct {
	Captured       uint64 // non-empty frames read
	Skipped        uint64 // empty frames, nothing emitted
	ReadFailures   uint64 // transient read errors
	EncodeFailures uint64
	BadMetrics     uint64 // negative counts clamped to zero
	Pushed         uint64 // packets handed to the channel
}

// NewLoop creates a capture loop
func NewLoop(source Source, codec Codec, opts LoopOptions) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = util.GetLogger().WithField("component", "capture")
	}
	return &Loop{
		source:   source,
		codec:    codec,
		interval: opts.Interval,
		quality:  opts.Quality,
		log:      opts.Logger,
	}
}

// Run opens the source and captures until ctx is done or the channel stops
// accepting packets. Open failures are returned as *SourceUnavailableError
// without entering the capture cycle.
//
// The loop pins its goroutine to an OS thread: camera reads are blocking
// cgo calls and must stay off the threads serving network I/O.
func (l *Loop) Run(ctx context.Context, out *frame.Channel) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	handle, err := l.source.Open(ctx)
	if err != nil {
		l.log.WithError(err).Error("Failed to open frame source")
		return &SourceUnavailableError{Err: err}
	}
	defer func() {
		if err := handle.Close(); err != nil {
			l.log.WithError(err).Warn("Failed to close frame source")
		}
	}()

	l.log.WithFields(logrus.Fields{
		"interval": l.interval,
		"quality":  l.quality,
	}).Info("Capture loop started")

	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	var seq uint64
	for {
		if ctx.Err() != nil {
			return nil
		}

		pkt, ok := l.captureOnce(handle, seq+1)
		if ok {
			seq++
			if err := out.Push(ctx, pkt); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				l.log.WithError(err).Warn("Failed to hand frame to sender")
				return errors.Wrap(err, "push frame")
			}
			l.pushed.Add(1)
		}

		// Fixed delay, not compensated for the time spent capturing
		timer.Reset(l.interval)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// captureOnce reads, analyzes and encodes a single frame. It reports false
// when there is nothing to emit this tick.
func (l *Loop) captureOnce(handle Handle, seq uint64) (frame.Packet, bool) {
	raw, err := handle.ReadFrame()
	if err != nil {
		l.readFailures.Add(1)
		l.log.WithError(err).Warn("Failed to read frame")
		return frame.Packet{}, false
	}
	if raw == nil || raw.Empty() {
		l.skipped.Add(1)
		if raw != nil {
			raw.Close()
		}
		return frame.Packet{}, false
	}
	defer raw.Close()

	capturedAt := time.Now()
	l.captured.Add(1)

	annotated, metric := handle.Analyze(raw)
	if annotated != raw {
		defer annotated.Close()
	}
	if metric < 0 {
		l.badMetrics.Add(1)
		l.log.WithField("faces", metric).Warn("Analyzer returned a negative count, sending 0")
		metric = 0
	}

	data, err := l.codec.Encode(annotated, l.quality)
	if err != nil {
		l.encodeFails.Add(1)
		l.log.WithError(err).Warn("Failed to encode frame")
		return frame.Packet{}, false
	}

	l.log.WithFields(logrus.Fields{
		"seq":   seq,
		"bytes": len(data),
		"faces": metric,
	}).Debug("Captured frame")

	return frame.Packet{
		Data:       data,
		Metric:     metric,
		Seq:        seq,
		CapturedAt: capturedAt,
	}, true
}

// Stats returns the current counters
func (l *Loop) Stats() Stats {
	return Stats{
		Captured:       l.captured.Load(),
		Skipped:        l.skipped.Load(),
		ReadFailures:   l.readFailures.Load(),
		EncodeFailures: l.encodeFails.Load(),
		BadMetrics:     l.badMetrics.Load(),
		Pushed:         l.pushed.Load(),
	}
}
