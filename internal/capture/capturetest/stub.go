// Package capturetest provides a scripted frame source for tests.
package capturetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Yummy-sk/live-vision/internal/capture"
	"github.com/pkg/errors"
)

// Step scripts one ReadFrame call
type Step struct {
	Metric int
	Empty  bool  // return a zero-sized image
	Err    error // return a transient read error
}

// Frames returns one non-empty step per metric
func Frames(metrics ...int) []Step {
	steps := make([]Step, len(metrics))
	for i, m := range metrics {
		steps[i] = Step{Metric: m}
	}
	return steps
}

// Source replays Steps on every Open. Once the script is exhausted the
// handle keeps returning empty images.
type Source struct {
	Steps   []Step
	OpenErr error

	mu        sync.Mutex
	opens     int
	readTimes []time.Time
}

var _ capture.Source = (*Source)(nil)

func (s *Source) Open(ctx context.Context) (capture.Handle, error) {
	s.mu.Lock()
	s.opens++
	s.mu.Unlock()

	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	return &handle{source: s}, nil
}

// Opens returns how many times Open was called
func (s *Source) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// ReadTimes returns when each ReadFrame call happened
func (s *Source) ReadTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.readTimes...)
}

type handle struct {
	source *Source
	next   int
	closed bool
}

func (h *handle) ReadFrame() (capture.Image, error) {
	h.source.mu.Lock()
	h.source.readTimes = append(h.source.readTimes, time.Now())
	h.source.mu.Unlock()

	if h.closed {
		return nil, errors.New("handle closed")
	}
	if h.next >= len(h.source.Steps) {
		return &Image{empty: true}, nil
	}

	step := h.source.Steps[h.next]
	h.next++
	if step.Err != nil {
		return nil, step.Err
	}
	return &Image{empty: step.Empty, Metric: step.Metric, Index: h.next}, nil
}

func (h *handle) Analyze(img capture.Image) (capture.Image, int) {
	stub := img.(*Image)
	return stub, stub.Metric
}

func (h *handle) Close() error {
	h.closed = true
	return nil
}

// Image is a stub picture carrying its scripted metric
type Image struct {
	Metric int
	Index  int // 1-based script position
	empty  bool
}

func (i *Image) Empty() bool  { return i.empty }
func (i *Image) Close() error { return nil }

// Codec renders a stub image as "frame-<index>"
type Codec struct {
	Err error
}

func (c Codec) Encode(img capture.Image, quality int) ([]byte, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	stub, ok := img.(*Image)
	if !ok {
		return nil, errors.Errorf("unexpected image type %T", img)
	}
	return []byte(fmt.Sprintf("frame-%d", stub.Index)), nil
}
