// Package synthetic provides a camera-free frame source. It renders a test
// pattern with a known number of boxes per frame, which makes the whole
// streaming path observable on machines without a video device.
package synthetic

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"github.com/Yummy-sk/live-vision/internal/capture"
	"github.com/pkg/errors"
)

const (
	DefaultWidth  = 320
	DefaultHeight = 240

	// MaxBoxes is the largest box count in the pattern
	MaxBoxes = 3

	boxSize = 40
)

var (
	background = color.RGBA{R: 32, G: 32, B: 48, A: 255}
	fill       = color.RGBA{R: 200, G: 180, B: 150, A: 255}
	outline    = color.RGBA{G: 255, A: 255}
)

// Source renders frames in memory. Frame n (starting at 0) shows
// n % (MaxBoxes+1) boxes that drift across the picture.
type Source struct {
	Width  int
	Height int
}

var _ capture.Source = (*Source)(nil)

// NewSource creates a synthetic source with the default frame size
func NewSource() *Source {
	return &Source{Width: DefaultWidth, Height: DefaultHeight}
}

// Open never fails once the frame size is valid
func (s *Source) Open(ctx context.Context) (capture.Handle, error) {
	w, h := s.Width, s.Height
	if w == 0 && h == 0 {
		w, h = DefaultWidth, DefaultHeight
	}
	if w < boxSize*2 || h < boxSize*2 {
		return nil, errors.Errorf("synthetic frame %dx%d is too small", w, h)
	}
	return &handle{bounds: image.Rect(0, 0, w, h)}, nil
}

type handle struct {
	bounds image.Rectangle
	frame  int
}

// Image is one rendered frame with the boxes it contains
type Image struct {
	RGBA  *image.RGBA
	Boxes []image.Rectangle
}

func (i *Image) Empty() bool {
	return i.RGBA == nil
}

func (i *Image) Close() error {
	return nil
}

func (h *handle) ReadFrame() (capture.Image, error) {
	n := h.frame
	h.frame++

	img := image.NewRGBA(h.bounds)
	draw.Draw(img, img.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)

	boxes := Boxes(h.bounds, n)
	for _, box := range boxes {
		draw.Draw(img, box, &image.Uniform{C: fill}, image.Point{}, draw.Src)
	}
	return &Image{RGBA: img, Boxes: boxes}, nil
}

// Analyze outlines the boxes rendered into the frame
func (h *handle) Analyze(img capture.Image) (capture.Image, int) {
	frame, ok := img.(*Image)
	if !ok || frame.Empty() {
		return img, 0
	}
	for _, box := range frame.Boxes {
		strokeRect(frame.RGBA, box, outline, 2)
	}
	return frame, len(frame.Boxes)
}

func (h *handle) Close() error {
	return nil
}

// Boxes returns the boxes of frame n inside bounds
func Boxes(bounds image.Rectangle, n int) []image.Rectangle {
	count := n % (MaxBoxes + 1)
	lane := bounds.Dy() / (MaxBoxes + 1)
	travel := bounds.Dx() - boxSize

	boxes := make([]image.Rectangle, 0, count)
	for i := 0; i < count; i++ {
		x := bounds.Min.X + (n*4+i*travel/MaxBoxes)%travel
		y := bounds.Min.Y + lane*i + (lane-boxSize/2)/2
		if y+boxSize > bounds.Max.Y {
			y = bounds.Max.Y - boxSize
		}
		boxes = append(boxes, image.Rect(x, y, x+boxSize, y+boxSize))
	}
	return boxes
}

func strokeRect(img *image.RGBA, r image.Rectangle, c color.Color, width int) {
	u := &image.Uniform{C: c}
	sides := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, side := range sides {
		draw.Draw(img, side.Intersect(img.Bounds()), u, image.Point{}, draw.Src)
	}
}

// Codec encodes synthetic frames as JPEG
type Codec struct{}

var _ capture.Codec = Codec{}

func (Codec) Encode(img capture.Image, quality int) ([]byte, error) {
	frame, ok := img.(*Image)
	if !ok {
		return nil, errors.Errorf("synthetic codec cannot encode %T", img)
	}
	if frame.Empty() {
		return nil, errors.New("cannot encode an empty frame")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.RGBA, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.Wrap(err, "failed to encode frame")
	}
	return buf.Bytes(), nil
}
