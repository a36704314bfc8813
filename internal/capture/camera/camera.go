// Package camera implements the frame source on top of OpenCV: frames come
// from a local video device and faces are found with a Haar cascade.
package camera

import (
	"context"
	"image"
	"image/color"
	"os"

	"github.com/Yummy-sk/live-vision/internal/capture"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Detection parameters for the frontal face cascade
const (
	scaleFactor  = 1.2
	minNeighbors = 5
	minFaceSize  = 30
)

var boxColor = color.RGBA{G: 255}

// Source opens a camera device and loads the face cascade. The model path is
// resolved once at startup and shared by every connection.
type Source struct {
	device    int
	modelPath string
}

var _ capture.Source = (*Source)(nil)

// NewSource creates a camera source for the given device index
func NewSource(device int, modelPath string) *Source {
	return &Source{device: device, modelPath: modelPath}
}

// Open opens the device and the cascade. Either failing is permanent.
func (s *Source) Open(ctx context.Context) (capture.Handle, error) {
	if _, err := os.Stat(s.modelPath); err != nil {
		return nil, errors.Wrapf(err, "face cascade %s", s.modelPath)
	}

	cam, err := gocv.OpenVideoCapture(s.device)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open camera %d", s.device)
	}
	if !cam.IsOpened() {
		cam.Close()
		return nil, errors.Errorf("camera %d is not available", s.device)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(s.modelPath) {
		classifier.Close()
		cam.Close()
		return nil, errors.Errorf("failed to load face cascade %s", s.modelPath)
	}

	return &handle{
		cam:        cam,
		classifier: classifier,
		frame:      gocv.NewMat(),
		gray:       gocv.NewMat(),
	}, nil
}

// handle reuses one frame buffer across reads; the image it returns is only
// valid until the next ReadFrame.
type handle struct {
	cam        *gocv.VideoCapture
	classifier gocv.CascadeClassifier
	frame      gocv.Mat
	gray       gocv.Mat
}

func (h *handle) ReadFrame() (capture.Image, error) {
	if ok := h.cam.Read(&h.frame); !ok {
		return nil, errors.New("failed to read frame from camera")
	}
	return &Image{mat: &h.frame}, nil
}

// Analyze draws a rectangle around every detected face, in place
func (h *handle) Analyze(img capture.Image) (capture.Image, int) {
	frame, ok := img.(*Image)
	if !ok || frame.Empty() {
		return img, 0
	}

	gocv.CvtColor(*frame.mat, &h.gray, gocv.ColorBGRToGray)
	faces := h.classifier.DetectMultiScaleWithParams(
		h.gray,
		scaleFactor,
		minNeighbors,
		0,
		image.Pt(minFaceSize, minFaceSize),
		image.Pt(0, 0),
	)
	for _, face := range faces {
		gocv.Rectangle(frame.mat, face, boxColor, 2)
	}
	return frame, len(faces)
}

func (h *handle) Close() error {
	h.gray.Close()
	h.frame.Close()
	h.classifier.Close()
	return h.cam.Close()
}

// Image is a view of the handle's frame buffer
type Image struct {
	mat *gocv.Mat
}

func (i *Image) Empty() bool {
	return i.mat == nil || i.mat.Empty()
}

// Close is a no-op; the buffer belongs to the handle
func (i *Image) Close() error {
	return nil
}

// Codec encodes camera frames as JPEG
type Codec struct{}

var _ capture.Codec = Codec{}

func (Codec) Encode(img capture.Image, quality int) ([]byte, error) {
	frame, ok := img.(*Image)
	if !ok {
		return nil, errors.Errorf("camera codec cannot encode %T", img)
	}
	if frame.Empty() {
		return nil, errors.New("cannot encode an empty frame")
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame.mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode frame")
	}
	defer buf.Close()

	// GetBytes aliases native memory that Close releases
	return append([]byte(nil), buf.GetBytes()...), nil
}
