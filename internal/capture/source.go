package capture

import (
	"context"
	"fmt"
)

// Image is a captured or annotated picture. An empty image means the source
// had nothing ready yet; it is not an error. Implementations must be
// comparable (typically pointers) so a loop can tell whether Analyze
// returned a new image or annotated the raw one in place.
type Image interface {
	Empty() bool
	Close() error
}

// Source opens a frame source. Open may block on hardware and fails
// permanently when the device or a model resource is unavailable.
type Source interface {
	Open(ctx context.Context) (Handle, error)
}

// Handle is an opened source, used by one capture loop at a time.
type Handle interface {
	// ReadFrame returns the next raw frame. Errors are transient.
	ReadFrame() (Image, error)

	// Analyze annotates the frame and returns the number of detected features.
	Analyze(img Image) (Image, int)

	Close() error
}

// Codec encodes an annotated image for the wire
type Codec interface {
	Encode(img Image, quality int) ([]byte, error)
}

// SourceUnavailableError reports that a source could not be opened. It is
// fatal to the connection that needed the source.
type SourceUnavailableError struct {
	Err error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("frame source unavailable: %v", e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}
