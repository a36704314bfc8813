package frame

import "time"

// Packet is the unit handed from the capture loop to the sender loop: one
// encoded image and the metric derived from it.
type Packet struct {
	Data       []byte    // encoded image, never mutated after creation
	Metric     int       // faces detected in this frame
	Seq        uint64    // per-connection capture sequence
	CapturedAt time.Time // when the raw frame was read
}
