package synthetic

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/Yummy-sk/live-vision/internal/capture"
	"github.com/Yummy-sk/live-vision/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxesCycleAndStayInBounds(t *testing.T) {
	bounds := image.Rect(0, 0, DefaultWidth, DefaultHeight)
	for n := 0; n < 200; n++ {
		boxes := Boxes(bounds, n)
		require.Len(t, boxes, n%(MaxBoxes+1), "frame %d", n)
		for _, box := range boxes {
			assert.True(t, box.In(bounds), "frame %d box %v outside %v", n, box, bounds)
		}
	}
}

func TestFramesEncodeAsJPEG(t *testing.T) {
	handle, err := NewSource().Open(context.Background())
	require.NoError(t, err)
	defer handle.Close()

	for n := 0; n < 8; n++ {
		raw, err := handle.ReadFrame()
		require.NoError(t, err)
		require.False(t, raw.Empty())

		annotated, metric := handle.Analyze(raw)
		assert.Equal(t, n%(MaxBoxes+1), metric)

		data, err := Codec{}.Encode(annotated, capture.DefaultQuality)
		require.NoError(t, err)

		decoded, err := jpeg.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, DefaultWidth, DefaultHeight), decoded.Bounds())
	}
}

func TestAnalyzeOutlinesBoxes(t *testing.T) {
	handle, err := NewSource().Open(context.Background())
	require.NoError(t, err)

	// Frame 0 is empty, frame 1 has one box
	_, err = handle.ReadFrame()
	require.NoError(t, err)
	raw, err := handle.ReadFrame()
	require.NoError(t, err)

	annotated, metric := handle.Analyze(raw)
	require.Equal(t, 1, metric)

	img := annotated.(*Image)
	corner := img.Boxes[0].Min
	assert.Equal(t, outline, img.RGBA.RGBAAt(corner.X, corner.Y))
	center := corner.Add(image.Pt(boxSize/2, boxSize/2))
	assert.Equal(t, fill, img.RGBA.RGBAAt(center.X, center.Y))
}

func TestOpenRejectsTinyFrames(t *testing.T) {
	_, err := (&Source{Width: 10, Height: 10}).Open(context.Background())
	assert.Error(t, err)
}

func TestCodecRejectsForeignImages(t *testing.T) {
	_, err := Codec{}.Encode(&Image{}, 30)
	assert.Error(t, err)
}

func TestLoopStreamsSyntheticFrames(t *testing.T) {
	loop := capture.NewLoop(NewSource(), Codec{}, capture.LoopOptions{Interval: time.Millisecond, Quality: 30})
	ch := frame.NewChannel(16, frame.Block)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx, ch) }()

	for i := 0; i < 6; i++ {
		pkt, err := ch.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), pkt.Seq)
		assert.Equal(t, i%(MaxBoxes+1), pkt.Metric)
		assert.NotEmpty(t, pkt.Data)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("capture loop did not stop")
	}
}
