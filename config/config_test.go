package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// override sets a key for the duration of the test
func override(t *testing.T, key string, value interface{}) {
	t.Helper()
	prev := v.Get(key)
	v.Set(key, value)
	t.Cleanup(func() { v.Set(key, prev) })
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", s.Server.Addr())
	assert.Equal(t, "/ws", s.Server.Path)
	assert.Equal(t, SourceCamera, s.Capture.Source)
	assert.Equal(t, 66*time.Millisecond, s.Capture.Interval)
	assert.Equal(t, 30, s.Capture.Quality)
	assert.Equal(t, 30, s.Stream.Buffer)
	assert.Equal(t, "drop-oldest", s.Stream.Overflow)
	assert.Equal(t, "Hello, WebSocket!", s.Stream.AckMessage)

	assert.True(t, filepath.IsAbs(s.Capture.ModelPath))
	assert.Equal(t, "haarcascade_frontalface_default.xml", filepath.Base(s.Capture.ModelPath))
}

func TestLoadOverrides(t *testing.T) {
	override(t, "server.port", 9090)
	override(t, "capture.source", "Synthetic")
	override(t, "capture.interval", "100ms")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, s.Server.Port)
	assert.Equal(t, SourceSynthetic, s.Capture.Source)
	assert.Equal(t, 100*time.Millisecond, s.Capture.Interval)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		key   string
		value interface{}
	}{
		{"server.port", 0},
		{"server.path", "ws"},
		{"server.max_connections", 0},
		{"capture.source", "webcam"},
		{"capture.interval", "0s"},
		{"capture.quality", 101},
		{"stream.buffer", 0},
		{"stream.overflow", "sideways"},
		{"stream.write_timeout", "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			override(t, tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadKeepsAbsoluteModelPath(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "cascade.xml")
	override(t, "capture.model_path", abs)

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, abs, s.Capture.ModelPath)
}
