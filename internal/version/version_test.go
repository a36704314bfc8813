package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	info := Info()

	assert.Equal(t, Version, info["Version"])
	assert.Equal(t, runtime.GOOS, info["OS"])
	assert.Equal(t, "unknown", info["FormattedTime"])
}

func TestFormatBuildTime(t *testing.T) {
	orig := BuildTime
	defer func() { BuildTime = orig }()

	BuildTime = "2024-03-01T10:20:30Z"
	assert.Equal(t, "Fri Mar 1 10:20:30 2024", formatBuildTime())

	BuildTime = "yesterday"
	assert.Equal(t, "yesterday", formatBuildTime())
}
