package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-05-01T10:20:30Z", time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)},
		{"2024-05-01T10:20:30", time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)},
		{"2024-05-01 10:20:30", time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)},
		{"unknown", time.Time{}},
		{"", time.Time{}},
		{"yesterday", time.Time{}},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.True(t, tc.want.Equal(parseTime(tc.in)))
		})
	}
}

func TestBuildInfo(t *testing.T) {
	release := BuildInfo{Version: "v1.2.3", Commit: "0123456789abcdef", GoVersion: "go1.24.4", Platform: "linux/amd64"}
	assert.True(t, release.IsRelease())
	assert.Equal(t, "v1.2.3 (0123456)", release.Short())

	dev := BuildInfo{Version: "dev-0123456", Commit: "unknown", GoVersion: "go1.24.4", Platform: "linux/amd64"}
	assert.False(t, dev.IsRelease())
	assert.Equal(t, "dev-0123456", dev.Short())
	assert.Equal(t, [][2]string{
		{"Version", "dev-0123456"},
		{"Go", "go1.24.4"},
		{"Platform", "linux/amd64"},
	}, dev.Lines())

	release.Dirty = true
	assert.Contains(t, release.Lines(), [2]string{"Commit", "0123456789abcdef (modified)"})
}

func TestGet(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}
