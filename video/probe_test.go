package video

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFps(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected float64
	}{
		{"empty", "", 0},
		{"whole number", "30", 30},
		{"fraction", "30000/1001", 30000.0 / 1001.0},
		{"zero over zero", "0/0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fps, err := parseFps(tt.in)
			require.NoError(t, err)
			require.InDelta(t, tt.expected, fps, 0.0001)
		})
	}
}

func TestParseFpsInvalidDenominator(t *testing.T) {
	_, err := parseFps("30/0")
	require.Error(t, err)
}

func TestDetectContainer(t *testing.T) {
	require.Equal(t, "mp4", detectContainer("mov,mp4,m4a,3gp,3g2,mj2", "source.mp4", nil))
	require.Equal(t, "mkv", detectContainer("matroska,webm", "source.mkv", nil))
	require.Equal(t, "mov", detectContainer("mov", "source.mov", nil))
	require.Equal(t, "ts", detectContainer("mpegts", "source.ts", nil))
	require.Equal(t, "avi", detectContainer("unknownformat", "source.avi", []string{"avi", "wmv"}))
	require.Equal(t, "video", detectContainer("unknownformat", "source.xyz", []string{"avi", "wmv"}))
}

func TestParseMaxVolume(t *testing.T) {
	out := "[Parsed_volumedetect_0 @ 0x1] mean_volume: -27.0 dB\n[Parsed_volumedetect_0 @ 0x1] max_volume: -6.6 dB\n"
	v, err := parseMaxVolume(out)
	require.NoError(t, err)
	require.InDelta(t, -6.6, v, 0.001)
}

func TestParseMaxVolumeMissing(t *testing.T) {
	_, err := parseMaxVolume("no volume info here")
	require.Error(t, err)
}

func TestDetectIssuesThresholds(t *testing.T) {
	result := ProbeResult{Width: 320, Height: 240, BitrateBps: 100_000}
	issues := detectIssues(context.Background(), "/nonexistent/source.mp4", result)
	require.True(t, issues.Video.LowResolution)
	require.True(t, issues.Video.LowBitrate)
}
