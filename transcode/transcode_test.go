package transcode

import (
	"testing"

	"github.com/streamforge/vodpipe/config"
	"github.com/stretchr/testify/require"
)

func TestEncoderArgsGOPIsTwiceSegmentDurationInFrames(t *testing.T) {
	opts := Options{
		Quality:         config.QualityProfile{Name: "720p", Width: 1280, Height: 720, VideoBitrate: 2500000, AudioBitrate: 128000},
		SegmentDuration: 4,
		ThreadsPerJob:   2,
		SourceFrameRate: 25,
	}
	args := encoderArgs(opts)

	require.Equal(t, "200", valueAfter(args, "-g")) // 2 * 4s * 25fps
	require.Equal(t, "100", valueAfter(args, "-keyint_min"))
	require.Equal(t, "0", valueAfter(args, "-sc_threshold"))
	require.Equal(t, "main", valueAfter(args, "-profile:v"))
	require.Equal(t, "scale=1280:720", valueAfter(args, "-vf"))
}

func TestEncoderArgsDefaultsFrameRateWhenUnset(t *testing.T) {
	opts := Options{
		Quality:         config.QualityProfile{Name: "240p", Width: 426, Height: 240, VideoBitrate: 400000, AudioBitrate: 64000},
		SegmentDuration: 6,
		ThreadsPerJob:   1,
	}
	args := encoderArgs(opts)

	require.Equal(t, "360", valueAfter(args, "-g")) // 2 * 6s * 30fps (default)
	require.Equal(t, "180", valueAfter(args, "-keyint_min"))
}

func TestM4sNumberParsesSequenceFromFilename(t *testing.T) {
	require.Equal(t, 1, m4sNumber("segment-1.m4s"))
	require.Equal(t, 12, m4sNumber("segment-12.m4s"))
	require.Equal(t, 0, m4sNumber("init.mp4"))
}

func valueAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
