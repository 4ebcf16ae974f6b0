package manifest

import (
	"strings"
	"testing"
	"time"

	"github.com/streamforge/vodpipe/config"
	"github.com/streamforge/vodpipe/video"
	"github.com/stretchr/testify/require"
)

func ladderVariants() []Variant {
	segs := []video.SegmentDescriptor{
		{Filename: "segment_000.ts", DurationSeconds: 6.0},
		{Filename: "segment_001.ts", DurationSeconds: 6.0},
		{Filename: "segment_002.ts", DurationSeconds: 5.42},
	}
	return []Variant{
		{Quality: config.DefaultLadder[3], Segments: segs}, // 720p, inserted out of order
		{Quality: config.DefaultLadder[0], Segments: segs}, // 240p
		{Quality: config.DefaultLadder[2], Segments: segs}, // 480p
	}
}

func TestHLSMasterPlaylistOrdersVariantsByAscendingBandwidth(t *testing.T) {
	out, err := HLSMasterPlaylist(ladderVariants())
	require.NoError(t, err)

	idx240 := strings.Index(out, "240p.m3u8")
	idx480 := strings.Index(out, "480p.m3u8")
	idx720 := strings.Index(out, "720p.m3u8")
	require.True(t, idx240 < idx480 && idx480 < idx720, "expected ascending bandwidth order, got:\n%s", out)
	require.Contains(t, out, "#EXTM3U")
	require.Contains(t, out, "#EXT-X-VERSION:3")
}

func TestHLSVariantPlaylistVODHasEndlistAndTargetDuration(t *testing.T) {
	segs := []video.SegmentDescriptor{
		{Filename: "segment_000.ts", DurationSeconds: 6.0},
		{Filename: "segment_001.ts", DurationSeconds: 6.0},
		{Filename: "segment_002.ts", DurationSeconds: 5.42},
	}
	out, err := HLSVariantPlaylist(segs, HLSVariantPlaylistOptions{})
	require.NoError(t, err)

	require.Contains(t, out, "#EXT-X-TARGETDURATION:6")
	require.Contains(t, out, "#EXT-X-ENDLIST")
	require.Contains(t, out, "segment_000.ts")
	require.Contains(t, out, "segment_002.ts")
}

func TestHLSVariantPlaylistLiveOmitsEndlistAndSetsMediaSequence(t *testing.T) {
	segs := []video.SegmentDescriptor{{Filename: "segment_010.ts", DurationSeconds: 6.0}}
	out, err := HLSVariantPlaylist(segs, HLSVariantPlaylistOptions{Live: true, MediaSequence: 10})
	require.NoError(t, err)

	require.NotContains(t, out, "#EXT-X-ENDLIST")
	require.Contains(t, out, "#EXT-X-MEDIA-SEQUENCE:10")
}

func TestDASHMPDStaticUsesFlatDurationWhenNoTimelineRequested(t *testing.T) {
	segs := []video.SegmentDescriptor{
		{Number: 1, DurationMs: 4000, StartMs: 0},
		{Number: 2, DurationMs: 4000, StartMs: 4000},
	}
	out, err := DASHMPD([]Variant{{Quality: config.DefaultLadder[0], Segments: segs}}, DASHMPDOptions{
		DurationSeconds: 8,
	})
	require.NoError(t, err)

	body := string(out)
	require.Contains(t, body, `type="static"`)
	require.Contains(t, body, `mediaPresentationDuration="PT8S"`)
	require.Contains(t, body, `duration="4000"`)
	require.NotContains(t, body, "<S ")
}

func TestDASHMPDSegmentTimelineIsContiguousFromZero(t *testing.T) {
	segs := []video.SegmentDescriptor{
		{Number: 1, DurationMs: 4000, StartMs: 0},
		{Number: 2, DurationMs: 4000, StartMs: 4000},
		{Number: 3, DurationMs: 3500, StartMs: 8000},
	}
	out, err := DASHMPD([]Variant{{Quality: config.DefaultLadder[0], Segments: segs}}, DASHMPDOptions{
		UseSegmentTimeline: true,
	})
	require.NoError(t, err)

	body := string(out)
	require.Contains(t, body, `<S t="0" d="4000"></S>`)
	require.Contains(t, body, `<S t="4000" d="4000"></S>`)
	require.Contains(t, body, `<S t="8000" d="3500"></S>`)
}

func TestDASHMPDLiveSetsDynamicAttributesAndMandatoryTimeline(t *testing.T) {
	segs := []video.SegmentDescriptor{{Number: 5, DurationMs: 4000, StartMs: 16000}}
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	out, err := DASHMPD([]Variant{{Quality: config.DefaultLadder[0], Segments: segs}}, DASHMPDOptions{
		Live: true, StartNumber: 5, Now: now,
	})
	require.NoError(t, err)

	body := string(out)
	require.Contains(t, body, `type="dynamic"`)
	require.Contains(t, body, `timeShiftBufferDepth="PT30S"`)
	require.Contains(t, body, `startNumber="5"`)
	require.Contains(t, body, `<S t="16000" d="4000"></S>`)
}

func TestDASHMPDIsReferentiallyTransparentExceptPublishTime(t *testing.T) {
	segs := []video.SegmentDescriptor{{Number: 1, DurationMs: 4000, StartMs: 0}}
	variants := []Variant{{Quality: config.DefaultLadder[0], Segments: segs}}

	out1, err := DASHMPD(variants, DASHMPDOptions{DurationSeconds: 4})
	require.NoError(t, err)
	out2, err := DASHMPD(variants, DASHMPDOptions{DurationSeconds: 4})
	require.NoError(t, err)
	require.Equal(t, out1, out2)
}
