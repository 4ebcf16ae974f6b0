// Package manifest implements the manifest builder (C6): pure functions
// that turn segment timelines into HLS master/variant playlists and DASH
// MPDs, grounded on the teacher's GenerateAndUploadManifests/grafov-m3u8
// usage for HLS and the standard library for DASH (spec.md §4.6).
package manifest

import (
	"fmt"
	"math"
	"sort"

	"github.com/grafov/m3u8"
	"github.com/streamforge/vodpipe/config"
	"github.com/streamforge/vodpipe/video"
)

// Variant is one rendition's segment timeline, ready for playlist emission.
type Variant struct {
	Quality  config.QualityProfile
	Segments []video.SegmentDescriptor
}

// HLSMasterPlaylist builds the master playlist bytes: #EXTM3U,
// #EXT-X-VERSION:3, then one #EXT-X-STREAM-INF per variant in ascending
// bandwidth order followed by "<quality>.m3u8" (spec.md §4.6).
func HLSMasterPlaylist(variants []Variant) (string, error) {
	sorted := make([]Variant, len(variants))
	copy(sorted, variants)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Quality.Bandwidth() < sorted[j].Quality.Bandwidth()
	})

	master := m3u8.NewMasterPlaylist()
	for _, v := range sorted {
		master.Append(
			fmt.Sprintf("%s.m3u8", v.Quality.Name),
			&m3u8.MediaPlaylist{},
			m3u8.VariantParams{
				Bandwidth:  uint32(v.Quality.Bandwidth()),
				Resolution: v.Quality.Resolution(),
			},
		)
	}
	return master.String(), nil
}

// HLSVariantPlaylistOptions selects VOD vs. live emission for one variant
// playlist (spec.md §4.6).
type HLSVariantPlaylistOptions struct {
	// Live enables live-mode emission: MediaSequence is honored and no
	// #EXT-X-ENDLIST tag is written.
	Live bool
	// MediaSequence is only used when Live is true.
	MediaSequence uint64
}

// HLSVariantPlaylist builds one rendition's playlist bytes from its segment
// timeline (spec.md §4.6). #EXT-X-TARGETDURATION is the ceiling of the
// longest segment's duration.
func HLSVariantPlaylist(segments []video.SegmentDescriptor, opts HLSVariantPlaylistOptions) (string, error) {
	targetDuration := uint(math.Ceil(maxSegmentDuration(segments)))

	capacity := uint(len(segments))
	if capacity == 0 {
		capacity = 1
	}
	playlist, err := m3u8.NewMediaPlaylist(capacity, capacity)
	if err != nil {
		return "", fmt.Errorf("manifest: failed to allocate variant playlist: %w", err)
	}
	playlist.TargetDuration = float64(targetDuration)
	if opts.Live {
		playlist.SeqNo = opts.MediaSequence
	}

	for _, seg := range segments {
		if err := playlist.Append(seg.Filename, seg.DurationSeconds, ""); err != nil {
			return "", fmt.Errorf("manifest: failed to append segment %q: %w", seg.Filename, err)
		}
	}

	if !opts.Live {
		playlist.Close() // writes #EXT-X-ENDLIST
	}
	return playlist.String(), nil
}

func maxSegmentDuration(segments []video.SegmentDescriptor) float64 {
	var max float64
	for _, s := range segments {
		if s.DurationSeconds > max {
			max = s.DurationSeconds
		}
	}
	return max
}
