package manifest

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/streamforge/vodpipe/video"
)

// No DASH MPD library exists anywhere in the example pack, so this is built
// directly on encoding/xml (spec.md §4.6; see DESIGN.md for the stdlib
// justification).

type mpd struct {
	XMLName                   xml.Name `xml:"MPD"`
	Xmlns                     string   `xml:"xmlns,attr"`
	Profiles                  string   `xml:"profiles,attr"`
	Type                      string   `xml:"type,attr"`
	MediaPresentationDuration string   `xml:"mediaPresentationDuration,attr,omitempty"`
	MinBufferTime             string   `xml:"minBufferTime,attr"`
	TimeShiftBufferDepth      string   `xml:"timeShiftBufferDepth,attr,omitempty"`
	AvailabilityStartTime     string   `xml:"availabilityStartTime,attr,omitempty"`
	PublishTime               string   `xml:"publishTime,attr,omitempty"`
	Period                    period   `xml:"Period"`
}

type period struct {
	Start          string          `xml:"start,attr"`
	AdaptationSets []adaptationSet `xml:"AdaptationSet"`
}

type adaptationSet struct {
	ID              int            `xml:"id,attr"`
	MimeType        string         `xml:"mimeType,attr"`
	SegmentAlignment bool          `xml:"segmentAlignment,attr"`
	Representation  representation `xml:"Representation"`
}

type representation struct {
	ID              string          `xml:"id,attr"`
	Codecs          string          `xml:"codecs,attr"`
	Width           int             `xml:"width,attr"`
	Height          int             `xml:"height,attr"`
	Bandwidth       int64           `xml:"bandwidth,attr"`
	SegmentTemplate segmentTemplate `xml:"SegmentTemplate"`
}

type segmentTemplate struct {
	Initialization string           `xml:"initialization,attr"`
	Media          string           `xml:"media,attr"`
	Timescale      int              `xml:"timescale,attr"`
	StartNumber    int              `xml:"startNumber,attr"`
	Duration       int64            `xml:"duration,attr,omitempty"`
	SegmentTimeline *segmentTimeline `xml:"SegmentTimeline"`
}

type segmentTimeline struct {
	S []segmentTimelineEntry `xml:"S"`
}

type segmentTimelineEntry struct {
	T int64 `xml:"t,attr"`
	D int64 `xml:"d,attr"`
}

// DASHMPDOptions selects static vs. dynamic/live emission (spec.md §4.6).
type DASHMPDOptions struct {
	Live bool
	// StartNumber is only meaningful in live mode (static always uses 1,
	// per spec.md §4.6's contiguous-from-0 VOD behavior).
	StartNumber int
	// Now is stamped as publishTime in live mode; callers pass the current
	// time so the function stays a pure function of its arguments.
	Now time.Time
	// DurationSeconds is the total presentation duration, only emitted in
	// static mode.
	DurationSeconds float64
	// UseSegmentTimeline forces explicit <S t= d=/> emission instead of a
	// flat `duration=` attribute. Live mode always behaves as if this were
	// true, per spec.md §4.6's "SegmentTimeline mandatory" rule.
	UseSegmentTimeline bool
}

// DASHMPD builds the MPD XML bytes for the given adaptation sets (spec.md
// §4.6). An explicit SegmentTimeline is emitted when opts.Live or
// opts.UseSegmentTimeline is set; otherwise the SegmentTemplate carries a
// single `duration=` attribute taken from the variant's first segment,
// whether or not the remaining segments have the same duration.
func DASHMPD(variants []Variant, opts DASHMPDOptions) ([]byte, error) {
	doc := mpd{
		Xmlns:         "urn:mpeg:dash:schema:mpd:2011",
		Profiles:      "urn:mpeg:dash:profile:isoff-live:2011",
		MinBufferTime: "PT2S",
		Period:        period{Start: "PT0S"},
	}

	if opts.Live {
		doc.Type = "dynamic"
		doc.TimeShiftBufferDepth = "PT30S"
		doc.AvailabilityStartTime = "1970-01-01T00:00:00Z"
		doc.PublishTime = opts.Now.UTC().Format(time.RFC3339)
	} else {
		doc.Type = "static"
		doc.MediaPresentationDuration = fmt.Sprintf("PT%gS", opts.DurationSeconds)
	}

	startNumber := 1
	if opts.Live {
		startNumber = opts.StartNumber
	}

	for i, v := range variants {
		rep := representation{
			ID:        v.Quality.Name,
			Codecs:    v.Quality.CodecString,
			Width:     v.Quality.Width,
			Height:    v.Quality.Height,
			Bandwidth: v.Quality.Bandwidth(),
			SegmentTemplate: segmentTemplate{
				Initialization: "init.mp4",
				Media:          "segment-$Number$.m4s",
				Timescale:      1000,
				StartNumber:    startNumber,
			},
		}

		if opts.Live || opts.UseSegmentTimeline {
			rep.SegmentTemplate.SegmentTimeline = buildSegmentTimeline(v.Segments)
		} else if len(v.Segments) > 0 {
			rep.SegmentTemplate.Duration = v.Segments[0].DurationMs
		}

		doc.Period.AdaptationSets = append(doc.Period.AdaptationSets, adaptationSet{
			ID:               i,
			MimeType:         "video/mp4",
			SegmentAlignment: true,
			Representation:   rep,
		})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to marshal DASH MPD: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

func buildSegmentTimeline(segments []video.SegmentDescriptor) *segmentTimeline {
	entries := make([]segmentTimelineEntry, 0, len(segments))
	for _, s := range segments {
		entries = append(entries, segmentTimelineEntry{T: s.StartMs, D: s.DurationMs})
	}
	return &segmentTimeline{S: entries}
}
