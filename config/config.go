// Package config holds the plain configuration surface for the ingest-to-
// playback pipeline. Loading these values from flags, env vars, or a config
// file is the excluded HTTP/CLI surface's job; this package only declares
// the options and their defaults (spec.md §6).
package config

import (
	"fmt"
	"strings"
	"time"
)

// Default chunk size for resumable uploads (spec.md §6).
const DefaultChunkSizeBytes = 5 * 1024 * 1024

// Default HLS segment duration, in seconds.
const DefaultHLSSegmentDurationSecs = 6

// Default DASH segment duration, in seconds.
const DefaultDASHSegmentDurationSecs = 4

// Default stall-recovery window: a video stuck in `processing` longer than
// this is considered abandoned by the janitor (C9).
const DefaultStallHours = 4

// Default age at which a terminal record becomes eligible for purge.
const DefaultExpirationDays = 30

// Default upload ticket lifetime (spec.md §4.7).
const DefaultUploadTicketTTL = 24 * time.Hour

// Default per-collaborator call timeout (spec.md §5).
const DefaultUpstreamTimeout = 30 * time.Second

// DefaultAllowedVideoFormats is the configured extension allow-list used by
// the upload coordinator (C7) to reject unsupported containers up front.
var DefaultAllowedVideoFormats = []string{
	"mp4", "mov", "wmv", "avi", "flv", "mkv", "webm", "mpeg", "mpg", "m4v", "ts",
}

// StorageBackend selects which C1 implementation backs a Facade instance.
// Selection is a static, process-start choice (spec.md §4.1); there is no
// runtime switch per request.
type StorageBackend string

const (
	StorageBackendLocal StorageBackend = "local"
	StorageBackendCloud StorageBackend = "cloud"
)

// QualityProfile is one rung of the transcoding ladder (spec.md §3).
type QualityProfile struct {
	Name         string
	Width        int
	Height       int
	VideoBitrate int64 // bits per second
	AudioBitrate int64 // bits per second
	CodecString  string
}

func (p QualityProfile) Resolution() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// Bandwidth is the value HLS's BANDWIDTH attribute expects: the combined
// video+audio bitrate of the rendition.
func (p QualityProfile) Bandwidth() int64 {
	return p.VideoBitrate + p.AudioBitrate
}

// DefaultLadder is the fixed, ordered quality ladder used absent
// per-deployment overrides. Ascending order is an invariant the manifest
// builder (C6) depends on for bandwidth ordering.
var DefaultLadder = []QualityProfile{
	{Name: "240p", Width: 426, Height: 240, VideoBitrate: 400_000, AudioBitrate: 64_000, CodecString: "avc1.42c01e,mp4a.40.2"},
	{Name: "360p", Width: 640, Height: 360, VideoBitrate: 800_000, AudioBitrate: 96_000, CodecString: "avc1.42c01e,mp4a.40.2"},
	{Name: "480p", Width: 854, Height: 480, VideoBitrate: 1_400_000, AudioBitrate: 128_000, CodecString: "avc1.4d401e,mp4a.40.2"},
	{Name: "720p", Width: 1280, Height: 720, VideoBitrate: 2_800_000, AudioBitrate: 128_000, CodecString: "avc1.4d401f,mp4a.40.2"},
	{Name: "1080p", Width: 1920, Height: 1080, VideoBitrate: 5_000_000, AudioBitrate: 192_000, CodecString: "avc1.640028,mp4a.40.2"},
}

// Config is the complete set of options the pipeline consumes. A zero value
// is not valid; use NewDefaultConfig and override fields as needed.
type Config struct {
	ChunkSizeBytes         int64
	AllowedVideoFormats    []string
	HLSSegmentDurationSecs int
	DASHSegmentDurationSecs int
	QualityProfiles        []QualityProfile
	TranscoderThreadsPerJob int
	StallHours             int
	ExpirationDays         int
	StorageBackend         StorageBackend
	// SkipUpscaling skips ladder rungs that would upscale beyond the
	// source's native resolution (spec.md §9 open question, resolved here
	// as a configuration flag; default true).
	SkipUpscaling bool
	UpstreamTimeout time.Duration
	UploadTicketTTL time.Duration
}

func NewDefaultConfig() Config {
	return Config{
		ChunkSizeBytes:          DefaultChunkSizeBytes,
		AllowedVideoFormats:     DefaultAllowedVideoFormats,
		HLSSegmentDurationSecs:  DefaultHLSSegmentDurationSecs,
		DASHSegmentDurationSecs: DefaultDASHSegmentDurationSecs,
		QualityProfiles:         DefaultLadder,
		TranscoderThreadsPerJob: 2,
		StallHours:              DefaultStallHours,
		ExpirationDays:          DefaultExpirationDays,
		StorageBackend:          StorageBackendLocal,
		SkipUpscaling:           true,
		UpstreamTimeout:         DefaultUpstreamTimeout,
		UploadTicketTTL:         DefaultUploadTicketTTL,
	}
}

// IsAllowedFormat reports whether ext (without the leading dot) is in the
// configured allow-list, case-insensitively.
func (c Config) IsAllowedFormat(ext string) bool {
	for _, allowed := range c.AllowedVideoFormats {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

// StallThreshold returns the duration after which a `processing` record
// with no updates is considered stalled.
func (c Config) StallThreshold() time.Duration {
	return time.Duration(c.StallHours) * time.Hour
}

// ExpirationThreshold returns the age after which a terminal record becomes
// eligible for purge.
func (c Config) ExpirationThreshold() time.Duration {
	return time.Duration(c.ExpirationDays) * 24 * time.Hour
}
