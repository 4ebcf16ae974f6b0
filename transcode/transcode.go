// Package transcode implements the transcoder (C5): one ffmpeg invocation
// per (quality, format) pair, producing independently decodable segments on
// disk plus the ordered SegmentDescriptor list the manifest builder (C6)
// consumes.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/streamforge/vodpipe/config"
	vodpipeerrors "github.com/streamforge/vodpipe/errors"
	"github.com/streamforge/vodpipe/video"
)

// Format selects the output container family for one transcoder invocation.
type Format string

const (
	FormatHLS  Format = "hls"
	FormatDASH Format = "dash"
)

// Options configures a single (quality, format) transcoder invocation
// (spec.md §4.5).
type Options struct {
	Source          string
	OutputDir       string
	Format          Format
	Quality         config.QualityProfile
	SegmentDuration int // seconds
	ThreadsPerJob   int
	// SourceFrameRate informs the GOP-in-frames calculation; defaults to 30
	// when unset, since the encoder contract is expressed in seconds
	// (spec.md §4.5) and libx264's -g flag counts frames.
	SourceFrameRate float64
	// Prober re-probes each HLS segment's actual duration; if nil or the
	// probe fails, the nominal SegmentDuration is used instead (spec.md
	// §4.5's explicit fallback).
	Prober video.Prober
}

// Result is the output of one transcoder invocation.
type Result struct {
	Segments []video.SegmentDescriptor
	// InitSegmentPath is set for DASH output.
	InitSegmentPath string
}

// Run invokes ffmpeg once for the given (quality, format) pair, writing into
// a disjoint OutputDir with no shared mutable state (spec.md §4.5's
// parallelism requirement: every invocation is independent of its siblings).
func Run(ctx context.Context, opts Options) (Result, error) {
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return Result{}, vodpipeerrors.NewStorageUnavailableError(err)
	}

	switch opts.Format {
	case FormatHLS:
		return runHLS(ctx, opts)
	case FormatDASH:
		return runDASH(ctx, opts)
	default:
		return Result{}, fmt.Errorf("transcode: unknown format %q", opts.Format)
	}
}

// encoderArgs builds the format-independent portion of the encoder contract
// (spec.md §4.5): H.264 main profile level 3.1, AAC audio, a GOP of 2x
// segment duration with a minimum keyframe interval of one segment
// duration, scene-change detection disabled so segment boundaries coincide
// with IDR frames, and the configured thread count.
func encoderArgs(opts Options) []string {
	fps := opts.SourceFrameRate
	if fps <= 0 {
		fps = 30
	}
	gopFrames := int(math.Round(2 * float64(opts.SegmentDuration) * fps))
	keyintMinFrames := int(math.Round(float64(opts.SegmentDuration) * fps))

	return []string{
		"-vf", fmt.Sprintf("scale=%d:%d", opts.Quality.Width, opts.Quality.Height),
		"-c:v", "libx264",
		"-profile:v", "main",
		"-level", "3.1",
		"-b:v", fmt.Sprintf("%d", opts.Quality.VideoBitrate),
		"-g", fmt.Sprintf("%d", gopFrames),
		"-keyint_min", fmt.Sprintf("%d", keyintMinFrames),
		"-sc_threshold", "0",
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%d", opts.Quality.AudioBitrate),
		"-threads", fmt.Sprintf("%d", opts.ThreadsPerJob),
	}
}

// runHLS produces .ts segments named segment_%03d.ts plus a throw-away
// playlist.m3u8 (the orchestrator regenerates the real playlist via C6).
// Each segment's duration is re-probed; a probe failure falls back to the
// nominal segment duration (spec.md §4.5).
func runHLS(ctx context.Context, opts Options) (Result, error) {
	segmentPattern := filepath.Join(opts.OutputDir, "segment_%03d.ts")
	playlistPath := filepath.Join(opts.OutputDir, "playlist.m3u8")

	args := []string{"-y", "-i", opts.Source}
	args = append(args, encoderArgs(opts)...)
	args = append(args,
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", opts.SegmentDuration),
		"-hls_playlist_type", "vod",
		"-hls_list_size", "0",
		"-hls_segment_filename", segmentPattern,
		playlistPath,
	)

	if _, err := runFFmpegCapture(ctx, args, opts.Quality.Name, string(FormatHLS)); err != nil {
		return Result{}, err
	}

	entries, err := os.ReadDir(opts.OutputDir)
	if err != nil {
		return Result{}, vodpipeerrors.NewStorageUnavailableError(err)
	}
	var filenames []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".ts") {
			filenames = append(filenames, e.Name())
		}
	}
	sort.Strings(filenames)

	segments := make([]video.SegmentDescriptor, 0, len(filenames))
	for i, name := range filenames {
		duration := float64(opts.SegmentDuration)
		if opts.Prober != nil {
			if probeResult, err := opts.Prober.Probe(ctx, filepath.Join(opts.OutputDir, name)); err == nil && probeResult.DurationSeconds > 0 {
				duration = probeResult.DurationSeconds
			}
		}
		segments = append(segments, video.SegmentDescriptor{
			Index:           i,
			Filename:        name,
			DurationSeconds: duration,
		})
	}
	return Result{Segments: segments}, nil
}

// runDASH produces a fragmented-MP4 init segment plus segment-{N}.m4s for N
// starting at 1, reusing ffmpeg's fmp4-flavored HLS muxer to get exact
// control over init/segment filenames (spec.md §4.5). start_ms accumulates
// across the stream so the timeline the manifest builder emits is
// contiguous from 0.
func runDASH(ctx context.Context, opts Options) (Result, error) {
	initPath := filepath.Join(opts.OutputDir, "init.mp4")
	segmentPattern := filepath.Join(opts.OutputDir, "segment-%d.m4s")
	playlistPath := filepath.Join(opts.OutputDir, "stream.m3u8")

	args := []string{"-y", "-i", opts.Source}
	args = append(args, encoderArgs(opts)...)
	args = append(args,
		"-f", "hls",
		"-hls_segment_type", "fmp4",
		"-hls_fmp4_init_filename", "init.mp4",
		"-hls_time", fmt.Sprintf("%d", opts.SegmentDuration),
		"-hls_playlist_type", "vod",
		"-hls_list_size", "0",
		"-start_number", "1",
		"-hls_segment_filename", segmentPattern,
		playlistPath,
	)

	if _, err := runFFmpegCapture(ctx, args, opts.Quality.Name, string(FormatDASH)); err != nil {
		return Result{}, err
	}

	entries, err := os.ReadDir(opts.OutputDir)
	if err != nil {
		return Result{}, vodpipeerrors.NewStorageUnavailableError(err)
	}
	var filenames []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".m4s") {
			filenames = append(filenames, e.Name())
		}
	}
	sort.Slice(filenames, func(i, j int) bool {
		return m4sNumber(filenames[i]) < m4sNumber(filenames[j])
	})

	segments := make([]video.SegmentDescriptor, 0, len(filenames))
	durationMs := int64(opts.SegmentDuration) * 1000
	var startMs int64
	for _, name := range filenames {
		segments = append(segments, video.SegmentDescriptor{
			Number:    m4sNumber(name),
			DurationMs: durationMs,
			StartMs:    startMs,
		})
		startMs += durationMs
	}
	return Result{Segments: segments, InitSegmentPath: initPath}, nil
}

func m4sNumber(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), ".m4s")
	idx := strings.LastIndex(base, "-")
	if idx < 0 {
		return 0
	}
	var n int
	fmt.Sscanf(base[idx+1:], "%d", &n)
	return n
}

func runFFmpegCapture(ctx context.Context, args []string, quality, format string) (string, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stderr.String(), vodpipeerrors.NewTranscodeFailedError(quality, format, stderr.String())
	}
	return stderr.String(), nil
}
