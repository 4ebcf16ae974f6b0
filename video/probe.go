package video

import (
	"bytes"
	"context"
	goerrors "errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	vodpipeerrors "github.com/streamforge/vodpipe/errors"
	"gopkg.in/vansante/go-ffprobe.v2"
)

// thresholds from spec.md §4.3.
const (
	silentMaxVolumeDB    = -90.0
	lowVolumeMaxVolumeDB = -20.0
	lowResolutionWidth   = 480
	lowResolutionHeight  = 360
	lowBitrateBps        = 500_000
	lowFrameRate         = 24.0
)

// ProbeResult is the output of probing a source file (spec.md §4.3).
type ProbeResult struct {
	DurationSeconds float64
	Width           int
	Height          int
	BitrateBps      int64
	SizeBytes       int64
	VideoCodec      string
	AudioCodec      string
	ContainerFormat string
	Issues          Issues
}

type Issues struct {
	Audio AudioIssues
	Video VideoIssues
}

type AudioIssues struct {
	Silent    bool
	LowVolume bool
	MaxVolume float64
}

type VideoIssues struct {
	LowResolution bool
	OddResolution bool
	LowBitrate    bool
	LowFrameRate  bool
}

// Prober wraps the external media toolchain (C3).
type Prober interface {
	Probe(ctx context.Context, sourcePath string) (ProbeResult, error)
}

// FFProbe is the default Prober, grounded on go-ffprobe.v2 with an
// exponential-backoff retry around the subprocess invocation.
type FFProbe struct {
	// AllowedContainerExtensions is consulted as a fallback for container
	// detection when the reported format name doesn't pattern-match any
	// known container (spec.md §4.3 step 3).
	AllowedContainerExtensions []string
}

func (p FFProbe) Probe(ctx context.Context, sourcePath string) (ProbeResult, error) {
	data, err := p.runProbe(ctx, sourcePath)
	if err != nil {
		return ProbeResult{}, vodpipeerrors.NewProbeFailedError(err.Error())
	}

	result, err := parseProbeOutput(data, sourcePath, p.AllowedContainerExtensions)
	if err != nil {
		return ProbeResult{}, vodpipeerrors.NewProbeFailedError(err.Error())
	}

	// Issue detection is best-effort; a failure here must never fail the
	// overall probe (spec.md §4.3 step 4).
	result.Issues = detectIssues(ctx, sourcePath, result)
	return result, nil
}

func (p FFProbe) runProbe(ctx context.Context, sourcePath string) (*ffprobe.ProbeData, error) {
	var data *ffprobe.ProbeData
	operation := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
		var err error
		data, err = ffprobe.ProbeURL(probeCtx, sourcePath, "-loglevel", "error")
		return err
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 2 * time.Second
	backOff.MaxElapsedTime = 0 // don't impose a timeout as part of the retries
	if err := backoff.Retry(operation, backoff.WithMaxRetries(backOff, 3)); err != nil {
		return nil, fmt.Errorf("error probing %s: %w", sourcePath, err)
	}
	return data, nil
}

func parseProbeOutput(probeData *ffprobe.ProbeData, sourcePath string, allowedExt []string) (ProbeResult, error) {
	if probeData.Format == nil {
		return ProbeResult{}, goerrors.New("error parsing input video: format information missing")
	}
	videoStream := probeData.FirstVideoStream()
	if videoStream == nil {
		return ProbeResult{}, goerrors.New("error checking for video: no video stream found")
	}

	size, err := strconv.ParseInt(probeData.Format.Size, 10, 64)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("error parsing filesize from probed data: %w", err)
	}

	duration := probeData.Format.DurationSeconds

	bitrate, err := computeBitrate(probeData, size, duration)
	if err != nil {
		return ProbeResult{}, err
	}

	container := detectContainer(probeData.Format.FormatName, sourcePath, allowedExt)

	audioStream := probeData.FirstAudioStream()
	var audioCodec string
	if audioStream != nil {
		audioCodec = audioStream.CodecName
	}

	return ProbeResult{
		DurationSeconds: duration,
		Width:           videoStream.Width,
		Height:          videoStream.Height,
		BitrateBps:      bitrate,
		SizeBytes:       size,
		VideoCodec:      videoStream.CodecName,
		AudioCodec:      audioCodec,
		ContainerFormat: container,
	}, nil
}

// computeBitrate implements spec.md §4.3 step 2: derive bitrate from size
// and duration when the container doesn't report one.
func computeBitrate(probeData *ffprobe.ProbeData, size int64, duration float64) (int64, error) {
	if probeData.Format.BitRate != "" {
		br, err := strconv.ParseInt(probeData.Format.BitRate, 10, 64)
		if err == nil {
			return br, nil
		}
	}
	if duration > 0 {
		return int64(float64(size) * 8 / duration), nil
	}
	return 0, nil
}

// containerPatterns maps a substring found in ffprobe's format_name to the
// canonical container name (spec.md §4.3 step 3).
var containerPatterns = []struct {
	pattern string
	name    string
}{
	{"mp4", "mp4"},
	{"matroska", "mkv"},
	{"webm", "webm"},
	{"quicktime", "mov"},
	{"mov", "mov"},
	{"mpegts", "ts"},
}

func detectContainer(formatName, sourcePath string, allowedExt []string) string {
	lower := strings.ToLower(formatName)
	for _, p := range containerPatterns {
		if strings.Contains(lower, p.pattern) {
			return p.name
		}
	}
	ext := strings.TrimPrefix(strings.ToLower(extOf(sourcePath)), ".")
	for _, allowed := range allowedExt {
		if strings.ToLower(allowed) == ext {
			return ext
		}
	}
	return "video"
}

func extOf(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	return path[idx:]
}

// detectIssues runs the best-effort issues pass described in spec.md §4.3.
// It never returns an error; a failed sub-check simply leaves the
// corresponding flag at its zero value.
func detectIssues(ctx context.Context, sourcePath string, probe ProbeResult) Issues {
	issues := Issues{
		Video: VideoIssues{
			LowResolution: probe.Width < lowResolutionWidth || probe.Height < lowResolutionHeight,
			OddResolution: probe.Width%2 != 0 || probe.Height%2 != 0,
			LowBitrate:    probe.BitrateBps > 0 && probe.BitrateBps < lowBitrateBps,
		},
	}

	if fps, err := probeFrameRate(ctx, sourcePath); err == nil {
		issues.Video.LowFrameRate = fps > 0 && fps < lowFrameRate
	}

	if maxVolume, err := probeMaxVolume(ctx, sourcePath); err == nil {
		issues.Audio.MaxVolume = maxVolume
		issues.Audio.Silent = maxVolume <= silentMaxVolumeDB
		issues.Audio.LowVolume = maxVolume < lowVolumeMaxVolumeDB
	}

	return issues
}

func probeFrameRate(ctx context.Context, sourcePath string) (float64, error) {
	data, err := ffprobe.ProbeURL(ctx, sourcePath, "-loglevel", "error")
	if err != nil {
		return 0, err
	}
	stream := data.FirstVideoStream()
	if stream == nil {
		return 0, goerrors.New("no video stream")
	}
	return parseFps(stream.AvgFrameRate)
}

// probeMaxVolume runs a short `ffmpeg -af volumedetect` pass, since ffprobe
// alone cannot measure loudness (SPEC_FULL.md §4.3).
func probeMaxVolume(ctx context.Context, sourcePath string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", sourcePath,
		"-af", "volumedetect",
		"-f", "null",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Errors here should never fail the overall probe (spec.md §4.3 step
	// 4); callers treat any error from this function as "no data
	// available", not fatal.
	_ = cmd.Run()

	return parseMaxVolume(stderr.String())
}

func parseMaxVolume(ffmpegOutput string) (float64, error) {
	const marker = "max_volume: "
	idx := strings.Index(ffmpegOutput, marker)
	if idx < 0 {
		return 0, goerrors.New("max_volume not found in ffmpeg output")
	}
	rest := ffmpegOutput[idx+len(marker):]
	end := strings.IndexAny(rest, " \n")
	if end < 0 {
		end = len(rest)
	}
	valueStr := strings.TrimSuffix(rest[:end], "dB")
	return strconv.ParseFloat(valueStr, 64)
}

func parseFps(framerate string) (float64, error) {
	if framerate == "" {
		return 0, nil
	}
	parts := strings.SplitN(framerate, "/", 2)
	if len(parts) < 2 {
		fps, err := strconv.ParseFloat(framerate, 64)
		if err != nil {
			return 0, fmt.Errorf("error parsing framerate: %w", err)
		}
		return fps, nil
	}
	num, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("error parsing framerate numerator: %w", err)
	}
	den, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("error parsing framerate denominator: %w", err)
	}
	if den == 0 {
		if num == 0 {
			return 0, nil
		}
		return 0, goerrors.New("invalid framerate denominator 0")
	}
	return float64(num) / float64(den), nil
}
