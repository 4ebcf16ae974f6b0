// Package thumbnail implements the thumbnail generator (C4): evenly spaced
// still frames, an animated preview clip, and an enhanced poster frame,
// grounded on the teacher's thumbnails.GenerateThumbs ffmpeg-go usage.
package thumbnail

import (
	"bytes"
	"fmt"
	"math"
	"os"

	vodpipeerrors "github.com/streamforge/vodpipe/errors"
	"github.com/streamforge/vodpipe/log"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// posterEnhanceFilter applies histogram equalization on luma, a mild
// contrast boost, and light sharpening (spec.md §4.4).
const posterEnhanceFilter = "histeq=strength=0.15,eq=contrast=1.08,unsharp=5:5:0.5"

// Generator wraps ffmpeg-go the same way the teacher's thumbnails package
// does, generalized to the full C4 contract.
type Generator struct{}

// GenerateStills extracts count frames evenly spaced across
// [0.1·duration, 0.9·duration]; for count == 1 it extracts a single frame
// at 0.25·duration (spec.md §4.4).
func (Generator) GenerateStills(source, dir string, count int, durationSeconds float64) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("generate_stills: count must be positive, got %d", count)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, vodpipeerrors.NewStorageUnavailableError(err)
	}

	positions := stillPositions(count, durationSeconds)
	paths := make([]string, 0, count)
	for i, pos := range positions {
		outPath := fmt.Sprintf("%s/thumbnail_%d.jpg", dir, i)
		if err := extractFrame(source, outPath, pos, ""); err != nil {
			return nil, err
		}
		paths = append(paths, outPath)
	}
	return paths, nil
}

func stillPositions(count int, durationSeconds float64) []float64 {
	if count == 1 {
		return []float64{0.25 * durationSeconds}
	}
	positions := make([]float64, count)
	const lo, hi = 0.1, 0.9
	step := (hi - lo) / float64(count-1)
	for i := 0; i < count; i++ {
		positions[i] = (lo + step*float64(i)) * durationSeconds
	}
	return positions
}

// GenerateAnimated produces a short animated preview clip starting at
// 0.25·duration, clamped so start+duration never exceeds the source's
// duration; 10 fps, width 320, height computed to preserve aspect ratio
// (spec.md §4.4).
func (Generator) GenerateAnimated(source, output string, durationSeconds, sourceDurationSeconds float64) error {
	start := 0.25 * sourceDurationSeconds
	if start+durationSeconds > sourceDurationSeconds {
		start = math.Max(0, sourceDurationSeconds-durationSeconds)
	}

	var ffmpegErr bytes.Buffer
	err := ffmpeg.
		Input(source, ffmpeg.KwArgs{"ss": fmt.Sprintf("%.3f", start)}).
		Output(output, ffmpeg.KwArgs{
			"t":  fmt.Sprintf("%.3f", durationSeconds),
			"vf": "fps=10,scale=320:-1:flags=lanczos",
		}).
		OverWriteOutput().WithErrorOutput(&ffmpegErr).Run()
	if err != nil {
		return fmt.Errorf("generate_animated: ffmpeg failed [%s]: %w", ffmpegErr.String(), err)
	}
	return nil
}

// GeneratePoster extracts a single frame at 0.30·duration at the highest
// quality setting, with a light enhancement pass. A failure in the
// enhancement filter falls back to the raw extracted frame rather than
// failing the stage (spec.md §4.4).
func (Generator) GeneratePoster(source, output string, durationSeconds float64) error {
	pos := 0.30 * durationSeconds
	if err := extractFrame(source, output, pos, posterEnhanceFilter); err != nil {
		log.LogNoRequestID("poster enhancement failed, falling back to raw frame", "source", source, "err", err)
		return extractFrame(source, output, pos, "")
	}
	return nil
}

func extractFrame(source, output string, positionSeconds float64, filter string) error {
	kwargs := ffmpeg.KwArgs{
		"ss":      fmt.Sprintf("%.3f", positionSeconds),
		"vframes": "1",
		"q:v":     "2", // highest JPEG quality setting for ffmpeg's mjpeg encoder
	}
	if filter != "" {
		kwargs["vf"] = filter
	}

	var ffmpegErr bytes.Buffer
	err := ffmpeg.
		Input(source).
		Output(output, kwargs).
		OverWriteOutput().WithErrorOutput(&ffmpegErr).Run()
	if err != nil {
		return fmt.Errorf("error extracting frame at %.3fs [%s]: %w", positionSeconds, ffmpegErr.String(), err)
	}
	return nil
}
