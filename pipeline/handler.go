package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/streamforge/vodpipe/config"
	vodpipeerrors "github.com/streamforge/vodpipe/errors"
	"github.com/streamforge/vodpipe/log"
	"github.com/streamforge/vodpipe/manifest"
	"github.com/streamforge/vodpipe/metrics"
	"github.com/streamforge/vodpipe/storage"
	"github.com/streamforge/vodpipe/transcode"
	"github.com/streamforge/vodpipe/video"
)

// ThumbnailGenerator is the subset of thumbnail.Generator the orchestrator
// depends on (C4). Kept as an interface so handler.go can be unit tested
// without shelling out to ffmpeg, the same narrowing the teacher applies
// around its external toolchain wrappers.
type ThumbnailGenerator interface {
	GenerateStills(source, dir string, count int, durationSeconds float64) ([]string, error)
	GenerateAnimated(source, output string, durationSeconds, sourceDurationSeconds float64) error
	GeneratePoster(source, output string, durationSeconds float64) error
}

// Handler is the single processing-steps implementation the orchestrator
// drives (spec.md §4.8 steps 2-8). The interface is kept even though there
// is one concrete implementation (LadderHandler) so the orchestrator stays
// decoupled from the actual work, matching the teacher's own separation of
// Coordinator (state/bookkeeping) from Handler (the processing itself).
// SPEC_FULL.md §4.8: the teacher's multi-Strategy abstraction (ffmpeg vs.
// external transcode provider) is generalized to this one local
// ffmpeg-ladder handler, since the external-provider strategy has no
// analogue in this spec's scope.
type Handler interface {
	Process(ctx context.Context, scratchDir string, record *video.Record) error
}

// LadderHandler implements the local ffmpeg-ladder pipeline: probe, thumbs,
// fan-out transcode, manifest emission (spec.md §4.8 steps 2-8).
type LadderHandler struct {
	Storage *storage.Facade
	Config  config.Config
	Prober  video.Prober
	Thumbs  ThumbnailGenerator
	// Now stamps dynamic-mode manifest publishTime; defaults to time.Now.
	Now func() time.Time
}

func (h *LadderHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Process runs steps 2-8 of spec.md §4.8 against an already-staged record
// (status==processing, OutputPath set). It mutates record in place; the
// caller (Coordinator) is responsible for persisting it and handling the
// terminal transition.
func (h *LadderHandler) Process(ctx context.Context, scratchDir string, record *video.Record) error {
	sourcePath, err := h.stageSource(ctx, record, scratchDir)
	if err != nil {
		return err
	}

	probeResult, err := h.probe(ctx, sourcePath, record)
	if err != nil {
		return err
	}

	if err := h.generateThumbnails(ctx, sourcePath, record, probeResult); err != nil {
		return err
	}

	hlsVariants, dashVariants, err := h.transcodeLadder(ctx, sourcePath, scratchDir, record, probeResult)
	if err != nil {
		return err
	}

	if err := h.emitManifests(ctx, record, hlsVariants, dashVariants); err != nil {
		return err
	}

	return nil
}

// stageSource downloads record.OutputPath into the scratch directory
// (spec.md §4.8 step 2).
func (h *LadderHandler) stageSource(ctx context.Context, record *video.Record, scratchDir string) (string, error) {
	rc, err := h.Storage.GetFile(ctx, record.OutputPath)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	localPath := filepath.Join(scratchDir, filepath.Base(record.OutputPath))
	f, err := os.Create(localPath)
	if err != nil {
		return "", vodpipeerrors.NewStorageUnavailableError(err)
	}
	defer f.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return "", vodpipeerrors.NewStorageUnavailableError(err)
	}
	return localPath, nil
}

// probe runs C3 and copies its findings onto the record (spec.md §4.8
// step 3).
func (h *LadderHandler) probe(ctx context.Context, sourcePath string, record *video.Record) (video.ProbeResult, error) {
	start := time.Now()
	result, err := h.Prober.Probe(ctx, sourcePath)
	metrics.Metrics.StageDuration.WithLabelValues("probe").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Metrics.StageOutcome.WithLabelValues("probe", "error").Inc()
		return video.ProbeResult{}, err
	}
	metrics.Metrics.StageOutcome.WithLabelValues("probe", "success").Inc()

	record.DurationSeconds = result.DurationSeconds
	record.Width = result.Width
	record.Height = result.Height
	record.ContainerFormat = result.ContainerFormat
	record.VideoCodec = result.VideoCodec
	record.AudioCodec = result.AudioCodec
	record.BitrateBps = result.BitrateBps
	return result, nil
}

// generateThumbnails runs C4: stills uploaded to
// videos/{id}/thumbnails/thumbnail_{i}.jpg, the first copied to
// videos/{id}/thumbnail.jpg (spec.md §4.8 step 4).
func (h *LadderHandler) generateThumbnails(ctx context.Context, sourcePath string, record *video.Record, probe video.ProbeResult) error {
	start := time.Now()
	defer func() {
		metrics.Metrics.StageDuration.WithLabelValues("thumbnail").Observe(time.Since(start).Seconds())
	}()

	stillsDir := filepath.Join(filepath.Dir(sourcePath), "stills")
	paths, err := h.Thumbs.GenerateStills(sourcePath, stillsDir, 3, probe.DurationSeconds)
	if err != nil {
		metrics.Metrics.StageOutcome.WithLabelValues("thumbnail", "error").Inc()
		return err
	}

	for i, localPath := range paths {
		data, err := os.Open(localPath)
		if err != nil {
			metrics.Metrics.StageOutcome.WithLabelValues("thumbnail", "error").Inc()
			return vodpipeerrors.NewStorageUnavailableError(err)
		}
		objectPath := fmt.Sprintf("videos/%s/thumbnails/thumbnail_%d.jpg", record.ID, i)
		err = h.Storage.SaveFile(ctx, objectPath, data)
		data.Close()
		if err != nil {
			metrics.Metrics.StageOutcome.WithLabelValues("thumbnail", "error").Inc()
			return err
		}
		if i == 0 {
			first, err := os.Open(localPath)
			if err != nil {
				metrics.Metrics.StageOutcome.WithLabelValues("thumbnail", "error").Inc()
				return vodpipeerrors.NewStorageUnavailableError(err)
			}
			primaryPath := fmt.Sprintf("videos/%s/thumbnail.jpg", record.ID)
			err = h.Storage.SaveFile(ctx, primaryPath, first)
			first.Close()
			if err != nil {
				metrics.Metrics.StageOutcome.WithLabelValues("thumbnail", "error").Inc()
				return err
			}
			record.ThumbnailURL = primaryPath
		}
	}
	metrics.Metrics.StageOutcome.WithLabelValues("thumbnail", "success").Inc()
	return nil
}

// ladderRung is one (quality) entry surviving the upscale filter.
type ladderRung struct {
	quality config.QualityProfile
}

func (h *LadderHandler) eligibleLadder(probe video.ProbeResult) []ladderRung {
	var rungs []ladderRung
	for _, q := range h.Config.QualityProfiles {
		if h.Config.SkipUpscaling && probe.Width > 0 && probe.Height > 0 {
			if q.Width > probe.Width || q.Height > probe.Height {
				continue
			}
		}
		rungs = append(rungs, ladderRung{quality: q})
	}
	return rungs
}

// transcodeLadder fans out one transcoder invocation per (quality, format)
// pair concurrently, uploads the resulting segment files, and returns the
// per-quality manifest.Variant lists for HLS and DASH (spec.md §4.8 steps
// 5-6; SPEC_FULL.md §4.5's errgroup fan-out/fan-in).
func (h *LadderHandler) transcodeLadder(ctx context.Context, sourcePath, scratchDir string, record *video.Record, probe video.ProbeResult) ([]manifest.Variant, []manifest.Variant, error) {
	rungs := h.eligibleLadder(probe)
	if len(rungs) == 0 {
		return nil, nil, fmt.Errorf("transcode ladder: no quality profile fits source resolution %dx%d", probe.Width, probe.Height)
	}

	hlsVariants := make([]manifest.Variant, len(rungs))
	dashVariants := make([]manifest.Variant, len(rungs))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, rung := range rungs {
		i, rung := i, rung
		group.Go(func() error {
			hlsResult, err := h.runOne(groupCtx, sourcePath, scratchDir, record, rung.quality, transcode.FormatHLS, h.Config.HLSSegmentDurationSecs)
			if err != nil {
				return err
			}
			if err := h.uploadHLSSegments(groupCtx, record, rung.quality, scratchDir, hlsResult); err != nil {
				return err
			}
			hlsVariants[i] = manifest.Variant{Quality: rung.quality, Segments: hlsResult.Segments}
			return nil
		})
		group.Go(func() error {
			dashResult, err := h.runOne(groupCtx, sourcePath, scratchDir, record, rung.quality, transcode.FormatDASH, h.Config.DASHSegmentDurationSecs)
			if err != nil {
				return err
			}
			if err := h.uploadDASHSegments(groupCtx, record, rung.quality, dashResult); err != nil {
				return err
			}
			dashVariants[i] = manifest.Variant{Quality: rung.quality, Segments: dashResult.Segments}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}

	return hlsVariants, dashVariants, nil
}

func (h *LadderHandler) runOne(ctx context.Context, sourcePath, scratchDir string, record *video.Record, quality config.QualityProfile, format transcode.Format, segmentDuration int) (transcode.Result, error) {
	start := time.Now()
	outDir := filepath.Join(scratchDir, string(format), quality.Name)
	result, err := transcode.Run(ctx, transcode.Options{
		Source:          sourcePath,
		OutputDir:       outDir,
		Format:          format,
		Quality:         quality,
		SegmentDuration: segmentDuration,
		ThreadsPerJob:   h.Config.TranscoderThreadsPerJob,
		Prober:          h.Prober,
	})
	metrics.Metrics.TranscodeDuration.WithLabelValues(quality.Name, string(format)).Observe(time.Since(start).Seconds())
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.Metrics.StageOutcome.WithLabelValues("transcode", outcome).Inc()
	return result, err
}

func (h *LadderHandler) uploadHLSSegments(ctx context.Context, record *video.Record, quality config.QualityProfile, scratchDir string, result transcode.Result) error {
	dir := filepath.Join(scratchDir, string(transcode.FormatHLS), quality.Name)
	for _, seg := range result.Segments {
		f, err := os.Open(filepath.Join(dir, seg.Filename))
		if err != nil {
			return vodpipeerrors.NewStorageUnavailableError(err)
		}
		objectPath := fmt.Sprintf("videos/%s/hls/%s/%s", record.ID, quality.Name, seg.Filename)
		err = h.Storage.SaveFile(ctx, objectPath, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *LadderHandler) uploadDASHSegments(ctx context.Context, record *video.Record, quality config.QualityProfile, result transcode.Result) error {
	if result.InitSegmentPath != "" {
		f, err := os.Open(result.InitSegmentPath)
		if err != nil {
			return vodpipeerrors.NewStorageUnavailableError(err)
		}
		objectPath := fmt.Sprintf("videos/%s/dash/video_%s/init.mp4", record.ID, quality.Name)
		err = h.Storage.SaveFile(ctx, objectPath, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	dir := filepath.Dir(result.InitSegmentPath)
	for _, seg := range result.Segments {
		localPath := filepath.Join(dir, fmt.Sprintf("segment-%d.m4s", seg.Number))
		f, err := os.Open(localPath)
		if err != nil {
			return vodpipeerrors.NewStorageUnavailableError(err)
		}
		objectPath := fmt.Sprintf("videos/%s/dash/video_%s/segment-%d.m4s", record.ID, quality.Name, seg.Number)
		err = h.Storage.SaveFile(ctx, objectPath, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// emitManifests invokes C6 to build HLS master/variant playlists and the
// DASH MPD, then persists them (spec.md §4.8 step 7). Live vs. VOD emission
// follows record.ScheduleStrategy.
func (h *LadderHandler) emitManifests(ctx context.Context, record *video.Record, hlsVariants, dashVariants []manifest.Variant) error {
	start := time.Now()
	defer func() {
		metrics.Metrics.StageDuration.WithLabelValues("manifest").Observe(time.Since(start).Seconds())
	}()

	hlsVariants = nonNilVariants(hlsVariants)
	dashVariants = nonNilVariants(dashVariants)
	live := record.ScheduleStrategy == video.StrategyLive

	master, err := manifest.HLSMasterPlaylist(hlsVariants)
	if err != nil {
		metrics.Metrics.StageOutcome.WithLabelValues("manifest", "error").Inc()
		return err
	}
	masterPath := fmt.Sprintf("videos/%s/hls/master.m3u8", record.ID)
	if err := h.Storage.SaveFile(ctx, masterPath, strings.NewReader(master)); err != nil {
		metrics.Metrics.StageOutcome.WithLabelValues("manifest", "error").Inc()
		return err
	}

	for _, v := range hlsVariants {
		playlist, err := manifest.HLSVariantPlaylist(v.Segments, manifest.HLSVariantPlaylistOptions{Live: live})
		if err != nil {
			metrics.Metrics.StageOutcome.WithLabelValues("manifest", "error").Inc()
			return err
		}
		variantPath := fmt.Sprintf("videos/%s/hls/%s.m3u8", record.ID, v.Quality.Name)
		if err := h.Storage.SaveFile(ctx, variantPath, strings.NewReader(playlist)); err != nil {
			metrics.Metrics.StageOutcome.WithLabelValues("manifest", "error").Inc()
			return err
		}
	}

	mpd, err := manifest.DASHMPD(dashVariants, manifest.DASHMPDOptions{
		Live:            live,
		Now:             h.now(),
		DurationSeconds: record.DurationSeconds,
	})
	if err != nil {
		metrics.Metrics.StageOutcome.WithLabelValues("manifest", "error").Inc()
		return err
	}
	mpdPath := fmt.Sprintf("videos/%s/dash/manifest.mpd", record.ID)
	if err := h.Storage.SaveFile(ctx, mpdPath, bytes.NewReader(mpd)); err != nil {
		metrics.Metrics.StageOutcome.WithLabelValues("manifest", "error").Inc()
		return err
	}

	metrics.Metrics.StageOutcome.WithLabelValues("manifest", "success").Inc()
	log.Log(record.ID, "manifests emitted", "variants", len(hlsVariants))
	return nil
}

func nonNilVariants(variants []manifest.Variant) []manifest.Variant {
	out := make([]manifest.Variant, 0, len(variants))
	for _, v := range variants {
		if v.Quality.Name != "" {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Quality.Bandwidth() < out[j].Quality.Bandwidth() })
	return out
}
