// Package janitor implements the periodic maintenance sweeps (C9): stall
// recovery for processing records that ran past their deadline, expiration
// purge for old terminal records, an orphan sweep for storage prefixes that
// outlived their metadata document, cleanup of abandoned incomplete
// uploads, and removal of leftover chunks of ready records. It is grounded on the teacher pack's scheduler package
// (jmylchreest-tvarr's internal/scheduler), adapted from its DB-backed
// per-job-type cron registration down to direct in-process sweep functions,
// since this domain has no job-repository layer to drive from.
package janitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"

	"github.com/streamforge/vodpipe/config"
	vodpipeerrors "github.com/streamforge/vodpipe/errors"
	"github.com/streamforge/vodpipe/log"
	"github.com/streamforge/vodpipe/metrics"
	"github.com/streamforge/vodpipe/storage"
	"github.com/streamforge/vodpipe/video"
)

const (
	jobStallRecovery   = "stall_recovery"
	jobExpiredPurge    = "expired_purge"
	jobOrphanSweep     = "orphan_sweep"
	jobChunkCleanup    = "chunk_cleanup"
	jobReadyChunkSweep = "ready_chunk_sweep"
)

// Default sweep cadences. These are independent of one another by design
// (spec.md §4.9: each sweep is isolated and best-effort), so a slow or
// panicking job never delays the others.
const (
	stallRecoverySchedule   = "@every 15m"
	expiredPurgeSchedule    = "@every 1h"
	orphanSweepSchedule     = "@every 1h"
	chunkCleanupSchedule    = "@every 15m"
	readyChunkSweepSchedule = "@every 1h"
)

// Janitor owns the cron scheduler and runs the five maintenance sweeps
// against the storage facade.
type Janitor struct {
	Storage *storage.Facade
	Config  config.Config
	Clock   clock.Clock

	cron *cron.Cron
}

// New wires a Janitor with a cron.Recover-wrapped scheduler, so a panic in
// one sweep is logged and contained rather than crashing the process or
// skipping the job's future runs, mirroring the teacher pack's
// cron.WithChain(cron.Recover(cron.DefaultLogger)) setup.
func New(storageFacade *storage.Facade, cfg config.Config) *Janitor {
	return &Janitor{
		Storage: storageFacade,
		Config:  cfg,
		Clock:   clock.New(),
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

// Start registers all five sweeps on their independent schedules and starts
// the scheduler's background goroutine. It is not safe to call twice.
func (j *Janitor) Start() error {
	jobs := []struct {
		schedule string
		name     string
		run      func(context.Context) (int, error)
	}{
		{stallRecoverySchedule, jobStallRecovery, j.RecoverStalledVideos},
		{expiredPurgeSchedule, jobExpiredPurge, j.PurgeExpiredVideos},
		{orphanSweepSchedule, jobOrphanSweep, j.SweepOrphanedPrefixes},
		{chunkCleanupSchedule, jobChunkCleanup, j.SweepAbandonedUploads},
		{readyChunkSweepSchedule, jobReadyChunkSweep, j.SweepReadyChunks},
	}

	for _, job := range jobs {
		job := job
		if _, err := j.cron.AddFunc(job.schedule, func() {
			j.runSweep(job.name, job.run)
		}); err != nil {
			return err
		}
	}
	j.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) runSweep(name string, run func(context.Context) (int, error)) {
	affected, err := run(context.Background())
	outcome := "success"
	if err != nil {
		outcome = "error"
		log.LogNoRequestID("janitor sweep failed", "job", name, "err", err)
	}
	metrics.Metrics.JanitorSweeps.WithLabelValues(name, outcome).Inc()
	if affected > 0 {
		metrics.Metrics.JanitorRecordsAffected.WithLabelValues(name).Add(float64(affected))
		log.LogNoRequestID("janitor sweep affected records", "job", name, "count", affected)
	}
}

// RecoverStalledVideos transitions any record stuck in processing past
// Config.StallThreshold to error and deletes its partial hls/ and dash/
// output, so it surfaces to a human or an explicit retry (error -> pending)
// instead of sitting in limbo forever with half-written manifests (spec.md
// §4.9, §3, §8 scenario 4).
func (j *Janitor) RecoverStalledVideos(ctx context.Context) (int, error) {
	cutoff := j.Clock.Now().Add(-j.Config.StallThreshold())
	var affected int
	var firstErr error

	err := j.Storage.ListVideos(ctx, storage.VideoFilter{Status: video.StatusProcessing}, 0, 0, func(record *video.Record) bool {
		if record.UpdatedAt.After(cutoff) {
			return true
		}
		record.ErrorMessage = "processing stalled: exceeded stall deadline"
		if err := record.Transition(video.StatusError); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return true
		}
		if err := j.Storage.Processed.DeletePrefix(ctx, fmt.Sprintf("videos/%s/hls/", record.ID)); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return true
		}
		if err := j.Storage.Processed.DeletePrefix(ctx, fmt.Sprintf("videos/%s/dash/", record.ID)); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return true
		}
		record.UpdatedAt = j.Clock.Now()
		if err := j.Storage.SaveMetadata(ctx, record); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return true
		}
		affected++
		return true
	})
	if err != nil {
		return affected, err
	}
	return affected, firstErr
}

// PurgeExpiredVideos deletes every terminal (ready or error) record whose
// last update is older than Config.ExpirationThreshold (spec.md §4.9).
func (j *Janitor) PurgeExpiredVideos(ctx context.Context) (int, error) {
	cutoff := j.Clock.Now().Add(-j.Config.ExpirationThreshold())
	var affected int
	var firstErr error

	for _, status := range []video.Status{video.StatusReady, video.StatusError} {
		err := j.Storage.ListVideos(ctx, storage.VideoFilter{Status: status}, 0, 0, func(record *video.Record) bool {
			if record.UpdatedAt.After(cutoff) {
				return true
			}
			if err := j.Storage.DeleteVideo(ctx, record.ID); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return true
			}
			affected++
			return true
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return affected, firstErr
}

// SweepOrphanedPrefixes deletes any videos/{id}/ storage prefix that no
// longer has a corresponding metadata document - the product of a crash
// between composing a source and writing its final metadata, or of a
// partial DeleteVideo that removed metadata but not every file (spec.md
// §4.9's orphan sweep).
func (j *Janitor) SweepOrphanedPrefixes(ctx context.Context) (int, error) {
	ids, err := j.listVideoIDs(ctx)
	if err != nil {
		return 0, err
	}

	var affected int
	var firstErr error
	for _, id := range ids {
		_, err := j.Storage.GetMetadata(ctx, id)
		if err == nil {
			continue
		}
		if !vodpipeerrors.IsNotFound(err) {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := j.Storage.DeleteVideo(ctx, id); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		affected++
	}
	return affected, firstErr
}

// listVideoIDs lists the top-level ids under videos/ across both the raw
// and processed backends, deduplicated.
func (j *Janitor) listVideoIDs(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var ids []string

	for _, backend := range []storage.Backend{j.Storage.Raw, j.Storage.Processed} {
		listing, err := backend.List(ctx, "videos/", "/")
		if err != nil {
			return nil, err
		}
		for _, prefix := range listing.CommonPrefixes {
			trimmed := strings.TrimSuffix(strings.TrimPrefix(prefix, "videos/"), "/")
			if trimmed == "" || seen[trimmed] {
				continue
			}
			seen[trimmed] = true
			ids = append(ids, trimmed)
		}
	}
	return ids, nil
}

// SweepReadyChunks deletes leftover videos/{id}/chunks/ prefixes for
// records that already reached ready. The orchestrator deletes chunk
// scratch itself on success; this sweep only covers the gap left by a
// crash between manifest emission and that cleanup step (spec.md §4.9).
func (j *Janitor) SweepReadyChunks(ctx context.Context) (int, error) {
	var affected int
	var firstErr error

	err := j.Storage.ListVideos(ctx, storage.VideoFilter{Status: video.StatusReady}, 0, 0, func(record *video.Record) bool {
		// DeleteChunks (DeletePrefix underneath) is idempotent: a
		// record whose chunks were already cleaned up by the
		// orchestrator costs one no-op delete here.
		if err := j.Storage.DeleteChunks(ctx, record.ID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return true
		}
		affected++
		return true
	})
	if err != nil && firstErr == nil {
		firstErr = err
	}
	return affected, firstErr
}

// SweepAbandonedUploads deletes pending/uploading records whose chunks have
// not advanced past Config.StallThreshold, reusing the same staleness
// window the stall-recovery sweep uses for in-flight processing (spec.md
// §4.9's chunk cleanup).
func (j *Janitor) SweepAbandonedUploads(ctx context.Context) (int, error) {
	cutoff := j.Clock.Now().Add(-j.Config.StallThreshold())
	var affected int
	var firstErr error

	for _, status := range []video.Status{video.StatusPending, video.StatusUploading} {
		err := j.Storage.ListVideos(ctx, storage.VideoFilter{Status: status}, 0, 0, func(record *video.Record) bool {
			if record.UpdatedAt.After(cutoff) {
				return true
			}
			if err := j.Storage.DeleteVideo(ctx, record.ID); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return true
			}
			affected++
			return true
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return affected, firstErr
}
