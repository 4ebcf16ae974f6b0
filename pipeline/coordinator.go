// Package pipeline implements the orchestrator (C8): the per-video state
// machine that drives a record from uploaded through ready/error, fanning
// the work out to the prober (C3), thumbnail generator (C4), transcoder
// (C5), and manifest builder (C6), and back through the storage facade
// (C2). It is grounded on the teacher's pipeline.Coordinator: the
// JobInfo/in-flight-cache bookkeeping, the panic-recovering async runner,
// and the single finishJob choke point for terminal-state side effects are
// all adapted from there, generalized from the teacher's pluggable
// Strategy/Handler pair (local ffmpeg vs. external transcode provider) down
// to the one local-ffmpeg LadderHandler this spec needs.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/streamforge/vodpipe/authz"
	"github.com/streamforge/vodpipe/cache"
	"github.com/streamforge/vodpipe/config"
	vodpipeerrors "github.com/streamforge/vodpipe/errors"
	"github.com/streamforge/vodpipe/events"
	"github.com/streamforge/vodpipe/log"
	"github.com/streamforge/vodpipe/metrics"
	"github.com/streamforge/vodpipe/storage"
	"github.com/streamforge/vodpipe/video"
)

// Job tracks one in-flight ProcessVideo call, the same shape the teacher's
// JobInfo plays for its async transcode jobs.
type Job struct {
	VideoID   string
	StartTime time.Time
}

// Coordinator owns the in-flight job cache and the per-video metadata lock,
// and drives Handler.Process through to a terminal status transition.
type Coordinator struct {
	Storage *storage.Facade
	Config  config.Config
	Events  events.Publisher
	Authz   authz.Provider
	Handler Handler

	jobs  *cache.Cache[*Job]
	locks *cache.Locker

	// ScratchRoot is the base directory staged source/intermediate files are
	// written under; each run gets its own "{id}-"-prefixed temporary
	// subdirectory (os.MkdirTemp), removed on completion.
	ScratchRoot string
}

// NewCoordinator wires a Coordinator with fresh bookkeeping structures.
func NewCoordinator(storageFacade *storage.Facade, cfg config.Config, pub events.Publisher, az authz.Provider, handler Handler, scratchRoot string) *Coordinator {
	return &Coordinator{
		Storage:     storageFacade,
		Config:      cfg,
		Events:      pub,
		Authz:       az,
		Handler:     handler,
		jobs:        cache.New[*Job](),
		locks:       cache.NewLocker(),
		ScratchRoot: scratchRoot,
	}
}

// Trigger starts processing videoID in the background (spec.md §4.8's
// async entry point) and returns immediately; the returned channel receives
// the terminal error (nil on success) once processing completes, mirroring
// the teacher's fire-and-forget-with-a-result-channel Strategy.Process
// shape. Triggering a video id that already has an in-flight job starts no
// second job; the returned channel immediately receives an "already
// processing" error.
func (c *Coordinator) Trigger(videoID string) <-chan error {
	result := make(chan error, 1)

	if existing := c.jobs.Get(videoID); existing != nil {
		result <- fmt.Errorf("video %s is already processing", videoID)
		return result
	}

	job := &Job{VideoID: videoID, StartTime: time.Now()}
	c.jobs.Store(videoID, job)
	metrics.Metrics.JobsInFlight.Set(float64(c.jobs.Len()))

	go c.runAsync(videoID, job, result)
	return result
}

// runAsync is the panic-recovering background runner, adapted from the
// teacher's recovered[T] helper: a processing panic becomes a regular
// terminal error instead of crashing the process.
func (c *Coordinator) runAsync(videoID string, job *Job, result chan<- error) {
	err := c.recovered(videoID)
	c.finishJob(videoID, job, err)
	result <- err
}

func (c *Coordinator) recovered(videoID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Log(videoID, "panic recovered in pipeline processing", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic processing video %s: %v", videoID, r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), c.Config.UpstreamTimeout*10)
	defer cancel()
	return c.ProcessVideo(ctx, videoID)
}

// finishJob is the single choke point for terminal-state bookkeeping: it
// removes the job from the in-flight cache, updates the gauge, and records
// the processing-time histogram, the same centralization the teacher's
// finishJob performs for its own job cache.
func (c *Coordinator) finishJob(videoID string, job *Job, err error) {
	c.jobs.Remove(videoID, videoID)
	metrics.Metrics.JobsInFlight.Set(float64(c.jobs.Len()))
	metrics.Metrics.ProcessingTime.Observe(time.Since(job.StartTime).Seconds())
	if err != nil {
		log.Log(videoID, "pipeline processing failed", "err", err)
	} else {
		log.Log(videoID, "pipeline processing finished")
	}
}

// ProcessVideo runs spec.md §4.8's full sequence synchronously: load and
// validate the record, transition to processing, run the Handler, then
// transition to ready or error and publish the terminal event. It is
// exported directly (in addition to Trigger) so callers that want to await
// the result in-line - tests, or a synchronous retry path - can do so
// without going through the channel.
func (c *Coordinator) ProcessVideo(ctx context.Context, videoID string) error {
	unlock := c.locks.Lock(videoID)
	record, err := c.Storage.GetMetadata(ctx, videoID)
	unlock()
	if err != nil {
		return err
	}

	if record.Status != video.StatusUploaded {
		return fmt.Errorf("video %s is not in uploaded status (got %s)", videoID, record.Status)
	}

	if err := c.transition(ctx, record, video.StatusProcessing); err != nil {
		return err
	}

	scratchDir, err := os.MkdirTemp(c.ScratchRoot, fmt.Sprintf("%s-*", videoID))
	if err != nil {
		processingErr := vodpipeerrors.NewStorageUnavailableError(err)
		c.fail(ctx, record, processingErr)
		return processingErr
	}
	defer os.RemoveAll(scratchDir)

	if c.checkCancel(record) {
		return c.cancelDuringProcessing(ctx, record)
	}

	handlerErr := c.Handler.Process(ctx, scratchDir, record)

	if c.checkCancel(record) {
		return c.cancelDuringProcessing(ctx, record)
	}

	if handlerErr != nil {
		c.fail(ctx, record, handlerErr)
		return handlerErr
	}

	return c.succeed(ctx, record)
}

// checkCancel re-reads cancel_requested from persisted metadata, the "mark
// and let finish" semantics of spec.md §9: cancellation is only observed
// between stages, never by interrupting a running subprocess.
func (c *Coordinator) checkCancel(record *video.Record) bool {
	unlock := c.locks.Lock(record.ID)
	defer unlock()
	latest, err := c.Storage.GetMetadata(context.Background(), record.ID)
	if err != nil {
		return false
	}
	record.CancelRequested = latest.CancelRequested
	return latest.CancelRequested
}

func (c *Coordinator) cancelDuringProcessing(ctx context.Context, record *video.Record) error {
	log.Log(record.ID, "cancellation observed between pipeline stages, deleting video")
	if err := c.Storage.DeleteVideo(ctx, record.ID); err != nil {
		return err
	}
	metrics.Metrics.StageOutcome.WithLabelValues("pipeline", "cancelled").Inc()
	return nil
}

func (c *Coordinator) transition(ctx context.Context, record *video.Record, to video.Status) error {
	unlock := c.locks.Lock(record.ID)
	defer unlock()
	if err := record.Transition(to); err != nil {
		return err
	}
	record.UpdatedAt = time.Now()
	return c.Storage.SaveMetadata(ctx, record)
}

// fail transitions the record to error, truncating the stored message
// (spec.md §4.8's error_message length bound) and publishing a failed
// VideoProcessed event.
func (c *Coordinator) fail(ctx context.Context, record *video.Record, procErr error) {
	unlock := c.locks.Lock(record.ID)
	msg := procErr.Error()
	const maxErrorMessageLen = 1024
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	record.ErrorMessage = msg
	if transErr := record.Transition(video.StatusError); transErr != nil {
		log.Log(record.ID, "cannot transition to error", "err", transErr)
		unlock()
		return
	}
	record.UpdatedAt = time.Now()
	saveErr := c.Storage.SaveMetadata(ctx, record)
	unlock()
	if saveErr != nil {
		log.Log(record.ID, "failed to persist error status", "err", saveErr)
	}

	kind := errorKind(procErr)
	metrics.Metrics.VideosErrored.WithLabelValues(kind).Inc()
	if pubErr := c.Events.Publish(ctx, events.TopicVideoEvents, events.VideoProcessed{
		EventType: events.EventTypeVideoProcessed,
		VideoID:   record.ID,
		Status:    string(video.StatusError),
		Error:     msg,
		Timestamp: time.Now(),
	}); pubErr != nil {
		log.Log(record.ID, "failed to publish video_processed event", "err", pubErr)
	}
}

// succeed finalizes presigned playback URLs, transitions to ready, and
// notifies the upload's owning collaborators (spec.md §4.8 steps 9-10).
func (c *Coordinator) succeed(ctx context.Context, record *video.Record) error {
	hlsURL, err := c.Storage.PresignHLS(ctx, record.ID, 0)
	if err != nil {
		c.fail(ctx, record, err)
		return err
	}
	dashURL, err := c.Storage.PresignDASH(ctx, record.ID, 0)
	if err != nil {
		c.fail(ctx, record, err)
		return err
	}

	unlock := c.locks.Lock(record.ID)
	record.HLSMasterURL = hlsURL
	record.DASHMpdURL = dashURL
	record.PlaybackURL = hlsURL
	if err := record.Transition(video.StatusReady); err != nil {
		unlock()
		c.fail(ctx, record, err)
		return err
	}
	record.UpdatedAt = time.Now()
	saveErr := c.Storage.SaveMetadata(ctx, record)
	unlock()
	if saveErr != nil {
		c.fail(ctx, record, saveErr)
		return saveErr
	}

	// Chunk scratch is no longer needed once the record is ready (spec.md
	// §4.9's chunk cleanup); a crash before this point leaves it for the
	// janitor to sweep.
	if err := c.Storage.DeleteChunks(ctx, record.ID); err != nil {
		log.Log(record.ID, "failed to delete upload chunks after success", "err", err)
	}

	metrics.Metrics.VideosReady.Inc()
	if pubErr := c.Events.Publish(ctx, events.TopicVideoEvents, events.VideoProcessed{
		EventType:   events.EventTypeVideoProcessed,
		VideoID:     record.ID,
		Status:      "success",
		PlaybackURL: record.PlaybackURL,
		Timestamp:   time.Now(),
	}); pubErr != nil {
		log.Log(record.ID, "failed to publish video_processed event", "err", pubErr)
	}

	owner := authz.User{ID: record.OwnerID, CompanyID: record.CompanyID}
	if err := c.Authz.NotifyVideoReady(ctx, authz.Video{ID: record.ID, OwnerID: record.OwnerID}, owner); err != nil {
		log.Log(record.ID, "notify video ready failed, proceeding anyway", "err", err)
	}

	return nil
}

func errorKind(err error) string {
	switch {
	case vodpipeerrors.IsStorageUnavailable(err):
		return "StorageUnavailableError"
	case vodpipeerrors.IsUpstreamTimeout(err):
		return "UpstreamTimeoutError"
	default:
		return fmt.Sprintf("%T", err)
	}
}

// NewScratchDir creates root if needed and returns a fresh, collision-free
// path (root/{uuid}) under it without going through ProcessVideo. The
// returned path itself is not created.
func NewScratchDir(root string) (string, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", err
	}
	return filepath.Join(root, uuid.NewString()), nil
}
