// Package upload implements the chunked resumable upload coordinator (C7).
package upload

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/streamforge/vodpipe/cache"
	"github.com/streamforge/vodpipe/config"
	vodpipeerrors "github.com/streamforge/vodpipe/errors"
	"github.com/streamforge/vodpipe/events"
	"github.com/streamforge/vodpipe/log"
	"github.com/streamforge/vodpipe/metrics"
	"github.com/streamforge/vodpipe/storage"
	"github.com/streamforge/vodpipe/video"
)

// Coordinator owns the upload-half of a VideoRecord's lifecycle: ticket
// issuance, chunk receipt, and finalization into a composed source file
// (spec.md §4.7). Authentication/authorization happen in an external
// collaborator before any of these methods are called.
type Coordinator struct {
	Storage *storage.Facade
	Config  config.Config
	Events  events.Publisher

	// locks serializes the metadata read-modify-write cycle per video id
	// (spec.md §5's "per-id mutex keyed by video id").
	locks *cache.Locker
}

func NewCoordinator(facade *storage.Facade, cfg config.Config, publisher events.Publisher) *Coordinator {
	return &Coordinator{
		Storage: facade,
		Config:  cfg,
		Events:  publisher,
		locks:   cache.NewLocker(),
	}
}

// Initialize validates the upload request and creates a new pending
// VideoRecord, returning an UploadTicket (spec.md §4.7).
func (c *Coordinator) Initialize(ctx context.Context, filename string, size int64, contentType, title, description, ownerID, companyID string) (video.UploadTicket, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if !c.Config.IsAllowedFormat(ext) {
		return video.UploadTicket{}, vodpipeerrors.NewInvalidFormatError(ext)
	}

	id := uuid.NewString()
	now := time.Now()
	record := &video.Record{
		ID:          id,
		OwnerID:     ownerID,
		CompanyID:   companyID,
		Filename:    filename,
		ContentType: contentType,
		DeclaredSize: size,
		Title:       title,
		Description: description,
		Status:      video.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.Storage.SaveMetadata(ctx, record); err != nil {
		return video.UploadTicket{}, err
	}
	log.Log(id, "upload initialized", "owner", ownerID, "filename", filename)

	return video.UploadTicket{
		VideoID:        id,
		UploadEndpoint: fmt.Sprintf("videos/%s/chunks", id),
		ExpiresAt:      now.Add(c.Config.UploadTicketTTL),
	}, nil
}

// UploadChunk receives one chunk, enforcing owner, bounds, and monotonic
// total_chunks contracts (spec.md §4.7). When the chunk just received
// completes the set, it synchronously finalizes the upload.
func (c *Coordinator) UploadChunk(ctx context.Context, videoID string, chunkIndex, totalChunks int, data io.Reader, ownerID string) error {
	unlock := c.locks.Lock(videoID)
	unlocked := false
	defer func() {
		if !unlocked {
			unlock()
		}
	}()

	record, err := c.Storage.GetMetadata(ctx, videoID)
	if err != nil {
		return err
	}
	if record.OwnerID != ownerID {
		return vodpipeerrors.NewForbiddenError(videoID)
	}

	if record.TotalChunks == 0 {
		record.TotalChunks = totalChunks
	} else if record.TotalChunks != totalChunks {
		return vodpipeerrors.NewInvalidChunkCountError(totalChunks, record.TotalChunks)
	}
	if chunkIndex < 0 || chunkIndex >= record.TotalChunks {
		return vodpipeerrors.NewInvalidChunkIndexError(chunkIndex, record.TotalChunks)
	}

	if err := c.Storage.SaveChunk(ctx, videoID, chunkIndex, data); err != nil {
		return err
	}

	if record.Status == video.StatusPending {
		if err := record.Transition(video.StatusUploading); err != nil {
			return err
		}
	}
	record.MarkChunkReceived(chunkIndex)
	record.UpdatedAt = time.Now()
	if err := c.Storage.SaveMetadata(ctx, record); err != nil {
		return err
	}
	metrics.Metrics.UploadChunksReceived.Inc()
	log.Log(videoID, "chunk received", "index", chunkIndex, "received", record.ChunksReceived, "total", record.TotalChunks)

	if record.ChunksReceived == record.TotalChunks {
		unlock()
		unlocked = true
		return c.Finalize(ctx, videoID, ownerID)
	}
	return nil
}

// Finalize composes the received chunks into the record's source file and
// transitions the record to uploaded (spec.md §4.7).
func (c *Coordinator) Finalize(ctx context.Context, videoID, ownerID string) error {
	unlock := c.locks.Lock(videoID)
	defer unlock()

	record, err := c.Storage.GetMetadata(ctx, videoID)
	if err != nil {
		return err
	}
	if record.OwnerID != ownerID {
		return vodpipeerrors.NewForbiddenError(videoID)
	}
	if record.Status == video.StatusUploaded || record.Status == video.StatusProcessing || record.Status == video.StatusReady {
		// already finalized; idempotent no-op for a racing duplicate call.
		return nil
	}

	outputPath, err := c.Storage.ComposeChunks(ctx, videoID, record.Filename, record.TotalChunks)
	if err != nil {
		return err
	}

	record.OutputPath = outputPath
	if err := record.Transition(video.StatusUploaded); err != nil {
		return err
	}
	record.UpdatedAt = time.Now()
	if err := c.Storage.SaveMetadata(ctx, record); err != nil {
		return err
	}
	metrics.Metrics.UploadFinalized.Inc()
	log.Log(videoID, "upload finalized", "output_path", outputPath)

	if c.Events != nil {
		c.Events.Publish(ctx, events.TopicVideoEvents, events.VideoUploaded{
			EventType: events.EventTypeVideoUploaded,
			VideoID:   videoID,
			UserID:    ownerID,
			CompanyID: record.CompanyID,
			Timestamp: time.Now(),
		})
	}
	return nil
}

func (c *Coordinator) GetStatus(ctx context.Context, videoID, ownerID string) (*video.Record, error) {
	record, err := c.Storage.GetMetadata(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if record.OwnerID != ownerID {
		return nil, vodpipeerrors.NewForbiddenError(videoID)
	}
	return record, nil
}

// Cancel removes the video's entire videos/{id}/ prefix and its metadata.
// For a record mid-processing, deletion is deferred: CancelRequested is
// persisted instead, and the orchestrator (C8) observes it and performs the
// actual deletion once it reaches a safe point between stages ("mark and
// let finish", spec.md §9).
func (c *Coordinator) Cancel(ctx context.Context, videoID, ownerID string) error {
	unlock := c.locks.Lock(videoID)
	defer unlock()

	record, err := c.Storage.GetMetadata(ctx, videoID)
	if err != nil {
		return err
	}
	if record.OwnerID != ownerID {
		return vodpipeerrors.NewForbiddenError(videoID)
	}

	if record.Status == video.StatusProcessing {
		record.CancelRequested = true
		record.UpdatedAt = time.Now()
		return c.Storage.SaveMetadata(ctx, record)
	}
	return c.Storage.DeleteVideo(ctx, videoID)
}
