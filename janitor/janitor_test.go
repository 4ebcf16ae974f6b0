package janitor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/streamforge/vodpipe/config"
	"github.com/streamforge/vodpipe/storage"
	"github.com/streamforge/vodpipe/video"
)

func newTestJanitor(t *testing.T) (*Janitor, *storage.Facade, *clock.Mock) {
	t.Helper()
	raw := storage.NewLocalBackend(t.TempDir(), "/raw")
	processed := storage.NewLocalBackend(t.TempDir(), "/processed")
	facade := storage.NewFacade(raw, processed)

	mockClock := clock.NewMock()
	mockClock.Set(time.Now())

	cfg := config.NewDefaultConfig()
	j := New(facade, cfg)
	j.Clock = mockClock
	return j, facade, mockClock
}

func seedRecord(t *testing.T, facade *storage.Facade, id string, status video.Status, updatedAt time.Time) {
	t.Helper()
	record := &video.Record{
		ID:        id,
		OwnerID:   "owner-1",
		Filename:  "source.mp4",
		Status:    status,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
	require.NoError(t, facade.SaveMetadata(context.Background(), record))
}

// TestRecoverStalledVideosMarksOnlyExpiredProcessingRecords is the "stall
// recovery" scenario: a processing record whose last update is older than
// the stall threshold gets moved to error; one updated recently is left
// alone.
func TestRecoverStalledVideosMarksOnlyExpiredProcessingRecords(t *testing.T) {
	j, facade, mockClock := newTestJanitor(t)
	now := mockClock.Now()

	seedRecord(t, facade, "stalled", video.StatusProcessing, now.Add(-5*time.Hour))
	seedRecord(t, facade, "fresh", video.StatusProcessing, now.Add(-time.Minute))

	require.NoError(t, facade.SaveFile(context.Background(), "videos/stalled/hls/master.m3u8", strings.NewReader("#EXTM3U")))
	require.NoError(t, facade.SaveFile(context.Background(), "videos/stalled/dash/manifest.mpd", strings.NewReader("<MPD/>")))

	affected, err := j.RecoverStalledVideos(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, affected)

	stalled, err := facade.GetMetadata(context.Background(), "stalled")
	require.NoError(t, err)
	require.Equal(t, video.StatusError, stalled.Status)
	require.Contains(t, stalled.ErrorMessage, "stalled")

	hlsExists, err := facade.FileExists(context.Background(), "videos/stalled/hls/master.m3u8")
	require.NoError(t, err)
	require.False(t, hlsExists, "partial hls/ output must be deleted on stall recovery")

	dashExists, err := facade.FileExists(context.Background(), "videos/stalled/dash/manifest.mpd")
	require.NoError(t, err)
	require.False(t, dashExists, "partial dash/ output must be deleted on stall recovery")

	fresh, err := facade.GetMetadata(context.Background(), "fresh")
	require.NoError(t, err)
	require.Equal(t, video.StatusProcessing, fresh.Status)
}

func TestPurgeExpiredVideosDeletesOldTerminalRecordsOnly(t *testing.T) {
	j, facade, mockClock := newTestJanitor(t)
	now := mockClock.Now()

	seedRecord(t, facade, "old-ready", video.StatusReady, now.Add(-31*24*time.Hour))
	seedRecord(t, facade, "recent-ready", video.StatusReady, now.Add(-time.Hour))

	affected, err := j.PurgeExpiredVideos(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, affected)

	_, err = facade.GetMetadata(context.Background(), "old-ready")
	require.Error(t, err)

	_, err = facade.GetMetadata(context.Background(), "recent-ready")
	require.NoError(t, err)
}

func TestSweepOrphanedPrefixesRemovesFilesWithNoMetadata(t *testing.T) {
	j, facade, _ := newTestJanitor(t)

	require.NoError(t, facade.SaveFile(context.Background(), "videos/orphan-1/source.mp4", strings.NewReader("data")))
	seedRecord(t, facade, "has-metadata", video.StatusReady, time.Now())
	require.NoError(t, facade.SaveFile(context.Background(), "videos/has-metadata/hls/master.m3u8", strings.NewReader("#EXTM3U")))

	affected, err := j.SweepOrphanedPrefixes(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, affected)

	exists, err := facade.FileExists(context.Background(), "videos/orphan-1/source.mp4")
	require.NoError(t, err)
	require.False(t, exists)

	exists, err = facade.FileExists(context.Background(), "videos/has-metadata/hls/master.m3u8")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestSweepReadyChunksDeletesLeftoverChunkScratch(t *testing.T) {
	j, facade, _ := newTestJanitor(t)

	seedRecord(t, facade, "ready-1", video.StatusReady, time.Now())
	require.NoError(t, facade.SaveChunk(context.Background(), "ready-1", 0, strings.NewReader("chunk")))

	affected, err := j.SweepReadyChunks(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, affected)

	exists, err := facade.FileExists(context.Background(), "videos/ready-1/chunks/chunk_0")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestSweepAbandonedUploadsDeletesStaleIncompleteUploads(t *testing.T) {
	j, facade, mockClock := newTestJanitor(t)
	now := mockClock.Now()

	seedRecord(t, facade, "abandoned", video.StatusUploading, now.Add(-5*time.Hour))
	seedRecord(t, facade, "in-progress", video.StatusUploading, now.Add(-time.Minute))

	affected, err := j.SweepAbandonedUploads(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, affected)

	_, err = facade.GetMetadata(context.Background(), "abandoned")
	require.Error(t, err)

	_, err = facade.GetMetadata(context.Background(), "in-progress")
	require.NoError(t, err)
}
