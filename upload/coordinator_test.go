package upload

import (
	"bytes"
	"context"
	"testing"

	"github.com/streamforge/vodpipe/config"
	vodpipeerrors "github.com/streamforge/vodpipe/errors"
	"github.com/streamforge/vodpipe/events"
	"github.com/streamforge/vodpipe/storage"
	"github.com/streamforge/vodpipe/video"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *events.RecordingPublisher) {
	raw := storage.NewLocalBackend(t.TempDir(), "/raw")
	processed := storage.NewLocalBackend(t.TempDir(), "/processed")
	facade := storage.NewFacade(raw, processed)
	pub := &events.RecordingPublisher{}
	return NewCoordinator(facade, config.NewDefaultConfig(), pub), pub
}

func TestInitializeRejectsDisallowedFormat(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, err := c.Initialize(context.Background(), "movie.xyz", 100, "application/octet-stream", "t", "d", "owner1", "")
	require.True(t, func() bool { _, ok := err.(vodpipeerrors.InvalidFormatError); return ok }())
}

func TestInitializeCreatesPendingRecord(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ticket, err := c.Initialize(context.Background(), "movie.mp4", 100, "video/mp4", "t", "d", "owner1", "co1")
	require.NoError(t, err)
	require.NotEmpty(t, ticket.VideoID)

	rec, err := c.GetStatus(context.Background(), ticket.VideoID, "owner1")
	require.NoError(t, err)
	require.Equal(t, video.StatusPending, rec.Status)
	require.Equal(t, 0, rec.TotalChunks)
}

func TestUploadChunkWrongOwnerIsForbidden(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ticket, err := c.Initialize(context.Background(), "movie.mp4", 100, "video/mp4", "", "", "owner1", "")
	require.NoError(t, err)

	err = c.UploadChunk(context.Background(), ticket.VideoID, 0, 2, bytes.NewReader([]byte("x")), "someone-else")
	require.True(t, vodpipeerrors.IsForbidden(err))
}

func TestUploadChunkRejectsInconsistentTotal(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ticket, err := c.Initialize(context.Background(), "movie.mp4", 100, "video/mp4", "", "", "owner1", "")
	require.NoError(t, err)

	require.NoError(t, c.UploadChunk(context.Background(), ticket.VideoID, 0, 2, bytes.NewReader([]byte("a")), "owner1"))
	err = c.UploadChunk(context.Background(), ticket.VideoID, 1, 3, bytes.NewReader([]byte("b")), "owner1")
	require.Error(t, err)
	_, ok := err.(vodpipeerrors.InvalidChunkCountError)
	require.True(t, ok)
}

func TestUploadChunkRejectsOutOfBoundsIndex(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ticket, err := c.Initialize(context.Background(), "movie.mp4", 100, "video/mp4", "", "", "owner1", "")
	require.NoError(t, err)

	err = c.UploadChunk(context.Background(), ticket.VideoID, 5, 2, bytes.NewReader([]byte("a")), "owner1")
	require.Error(t, err)
	_, ok := err.(vodpipeerrors.InvalidChunkIndexError)
	require.True(t, ok)
}

func TestUploadChunkDuplicateDoesNotDoubleCount(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ticket, err := c.Initialize(context.Background(), "movie.mp4", 100, "video/mp4", "", "", "owner1", "")
	require.NoError(t, err)

	require.NoError(t, c.UploadChunk(context.Background(), ticket.VideoID, 0, 3, bytes.NewReader([]byte("a")), "owner1"))
	require.NoError(t, c.UploadChunk(context.Background(), ticket.VideoID, 0, 3, bytes.NewReader([]byte("a-again")), "owner1"))

	rec, err := c.GetStatus(context.Background(), ticket.VideoID, "owner1")
	require.NoError(t, err)
	require.Equal(t, 1, rec.ChunksReceived)
}

func TestFullUploadAutoFinalizesAndPublishes(t *testing.T) {
	c, pub := newTestCoordinator(t)
	ticket, err := c.Initialize(context.Background(), "movie.mp4", 6, "video/mp4", "", "", "owner1", "co1")
	require.NoError(t, err)

	require.NoError(t, c.UploadChunk(context.Background(), ticket.VideoID, 0, 2, bytes.NewReader([]byte("AAA")), "owner1"))
	require.NoError(t, c.UploadChunk(context.Background(), ticket.VideoID, 1, 2, bytes.NewReader([]byte("BBB")), "owner1"))

	rec, err := c.GetStatus(context.Background(), ticket.VideoID, "owner1")
	require.NoError(t, err)
	require.Equal(t, video.StatusUploaded, rec.Status)
	require.NotEmpty(t, rec.OutputPath)
	require.Len(t, pub.Published, 1)
	require.Equal(t, events.TopicVideoEvents, pub.Published[0].Topic)
}

func TestCancelDeletesEverything(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ticket, err := c.Initialize(context.Background(), "movie.mp4", 100, "video/mp4", "", "", "owner1", "")
	require.NoError(t, err)
	require.NoError(t, c.UploadChunk(context.Background(), ticket.VideoID, 0, 2, bytes.NewReader([]byte("a")), "owner1"))

	require.NoError(t, c.Cancel(context.Background(), ticket.VideoID, "owner1"))

	_, err = c.GetStatus(context.Background(), ticket.VideoID, "owner1")
	require.True(t, vodpipeerrors.IsNotFound(err))
}
