package video

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransitionHappyPath(t *testing.T) {
	steps := []Status{StatusPending, StatusUploading, StatusUploaded, StatusProcessing, StatusReady}
	for i := 1; i < len(steps); i++ {
		require.True(t, CanTransition(steps[i-1], steps[i]), "%s -> %s should be legal", steps[i-1], steps[i])
	}
}

func TestCanTransitionErrorAndRetry(t *testing.T) {
	require.True(t, CanTransition(StatusProcessing, StatusError))
	require.True(t, CanTransition(StatusError, StatusPending))
}

func TestCanTransitionRejectsBackEdges(t *testing.T) {
	require.False(t, CanTransition(StatusUploaded, StatusPending))
	require.False(t, CanTransition(StatusReady, StatusProcessing))
	require.False(t, CanTransition(StatusProcessing, StatusUploading))
}

func TestCanTransitionTerminalStatesHaveNoOutgoingEdgesExceptRetry(t *testing.T) {
	require.False(t, CanTransition(StatusReady, StatusError))
	require.False(t, CanTransition(StatusReady, StatusPending))
}

func TestRecordTransition(t *testing.T) {
	r := &Record{Status: StatusPending}
	require.NoError(t, r.Transition(StatusUploading))
	require.Equal(t, StatusUploading, r.Status)

	err := r.Transition(StatusReady)
	require.Error(t, err)
	require.Equal(t, StatusUploading, r.Status, "status must not change on a rejected transition")
}

func TestMarkChunkReceivedIsIdempotent(t *testing.T) {
	r := &Record{TotalChunks: 4}
	r.MarkChunkReceived(1)
	r.MarkChunkReceived(1)
	r.MarkChunkReceived(2)
	require.Equal(t, 2, r.ChunksReceived)
	require.Equal(t, 50, r.UploadProgress)
}

func TestRecomputeUploadProgressComplete(t *testing.T) {
	r := &Record{TotalChunks: 3}
	r.MarkChunkReceived(0)
	r.MarkChunkReceived(1)
	r.MarkChunkReceived(2)
	require.Equal(t, 3, r.ChunksReceived)
	require.Equal(t, 100, r.UploadProgress)
}
