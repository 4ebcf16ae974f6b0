package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	vodpipeerrors "github.com/streamforge/vodpipe/errors"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *LocalBackend {
	dir := t.TempDir()
	return NewLocalBackend(dir, "/files")
}

func TestLocalBackendPutGet(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "a/b.txt", bytes.NewReader([]byte("hello")), "text/plain"))

	rc, err := b.Get(ctx, "a/b.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestLocalBackendGetMissingIsNotFound(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Get(context.Background(), "missing.txt")
	require.True(t, vodpipeerrors.IsNotFound(err))
}

func TestLocalBackendDeleteIsIdempotent(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Delete(ctx, "never-existed.txt"))
	require.NoError(t, b.Put(ctx, "x.txt", bytes.NewReader([]byte("x")), "text/plain"))
	require.NoError(t, b.Delete(ctx, "x.txt"))
	require.NoError(t, b.Delete(ctx, "x.txt"))
}

func TestLocalBackendComposeConcatenatesInOrder(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "chunk_0", bytes.NewReader([]byte("AAA")), ""))
	require.NoError(t, b.Put(ctx, "chunk_1", bytes.NewReader([]byte("BBB")), ""))
	require.NoError(t, b.Put(ctx, "chunk_2", bytes.NewReader([]byte("CCC")), ""))

	err := b.Compose(ctx, "out.bin", []string{"chunk_0", "chunk_1", "chunk_2"})
	require.NoError(t, err)

	rc, err := b.Get(ctx, "out.bin")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "AAABBBCCC", string(data))
}

func TestLocalBackendComposeMissingPartFailsWithoutCreatingOutput(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "chunk_0", bytes.NewReader([]byte("AAA")), ""))

	err := b.Compose(ctx, "out.bin", []string{"chunk_0", "chunk_1"})
	require.True(t, vodpipeerrors.IsNotFound(err))

	exists, err := b.Exists(ctx, "out.bin")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestLocalBackendPresignReturnsRelativeRoute(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "videos/v1/hls/master.m3u8", bytes.NewReader([]byte("#EXTM3U")), ""))

	url, err := b.Presign(ctx, "videos/v1/hls/master.m3u8", time.Hour)
	require.NoError(t, err)
	require.Equal(t, "/files/videos/v1/hls/master.m3u8", url)
}

func TestLocalBackendPresignMissingIsNotFound(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Presign(context.Background(), "missing.m3u8", time.Hour)
	require.True(t, vodpipeerrors.IsNotFound(err))
}

func TestLocalBackendListPartitionsByDelimiter(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "videos/v1/hls/master.m3u8", bytes.NewReader([]byte("x")), ""))
	require.NoError(t, b.Put(ctx, "videos/v1/hls/240p.m3u8", bytes.NewReader([]byte("x")), ""))
	require.NoError(t, b.Put(ctx, "videos/v1/hls/240p/segment_000.ts", bytes.NewReader([]byte("x")), ""))

	listing, err := b.List(ctx, "videos/v1/hls/", "/")
	require.NoError(t, err)
	require.Len(t, listing.Files, 2)
	require.Contains(t, listing.CommonPrefixes, "videos/v1/hls/240p/")
}

func TestLocalBackendDeletePrefixRemovesTree(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "videos/v1/a.txt", bytes.NewReader([]byte("x")), ""))
	require.NoError(t, b.Put(ctx, "videos/v1/nested/b.txt", bytes.NewReader([]byte("x")), ""))

	require.NoError(t, b.DeletePrefix(ctx, "videos/v1/"))

	_, err := os.Stat(filepath.Join(b.BaseDir, "videos", "v1"))
	require.True(t, os.IsNotExist(err))
}
