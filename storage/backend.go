// Package storage implements the storage backend contract (C1) and the
// video-semantic facade layered over it (C2), per spec.md §4.1/§4.2.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"
)

// Entry is one leaf object returned by List.
type Entry struct {
	Key  string
	Size int64
}

// Listing partitions a List result into leaf files and, when a delimiter
// was given, the common prefixes "below" it (spec.md §4.1).
type Listing struct {
	Files          []Entry
	CommonPrefixes []string
}

// Backend is the primitive contract C1 specifies, identical across the
// local filesystem and cloud object store implementations. Errors are
// translated to the errors package's NotFoundError/StorageUnavailableError
// at this boundary so callers never see backend-specific error types
// (spec.md §9).
type Backend interface {
	Put(ctx context.Context, objectPath string, data io.Reader, contentType string) error
	Get(ctx context.Context, objectPath string) (io.ReadCloser, error)
	// Delete is idempotent: deleting a missing object is success.
	Delete(ctx context.Context, objectPath string) error
	// DeletePrefix recursively deletes everything under prefix; a missing
	// prefix is success.
	DeletePrefix(ctx context.Context, prefix string) error
	List(ctx context.Context, prefix string, delimiter string) (Listing, error)
	Exists(ctx context.Context, objectPath string) (bool, error)
	Presign(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
	// Compose atomically creates output as the ordered concatenation of
	// parts. If any part is missing, it fails with a NotFoundError and
	// does not create output.
	Compose(ctx context.Context, output string, parts []string) error
}

// ContentTypeForPath infers a content type from a path's extension
// (spec.md §4.1).
func ContentTypeForPath(objectPath string) string {
	switch strings.ToLower(path.Ext(objectPath)) {
	case ".ts":
		return "video/mp2t"
	case ".m4s", ".mp4":
		return "video/mp4"
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".mpd":
		return "application/dash+xml"
	case ".json":
		return "application/json"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// IsProcessedPath implements the routing rule from spec.md §4.1: paths
// matching videos/*/processed/* or any variant/DASH/HLS artifact go to the
// processed bucket/root; everything else goes to raw. Only the facade (C2)
// consults this; backends themselves are oblivious to routing.
func IsProcessedPath(objectPath string) bool {
	parts := strings.Split(strings.TrimPrefix(objectPath, "/"), "/")
	for _, p := range parts {
		switch p {
		case "processed", "hls", "dash", "thumbnail.jpg", "thumbnails":
			return true
		}
	}
	return false
}
