package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	vodpipeerrors "github.com/streamforge/vodpipe/errors"
	"github.com/streamforge/vodpipe/log"
	"github.com/streamforge/vodpipe/video"
)

// Facade layers video-semantic operations (C2) over the raw Backend
// contract (C1). It owns the routing rule from spec.md §4.1: the raw
// backend holds metadata, chunks, and composed sources; the processed
// backend holds everything under hls/, dash/, and thumbnails.
type Facade struct {
	Raw       Backend
	Processed Backend
}

func NewFacade(raw, processed Backend) *Facade {
	return &Facade{Raw: raw, Processed: processed}
}

func (f *Facade) backendFor(objectPath string) Backend {
	if IsProcessedPath(objectPath) {
		return f.Processed
	}
	return f.Raw
}

func metadataPath(id string) string {
	return fmt.Sprintf("metadata/%s.json", id)
}

func chunkPath(id string, index int) string {
	return fmt.Sprintf("videos/%s/chunks/chunk_%d", id, index)
}

func sourcePath(id, filename string) string {
	return fmt.Sprintf("videos/%s/%s", id, basename(filename))
}

func basename(filename string) string {
	idx := strings.LastIndexAny(filename, "/\\")
	if idx < 0 {
		return filename
	}
	return filename[idx+1:]
}

func hlsMasterPath(id string) string {
	return fmt.Sprintf("videos/%s/hls/master.m3u8", id)
}

func dashMpdPath(id string) string {
	return fmt.Sprintf("videos/%s/dash/manifest.mpd", id)
}

// SaveMetadata persists a VideoRecord as JSON at metadata/{id}.json.
func (f *Facade) SaveMetadata(ctx context.Context, r *video.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("error marshaling metadata for %s: %w", r.ID, err)
	}
	return f.Raw.Put(ctx, metadataPath(r.ID), bytes.NewReader(data), "application/json")
}

// GetMetadata loads a VideoRecord, returning a typed NotFoundError (not an
// empty record) when it doesn't exist.
func (f *Facade) GetMetadata(ctx context.Context, id string) (*video.Record, error) {
	rc, err := f.Raw.Get(ctx, metadataPath(id))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var record video.Record
	if err := json.NewDecoder(rc).Decode(&record); err != nil {
		return nil, fmt.Errorf("error decoding metadata for %s: %w", id, err)
	}
	return &record, nil
}

func (f *Facade) DeleteMetadata(ctx context.Context, id string) error {
	return f.Raw.Delete(ctx, metadataPath(id))
}

// SaveChunk writes one upload chunk. Chunk filenames are plain integers,
// with no zero-padding (spec.md §9 open question): compose must order
// chunks numerically, never lexicographically.
func (f *Facade) SaveChunk(ctx context.Context, id string, index int, data io.Reader) error {
	return f.Raw.Put(ctx, chunkPath(id, index), data, "application/octet-stream")
}

func (f *Facade) DeleteChunks(ctx context.Context, id string) error {
	return f.Raw.DeletePrefix(ctx, fmt.Sprintf("videos/%s/chunks/", id))
}

// ComposeChunks concatenates chunk_0..chunk_{total-1}, in numeric index
// order, into videos/{id}/{basename(filename)}. If any chunk is missing,
// it fails without creating the output (spec.md §4.2).
func (f *Facade) ComposeChunks(ctx context.Context, id, filename string, total int) (string, error) {
	parts := make([]string, total)
	for i := 0; i < total; i++ {
		parts[i] = chunkPath(id, i)
	}
	output := sourcePath(id, filename)
	if err := f.Raw.Compose(ctx, output, parts); err != nil {
		return "", err
	}
	return output, nil
}

func (f *Facade) SaveFile(ctx context.Context, objectPath string, data io.Reader) error {
	return f.backendFor(objectPath).Put(ctx, objectPath, data, ContentTypeForPath(objectPath))
}

func (f *Facade) GetFile(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	return f.backendFor(objectPath).Get(ctx, objectPath)
}

func (f *Facade) FileExists(ctx context.Context, objectPath string) (bool, error) {
	return f.backendFor(objectPath).Exists(ctx, objectPath)
}

func (f *Facade) DeleteFile(ctx context.Context, objectPath string) error {
	return f.backendFor(objectPath).Delete(ctx, objectPath)
}

// DeleteVideo transitively removes everything a VideoRecord owns: the
// metadata document plus the entire videos/{id}/ prefix across both
// backends (spec.md §3's ownership invariant).
func (f *Facade) DeleteVideo(ctx context.Context, id string) error {
	if err := f.DeleteMetadata(ctx, id); err != nil && !vodpipeerrors.IsNotFound(err) {
		return err
	}
	prefix := fmt.Sprintf("videos/%s/", id)
	if err := f.Raw.DeletePrefix(ctx, prefix); err != nil {
		return err
	}
	if err := f.Processed.DeletePrefix(ctx, prefix); err != nil {
		return err
	}
	return nil
}

// VideoFilter is an exact-match filter set for ListVideos.
type VideoFilter struct {
	OwnerID   string
	CompanyID string
	Status    video.Status
}

func (vf VideoFilter) matches(r *video.Record) bool {
	if vf.OwnerID != "" && r.OwnerID != vf.OwnerID {
		return false
	}
	if vf.CompanyID != "" && r.CompanyID != vf.CompanyID {
		return false
	}
	if vf.Status != "" && r.Status != vf.Status {
		return false
	}
	return true
}

// ListVideos scans metadata/*.json, applies an exact-match filter, sorts by
// created_at descending, and paginates. Every matching record is loaded
// and sorted in memory before the requested page is delivered one record
// at a time through the yield callback; stop early by returning false
// from yield. A corrupt individual metadata document is skipped with
// a logged warning rather than aborting the listing (spec.md §4.2).
func (f *Facade) ListVideos(ctx context.Context, filter VideoFilter, skip, limit int, yield func(*video.Record) bool) error {
	listing, err := f.Raw.List(ctx, "metadata/", "")
	if err != nil {
		return err
	}

	matched := make([]*video.Record, 0, len(listing.Files))
	for _, entry := range listing.Files {
		if !strings.HasSuffix(entry.Key, ".json") {
			continue
		}
		rc, err := f.Raw.Get(ctx, entry.Key)
		if err != nil {
			log.LogNoRequestID("skipping unreadable metadata document", "key", entry.Key, "err", err)
			continue
		}
		var record video.Record
		decodeErr := json.NewDecoder(rc).Decode(&record)
		rc.Close()
		if decodeErr != nil {
			log.LogNoRequestID("skipping corrupt metadata document", "key", entry.Key, "err", decodeErr)
			continue
		}
		if filter.matches(&record) {
			matched = append(matched, &record)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	for i, record := range matched {
		if i < skip {
			continue
		}
		if limit > 0 && i >= skip+limit {
			break
		}
		if !yield(record) {
			break
		}
	}
	return nil
}

// PresignHLS returns a presigned URL to the master playlist, verifying the
// record's metadata exists first.
func (f *Facade) PresignHLS(ctx context.Context, id string, ttl time.Duration) (string, error) {
	if _, err := f.GetMetadata(ctx, id); err != nil {
		return "", err
	}
	return f.Processed.Presign(ctx, hlsMasterPath(id), ttl)
}

// PresignDASH returns a presigned URL to the MPD, verifying the record's
// metadata exists first.
func (f *Facade) PresignDASH(ctx context.Context, id string, ttl time.Duration) (string, error) {
	if _, err := f.GetMetadata(ctx, id); err != nil {
		return "", err
	}
	return f.Processed.Presign(ctx, dashMpdPath(id), ttl)
}

// ListHLSVariants derives available HLS qualities from the storage layout:
// one rung per videos/{id}/hls/{quality}.m3u8 leaf file.
func (f *Facade) ListHLSVariants(ctx context.Context, id string) ([]string, error) {
	listing, err := f.Processed.List(ctx, fmt.Sprintf("videos/%s/hls/", id), "/")
	if err != nil {
		return nil, err
	}
	var qualities []string
	for _, entry := range listing.Files {
		name := entry.Key[strings.LastIndex(entry.Key, "/")+1:]
		if name == "master.m3u8" || !strings.HasSuffix(name, ".m3u8") {
			continue
		}
		qualities = append(qualities, strings.TrimSuffix(name, ".m3u8"))
	}
	sort.Strings(qualities)
	return qualities, nil
}

// ListDASHAdaptations derives available DASH qualities from the storage
// layout: one rung per videos/{id}/dash/video_{quality}/ directory.
func (f *Facade) ListDASHAdaptations(ctx context.Context, id string) ([]string, error) {
	listing, err := f.Processed.List(ctx, fmt.Sprintf("videos/%s/dash/", id), "/")
	if err != nil {
		return nil, err
	}
	var qualities []string
	for _, prefix := range listing.CommonPrefixes {
		name := strings.Trim(prefix[strings.LastIndex(strings.TrimSuffix(prefix, "/"), "/")+1:], "/")
		if q, ok := strings.CutPrefix(name, "video_"); ok {
			qualities = append(qualities, q)
		}
	}
	sort.Strings(qualities)
	return qualities, nil
}
