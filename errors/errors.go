// Package errors defines the error taxonomy shared by the ingest-to-playback
// pipeline. Callers should use errors.As against the concrete wrapper types
// below rather than matching on error strings.
package errors

import (
	"errors"
	"fmt"
)

// NotFoundError is returned by storage reads (C1/C2) for a missing object or
// metadata document. The orchestrator returns it to its caller unchanged;
// there is no separate video-level not-found error type.
type NotFoundError struct {
	Path  string
	cause error
}

func NewNotFoundError(path string, cause error) error {
	return NotFoundError{Path: path, cause: cause}
}

func (e NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("not found: %s: %s", e.Path, e.cause)
	}
	return fmt.Sprintf("not found: %s", e.Path)
}

func (e NotFoundError) Unwrap() error { return e.cause }

func IsNotFound(err error) bool {
	return errors.As(err, &NotFoundError{})
}

// InvalidFormatError is returned when an upload's file extension is not in
// the configured allow-list.
type InvalidFormatError struct{ Ext string }

func (e InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid format: %q is not an allowed video format", e.Ext)
}

func NewInvalidFormatError(ext string) error { return InvalidFormatError{Ext: ext} }

// InvalidChunkIndexError is raised when a chunk index is out of bounds.
type InvalidChunkIndexError struct {
	Index, Total int
}

func (e InvalidChunkIndexError) Error() string {
	return fmt.Sprintf("invalid chunk index %d for total_chunks %d", e.Index, e.Total)
}

func NewInvalidChunkIndexError(index, total int) error {
	return InvalidChunkIndexError{Index: index, Total: total}
}

// InvalidChunkCountError is raised when a chunk upload's declared
// total_chunks disagrees with the value fixed by the first chunk.
type InvalidChunkCountError struct {
	Declared, Expected int
}

func (e InvalidChunkCountError) Error() string {
	return fmt.Sprintf("invalid chunk count: got %d, expected %d", e.Declared, e.Expected)
}

func NewInvalidChunkCountError(declared, expected int) error {
	return InvalidChunkCountError{Declared: declared, Expected: expected}
}

// ForbiddenError is returned when the caller does not own the record.
type ForbiddenError struct{ VideoID string }

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: caller does not own video %s", e.VideoID)
}

func NewForbiddenError(videoID string) error { return ForbiddenError{VideoID: videoID} }

func IsForbidden(err error) bool { return errors.As(err, &ForbiddenError{}) }

// QuotaExceededError is surfaced by the external authz collaborator before
// any write occurs.
type QuotaExceededError struct{ Reason string }

func (e QuotaExceededError) Error() string { return fmt.Sprintf("quota exceeded: %s", e.Reason) }

func NewQuotaExceededError(reason string) error { return QuotaExceededError{Reason: reason} }

// StorageUnavailableError wraps a transient backend failure. Caller-level
// retry is allowed once; a recurrence marks the record as errored.
type StorageUnavailableError struct{ cause error }

func (e StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %s", e.cause)
}

func (e StorageUnavailableError) Unwrap() error { return e.cause }

func NewStorageUnavailableError(cause error) error { return StorageUnavailableError{cause: cause} }

func IsStorageUnavailable(err error) bool { return errors.As(err, &StorageUnavailableError{}) }

// ConflictError indicates a non-partial put collided with an existing
// object the backend refuses to overwrite implicitly.
type ConflictError struct{ Path string }

func (e ConflictError) Error() string { return fmt.Sprintf("conflict: %s already exists", e.Path) }

func NewConflictError(path string) error { return ConflictError{Path: path} }

// ProbeFailedError wraps a fatal failure of the media prober (C3), with the
// toolchain's stderr attached.
type ProbeFailedError struct{ Stderr string }

func (e ProbeFailedError) Error() string {
	return fmt.Sprintf("probe failed: %s", e.Stderr)
}

func NewProbeFailedError(stderr string) error { return ProbeFailedError{Stderr: stderr} }

// TranscodeFailedError wraps a non-zero exit of the transcoder (C5).
type TranscodeFailedError struct {
	Quality, Format string
	Stderr          string
}

func (e TranscodeFailedError) Error() string {
	return fmt.Sprintf("transcode failed for %s/%s: %s", e.Quality, e.Format, e.Stderr)
}

func NewTranscodeFailedError(quality, format, stderr string) error {
	return TranscodeFailedError{Quality: quality, Format: format, Stderr: stderr}
}

// UpstreamTimeoutError is raised when a call to an external collaborator
// (authz, notification) exceeds its deadline.
type UpstreamTimeoutError struct{ Collaborator string }

func (e UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("upstream timeout calling %s", e.Collaborator)
}

func NewUpstreamTimeoutError(collaborator string) error {
	return UpstreamTimeoutError{Collaborator: collaborator}
}

func IsUpstreamTimeout(err error) bool { return errors.As(err, &UpstreamTimeoutError{}) }

// ConcurrencyConflictError indicates a lost update on the per-id metadata
// document. Nothing in this module returns or retries it: metadata
// read-modify-write cycles are serialized per video id with cache.Locker.
type ConcurrencyConflictError struct{ VideoID string }

func (e ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict updating metadata for %s", e.VideoID)
}

func NewConcurrencyConflictError(videoID string) error {
	return ConcurrencyConflictError{VideoID: videoID}
}

func IsConcurrencyConflict(err error) bool { return errors.As(err, &ConcurrencyConflictError{}) }

// Unretriable marks an error as not worth retrying, mirroring the blanket
// "every not found is unretriable" rule from the upstream callback path.
type UnretriableError struct{ error }

func Unretriable(err error) error { return UnretriableError{err} }

func (e UnretriableError) Unwrap() error { return e.error }

func IsUnretriable(err error) bool { return errors.As(err, &UnretriableError{}) }
