// Package video holds the VideoRecord data model, the media prober (C3),
// and the derived types (SegmentDescriptor, UploadTicket) shared by the
// upload coordinator, orchestrator, and manifest builder.
package video

import (
	"fmt"
	"time"
)

// Status is a VideoRecord's position in the ingest-to-playback state
// machine (spec.md §3/§4.8). The zero value is intentionally invalid;
// records are always created with StatusPending.
type Status string

const (
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// validTransitions encodes the state machine's DAG. The only back-edge is
// error -> pending, an explicit retry (spec.md §3 invariant).
var validTransitions = map[Status]map[Status]bool{
	StatusPending:    {StatusUploading: true},
	StatusUploading:  {StatusUploaded: true},
	StatusUploaded:   {StatusProcessing: true},
	StatusProcessing: {StatusReady: true, StatusError: true},
	StatusReady:      {},
	StatusError:      {StatusPending: true},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge
// in the state machine's DAG. Staying in the same status (from == to) is
// always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	edges, ok := validTransitions[from]
	return ok && edges[to]
}

// Record is the single source of truth for one video (spec.md §3). It is
// created by the upload coordinator (C7) at upload initialization, updated
// by C7 during upload, mutated by the orchestrator (C8) during processing,
// and deleted by the janitor (C9) or an explicit cancel.
type Record struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	CompanyID   string `json:"company_id,omitempty"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	DeclaredSize int64  `json:"declared_size"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	Status Status `json:"status"`

	ChunksReceived int `json:"chunks_received"`
	TotalChunks    int `json:"total_chunks"`
	UploadProgress int `json:"upload_progress"`

	// receivedChunks tracks distinct received indices so duplicate
	// uploads of the same index never double-count (spec.md §4.7).
	ReceivedChunks map[int]bool `json:"received_chunks,omitempty"`

	OutputPath string `json:"output_path,omitempty"`

	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	ContainerFormat string  `json:"container_format,omitempty"`
	VideoCodec      string  `json:"video_codec,omitempty"`
	AudioCodec      string  `json:"audio_codec,omitempty"`
	BitrateBps      int64   `json:"bitrate_bps,omitempty"`

	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	HLSMasterURL string `json:"hls_master_url,omitempty"`
	DASHMpdURL   string `json:"dash_mpd_url,omitempty"`
	PlaybackURL  string `json:"playback_url,omitempty"`

	// ScheduleStrategy flags a record for live-playlist-mode manifest
	// emission (SPEC_FULL.md §3). Default is StrategyVOD; reachable
	// through C6's live mode without an actual live ingest source, per
	// spec.md's Non-goals.
	ScheduleStrategy ScheduleStrategy `json:"schedule_strategy,omitempty"`

	// CancelRequested implements "mark and let finish" cancellation
	// semantics (spec.md §9): the orchestrator checks this between
	// stages, never mid-subprocess.
	CancelRequested bool `json:"cancel_requested,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	CleanupEligibleAt  time.Time `json:"cleanup_eligible_at,omitempty"`
}

// ScheduleStrategy selects which manifest mode (static VOD or live
// playlist) the orchestrator asks the manifest builder to emit.
type ScheduleStrategy string

const (
	StrategyVOD  ScheduleStrategy = "vod"
	StrategyLive ScheduleStrategy = "live"
)

// Transition moves the record to `to`, returning an error if the edge is
// not legal. The caller is responsible for persisting the record and
// bumping UpdatedAt; Transition only validates and assigns Status.
func (r *Record) Transition(to Status) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("illegal status transition %s -> %s for video %s", r.Status, to, r.ID)
	}
	r.Status = to
	return nil
}

// RecomputeUploadProgress keeps the chunks_received/upload_progress
// invariant in sync: upload_progress == 100 iff chunks_received ==
// total_chunks (spec.md §3).
func (r *Record) RecomputeUploadProgress() {
	if r.TotalChunks <= 0 {
		r.UploadProgress = 0
		return
	}
	r.UploadProgress = (r.ChunksReceived * 100) / r.TotalChunks
}

// MarkChunkReceived records index as received exactly once, even under
// repeated delivery of the same index (spec.md's idempotency requirement).
func (r *Record) MarkChunkReceived(index int) {
	if r.ReceivedChunks == nil {
		r.ReceivedChunks = map[int]bool{}
	}
	if !r.ReceivedChunks[index] {
		r.ReceivedChunks[index] = true
		r.ChunksReceived = len(r.ReceivedChunks)
	}
	r.RecomputeUploadProgress()
}

// SegmentDescriptor is one independently fetchable media segment, produced
// by the transcoder (C5) and consumed by the manifest builder (C6). It is
// immutable after emission (spec.md §3).
type SegmentDescriptor struct {
	Index int
	// Filename is set for HLS segments ("segment_000.ts").
	Filename string
	// Number is set for DASH segments (1-based, per spec.md §4.5).
	Number int

	DurationSeconds float64
	DurationMs       int64
	StartMs          int64
}

// UploadTicket is the advisory return value of Initialize; actual
// authority always lives in the Record (spec.md §3).
type UploadTicket struct {
	VideoID        string
	UploadEndpoint string
	ExpiresAt      time.Time
}
