// Package events defines the JSON event schema published on the bus
// (spec.md §6) and the Publisher interface consumed by the upload
// coordinator (C7) and the pipeline orchestrator (C8).
package events

import (
	"context"
	"time"
)

const (
	TopicVideoEvents    = "video-events"
	TopicVideoAnalytics = "video-analytics"
)

const (
	EventTypeVideoUploaded = "video_uploaded"
	EventTypeVideoProcessed = "video_processed"
	EventTypeVideoView     = "video_view"
)

// Publisher is the event bus collaborator the core publishes to (spec.md
// §6). Implementations must not block the caller indefinitely; a timeout is
// the caller's responsibility via ctx.
type Publisher interface {
	Publish(ctx context.Context, topic string, message any) error
}

// VideoUploaded is emitted once a chunked upload composes successfully
// (spec.md §4.7, §6).
type VideoUploaded struct {
	EventType string    `json:"event_type"`
	VideoID   string    `json:"video_id"`
	UserID    string    `json:"user_id"`
	CompanyID string    `json:"company_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// VideoProcessed is emitted when the orchestrator (C8) reaches a terminal
// state (spec.md §4.8, §6).
type VideoProcessed struct {
	EventType   string    `json:"event_type"`
	VideoID     string    `json:"video_id"`
	Status      string    `json:"status"` // "success" | "error"
	PlaybackURL string    `json:"playback_url,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// VideoView is published by out-of-scope playback collaborators; the core
// only defines its schema (spec.md §6).
type VideoView struct {
	EventType string    `json:"event_type"`
	VideoID   string    `json:"video_id"`
	UserID    string    `json:"user_id,omitempty"`
	CompanyID string    `json:"company_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
