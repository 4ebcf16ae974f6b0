package events

import "context"

// NoopPublisher discards every event, used in tests and in compositions
// that don't yet have a broker configured, matching the teacher's
// func-adapter stub pattern (clients.TranscodeStatusFunc).
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, topic string, message any) error { return nil }

// RecordingPublisher captures every published event in-memory, for
// assertions in tests that need to verify ordering (spec.md §5:
// "events for a single video id are emitted in state-transition order").
type RecordingPublisher struct {
	Published []Recorded
}

type Recorded struct {
	Topic   string
	Message any
}

func (p *RecordingPublisher) Publish(ctx context.Context, topic string, message any) error {
	p.Published = append(p.Published, Recorded{Topic: topic, Message: message})
	return nil
}
