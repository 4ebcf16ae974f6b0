// Package authz declares the boundary to the external authorization/quota
// collaborator (spec.md §6). The core never embeds a concrete network
// client for it; callers wire in whatever implementation fits their
// deployment, the same way the teacher's clients.TranscodeStatusClient
// boundary stays an interface with a func-adapter for tests.
package authz

import "context"

// User is the caller identity threaded through every authz call.
type User struct {
	ID        string
	CompanyID string
}

// Video is the minimal video identity the authz provider needs to reason
// about access and notification (spec.md §6).
type Video struct {
	ID      string
	OwnerID string
}

// Provider is the external authz/quota/notification collaborator interface
// (spec.md §6). The core depends only on this interface.
type Provider interface {
	GetUser(ctx context.Context, id string) (User, error)
	GetCompanyUser(ctx context.Context, userID, companyID string) (User, error)
	CheckUploadPermission(ctx context.Context, caller User) error
	CheckStorageLimit(ctx context.Context, caller User, bytes int64) error
	CheckVideoAccess(ctx context.Context, caller User, video Video) error
	UpdateVideoMetadata(ctx context.Context, video Video, fields map[string]any) error
	NotifyVideoReady(ctx context.Context, video Video, user User) error
	Health(ctx context.Context) error
}

// Noop satisfies Provider with no-op, always-permissive behavior. It exists
// so callers can compose the pipeline without a real authz deployment
// wired in (e.g. in tests), mirroring the teacher's
// clients.TranscodeStatusFunc func-adapter pattern of keeping the
// interface boundary real while stubbing the implementation.
type Noop struct{}

func (Noop) GetUser(ctx context.Context, id string) (User, error) { return User{ID: id}, nil }

func (Noop) GetCompanyUser(ctx context.Context, userID, companyID string) (User, error) {
	return User{ID: userID, CompanyID: companyID}, nil
}

func (Noop) CheckUploadPermission(ctx context.Context, caller User) error { return nil }

func (Noop) CheckStorageLimit(ctx context.Context, caller User, bytes int64) error { return nil }

func (Noop) CheckVideoAccess(ctx context.Context, caller User, video Video) error { return nil }

func (Noop) UpdateVideoMetadata(ctx context.Context, video Video, fields map[string]any) error {
	return nil
}

func (Noop) NotifyVideoReady(ctx context.Context, video Video, user User) error { return nil }

func (Noop) Health(ctx context.Context) error { return nil }
