package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopIsAlwaysPermissive(t *testing.T) {
	var p Provider = Noop{}
	ctx := context.Background()

	caller := User{ID: "u1", CompanyID: "c1"}
	require.NoError(t, p.CheckUploadPermission(ctx, caller))
	require.NoError(t, p.CheckStorageLimit(ctx, caller, 1<<40))
	require.NoError(t, p.CheckVideoAccess(ctx, caller, Video{ID: "v1", OwnerID: "u1"}))
	require.NoError(t, p.UpdateVideoMetadata(ctx, Video{ID: "v1"}, map[string]any{"status": "ready"}))
	require.NoError(t, p.NotifyVideoReady(ctx, Video{ID: "v1"}, caller))
	require.NoError(t, p.Health(ctx))

	user, err := p.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", user.ID)
}
