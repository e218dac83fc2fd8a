package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapterUploadDeleteList(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	localPath := filepath.Join(dir, "screenshot.png")
	require.NoError(t, os.WriteFile(localPath, []byte("fake-png-bytes"), 0o644))

	adapter := NewAdapter(NewMemoryStore(), "mirix-test-bucket")

	ref, err := adapter.Upload(ctx, localPath)
	require.NoError(t, err)
	assert.NotEmpty(t, ref.RemoteID)
	assert.Equal(t, "s3://mirix-test-bucket/"+ref.RemoteID, ref.URI)
	assert.False(t, ref.CreatedAt.IsZero())

	refs, err := adapter.List(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, ref.RemoteID, refs[0].RemoteID)

	require.NoError(t, adapter.Delete(ctx, ref.RemoteID))

	refs, err = adapter.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestAdapterUploadMissingFile(t *testing.T) {
	adapter := NewAdapter(NewMemoryStore(), "b")
	_, err := adapter.Upload(context.Background(), "/nonexistent/path.png")
	assert.Error(t, err)
}
