package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBulkQueueStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "queue.json")
	s := NewFileBulkQueueStore(path)
	ctx := context.Background()

	data, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, s.Save(ctx, []byte(`{"ticket_id":"t1"}`)))
	require.NoError(t, s.Save(ctx, []byte(`{"ticket_id":"t2"}`)))

	data, err = s.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ticket_id":"t2"}`, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePerms), info.Mode().Perm())

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx), "clearing twice is fine")

	data, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)
}
