package artifactstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/audioclip/internal/domain"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "clips/abc.mp3", Key("abc"))
}

func TestLocalStorePutOpenDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	obj, err := s.Put(ctx, Key("job-1"), strings.NewReader("ID3 fake mp3"), 12, Meta{})
	require.NoError(t, err)
	assert.Equal(t, "clips/job-1.mp3", obj.Ref)
	assert.Equal(t, int64(12), obj.Size)
	assert.Len(t, obj.SHA256, 64)

	rc, size, err := s.Open(ctx, obj.Ref)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, int64(12), size)
	assert.Equal(t, "ID3 fake mp3", string(data))

	_, err = s.URL(ctx, obj.Ref, time.Hour)
	assert.ErrorIs(t, err, ErrPresignUnsupported)

	require.NoError(t, s.Delete(ctx, obj.Ref))
	require.NoError(t, s.Delete(ctx, obj.Ref))

	_, _, err = s.Open(ctx, obj.Ref)
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
}

func TestLocalStoreRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	require.NoError(t, err)

	_, err = s.Put(ctx, "../escape.mp3", strings.NewReader("x"), 1, Meta{})
	assert.Error(t, err)

	_, err = s.Put(ctx, Key("short"), strings.NewReader("abc"), 10, Meta{})
	assert.ErrorContains(t, err, "short write")

	_, err = os.Stat(filepath.Join(dir, "clips", "short.mp3"))
	assert.True(t, os.IsNotExist(err), "partial artifact must not be visible")
}

func TestLocalStoreCleanupOlderThan(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	require.NoError(t, err)

	_, err = s.Put(ctx, Key("old"), strings.NewReader("old"), 3, Meta{})
	require.NoError(t, err)
	_, err = s.Put(ctx, Key("new"), strings.NewReader("new"), 3, Meta{})
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "clips", "old.mp3"), past, past))

	require.NoError(t, s.CleanupOlderThan(ctx, 24*time.Hour))

	_, _, err = s.Open(ctx, Key("old"))
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)

	rc, _, err := s.Open(ctx, Key("new"))
	require.NoError(t, err)
	_ = rc.Close()
}
