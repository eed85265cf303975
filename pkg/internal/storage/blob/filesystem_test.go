package blob_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docvault/pkg/internal/errs"
	"github.com/yeisme/docvault/pkg/internal/storage/blob"
)

func newStore(t *testing.T) (*blob.FileSystem, string, string) {
	t.Helper()

	dir := t.TempDir()
	live := filepath.Join(dir, "live")
	deleted := filepath.Join(dir, "deleted")

	fs, err := blob.NewFileSystem(live, deleted, zerolog.Nop())
	require.NoError(t, err)

	return fs, live, deleted
}

func TestResolve(t *testing.T) {
	p, err := blob.Resolve(blob.Ref{UserID: "u1", FileID: "f1"})
	require.NoError(t, err)

	assert.Equal(t, "u1/f1", p.Dir)
	assert.Equal(t, "u1/f1/f1", p.Primary)
	assert.Equal(t, "u1/f1/f1_web", p.Web)
	assert.Equal(t, "u1/f1/f1_thumb", p.Thumb)
	assert.Equal(t, p.Thumb, p.Key(blob.Thumb))
	assert.Equal(t, p.Primary, p.Key(blob.Primary))

	for _, bad := range []blob.Ref{
		{UserID: "", FileID: "f"},
		{UserID: "u", FileID: ".."},
		{UserID: "a/b", FileID: "f"},
		{UserID: "u", FileID: `x\y`},
	} {
		_, err := blob.Resolve(bad)
		require.ErrorIs(t, err, errs.ErrIOFailure, "%+v", bad)
	}
}

func TestNewFileSystemSameRoots(t *testing.T) {
	dir := t.TempDir()

	_, err := blob.NewFileSystem(dir, dir, zerolog.Nop())
	require.Error(t, err)
}

func TestCreateNoOverwrite(t *testing.T) {
	ctx := context.Background()
	store, live, _ := newStore(t)

	n, err := store.Create(ctx, blob.Live, "u/f/f", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	data, err := os.ReadFile(filepath.Join(live, "u", "f", "f"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = store.Create(ctx, blob.Live, "u/f/f", strings.NewReader("other"))
	require.ErrorIs(t, err, errs.ErrDestinationExists)
	require.ErrorIs(t, err, errs.ErrIOFailure)

	// 原内容不被覆盖，也不留下临时文件
	data, err = os.ReadFile(filepath.Join(live, "u", "f", "f"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	entries, err := os.ReadDir(filepath.Join(live, "u", "f"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestCreateFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newStore(t)

	_, err := store.Create(ctx, blob.Live, "u/f/f", failingReader{})
	require.ErrorIs(t, err, errs.ErrIOFailure)

	ok, err := store.Exists(ctx, blob.Live, "u/f/f")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPathTraversal(t *testing.T) {
	store, _, _ := newStore(t)

	_, err := store.Path(blob.Live, "../escape")
	require.ErrorIs(t, err, errs.ErrIOFailure)

	_, err = store.Path(blob.Live, "")
	require.ErrorIs(t, err, errs.ErrIOFailure)
}

func TestOpenAndRemove(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newStore(t)

	_, err := store.Open(ctx, blob.Live, "u/f/f")
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = store.Create(ctx, blob.Live, "u/f/f", bytes.NewReader([]byte{1, 2, 3}))
	require.NoError(t, err)

	rc, err := store.Open(ctx, blob.Live, "u/f/f")
	require.NoError(t, err)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, []byte{1, 2, 3}, got)

	require.NoError(t, store.Remove(ctx, blob.Live, "u/f/f"))
	require.ErrorIs(t, store.Remove(ctx, blob.Live, "u/f/f"), errs.ErrNotFound)
}

func TestRemoveDirPrunesParents(t *testing.T) {
	ctx := context.Background()
	store, live, _ := newStore(t)

	_, err := store.Create(ctx, blob.Live, "u/f/f", strings.NewReader("x"))
	require.NoError(t, err)

	// 非空目录保留
	require.NoError(t, store.RemoveDir(ctx, blob.Live, "u/f"))
	assert.DirExists(t, filepath.Join(live, "u", "f"))

	require.NoError(t, store.Remove(ctx, blob.Live, "u/f/f"))
	require.NoError(t, store.RemoveDir(ctx, blob.Live, "u/f"))

	assert.NoDirExists(t, filepath.Join(live, "u", "f"))
	assert.NoDirExists(t, filepath.Join(live, "u"))
	assert.DirExists(t, live)

	// 不存在的目录不报错
	require.NoError(t, store.RemoveDir(ctx, blob.Live, "u/f"))
}

func TestMoveBetweenAreas(t *testing.T) {
	ctx := context.Background()
	store, live, deleted := newStore(t)

	_, err := store.Create(ctx, blob.Live, "u/f/f", strings.NewReader("payload"))
	require.NoError(t, err)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(live, "u", "f", "f"), old, old))

	require.NoError(t, store.Move(ctx, blob.Live, blob.Deleted, "u/f/f"))

	info, err := os.Stat(filepath.Join(deleted, "u", "f", "f"))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), info.ModTime(), time.Minute)
	assert.NoDirExists(t, filepath.Join(live, "u"))

	// 恢复时目标已存在则失败，源保持不变
	_, err = store.Create(ctx, blob.Live, "u/f/f", strings.NewReader("new"))
	require.NoError(t, err)

	err = store.Move(ctx, blob.Deleted, blob.Live, "u/f/f")
	require.ErrorIs(t, err, errs.ErrDestinationExists)
	assert.FileExists(t, filepath.Join(deleted, "u", "f", "f"))
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	store, _, deleted := newStore(t)

	for _, key := range []string{"u/a/a", "u/a/a_web", "u/b/b"} {
		_, err := store.Create(ctx, blob.Deleted, key, strings.NewReader(key))
		require.NoError(t, err)
	}

	old := time.Now().Add(-40 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(deleted, "u", "a", "a"), old, old))
	require.NoError(t, os.Chtimes(filepath.Join(deleted, "u", "a", "a_web"), old, old))

	n, err := store.Purge(ctx, blob.Deleted, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.NoDirExists(t, filepath.Join(deleted, "u", "a"))
	assert.FileExists(t, filepath.Join(deleted, "u", "b", "b"))
}

func TestMoveMissingSource(t *testing.T) {
	store, _, deleted := newStore(t)

	err := store.Move(context.Background(), blob.Live, blob.Deleted, "u/f/f")
	require.ErrorIs(t, err, errs.ErrNotFound)
	assert.NoDirExists(t, filepath.Join(deleted, "u"))
}
