package cache_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docvault/pkg/cache"
	"github.com/yeisme/docvault/pkg/internal/errs"
	"github.com/yeisme/docvault/pkg/internal/storage/kv"
)

type sizeEntry struct {
	FileID string `json:"file_id"`
	Bytes  int64  `json:"bytes"`
}

func newKV(t *testing.T) kv.KVStore {
	t.Helper()

	store, err := kv.NewKVStore(context.Background(), kv.KVTypeMemory, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

// brokenKV 所有读取都返回非未命中错误.
type brokenKV struct{ kv.KVStore }

func (brokenKV) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestGetSet(t *testing.T) {
	ctx := context.Background()
	store := newKV(t)
	c := cache.NewCache(store, "size")

	_, err := cache.Get[sizeEntry](ctx, c, "f1")
	require.ErrorIs(t, err, errs.ErrNotFound)

	want := sizeEntry{FileID: "f1", Bytes: 1234}
	require.NoError(t, cache.Set(ctx, c, "f1", want, 0))

	got, err := cache.Get[sizeEntry](ctx, c, "f1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// 键带命名空间前缀
	ok, err := store.Exists(ctx, "size:f1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "f1"))

	ok, err = c.Exists(ctx, "f1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetOrSet(t *testing.T) {
	ctx := context.Background()
	c := cache.NewCache(newKV(t), "size")

	calls := 0
	getter := func() (int64, error) {
		calls++

		return 42, nil
	}

	for range 3 {
		n, err := cache.GetOrSet(ctx, c, "f1", getter, time.Minute)
		require.NoError(t, err)
		assert.EqualValues(t, 42, n)
	}

	assert.Equal(t, 1, calls)
}

func TestGetOrSetGetterError(t *testing.T) {
	ctx := context.Background()
	c := cache.NewCache(newKV(t), "size")

	_, err := cache.GetOrSet(ctx, c, "f1", func() (int64, error) {
		return 0, errors.New("getter error")
	}, 0)
	require.EqualError(t, err, "getter error")

	ok, err := c.Exists(ctx, "f1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetOrSetBackendError(t *testing.T) {
	ctx := context.Background()
	c := cache.NewCache(brokenKV{KVStore: newKV(t)}, "size")

	called := false

	_, err := cache.GetOrSet(ctx, c, "f1", func() (int64, error) {
		called = true

		return 1, nil
	}, 0)
	require.Error(t, err)
	assert.False(t, called)
}

func TestClearOnlyNamespace(t *testing.T) {
	ctx := context.Background()
	store := newKV(t)
	sizes := cache.NewCache(store, "size")
	other := cache.NewCache(store, "other")

	for i := range 3 {
		require.NoError(t, cache.Set(ctx, sizes, fmt.Sprintf("f%d", i), int64(i), 0))
	}

	require.NoError(t, cache.Set(ctx, other, "keep", "v", 0))

	require.NoError(t, sizes.Clear(ctx))

	keys, err := store.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"other:keep"}, keys)
}
