package dao_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeisme/docvault/pkg/internal/dao"
	"github.com/yeisme/docvault/pkg/internal/errs"
	"github.com/yeisme/docvault/pkg/internal/model"
)

func newDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.Models()...))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

func ptr(s string) *string { return &s }

func TestNewIDMonotonic(t *testing.T) {
	prev := dao.NewID()
	for range 100 {
		id := dao.NewID()
		assert.Len(t, id, 26)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestFileLifecycle(t *testing.T) {
	ctx := context.Background()
	files := dao.NewFileDao(newDB(t))

	f := &model.File{Name: "a.png", UserID: "u1", Size: 10, Checksum: "abc", LatestVersion: true}
	require.NoError(t, files.Create(ctx, f))
	require.NotEmpty(t, f.ID)

	got, err := files.GetActiveByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.png", got.Name)

	require.NoError(t, files.UpdateContent(ctx, f.ID, "hello"))

	require.NoError(t, files.SoftDelete(ctx, f.ID))

	_, err = files.GetActiveByID(ctx, f.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	got, err = files.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, got.DeletedAt.Valid)
	assert.Equal(t, "hello", got.Content)

	require.NoError(t, files.Restore(ctx, f.ID))
	require.ErrorIs(t, files.Restore(ctx, f.ID), errs.ErrNotFound)

	_, err = files.GetActiveByID(ctx, f.ID)
	require.NoError(t, err)

	require.NoError(t, files.HardDelete(ctx, f.ID))

	_, err = files.GetByID(ctx, f.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.ErrorIs(t, files.SoftDelete(ctx, f.ID), errs.ErrNotFound)
	require.ErrorIs(t, files.UpdateContent(ctx, f.ID, "x"), errs.ErrNotFound)
}

func TestGetByDocumentID(t *testing.T) {
	ctx := context.Background()
	files := dao.NewFileDao(newDB(t))

	for i, latest := range []bool{true, false, true} {
		require.NoError(t, files.Create(ctx, &model.File{
			UserID: "u1", DocumentID: ptr("d1"), Order: 2 - i, LatestVersion: latest,
		}))
	}

	require.NoError(t, files.Create(ctx, &model.File{UserID: "u2", DocumentID: ptr("d1"), LatestVersion: true}))

	list, err := files.GetByDocumentID(ctx, "u1", "d1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 0, list[0].Order)
	assert.Equal(t, 2, list[1].Order)
}

func TestFindByChecksum(t *testing.T) {
	ctx := context.Background()
	files := dao.NewFileDao(newDB(t))

	f := &model.File{UserID: "u1", Checksum: "c1", Size: 3, LatestVersion: true}
	require.NoError(t, files.Create(ctx, f))

	got, err := files.FindByChecksum(ctx, "u1", "c1", 3)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)

	_, err = files.FindByChecksum(ctx, "u2", "c1", 3)
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, files.SoftDelete(ctx, f.ID))

	_, err = files.FindByChecksum(ctx, "u1", "c1", 3)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	files := dao.NewFileDao(newDB(t))

	var id string

	err := files.Transaction(ctx, func(tx dao.FileDao) error {
		f := &model.File{UserID: "u1"}
		if err := tx.Create(ctx, f); err != nil {
			return err
		}

		id = f.ID

		return fmt.Errorf("abort")
	})
	require.EqualError(t, err, "abort")

	_, err = files.GetByID(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestVersions(t *testing.T) {
	ctx := context.Background()
	files := dao.NewFileDao(newDB(t))

	for v := 3; v >= 1; v-- {
		require.NoError(t, files.Create(ctx, &model.File{UserID: "u1", VersionID: ptr("g"), Version: v}))
	}

	list, err := files.GetVersions(ctx, "g")
	require.NoError(t, err)
	require.Len(t, list, 3)

	for i, f := range list {
		assert.Equal(t, i+1, f.Version)
	}
}

func TestUserQuota(t *testing.T) {
	ctx := context.Background()
	users := dao.NewUserDao(newDB(t))

	_, err := users.GetByID(ctx, "nobody")
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, users.Create(ctx, &model.User{ID: "u1", StorageQuota: 1000}))
	require.NoError(t, users.Create(ctx, &model.User{ID: "u2", StorageQuota: 1000, StorageCurrent: 200}))

	ok, err := users.AddStorageIfWithinQuota(ctx, "u1", 600)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = users.AddStorageIfWithinQuota(ctx, "u1", 500)
	require.NoError(t, err)
	assert.False(t, ok)

	total, err := users.GetGlobalStorageCurrent(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 800, total)

	require.NoError(t, users.ReleaseStorage(ctx, "u1", 1000))

	u, err := users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, u.StorageCurrent)

	u.StorageCurrent = 42
	require.NoError(t, users.UpdateQuota(ctx, u))

	u, err = users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 42, u.StorageCurrent)
}

func TestAddStorageConcurrent(t *testing.T) {
	ctx := context.Background()
	users := dao.NewUserDao(newDB(t))

	require.NoError(t, users.Create(ctx, &model.User{ID: "u1", StorageQuota: 1000}))

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
	)

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ok, err := users.AddStorageIfWithinQuota(ctx, "u1", 100)
			if err == nil && ok {
				accepted.Add(1)
			}
		}()
	}

	wg.Wait()

	u, err := users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.LessOrEqual(t, u.StorageCurrent, u.StorageQuota)
	assert.Equal(t, accepted.Load()*100, u.StorageCurrent)
}
