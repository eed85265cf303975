package quota_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeisme/docvault/pkg/internal/dao"
	"github.com/yeisme/docvault/pkg/internal/errs"
	"github.com/yeisme/docvault/pkg/internal/model"
	"github.com/yeisme/docvault/pkg/internal/quota"
)

func newUsers(t *testing.T) dao.UserStore {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.Models()...))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return dao.NewUserDao(db)
}

// plainUsers 隐藏条件更新，走读改写路径.
type plainUsers struct{ dao.UserDao }

func current(t *testing.T, users dao.UserDao, id string) int64 {
	t.Helper()

	u, err := users.GetByID(context.Background(), id)
	require.NoError(t, err)

	return u.StorageCurrent
}

func TestUploadScenario(t *testing.T) {
	for _, tc := range []struct {
		name  string
		users func(dao.UserStore) dao.UserDao
	}{
		{"atomic", func(u dao.UserStore) dao.UserDao { return u }},
		{"read-modify-write", func(u dao.UserStore) dao.UserDao { return plainUsers{u} }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := newUsers(t)
			require.NoError(t, store.Create(ctx, &model.User{ID: "u1", StorageQuota: 1000}))

			users := tc.users(store)
			ledger := quota.NewLedger(users, quota.Unlimited)
			assert.Equal(t, tc.name == "atomic", ledger.Atomic())

			require.NoError(t, ledger.Check(ctx, "u1", 600))
			require.NoError(t, ledger.Commit(ctx, "u1", 600))
			assert.EqualValues(t, 600, current(t, users, "u1"))

			require.ErrorIs(t, ledger.Check(ctx, "u1", 500), errs.ErrQuotaExceeded)
			require.ErrorIs(t, ledger.Commit(ctx, "u1", 500), errs.ErrQuotaExceeded)
			assert.EqualValues(t, 600, current(t, users, "u1"))

			// 恰好用满是允许的
			require.NoError(t, ledger.Check(ctx, "u1", 400))

			require.NoError(t, ledger.Release(ctx, "u1", 700))
			assert.EqualValues(t, 0, current(t, users, "u1"))
		})
	}
}

func TestGlobalCeiling(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t)
	require.NoError(t, users.Create(ctx, &model.User{ID: "u1", StorageQuota: 1000, StorageCurrent: 300}))
	require.NoError(t, users.Create(ctx, &model.User{ID: "u2", StorageQuota: 1000, StorageCurrent: 600}))

	ledger := quota.NewLedger(users, 1000)
	assert.EqualValues(t, 1000, ledger.GlobalCeiling())

	err := ledger.Check(ctx, "u1", 200)
	require.ErrorIs(t, err, errs.ErrGlobalQuotaExceeded)
	require.ErrorIs(t, err, errs.ErrQuotaExceeded)

	require.NoError(t, ledger.Check(ctx, "u1", 100))
	assert.EqualValues(t, 300, current(t, users, "u1"))
}

func TestCommitRechecksGlobalCeiling(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t)
	require.NoError(t, users.Create(ctx, &model.User{ID: "u1", StorageQuota: 5000, StorageCurrent: 300}))
	require.NoError(t, users.Create(ctx, &model.User{ID: "u2", StorageQuota: 5000, StorageCurrent: 600}))

	ledger := quota.NewLedger(users, 1000)

	// 声明 50 字节通过检查，实际写入 400 字节
	require.NoError(t, ledger.Check(ctx, "u1", 50))

	err := ledger.Commit(ctx, "u1", 400)
	require.ErrorIs(t, err, errs.ErrGlobalQuotaExceeded)
	assert.EqualValues(t, 300, current(t, users, "u1"))

	require.NoError(t, ledger.Commit(ctx, "u1", 100))
	assert.EqualValues(t, 400, current(t, users, "u1"))
}

func TestUnknownUser(t *testing.T) {
	ledger := quota.NewLedger(newUsers(t), quota.Unlimited)

	err := ledger.Check(context.Background(), "ghost", 1)
	require.ErrorIs(t, err, errs.ErrNotFound)
}
