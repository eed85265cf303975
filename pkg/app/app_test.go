package app_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docvault/pkg/app"
	"github.com/yeisme/docvault/pkg/configs"
	"github.com/yeisme/docvault/pkg/internal/service"
	"github.com/yeisme/docvault/pkg/internal/storage/blob"
)

func testConfig(t *testing.T) (configs.AppConfig, string) {
	t.Helper()

	dir := t.TempDir()

	cfg, err := configs.Load(dir)
	require.NoError(t, err)

	cfg.DB.Type = configs.DBSQLite
	cfg.DB.Database = filepath.Join(dir, "meta")
	cfg.Storage.Root = filepath.Join(dir, "live")
	cfg.Storage.DeletedRoot = filepath.Join(dir, "deleted")
	cfg.Events.Transport = configs.EventsTransportLocal
	cfg.Jobs.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Metrics.DBStats = false

	return cfg, dir
}

func TestLifecycle(t *testing.T) {
	cfg, dir := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	require.NoError(t, err)

	defer func() { require.NoError(t, a.Close()) }()

	done, err := a.StartWorker(ctx)
	require.NoError(t, err)

	_, err = a.Files.ProvisionUser(ctx, "alice", a.DefaultQuota())
	require.NoError(t, err)

	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("quarterly report"), 0o600))

	f, err := os.Open(src)
	require.NoError(t, err)

	defer f.Close()

	file, events, err := a.Files.CreateFile(ctx, service.CreateFileRequest{
		Name:       "notes.txt",
		Source:     f,
		SourcePath: src,
		Size:       16,
		UserID:     "alice",
	})
	require.NoError(t, err)
	require.NoError(t, a.Files.Publish(ctx, events))

	assert.Eventually(t, func() bool {
		busy, err := a.Files.Tracker().IsProcessing(ctx, file.ID)

		return err == nil && !busy
	}, 5*time.Second, 20*time.Millisecond)

	stored, user, err := a.Files.Get(ctx, "alice", file.ID)
	require.NoError(t, err)

	rc, err := a.Files.Open(ctx, stored, user, blob.Primary)
	require.NoError(t, err)

	plain, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "quarterly report", string(plain))

	// 软删除由消费者把密文移到删除目录
	_, events, err = a.Files.Remove(ctx, "alice", file.ID)
	require.NoError(t, err)
	require.NoError(t, a.Files.Publish(ctx, events))

	trashed := filepath.Join(cfg.Storage.DeletedRoot, "alice", file.ID, file.ID)
	assert.Eventually(t, func() bool {
		_, err := os.Stat(trashed)

		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	assert.NoFileExists(t, filepath.Join(cfg.Storage.Root, "alice", file.ID, file.ID))

	cancel()
	<-done
}

func TestNewRejectsBadBackend(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Storage.Backend = "tape"

	_, err := app.New(context.Background(), cfg)
	require.Error(t, err)
}

func TestNewRejectsDisabledEvents(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Events.Enabled = false

	_, err := app.New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events.enabled")
}
