// Package jobs 负责注册与实现业务定时任务（基于 scheduler）.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yeisme/docvault/pkg/configs"
	"github.com/yeisme/docvault/pkg/internal/storage/blob"
	"github.com/yeisme/docvault/pkg/scheduler"
)

// RegisterCronJobs 按配置注册业务定时任务：
//   - trash.purge 清理软删除区中超过保留天数的产物，保留天数为 0 时不注册
func RegisterCronJobs(ctx context.Context, sched *scheduler.Scheduler, cfg configs.JobsConfig, blobs blob.Store, logger zerolog.Logger) error {
	if sched == nil {
		return fmt.Errorf("scheduler is nil")
	}

	if !cfg.Enabled || cfg.TrashRetentionDays <= 0 {
		logger.Info().Msg("trash purge disabled")

		return nil
	}

	if blobs == nil {
		return fmt.Errorf("blob store is nil")
	}

	return sched.AddCron(ctx, JobTrashPurge, cfg.TrashPurgeCron, func(ctx context.Context) error {
		_, err := PurgeTrash(ctx, blobs, cfg.TrashRetentionDays, time.Now(), logger)

		return err
	})
}

// PurgeTrash 删除软删除区中早于 now 减去 retentionDays 天的产物，返回删除数量.
func PurgeTrash(ctx context.Context, blobs blob.Store, retentionDays int, now time.Time, logger zerolog.Logger) (int, error) {
	before := now.AddDate(0, 0, -retentionDays)
	l := logger.With().Str("job", JobTrashPurge).Str("backend", blobs.Name()).Logger()

	n, err := blobs.Purge(ctx, blob.Deleted, before)
	if err != nil {
		l.Error().Err(err).Int("purged", n).Msg("purge failed")

		return n, err
	}

	if n > 0 {
		l.Info().Int("purged", n).Time("before", before).Msg("purged deleted files")
	}

	return n, nil
}
