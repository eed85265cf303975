package configs

import "github.com/spf13/viper"

const (
	DefaultJobsEnabled            = true
	DefaultJobsTrashRetentionDays = 30
	DefaultJobsTrashPurgeCron     = "0 4 * * *"
)

// JobsConfig 定时任务配置.
type JobsConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	TrashRetentionDays int    `mapstructure:"trash_retention_days" rule:"min=0"` // 软删除文件保留天数，0 表示不清理
	TrashPurgeCron     string `mapstructure:"trash_purge_cron"`
}

func (c *JobsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("jobs.enabled", DefaultJobsEnabled)
	v.SetDefault("jobs.trash_retention_days", DefaultJobsTrashRetentionDays)
	v.SetDefault("jobs.trash_purge_cron", DefaultJobsTrashPurgeCron)
}
