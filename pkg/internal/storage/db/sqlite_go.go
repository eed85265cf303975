//go:build !no_sqlite && !cgo

package db

import (
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/yeisme/docvault/pkg/configs"
)

// 纯 Go 驱动，单机部署的默认选项. 文件事件消费者与 CLI 会并发写入，需要 WAL 与忙等待.
func init() {
	RegisterDialectorFactory(configs.DBSQLite, func(dsn string) gorm.Dialector {
		if !strings.Contains(dsn, "?") && !strings.Contains(dsn, "mode=memory") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}

		return sqlite.Open(dsn)
	})
}
