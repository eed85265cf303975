//go:build !no_sqlite && cgo

package db

import (
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yeisme/docvault/pkg/configs"
)

// CGo 驱动，参数写法与纯 Go 版本不同.
func init() {
	RegisterDialectorFactory(configs.DBSQLite, func(dsn string) gorm.Dialector {
		if !strings.Contains(dsn, "?") && !strings.Contains(dsn, "mode=memory") {
			dsn += "?_busy_timeout=5000&_journal_mode=WAL"
		}

		return sqlite.Open(dsn)
	})
}
