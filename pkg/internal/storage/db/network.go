//go:build !no_network_db

package db

import (
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yeisme/docvault/pkg/configs"
)

// 多实例部署时共享的元数据库. 文件名与 ID 都不超过 255 字节.
func init() {
	RegisterDialectorFactory(configs.DBPostgres, func(dsn string) gorm.Dialector {
		return postgres.New(postgres.Config{DSN: dsn})
	})

	RegisterDialectorFactory(configs.DBMySQL, func(dsn string) gorm.Dialector {
		return mysql.New(mysql.Config{DSN: dsn, DefaultStringSize: 255})
	})
}
