// Package db 打开元数据库. 各驱动在带构建标签的文件里注册，不需要的驱动可以在构建时去掉.
package db

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormPrometheus "gorm.io/plugin/prometheus"

	"github.com/yeisme/docvault/pkg/configs"
	nlog "github.com/yeisme/docvault/pkg/log"
)

// DialectorFactory 由连接串构造 dialector.
type DialectorFactory func(dsn string) gorm.Dialector

var dialectorFactories = map[configs.DBType]DialectorFactory{}

// RegisterDialectorFactory 注册一种方言，重复注册时后者覆盖前者.
func RegisterDialectorFactory(dbType configs.DBType, factory DialectorFactory) {
	dialectorFactories[dbType] = factory
}

// GetRegisteredDBTypes 返回编译进来的方言，按名称排序.
func GetRegisteredDBTypes() []configs.DBType {
	types := make([]configs.DBType, 0, len(dialectorFactories))
	for dbType := range dialectorFactories {
		types = append(types, dbType)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// Client 包装 GORM DB 客户端.
type Client struct {
	*gorm.DB
}

// metricsRefreshSeconds 连接池指标的采集间隔.
const metricsRefreshSeconds = 15

// New 打开数据库并检查连通性. withMetrics 为真时挂上 gorm prometheus 插件，
// 指标进入默认注册表，由 ops 引擎的 /metrics 一并暴露.
func New(ctx context.Context, cfg configs.DBConfig, withMetrics bool) (*Client, error) {
	dialect := cfg.Dialect()

	factory, ok := dialectorFactories[dialect]
	if !ok {
		return nil, fmt.Errorf("database type %q is not compiled in (have %v)", cfg.Type, GetRegisteredDBTypes())
	}

	dsn, err := cfg.ConnString()
	if err != nil {
		return nil, err
	}

	log := nlog.Component("db")

	db, err := gorm.Open(factory(dsn), &gorm.Config{
		Logger: logger.New(&log, logger.Config{
			SlowThreshold:             cfg.SlowQuery,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()

		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}

	if withMetrics {
		err := db.Use(gormPrometheus.New(gormPrometheus.Config{
			DBName:          cfg.Database,
			RefreshInterval: metricsRefreshSeconds,
		}))
		if err != nil {
			_ = sqlDB.Close()

			return nil, fmt.Errorf("register gorm metrics: %w", err)
		}
	}

	log.Info().
		Str("type", string(dialect)).
		Str("endpoint", cfg.Endpoint()).
		Bool("metrics", withMetrics).
		Msg("数据库连接成功")

	return &Client{DB: db}, nil
}
