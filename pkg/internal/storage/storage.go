// Package storage 聚合进程使用的存储资源：元数据数据库、KV、消息队列与 blob 存储.
//
// Example:
//
//	mgr, err := storage.New(ctx, cfg, storage.WithRegistry(reg))
//	if err != nil {
//		return err
//	}
//	defer mgr.Close()
//
//	files := dao.NewFileDao(mgr.DB.DB)
//	blobs := mgr.Blob
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yeisme/docvault/pkg/configs"
	"github.com/yeisme/docvault/pkg/internal/storage/blob"
	dbc "github.com/yeisme/docvault/pkg/internal/storage/db"
	kvc "github.com/yeisme/docvault/pkg/internal/storage/kv"
	mqc "github.com/yeisme/docvault/pkg/internal/storage/mq"
	s3c "github.com/yeisme/docvault/pkg/internal/storage/s3"
	nlog "github.com/yeisme/docvault/pkg/log"
)

// Manager 聚合所有存储资源.
type Manager struct {
	DB   *dbc.Client
	KV   *kvc.Client
	MQ   *mqc.Client
	S3   *s3c.Client // 仅 s3 后端
	Blob blob.Store
}

// Option 配置 Manager 的构造.
type Option func(*managerOptions)

type managerOptions struct {
	registry prometheus.Registerer
}

// WithRegistry 启用 GORM 与 MQ 指标并注册到 reg.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *managerOptions) { o.registry = reg }
}

// New 按配置初始化全部存储资源，任何一步失败都会关闭已打开的资源.
func New(ctx context.Context, cfg configs.AppConfig, opts ...Option) (m *Manager, err error) {
	var o managerOptions
	for _, opt := range opts {
		opt(&o)
	}

	m = &Manager{}

	defer func() {
		if err != nil {
			_ = m.Close()
			m = nil
		}
	}()

	if m.DB, err = dbc.New(ctx, cfg.DB, o.registry != nil && cfg.Metrics.DBStats); err != nil {
		return nil, err
	}

	if m.KV, err = kvc.New(ctx, cfg.KV); err != nil {
		return nil, fmt.Errorf("init kv: %w", err)
	}

	if m.Blob, err = newBlobStore(ctx, cfg, m); err != nil {
		return nil, err
	}

	if cfg.Events.Enabled {
		mqCfg := cfg.MQ
		if cfg.Events.Transport == configs.EventsTransportLocal {
			mqCfg.Type = configs.MQTypeGoChannel
		}

		mqOpts := []mqc.Option{
			mqc.WithLogger(nlog.Component("mq")),
			mqc.WithBuffer(cfg.Events.Buffer),
		}
		if o.registry != nil {
			mqOpts = append(mqOpts, mqc.WithMetrics(o.registry))
		}

		if m.MQ, err = mqc.New(ctx, mqCfg, mqOpts...); err != nil {
			return nil, err
		}
	}

	nlog.Logger().Info().
		Str("blob", m.Blob.Name()).
		Str("kv", string(m.KV.Type())).
		Bool("events", m.MQ != nil).
		Msg("storage manager initialized")

	return m, nil
}

func newBlobStore(ctx context.Context, cfg configs.AppConfig, m *Manager) (blob.Store, error) {
	logger := nlog.Component("blob")

	switch cfg.Storage.Backend {
	case configs.BackendS3:
		client, err := s3c.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}

		m.S3 = client

		return blob.NewS3(client, cfg.Storage.S3Prefix, cfg.Storage.S3DeletedPrefix, logger)
	case configs.BackendFS, "":
		return blob.NewFileSystem(cfg.Storage.Root, cfg.Storage.DeletedRoot, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

// Close 关闭全部资源.
func (m *Manager) Close() error {
	var errList []error

	if m.MQ != nil {
		errList = append(errList, m.MQ.Close())
	}

	if m.KV != nil {
		errList = append(errList, m.KV.Close())
	}

	if m.DB != nil {
		if sqlDB, err := m.DB.DB.DB(); err == nil {
			errList = append(errList, sqlDB.Close())
		}
	}

	return errors.Join(errList...)
}
