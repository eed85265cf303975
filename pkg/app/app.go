// Package app 把配置装配成可运行的进程：存储资源、文件服务、事件消费者、定时任务与运维 HTTP 服务.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/yeisme/docvault/pkg/cache"
	"github.com/yeisme/docvault/pkg/configs"
	"github.com/yeisme/docvault/pkg/internal/dao"
	"github.com/yeisme/docvault/pkg/internal/encrypt"
	"github.com/yeisme/docvault/pkg/internal/jobs"
	"github.com/yeisme/docvault/pkg/internal/model"
	"github.com/yeisme/docvault/pkg/internal/ocr"
	"github.com/yeisme/docvault/pkg/internal/processing"
	"github.com/yeisme/docvault/pkg/internal/quota"
	"github.com/yeisme/docvault/pkg/internal/service"
	"github.com/yeisme/docvault/pkg/internal/storage"
	"github.com/yeisme/docvault/pkg/internal/storage/kv"
	"github.com/yeisme/docvault/pkg/internal/worker"
	"github.com/yeisme/docvault/pkg/log"
	"github.com/yeisme/docvault/pkg/metrics"
	"github.com/yeisme/docvault/pkg/middleware"
	"github.com/yeisme/docvault/pkg/queue"
	"github.com/yeisme/docvault/pkg/scheduler"
	"github.com/yeisme/docvault/pkg/tracing"
)

// sizeCacheNamespace 文件大小缓存的键前缀.
const sizeCacheNamespace = "size"

// App 一个装配完成的进程.
type App struct {
	cfg    configs.AppConfig
	logger zerolog.Logger

	Storage *storage.Manager
	Files   *service.FileService
	OCR     *ocr.Pipeline
	Worker  *worker.Worker
	Sched   *scheduler.Scheduler
	Ops     *gin.Engine

	defaultQuota int64
}

// New 按配置装配全部组件. 返回的 App 需要 Close.
func New(ctx context.Context, cfg configs.AppConfig) (a *App, err error) {
	logger := log.Component("app")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := tracing.InitTracer(cfg.Tracing); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if err := metrics.InitMetrics(cfg.Metrics); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	globalQuota, err := cfg.Storage.GlobalQuotaBytes()
	if err != nil {
		return nil, err
	}

	defaultQuota, err := cfg.Storage.DefaultQuotaBytes()
	if err != nil {
		return nil, err
	}

	var storageOpts []storage.Option
	if cfg.Metrics.Enabled {
		storageOpts = append(storageOpts, storage.WithRegistry(metrics.GetRegistry()))
	}

	mgr, err := storage.New(ctx, cfg, storageOpts...)
	if err != nil {
		return nil, err
	}

	a = &App{cfg: cfg, logger: logger, Storage: mgr, defaultQuota: defaultQuota}

	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if err := mgr.DB.AutoMigrate(model.Models()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	users := dao.NewUserDao(mgr.DB.DB)

	var events *queue.Dispatcher
	if mgr.MQ != nil {
		events = queue.NewDispatcher(mgr.MQ,
			queue.WithTopic(cfg.Events.Topic),
			queue.WithProducerName(cfg.Events.Producer),
			queue.WithDispatcherLogger(log.Component("events")),
		)
	}

	a.Files = service.NewFileService(cfg.Storage, service.Deps{
		Files:   dao.NewFileDao(mgr.DB.DB),
		Users:   users,
		Blobs:   mgr.Blob,
		Cipher:  encrypt.New(cfg.Storage.Encrypt),
		Ledger:  quota.NewLedger(users, globalQuota),
		Tracker: newTracker(mgr.KV),
		Sizes:   cache.NewCache(mgr.KV, sizeCacheNamespace),
		Events:  events,
		Logger:  log.Component("files"),
	})

	a.OCR = ocr.New(cfg.OCR, ocr.WithLogger(log.Component("ocr")))

	a.Worker = worker.New(a.Files, a.OCR,
		worker.WithLogger(log.Component("worker")),
		worker.WithRateLimit(cfg.OCR.RateLimit),
	)

	if mgr.MQ != nil {
		if err := a.Worker.Register(mgr.MQ, cfg.Events.Topic); err != nil {
			return nil, err
		}
	}

	if a.Sched, err = scheduler.NewScheduler(log.Component("scheduler")); err != nil {
		return nil, err
	}

	if err := jobs.RegisterCronJobs(ctx, a.Sched, cfg.Jobs, mgr.Blob, log.Component("jobs")); err != nil {
		return nil, err
	}

	a.Ops = NewOpsEngine(log.Component("ops"), a.healthChecks())
	RegisterJobRoutes(a.Ops.Group("/jobs"), a.Sched)

	if err := metrics.StartMetricsServer(cfg.Metrics, a.Ops); err != nil {
		return nil, err
	}

	// groupcache 节点之间经由运维端口互相取值
	if gc, ok := mgr.KV.KVStore.(*kv.GroupcacheKV); ok {
		if h := gc.PeerHandler(); h != nil {
			a.Ops.Any(kv.PeerBasePath+"*key", gin.WrapH(h))
		}
	}

	logger.Info().
		Bool("encrypt", cfg.Storage.Encrypt).
		Bool("soft_delete", cfg.Storage.SoftDelete).
		Int64("global_quota", globalQuota).
		Msg("application assembled")

	return a, nil
}

// newTracker 非共享 KV 使用进程内集合，Redis 与 NATS 让多个进程看到同一个处理集合.
func newTracker(store *kv.Client) processing.Tracker {
	if !store.Type().Shared() {
		return processing.NewMemory()
	}

	return processing.NewKV(store, processing.DefaultTTL)
}

// DefaultQuota 新用户的默认配额.
func (a *App) DefaultQuota() int64 {
	return a.defaultQuota
}

// StartWorker 在后台运行事件消费者，返回时 Router 已开始消费. 未启用事件时什么都不做.
func (a *App) StartWorker(ctx context.Context) (<-chan error, error) {
	done := make(chan error, 1)

	if a.Storage.MQ == nil {
		close(done)

		return done, nil
	}

	go func() { done <- a.Storage.MQ.Run(ctx) }()

	select {
	case <-a.Storage.MQ.Running():
		return done, nil
	case err := <-done:
		return nil, fmt.Errorf("start worker: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run 运行事件消费者、定时任务与运维 HTTP 服务，直到 ctx 取消或任何一个失败.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	workerDone, err := a.StartWorker(ctx)
	if err != nil {
		return err
	}

	g.Go(func() error {
		if err := <-workerDone; err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("worker: %w", err)
		}

		return nil
	})

	a.Sched.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:           a.Ops,
		ReadHeaderTimeout: a.cfg.Server.HeaderTimeout,
	}

	g.Go(func() error {
		a.logger.Info().Str("addr", srv.Addr).Msg("ops server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close 释放全部资源.
func (a *App) Close() error {
	var errList []error

	if a.Sched != nil {
		errList = append(errList, a.Sched.Stop())
	}

	if a.Storage != nil {
		errList = append(errList, a.Storage.Close())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errList = append(errList, tracing.ShutdownTracer(ctx))

	return errors.Join(errList...)
}

// NewOpsEngine 创建提供 /health 与指标的运维引擎，定时任务接口由 RegisterJobRoutes 另行挂载.
func NewOpsEngine(logger zerolog.Logger, checks map[string]HealthCheck) *gin.Engine {
	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.TracingMiddleware("/metrics"),
		middleware.GinLoggerMiddleware(logger),
		middleware.PrometheusMiddleware(),
	)

	RegisterHealthRoutes(engine.Group("/health"), checks)

	return engine
}
