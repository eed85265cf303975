// Package scheduler 提供定时任务调度功能，使用 gocron/v2 库.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// updateInterval 定义状态更新间隔.
	updateInterval = 10 * time.Second
)

// ErrJobNotFound 按名称找不到任务.
var ErrJobNotFound = errors.New("job not found")

// JobStatus 表示任务的状态类型.
type JobStatus string

const (
	StatusScheduled JobStatus = "scheduled" // 任务已调度
	StatusRunning   JobStatus = "running"   // 任务正在运行
	StatusError     JobStatus = "error"     // 上次运行出错
)

// JobFunc 任务函数，返回的错误记录在 JobInfo 中.
type JobFunc func(ctx context.Context) error

// JobInfo 表示定时任务的信息，用于监控与命令行展示.
type JobInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CronExpr    string    `json:"cron_expr"`
	NextRun     time.Time `json:"next_run"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	Status      JobStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Scheduler 是定时任务调度器的实现.
type Scheduler struct {
	scheduler gocron.Scheduler
	jobs      map[string]gocron.Job // 以任务名称为键
	jobInfos  map[string]*JobInfo   // 以任务名称为键
	mu        sync.RWMutex
	logger    zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewScheduler 创建一个新的 Scheduler 实例.
func NewScheduler(logger zerolog.Logger, opts ...gocron.SchedulerOption) (*Scheduler, error) {
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	scheduler := &Scheduler{
		scheduler: s,
		jobs:      make(map[string]gocron.Job),
		jobInfos:  make(map[string]*JobInfo),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	// 启动后台任务状态更新器
	go scheduler.jobStatusUpdater()

	return scheduler, nil
}

// AddCron 添加一个基于 cron 表达式的定时任务，同一任务不会并发运行.
func (s *Scheduler) AddCron(ctx context.Context, name, cronExpr string, job JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job with name %s already exists", name)
	}

	wrappedJob := func(ctx context.Context) {
		s.updateJobStatus(name, StatusRunning, nil)

		defer func() {
			if r := recover(); r != nil {
				s.updateJobStatus(name, StatusError, fmt.Errorf("panic in job: %v", r))
				s.logger.Error().Str("job", name).Interface("panic", r).Msg("Job panicked")
			}
		}()

		err := job(ctx)
		if err != nil {
			s.logger.Error().Err(err).Str("job", name).Msg("Job failed")
		}

		s.updateJobStatus(name, StatusScheduled, err)
	}

	j, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(wrappedJob, ctx),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithEventListeners(
			gocron.AfterJobRuns(func(_ uuid.UUID, jobName string) {
				s.mu.Lock()
				defer s.mu.Unlock()

				if info, exists := s.jobInfos[jobName]; exists {
					info.LastRun = time.Now()
					info.UpdatedAt = time.Now()
				}
			}),
		),
	)
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}

	now := time.Now()
	nextRun, _ := j.NextRun()

	s.jobs[name] = j
	s.jobInfos[name] = &JobInfo{
		ID:        j.ID().String(),
		Name:      name,
		CronExpr:  cronExpr,
		NextRun:   nextRun,
		Status:    StatusScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.logger.Info().Str("job", name).Str("cron", cronExpr).Msg("Added cron job")

	return nil
}

// RemoveJobByName 通过名称移除任务，进程重启后按配置重新注册.
func (s *Scheduler) RemoveJobByName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	if err := s.scheduler.RemoveJob(job.ID()); err != nil {
		return err
	}

	delete(s.jobs, name)
	delete(s.jobInfos, name)

	s.logger.Info().Str("job", name).Msg("Removed job")

	return nil
}

// RunNow 立即运行一次任务，不影响原有调度.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	return job.RunNow()
}

// GetJobInfoByName 通过名称获取任务信息的副本.
func (s *Scheduler) GetJobInfoByName(name string) (JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, exists := s.jobInfos[name]
	if !exists {
		return JobInfo{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	return *info, nil
}

// GetJobInfos 返回所有定时任务的信息，按名称排序.
func (s *Scheduler) GetJobInfos() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]JobInfo, 0, len(s.jobInfos))
	for _, info := range s.jobInfos {
		jobs = append(jobs, *info)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })

	return jobs
}

// Start 启动调度器.
func (s *Scheduler) Start() {
	s.logger.Info().Msg("Starting scheduler")
	s.scheduler.Start()
}

// Stop 停止调度器并等待正在运行的任务结束.
func (s *Scheduler) Stop() error {
	s.logger.Info().Msg("Stopping scheduler")
	s.cancel()

	return s.scheduler.Shutdown()
}

// jobStatusUpdater 定期刷新下次运行时间.
func (s *Scheduler) jobStatusUpdater() {
	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.updateAllJobStatuses()
		}
	}
}

func (s *Scheduler) updateAllJobStatuses() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, job := range s.jobs {
		info := s.jobInfos[name]
		if info == nil {
			continue
		}

		if nextRun, err := job.NextRun(); err == nil {
			info.NextRun = nextRun
		}

		if lastRun, err := job.LastRun(); err == nil {
			info.LastRun = lastRun
		}

		info.UpdatedAt = time.Now()
	}
}

// updateJobStatus 更新任务状态，err 为 nil 且状态为 scheduled 时记录一次成功.
func (s *Scheduler) updateJobStatus(name string, status JobStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, exists := s.jobInfos[name]
	if !exists {
		return
	}

	now := time.Now()
	info.Status = status
	info.UpdatedAt = now
	info.Error = ""

	if err != nil {
		info.Status = StatusError
		info.Error = err.Error()
	} else if status == StatusScheduled {
		info.LastSuccess = now
	}
}
