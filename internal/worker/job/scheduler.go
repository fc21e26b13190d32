package job

import (
	"context"
	"sync"
	"time"

	"web3-radar/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// JobFunc 定义作业执行函数
type JobFunc func(ctx context.Context) error

// Scheduler 周期作业调度器，同一作业串行执行，上一次未结束不会启动下一次
type Scheduler struct {
	jobs    map[string]*ScheduledJob
	running bool
	mu      sync.Mutex
	logger  *zap.Logger
}

// ScheduledJob 表示一个调度的作业
type ScheduledJob struct {
	name      string
	interval  time.Duration
	timeout   time.Duration
	immediate bool
	fn        JobFunc
	stopCh    chan struct{}
	done      sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
}

// JobOption 作业选项
type JobOption func(*ScheduledJob)

// WithTimeout 单次执行超时，默认 interval/2
func WithTimeout(d time.Duration) JobOption {
	return func(j *ScheduledJob) { j.timeout = d }
}

// WithDelayedStart 启动后等一个周期再执行
func WithDelayedStart() JobOption {
	return func(j *ScheduledJob) { j.immediate = false }
}

// NewScheduler 创建调度器
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		jobs:   make(map[string]*ScheduledJob),
		logger: logger,
	}
}

// RegisterJob 注册作业
func (s *Scheduler) RegisterJob(name string, interval time.Duration, fn JobFunc, opts ...JobOption) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := &ScheduledJob{
		name:      name,
		interval:  interval,
		timeout:   interval / 2,
		immediate: true,
		fn:        fn,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}
	s.jobs[name] = j

	s.logger.Info("Registered job",
		zap.String("job", name),
		zap.Duration("interval", interval),
		zap.Duration("timeout", j.timeout))
}

// Start 启动调度器
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	for _, job := range s.jobs {
		j := job
		j.done.Add(1)
		go func() {
			defer j.done.Done()
			s.runJob(ctx, j)
		}()
	}
}

// Stop 停止调度器，等待正在执行的作业退出或 ctx 超时
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false

	for _, job := range s.jobs {
		job.mu.Lock()
		if job.cancel != nil {
			job.cancel()
		}
		job.mu.Unlock()
		close(job.stopCh)
	}
	jobs := make([]*ScheduledJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	s.mu.Unlock()

	s.logger.Warn("Stopping scheduler...")

	waitCh := make(chan struct{})
	go func() {
		for _, j := range jobs {
			j.done.Wait()
		}
		close(waitCh)
	}()

	select {
	case <-waitCh:
		s.logger.Info("All jobs stopped successfully")
	case <-ctx.Done():
		s.logger.Warn("Context deadline exceeded while waiting for jobs to stop")
	}
}

// runJob 运行单个作业
func (s *Scheduler) runJob(ctx context.Context, job *ScheduledJob) {
	s.logger.Info("Running job", zap.String("job", job.name))

	ticker := time.NewTicker(job.interval)
	defer ticker.Stop()

	if job.immediate {
		s.executeJob(ctx, job)
	}

	for {
		select {
		case <-ticker.C:
			s.executeJob(ctx, job)
		case <-job.stopCh:
			s.logger.Info("Stopping job", zap.String("job", job.name))
			return
		case <-ctx.Done():
			s.logger.Info("Context cancelled, stopping job", zap.String("job", job.name))
			return
		}
	}
}

// executeJob 执行作业并处理错误
func (s *Scheduler) executeJob(ctx context.Context, job *ScheduledJob) {
	select {
	case <-job.stopCh:
		return
	default:
	}

	jobCtx, cancel := context.WithCancel(ctx)
	if job.timeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, job.timeout)
	}
	job.mu.Lock()
	job.cancel = cancel
	job.mu.Unlock()
	defer cancel()

	jobCtx, span := logger.StartSpan(jobCtx, "scheduler", job.name, attribute.String("job", job.name))
	defer span.End()
	tl := logger.WithTrace(jobCtx, s.logger)

	tl.Debug("Starting job execution", zap.String("job", job.name))
	startTime := time.Now()

	if err := job.fn(jobCtx); err != nil {
		tl.Error("Job execution failed",
			zap.String("job", job.name),
			zap.Error(err),
			zap.Duration("duration", time.Since(startTime)))
	} else {
		tl.Debug("Job execution completed",
			zap.String("job", job.name),
			zap.Duration("duration", time.Since(startTime)))
	}
}
