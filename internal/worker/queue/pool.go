package queue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"web3-radar/internal/worker/monitor"
	"web3-radar/pkg/utils"

	"go.uber.org/zap"
)

const retryBackoff = 2 * time.Second

// workerPool 按 key hash 分发到固定 worker，同一 key 串行处理
type workerPool struct {
	id          string
	tl          *zap.Logger
	router      *Router
	buffers     []chan Job
	maxAttempts int
	retry       func(ctx context.Context, job Job) error
	onDone      func(job Job)
	wg          sync.WaitGroup
}

func newWorkerPool(id string, tl *zap.Logger, router *Router, workers, bufferSize, maxAttempts int) *workerPool {
	if workers <= 0 {
		workers = 1
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}
	buffers := make([]chan Job, workers)
	for i := range buffers {
		buffers[i] = make(chan Job, bufferSize)
	}
	return &workerPool{
		id:          id,
		tl:          tl,
		router:      router,
		buffers:     buffers,
		maxAttempts: maxAttempts,
	}
}

func (p *workerPool) start(ctx context.Context) {
	for i := range p.buffers {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
}

func (p *workerPool) work(ctx context.Context, idx int) {
	defer p.wg.Done()
	for {
		select {
		case job, ok := <-p.buffers[idx]:
			if !ok {
				return
			}
			p.handle(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

func (p *workerPool) handle(ctx context.Context, job Job) {
	if p.onDone != nil {
		defer p.onDone(job)
	}
	startTime := time.Now()
	err := p.router.Dispatch(ctx, job)
	monitor.QueueJobDuration.WithLabelValues(job.Type).Observe(time.Since(startTime).Seconds())
	if err == nil {
		monitor.QueueJobsProcessed.WithLabelValues(job.Type, "ok").Inc()
		return
	}

	monitor.QueueJobsProcessed.WithLabelValues(job.Type, "error").Inc()
	if errors.Is(err, ErrUnknownJobType) || job.Attempt+1 >= p.maxAttempts || p.retry == nil {
		monitor.QueueJobsDropped.WithLabelValues(job.Type).Inc()
		p.tl.Error("job failed, giving up",
			zap.String("queue", p.id),
			zap.String("job_id", job.ID),
			zap.String("job_type", job.Type),
			zap.Int("attempt", job.Attempt),
			zap.Error(err))
		return
	}

	p.tl.Warn("job failed, retrying",
		zap.String("queue", p.id),
		zap.String("job_id", job.ID),
		zap.String("job_type", job.Type),
		zap.Int("attempt", job.Attempt),
		zap.Error(err))
	job.Attempt++
	if rerr := p.retry(ctx, job); rerr != nil {
		monitor.QueueJobsDropped.WithLabelValues(job.Type).Inc()
		p.tl.Error("job retry enqueue failed", zap.String("job_id", job.ID), zap.Error(rerr))
	}
}

// dispatch 非阻塞投递，buffer 满时返回 ErrQueueFull
func (p *workerPool) dispatch(job Job) error {
	idx := utils.GetHashBucket(job.Key, uint32(len(p.buffers)))
	select {
	case p.buffers[idx] <- job:
		monitor.QueueWorkerJobsDispatched.WithLabelValues(strconv.Itoa(int(idx))).Inc()
		return nil
	default:
		monitor.QueueJobsDropped.WithLabelValues(job.Type).Inc()
		p.tl.Warn("queue buffer is full, dropping job",
			zap.String("queue", p.id),
			zap.String("job_type", job.Type),
			zap.String("job_id", job.ID),
			zap.Uint32("idx", idx))
		return ErrQueueFull
	}
}

// dispatchWait 阻塞投递，用于 kafka 消费端的背压
func (p *workerPool) dispatchWait(ctx context.Context, job Job) error {
	idx := utils.GetHashBucket(job.Key, uint32(len(p.buffers)))
	select {
	case p.buffers[idx] <- job:
		monitor.QueueWorkerJobsDispatched.WithLabelValues(strconv.Itoa(int(idx))).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *workerPool) wait() {
	p.wg.Wait()
}
