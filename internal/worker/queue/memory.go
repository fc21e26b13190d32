package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"web3-radar/internal/worker/monitor"

	"go.uber.org/zap"
)

// MemoryQueue 进程内队列，重启即丢失
type MemoryQueue struct {
	pool    *workerPool
	backoff time.Duration
	pending atomic.Int64 // 已入队未处理完的任务，含等待重试的

	mu      sync.RWMutex
	closed  bool
	cancel  context.CancelFunc
	started bool
}

// NewMemoryQueue workers 个 worker，每个 buffer 大小为 bufferSize
func NewMemoryQueue(tl *zap.Logger, router *Router, workers, bufferSize, maxAttempts int) *MemoryQueue {
	q := &MemoryQueue{
		pool:    newWorkerPool("memory", tl, router, workers, bufferSize, maxAttempts),
		backoff: retryBackoff,
	}
	q.pool.retry = q.requeue
	q.pool.onDone = func(Job) { q.pending.Add(-1) }
	return q
}

// SetRetryBackoff 测试用
func (q *MemoryQueue) SetRetryBackoff(d time.Duration) {
	q.backoff = d
}

func (q *MemoryQueue) Run(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	ctx, q.cancel = context.WithCancel(ctx)
	q.started = true
	q.mu.Unlock()

	q.pool.start(ctx)
}

func (q *MemoryQueue) Enqueue(ctx context.Context, jobType string, payload interface{}) error {
	job, err := NewJob(jobType, payload)
	if err != nil {
		return err
	}
	q.pending.Add(1)
	if err := q.push(job); err != nil {
		q.pending.Add(-1)
		return err
	}
	return nil
}

func (q *MemoryQueue) push(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	monitor.QueueJobsReceived.WithLabelValues(job.Type).Inc()
	return q.pool.dispatch(job)
}

// requeue 在 handle 返回前调用，pending 不会在重试间隙归零
func (q *MemoryQueue) requeue(ctx context.Context, job Job) error {
	q.pending.Add(1)
	if q.backoff <= 0 {
		if err := q.push(job); err != nil {
			q.pending.Add(-1)
			return err
		}
		return nil
	}
	go func() {
		select {
		case <-time.After(q.backoff * time.Duration(job.Attempt)):
			if err := q.push(job); err != nil {
				q.pending.Add(-1)
				q.pool.tl.Warn("memory queue requeue failed", zap.String("job_id", job.ID), zap.Error(err))
			}
		case <-ctx.Done():
			q.pending.Add(-1)
		}
	}()
	return nil
}

// WaitIdle 等待所有已入队任务处理完，包括处理中产生的新任务
func (q *MemoryQueue) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for q.pending.Load() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stop 停止接收新任务并等待 worker 退出
func (q *MemoryQueue) Stop() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	cancel := q.cancel
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.pool.wait()
	return nil
}
