// Package queue 异步任务队列：至少一次投递，handler 需要幂等
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

var (
	ErrQueueFull      = errors.New("queue: buffer full")
	ErrUnknownJobType = errors.New("queue: unknown job type")
	ErrClosed         = errors.New("queue: closed")
)

// Job 队列中的一条任务
type Job struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Key        string `json:"key"` // 分发到 worker 的 hash key
	Attempt    int    `json:"attempt"`
	EnqueuedAt int64  `json:"enqueued_at"` // 毫秒
	Payload    []byte `json:"payload"`
}

// Keyed payload 自带分发 key
type Keyed interface {
	JobKey() string
}

// NewJob 编码 payload，key 取自 Keyed，否则为任务ID
func NewJob(jobType string, payload interface{}) (Job, error) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("encode %s payload: %w", jobType, err)
	}
	job := Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		EnqueuedAt: time.Now().UnixMilli(),
		Payload:    data,
	}
	if k, ok := payload.(Keyed); ok {
		job.Key = k.JobKey()
	}
	if job.Key == "" {
		job.Key = job.ID
	}
	return job, nil
}

// Decode 解码 payload
func (j Job) Decode(v interface{}) error {
	if err := sonic.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Type, err)
	}
	return nil
}

// Producer 投递任务
type Producer interface {
	Enqueue(ctx context.Context, jobType string, payload interface{}) error
}

// Queue 可运行的队列实现
type Queue interface {
	Producer
	Run(ctx context.Context)
	Stop() error
}

// HandlerFunc 返回错误时按 max_attempts 重试
type HandlerFunc func(ctx context.Context, job Job) error

// Router jobType -> handler
type Router struct {
	handlers map[string]HandlerFunc
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

func (r *Router) Handle(jobType string, h HandlerFunc) {
	r.handlers[jobType] = h
}

func (r *Router) Dispatch(ctx context.Context, job Job) error {
	h, ok := r.handlers[job.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type)
	}
	return h(ctx, job)
}
