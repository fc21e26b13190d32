package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"web3-radar/internal/worker/config"
	"web3-radar/internal/worker/monitor"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MessageWriter kafka.Writer 的最小子集
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaQueue 任务写入 kafka topic，消费端按 key hash 分发到 worker
type KafkaQueue struct {
	tl      *zap.Logger
	topic   string
	writer  MessageWriter
	reader  *kafka.Reader
	limiter *rate.Limiter
	pool    *workerPool

	stopOnce sync.Once
	cancel   context.CancelFunc
	mu       sync.Mutex
}

// NewKafkaQueue reader 为 nil 时只作为 producer 使用
func NewKafkaQueue(conf config.KafkaConfig, tl *zap.Logger, writer MessageWriter, router *Router, workerConf config.WorkerConfig) *KafkaQueue {
	q := &KafkaQueue{
		tl:     tl,
		topic:  conf.TopicJobs,
		writer: writer,
		// 每秒补充3000个令牌，桶大小为3000
		limiter: rate.NewLimiter(rate.Limit(3000), 3000),
	}
	if router != nil {
		q.reader = newKafkaReader(conf, conf.TopicJobs)
		q.pool = newWorkerPool("kafka", tl, router, workerConf.WorkerNum, workerConf.QueueBuffer, workerConf.MaxAttempts)
		q.pool.retry = q.produce
	}
	return q
}

func (q *KafkaQueue) Enqueue(ctx context.Context, jobType string, payload interface{}) error {
	job, err := NewJob(jobType, payload)
	if err != nil {
		return err
	}
	return q.produce(ctx, job)
}

func (q *KafkaQueue) produce(ctx context.Context, job Job) error {
	value, err := sonic.Marshal(job)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = q.writer.WriteMessages(ctx, kafka.Message{
		Topic: q.topic,
		Key:   []byte(job.Key),
		Value: value,
	})
	if err != nil {
		return err
	}
	monitor.QueueJobsReceived.WithLabelValues(job.Type).Inc()
	return nil
}

// Run 启动消费主循环
func (q *KafkaQueue) Run(ctx context.Context) {
	if q.reader == nil {
		return
	}
	q.mu.Lock()
	ctx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()

	q.pool.start(ctx)
	go q.run(ctx)
}

func (q *KafkaQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.tl.Warn("closing Kafka job consumer...")
			return
		default:
		}

		if err := q.limiter.Wait(ctx); err != nil {
			continue
		}

		ctxWithTimeout, cancel := context.WithTimeout(ctx, 2*time.Second)
		msg, err := q.reader.ReadMessage(ctxWithTimeout)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				q.tl.Debug("kafka job consumer idle")
			} else if !errors.Is(err, context.Canceled) {
				q.tl.Warn("Kafka Read Error", zap.Error(err))
			}
			continue
		}

		var job Job
		if err := sonic.Unmarshal(msg.Value, &job); err != nil {
			q.tl.Warn("invalid job message", zap.Error(err), zap.ByteString("key", msg.Key))
			continue
		}
		if job.Key == "" {
			job.Key = string(msg.Key)
		}
		if err := q.pool.dispatchWait(ctx, job); err != nil {
			return
		}
	}
}

func (q *KafkaQueue) Stop() error {
	var err error
	q.stopOnce.Do(func() {
		q.mu.Lock()
		cancel := q.cancel
		q.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if q.pool != nil {
			q.pool.wait()
		}
		if q.reader != nil {
			err = q.reader.Close()
		}
	})
	return err
}

func newKafkaReader(conf config.KafkaConfig, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:                strings.Split(conf.Brokers, ","),
		Topic:                  topic,
		GroupID:                conf.GroupID,
		StartOffset:            kafka.FirstOffset,
		CommitInterval:         5 * time.Second,
		QueueCapacity:          2000,
		MinBytes:               1024,
		MaxBytes:               10e6,
		ReadBatchTimeout:       500 * time.Millisecond,
		PartitionWatchInterval: 5 * time.Second,
	})
}
