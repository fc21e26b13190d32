package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"web3-radar/internal/worker/model"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewJobUsesPayloadKey(t *testing.T) {
	job, err := NewJob(model.JOB_EVALUATE_RULES, model.EvaluateRulesPayload{EventID: "evt-1"})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", job.Key)
	assert.NotEmpty(t, job.ID)

	var p model.EvaluateRulesPayload
	require.NoError(t, job.Decode(&p))
	assert.Equal(t, "evt-1", p.EventID)

	anon, err := NewJob("other", map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, anon.ID, anon.Key)
}

func TestRouterUnknownType(t *testing.T) {
	r := NewRouter()
	err := r.Dispatch(context.Background(), Job{Type: "nope"})
	assert.True(t, errors.Is(err, ErrUnknownJobType))
}

func TestMemoryQueueDelivers(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan struct{}, 3)
	r := NewRouter()
	r.Handle(model.JOB_EVALUATE_RULES, func(ctx context.Context, job Job) error {
		var p model.EvaluateRulesPayload
		if err := job.Decode(&p); err != nil {
			return err
		}
		mu.Lock()
		got = append(got, p.EventID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	q := NewMemoryQueue(zap.NewNop(), r, 2, 10, 3)
	q.Run(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(context.Background(), model.JOB_EVALUATE_RULES, model.EvaluateRulesPayload{EventID: id}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job not delivered")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, got)
}

func TestMemoryQueueRetriesUntilMaxAttempts(t *testing.T) {
	var calls int32
	r := NewRouter()
	r.Handle("flaky", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	})

	q := NewMemoryQueue(zap.NewNop(), r, 1, 10, 3)
	q.SetRetryBackoff(0)
	q.Run(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), "flaky", struct{}{}))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 3 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestMemoryQueueRetrySucceeds(t *testing.T) {
	var calls int32
	r := NewRouter()
	r.Handle("once", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("transient")
		}
		return nil
	})

	q := NewMemoryQueue(zap.NewNop(), r, 1, 10, 3)
	q.SetRetryBackoff(time.Millisecond)
	q.Run(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), "once", struct{}{}))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestMemoryQueueFullAndClosed(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop(), NewRouter(), 1, 1, 3)
	// 未启动 worker，第二个任务无处可放
	require.NoError(t, q.Enqueue(context.Background(), "x", model.EvaluateRulesPayload{EventID: "k"}))
	err := q.Enqueue(context.Background(), "x", model.EvaluateRulesPayload{EventID: "k"})
	assert.ErrorIs(t, err, ErrQueueFull)

	require.NoError(t, q.Stop())
	err = q.Enqueue(context.Background(), "x", model.EvaluateRulesPayload{EventID: "k"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryQueueWaitIdleCoversFollowUpsAndRetries(t *testing.T) {
	var children, flaky int32
	r := NewRouter()
	q := NewMemoryQueue(zap.NewNop(), r, 2, 10, 3)
	q.SetRetryBackoff(20 * time.Millisecond)

	r.Handle("parent", func(ctx context.Context, job Job) error {
		return q.Enqueue(ctx, "child", struct{}{})
	})
	r.Handle("child", func(ctx context.Context, job Job) error {
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&children, 1)
		return nil
	})
	r.Handle("flaky", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&flaky, 1) == 1 {
			return errors.New("transient")
		}
		return nil
	})
	q.Run(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), "parent", struct{}{}))
	require.NoError(t, q.Enqueue(context.Background(), "flaky", struct{}{}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.WaitIdle(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&children))
	assert.Equal(t, int32(2), atomic.LoadInt32(&flaky))
}

type captureWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaQueueProduce(t *testing.T) {
	w := &captureWriter{}
	q := &KafkaQueue{tl: zap.NewNop(), topic: "radar_jobs", writer: w}

	payload := model.SendNotificationPayload{AlertID: "a1", ChatID: "chat-9", Message: "hi"}
	require.NoError(t, q.Enqueue(context.Background(), model.JOB_SEND_NOTIFICATION, payload))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "radar_jobs", w.msgs[0].Topic)
	assert.Equal(t, "chat-9", string(w.msgs[0].Key))
	assert.Contains(t, string(w.msgs[0].Value), model.JOB_SEND_NOTIFICATION)
}
