package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"web3-radar/internal/worker/config"
	"web3-radar/internal/worker/dao/memdao"
	"web3-radar/internal/worker/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProducer struct {
	mu   sync.Mutex
	jobs []interface{}
	err  error
}

func (p *fakeProducer) Enqueue(ctx context.Context, jobType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, payload)
	return nil
}

type brokenCooldown struct{}

func (brokenCooldown) Acquire(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func testConf() config.AlertConfig {
	return config.AlertConfig{CooldownSec: 3600, MinScore: 75}
}

func TestShouldSendAlertMinScore(t *testing.T) {
	d := NewDispatcher(zap.NewNop(), memdao.New().Manager().AlertDAO, &fakeProducer{}, nil, testConf())
	assert.False(t, d.ShouldSendAlert(context.Background(), 1, 1, 74))
	assert.True(t, d.ShouldSendAlert(context.Background(), 1, 1, 75))
	// 无冷却存储时不限频
	assert.True(t, d.ShouldSendAlert(context.Background(), 1, 1, 80))
}

func TestShouldSendAlertCooldown(t *testing.T) {
	d := NewDispatcher(zap.NewNop(), memdao.New().Manager().AlertDAO, &fakeProducer{}, NewLocalCooldown(), testConf())
	ctx := context.Background()

	assert.True(t, d.ShouldSendAlert(ctx, 1, 7, 90))
	assert.False(t, d.ShouldSendAlert(ctx, 1, 7, 90))
	assert.True(t, d.ShouldSendAlert(ctx, 2, 7, 90), "cooldown is per user")
	assert.True(t, d.ShouldSendAlert(ctx, 1, 8, 90), "cooldown is per coin")
}

func TestShouldSendAlertCooldownErrorFailsOpen(t *testing.T) {
	d := NewDispatcher(zap.NewNop(), memdao.New().Manager().AlertDAO, &fakeProducer{}, brokenCooldown{}, testConf())
	assert.True(t, d.ShouldSendAlert(context.Background(), 1, 1, 90))
}

func TestCreateAlertPersistsAndEnqueues(t *testing.T) {
	store := memdao.New()
	p := &fakeProducer{}
	d := NewDispatcher(zap.NewNop(), store.Manager().AlertDAO, p, nil, testConf())

	sid := int64(3)
	eid := "evt-1"
	err := d.CreateAlert(context.Background(), Input{
		UserID: 10, CoinID: 2, ChatID: "chat-1", SignalID: &sid, EventID: &eid, Score: 80, Message: "PEPE accumulation",
	})
	require.NoError(t, err)

	alerts := store.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, model.ALERT_STATUS_PENDING, alerts[0].Status)
	assert.NotEmpty(t, alerts[0].AlertID)
	assert.Equal(t, 80.0, alerts[0].Score)

	require.Len(t, p.jobs, 1)
	payload := p.jobs[0].(model.SendNotificationPayload)
	assert.Equal(t, alerts[0].AlertID, payload.AlertID)
	assert.Equal(t, "chat-1", payload.ChatID)
}

func TestCreateAlertWithoutChat(t *testing.T) {
	store := memdao.New()
	p := &fakeProducer{}
	d := NewDispatcher(zap.NewNop(), store.Manager().AlertDAO, p, nil, testConf())

	require.NoError(t, d.CreateAlert(context.Background(), Input{UserID: 1, CoinID: 1, Score: 90}))
	assert.Len(t, store.Alerts(), 1)
	assert.Empty(t, p.jobs)
}

func TestCreateAlertEnqueueError(t *testing.T) {
	p := &fakeProducer{err: errors.New("queue full")}
	d := NewDispatcher(zap.NewNop(), memdao.New().Manager().AlertDAO, p, nil, testConf())
	err := d.CreateAlert(context.Background(), Input{UserID: 1, CoinID: 1, ChatID: "c", Score: 90})
	assert.Error(t, err)
}
