package memdao

import (
	"context"
	"testing"
	"time"

	"web3-radar/internal/worker/dao"
	"web3-radar/internal/worker/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	m := New().Manager()

	require.NoError(t, m.EventDAO.Create(ctx, &model.NormalizedEvent{EventID: "a"}))
	err := m.EventDAO.Create(ctx, &model.NormalizedEvent{EventID: "a"})
	assert.ErrorIs(t, err, dao.ErrDuplicateKey)

	_, err = m.EventDAO.GetByEventID(ctx, "missing")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func TestBackfillOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	m := New().Manager()
	require.NoError(t, m.EventDAO.Create(ctx, &model.NormalizedEvent{EventID: "a"}))

	ok, err := m.EventDAO.BackfillAmountUsd(ctx, "a", 10)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.EventDAO.BackfillAmountUsd(ctx, "a", 20)
	require.NoError(t, err)
	assert.False(t, ok)

	e, err := m.EventDAO.GetByEventID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 10.0, e.UsdValue())
}

func TestCursorNeverRegresses(t *testing.T) {
	ctx := context.Background()
	m := New().Manager()

	_, found, err := m.CursorDAO.Get(ctx, 1, "ethereum")
	require.NoError(t, err)
	assert.False(t, found)

	for _, step := range []struct {
		block   uint64
		written bool
		want    uint64
	}{
		{100, true, 100},
		{90, false, 100},
		{100, false, 100},
		{101, true, 101},
	} {
		written, err := m.CursorDAO.Advance(ctx, 1, "ethereum", step.block)
		require.NoError(t, err)
		assert.Equal(t, step.written, written, "block %d", step.block)
		got, _, _ := m.CursorDAO.Get(ctx, 1, "ethereum")
		assert.Equal(t, step.want, got)
	}
}

func TestBaselineAndWindows(t *testing.T) {
	ctx := context.Background()
	m := New().Manager()
	now := time.Unix(1_700_000_000, 0)
	usd := func(v float64) *float64 { return &v }

	events := []*model.NormalizedEvent{
		{EventID: "t1", Chain: "ethereum", TokenContract: "0xt", Type: model.EventTransfer, Timestamp: now.Add(-2 * time.Hour), Amount: 10, AmountUsd: usd(100), ToAddress: "0x1"},
		{EventID: "t2", Chain: "ethereum", TokenContract: "0xt", Type: model.EventTransfer, Timestamp: now.Add(-30 * time.Minute), Amount: 10, AmountUsd: usd(300), ToAddress: "0x2"},
		{EventID: "s1", Chain: "ethereum", TokenContract: "0xt", Type: model.EventSwap, Timestamp: now.Add(-10 * time.Minute), Amount: 5, AmountUsd: usd(60), ToAddress: "0x3"},
		{EventID: "other", Chain: "bsc", TokenContract: "0xt", Type: model.EventTransfer, Timestamp: now, Amount: 1, AmountUsd: usd(1e6)},
	}
	for _, e := range events {
		require.NoError(t, m.EventDAO.Create(ctx, e))
	}

	b, err := m.EventDAO.GetBaseline(ctx, "ethereum", "0xt", now.Add(-7*24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, 200.0, b.AvgTransferUsd)
	assert.Equal(t, int64(2), b.TransferCount)
	assert.Equal(t, 60.0, b.AvgSwapUsd)
	assert.Equal(t, 12.0, b.LastPrice)

	n, err := m.EventDAO.CountLargeRecipients(ctx, "ethereum", "0xt", 100, now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sum, err := m.EventDAO.SumSwapUsd(ctx, "ethereum", "0xt", now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, 60.0, sum)
}

func TestListTrackedAndFalsePositive(t *testing.T) {
	ctx := context.Background()
	s := New()
	m := s.Manager()

	active := s.PutCoin(&model.Coin{Chain: "ethereum", ContractAddress: "0xa", IsActive: true})
	s.PutCoin(&model.Coin{Chain: "ethereum", ContractAddress: "0xb"})
	watched := s.PutCoin(&model.Coin{Chain: "ethereum", ContractAddress: "0xc"})
	s.PutCoin(&model.Coin{Chain: "bsc", ContractAddress: "0xd", IsFamous: true})
	s.AddWatcher(&model.WatchlistEntry{UserID: 7, CoinID: watched.ID})

	coins, err := m.CoinDAO.ListTracked(ctx, "ethereum")
	require.NoError(t, err)
	require.Len(t, coins, 2)
	assert.Equal(t, active.ID, coins[0].ID)
	assert.Equal(t, watched.ID, coins[1].ID)

	sig := &model.AccumulationSignal{CoinID: active.ID, AmountUsd: 60_000, Score: 90}
	require.NoError(t, m.SignalDAO.CreateAccumulation(ctx, sig))
	require.NoError(t, m.SignalDAO.MarkFalsePositive(ctx, dao.SignalAccumulation, sig.ID, "ops", "wash trade"))
	assert.True(t, s.AccumulationSignals()[0].FalsePositive)
	assert.ErrorIs(t, m.SignalDAO.MarkFalsePositive(ctx, dao.SignalMarket, 42, "ops", ""), dao.ErrNotFound)
}
