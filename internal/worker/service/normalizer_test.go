package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"web3-radar/internal/worker/dao"
	"web3-radar/internal/worker/dao/memdao"
	"web3-radar/internal/worker/model"
	"web3-radar/pkg/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func intPtr(v int) *int { return &v }

func sampleTransfer() provider.Transfer {
	return provider.Transfer{
		Provider:    "alchemy",
		Chain:       "ETH",
		Contract:    "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		Symbol:      "TKN",
		Decimals:    intPtr(6),
		From:        "0x28C6c06298d514Db089934071355E5743bf21d60",
		To:          "0x000000000000000000000000000000000000dEaD",
		RawValue:    "0x3b9aca00", // 1e9
		BlockNumber: 19_000_000,
		TxHash:      "0xABCDEF",
		LogIndex:    intPtr(3),
		Timestamp:   1_700_000_000_000, // 毫秒
	}
}

func TestEventID(t *testing.T) {
	tr := sampleTransfer()
	assert.Equal(t, "0xabcdef:3", EventID(tr))

	tr.LogIndex = nil
	assert.Equal(t, "0xabcdef:0", EventID(tr))

	tr.UniqueID = "0xabcdef:log:3"
	assert.Equal(t, "0xabcdef:log:3", EventID(tr))
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer(zap.NewNop(), memdao.New().Manager().EventDAO)

	event, err := n.Normalize(sampleTransfer())
	require.NoError(t, err)
	assert.Equal(t, "ethereum", event.Chain)
	assert.Equal(t, model.EventTransfer, event.Type)
	assert.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", event.TokenContract)
	assert.Equal(t, "0x28c6c06298d514db089934071355e5743bf21d60", event.FromAddress)
	assert.Equal(t, 6, event.TokenDecimals)
	assert.InDelta(t, 1000.0, event.Amount, 1e-9)
	assert.Nil(t, event.AmountUsd)
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), event.Timestamp)

	Enrich(event, 2.5)
	require.NotNil(t, event.AmountUsd)
	assert.InDelta(t, 2500.0, *event.AmountUsd, 1e-9)

	// 已有 amount_usd 不重新计算
	Enrich(event, 10)
	assert.InDelta(t, 2500.0, *event.AmountUsd, 1e-9)
}

func TestNormalizeMissingFields(t *testing.T) {
	n := NewNormalizer(zap.NewNop(), memdao.New().Manager().EventDAO)

	tr := sampleTransfer()
	tr.Chain = " "
	_, err := n.Normalize(tr)
	require.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "chain")

	tr = sampleTransfer()
	tr.TxHash = ""
	_, err = n.Normalize(tr)
	require.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "txHash")
}

func TestNormalizeMalformedValue(t *testing.T) {
	n := NewNormalizer(zap.NewNop(), memdao.New().Manager().EventDAO)
	tr := sampleTransfer()
	tr.RawValue = "0xZZ"
	tr.Decimals = nil
	event, err := n.Normalize(tr)
	require.NoError(t, err)
	assert.Equal(t, 0.0, event.Amount)
	assert.Equal(t, 18, event.TokenDecimals)
}

func TestIngestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memdao.New()
	n := NewNormalizer(zap.NewNop(), store.Manager().EventDAO)

	for i, want := range []bool{true, false, false} {
		event, err := n.Normalize(sampleTransfer())
		require.NoError(t, err)
		inserted, err := n.Ingest(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, want, inserted, "attempt %d", i)
	}
	assert.Len(t, store.Events(), 1)
}

// racyEventDAO 查询总是返回不存在，模拟两个 worker 同时插入
type racyEventDAO struct {
	dao.EventDAO
}

func (racyEventDAO) GetByEventID(context.Context, string) (*model.NormalizedEvent, error) {
	return nil, dao.ErrNotFound
}

func TestIngestConcurrentDuplicateIsNoop(t *testing.T) {
	ctx := context.Background()
	store := memdao.New()
	n := NewNormalizer(zap.NewNop(), racyEventDAO{store.Manager().EventDAO})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		errs     []error
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			event, _ := n.Normalize(sampleTransfer())
			ok, err := n.Ingest(ctx, event)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if ok {
				inserted++
			}
		}()
	}
	wg.Wait()
	assert.Empty(t, errs)
	assert.Equal(t, 1, inserted)
	assert.Len(t, store.Events(), 1)
}

type failingEventDAO struct {
	dao.EventDAO
}

func (failingEventDAO) GetByEventID(context.Context, string) (*model.NormalizedEvent, error) {
	return nil, errors.New("connection reset")
}

func TestIngestLookupError(t *testing.T) {
	n := NewNormalizer(zap.NewNop(), failingEventDAO{})
	event, err := n.Normalize(sampleTransfer())
	require.NoError(t, err)
	_, err = n.Ingest(context.Background(), event)
	assert.Error(t, err)
}

func TestNormalizeMetadataEncodeFailure(t *testing.T) {
	n := NewNormalizer(zap.NewNop(), memdao.New().Manager().EventDAO)
	n.marshal = func(interface{}) ([]byte, error) { return nil, errors.New("unsupported value") }

	event, err := n.Normalize(sampleTransfer())
	require.NoError(t, err)
	assert.Nil(t, event.Metadata)
	assert.NotEmpty(t, event.EventID)
}
