package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"web3-radar/internal/worker/config"
	"web3-radar/internal/worker/dao"
	"web3-radar/internal/worker/dao/memdao"
	"web3-radar/internal/worker/model"
	"web3-radar/internal/worker/scanner"
	"web3-radar/internal/worker/service"
	"web3-radar/pkg/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	pepe  = "0x6982508145454ce325ddbe47a25d4ec3d2311933"
	shib  = "0x95ad61b0a150d79219dcf64e1e6cc01f0b64c4ce"
	floki = "0xcf0c122c6b73ff809c693db761e7baebe62b6a2e"
)

type fetchCall struct {
	chain    string
	contract string
	from, to uint64
}

type fakeChain struct {
	mu          sync.Mutex
	heads       map[string]uint64
	headErr     map[string]error
	transfers   map[string][]provider.Transfer
	ignoreRange bool
	calls       []fetchCall
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		heads:     map[string]uint64{"ethereum": 1000},
		headErr:   map[string]error{},
		transfers: map[string][]provider.Transfer{},
	}
}

func (f *fakeChain) Name() string { return "fake" }

func (f *fakeChain) LatestBlock(_ context.Context, chain string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.headErr[chain]; err != nil {
		return 0, err
	}
	return f.heads[chain], nil
}

func (f *fakeChain) FetchTransfers(_ context.Context, chain, contract string, from, to uint64, opts provider.FetchOptions) ([]provider.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{chain: chain, contract: contract, from: from, to: to})
	var out []provider.Transfer
	for _, t := range f.transfers[contract] {
		if !f.ignoreRange && (t.BlockNumber < from || t.BlockNumber > to) {
			continue
		}
		out = append(out, t)
		if opts.MaxCount > 0 && len(out) >= opts.MaxCount {
			break
		}
	}
	return out, nil
}

func (f *fakeChain) contracts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.contract
	}
	return out
}

type fixedPrices map[int64]float64

func (p fixedPrices) Resolve(_ context.Context, coin *model.Coin) (float64, bool) {
	v, ok := p[coin.ID]
	return v, ok
}

type captureProducer struct {
	mu   sync.Mutex
	ids  []string
	fail bool
}

func (p *captureProducer) Enqueue(_ context.Context, jobType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("queue full")
	}
	if jobType == model.JOB_EVALUATE_RULES {
		p.ids = append(p.ids, payload.(model.EvaluateRulesPayload).EventID)
	}
	return nil
}

func (p *captureProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}

type recordingScanner struct {
	prices []float64
}

func (s *recordingScanner) Scan(_ context.Context, _ *model.Coin, _ uint64, priceUsd float64) (*scanner.Result, error) {
	s.prices = append(s.prices, priceUsd)
	return &scanner.Result{}, nil
}

// failingEvents 指定区块的写入失败
type failingEvents struct {
	dao.EventDAO
	failBlock uint64
}

func (f *failingEvents) Create(ctx context.Context, event *model.NormalizedEvent) error {
	if f.failBlock != 0 && event.BlockNumber == f.failBlock {
		return errors.New("connection reset")
	}
	return f.EventDAO.Create(ctx, event)
}

func xfer(contract string, block uint64, logIndex int) provider.Transfer {
	li := logIndex
	return provider.Transfer{
		From:        "0x1111111111111111111111111111111111111111",
		To:          "0x2222222222222222222222222222222222222222",
		RawValue:    "1000000000000000000000",
		BlockNumber: block,
		TxHash:      fmt.Sprintf("0x%064x", block),
		LogIndex:    &li,
		Timestamp:   1_717_243_200 + int64(block),
	}
}

type fixture struct {
	store    *memdao.Store
	chain    *fakeChain
	producer *captureProducer
	events   *failingEvents
	conf     config.IngestionConfig
	sleeps   int
}

func newFixture() *fixture {
	store := memdao.New()
	return &fixture{
		store:    store,
		chain:    newFakeChain(),
		producer: &captureProducer{},
		events:   &failingEvents{EventDAO: store.Manager().EventDAO},
		conf: config.IngestionConfig{
			Chains:               []string{"eth"},
			MaxTokensPerTick:     5,
			InitialBacklogBlocks: 20,
			MaxEventsPerTick:     50,
		},
	}
}

func (f *fixture) coin(contract string) *model.Coin {
	return f.store.PutCoin(&model.Coin{Chain: "ethereum", ContractAddress: contract, Symbol: "TKN", Decimals: 18, IsActive: true})
}

func (f *fixture) job(prices fixedPrices, sc TokenScanner) *IngestionJob {
	daos := f.store.Manager()
	normalizer := service.NewNormalizer(zap.NewNop(), f.events)
	j := NewIngestionJob(f.conf, zap.NewNop(), daos, f.chain, nil, prices, normalizer, sc, f.producer)
	j.SetSleep(func(context.Context, time.Duration) error {
		f.sleeps++
		return nil
	})
	return j
}

func (f *fixture) cursor(t *testing.T, coinID int64) uint64 {
	t.Helper()
	v, ok, err := f.store.Manager().CursorDAO.Get(context.Background(), coinID, "ethereum")
	require.NoError(t, err)
	require.True(t, ok)
	return v
}

func TestIngestionInsertsAndEnqueues(t *testing.T) {
	f := newFixture()
	coin := f.coin(pepe)
	f.chain.transfers[pepe] = []provider.Transfer{
		xfer(pepe, 970, 0), // 早于初始回溯窗口
		xfer(pepe, 985, 0),
		xfer(pepe, 990, 1),
		xfer(pepe, 995, 2),
	}
	sc := &recordingScanner{}

	report, err := f.job(fixedPrices{coin.ID: 0.5}, sc).RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 3, report.Inserted)
	assert.Equal(t, 3, report.Enqueued)
	assert.Equal(t, uint64(995), f.cursor(t, coin.ID))

	require.Len(t, f.chain.calls, 1)
	assert.Equal(t, uint64(980), f.chain.calls[0].from)
	assert.Equal(t, uint64(1000), f.chain.calls[0].to)
	assert.Equal(t, []float64{0.5}, sc.prices)

	events := f.store.Events()
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, "ethereum", e.Chain)
		assert.Equal(t, pepe, e.TokenContract)
		require.NotNil(t, e.AmountUsd)
		assert.InDelta(t, 500, *e.AmountUsd, 1e-9)
	}
}

func TestIngestionReprocessingIsIdempotent(t *testing.T) {
	f := newFixture()
	coin := f.coin(pepe)
	f.chain.transfers[pepe] = []provider.Transfer{xfer(pepe, 985, 0), xfer(pepe, 990, 0)}
	j := f.job(nil, nil)

	_, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, f.producer.count())

	// provider 再次返回同一批记录：不重复入库，评估任务重新入队
	f.chain.ignoreRange = true
	report, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Inserted)
	assert.Equal(t, 2, report.Duplicates)
	assert.Equal(t, 2, report.Enqueued)
	assert.Equal(t, 4, f.producer.count())
	assert.Len(t, f.store.Events(), 2)
	assert.Equal(t, uint64(990), f.cursor(t, coin.ID))
}

func TestIngestionNoPriceLeavesUsdEmpty(t *testing.T) {
	f := newFixture()
	f.coin(pepe)
	f.chain.transfers[pepe] = []provider.Transfer{xfer(pepe, 985, 0)}

	_, err := f.job(fixedPrices{}, nil).RunOnce(context.Background())
	require.NoError(t, err)
	events := f.store.Events()
	require.Len(t, events, 1)
	assert.Nil(t, events[0].AmountUsd)
}

func TestIngestionTruncatedFetchRereadsHighestBlock(t *testing.T) {
	f := newFixture()
	f.conf.MaxEventsPerTick = 2
	coin := f.coin(pepe)
	f.chain.transfers[pepe] = []provider.Transfer{
		xfer(pepe, 985, 0),
		xfer(pepe, 990, 0),
		xfer(pepe, 990, 1),
		xfer(pepe, 995, 0),
	}
	j := f.job(nil, nil)

	_, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(989), f.cursor(t, coin.ID))

	_, err = j.RunOnce(context.Background())
	require.NoError(t, err)
	// 截断批次只有一个区块时无法回退，直接推进到该区块
	assert.Equal(t, uint64(990), f.cursor(t, coin.ID))
	assert.Len(t, f.store.Events(), 3)
}

func TestIngestionTruncationAcrossTicks(t *testing.T) {
	f := newFixture()
	f.conf.MaxEventsPerTick = 2
	coin := f.coin(pepe)
	f.chain.transfers[pepe] = []provider.Transfer{
		xfer(pepe, 985, 0),
		xfer(pepe, 990, 0),
		xfer(pepe, 995, 0),
	}
	j := f.job(nil, nil)

	var cursors []uint64
	var inserted, duplicates int
	for i := 0; i < 3; i++ {
		report, err := j.RunOnce(context.Background())
		require.NoError(t, err)
		inserted += report.Inserted
		duplicates += report.Duplicates
		cursors = append(cursors, f.cursor(t, coin.ID))
	}
	assert.Equal(t, []uint64{989, 994, 995}, cursors)
	assert.Equal(t, 3, inserted)
	assert.Equal(t, 2, duplicates)
	assert.Equal(t, 5, f.producer.count())
}

func TestIngestionPersistFailureHoldsCursor(t *testing.T) {
	f := newFixture()
	coin := f.coin(pepe)
	f.chain.transfers[pepe] = []provider.Transfer{
		xfer(pepe, 985, 0),
		xfer(pepe, 990, 0),
		xfer(pepe, 995, 0),
	}
	f.events.failBlock = 990
	j := f.job(nil, nil)

	report, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, uint64(989), f.cursor(t, coin.ID))

	f.events.failBlock = 0
	report, err = j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, uint64(995), f.cursor(t, coin.ID))
	assert.Equal(t, 4, f.producer.count())
}

func TestIngestionCursorNeverRegresses(t *testing.T) {
	f := newFixture()
	coin := f.coin(pepe)
	_, err := f.store.Manager().CursorDAO.Advance(context.Background(), coin.ID, "ethereum", 995)
	require.NoError(t, err)

	// provider 返回旧区块的数据
	f.chain.ignoreRange = true
	f.chain.transfers[pepe] = []provider.Transfer{xfer(pepe, 900, 0)}

	report, err := f.job(nil, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, uint64(995), f.cursor(t, coin.ID))
	assert.Equal(t, uint64(996), f.chain.calls[0].from)
}

func TestIngestionCursorAtHeadSkipsFetch(t *testing.T) {
	f := newFixture()
	coin := f.coin(pepe)
	_, err := f.store.Manager().CursorDAO.Advance(context.Background(), coin.ID, "ethereum", 1000)
	require.NoError(t, err)

	_, err = f.job(nil, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.chain.calls)
}

func TestIngestionEnqueueFailureRecoveredOnReread(t *testing.T) {
	f := newFixture()
	coin := f.coin(pepe)
	f.chain.transfers[pepe] = []provider.Transfer{xfer(pepe, 985, 0)}
	f.producer.fail = true
	j := f.job(nil, nil)

	report, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 0, report.Enqueued)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, uint64(985), f.cursor(t, coin.ID))

	// 队列恢复后 provider 重放同一区间，已入库的事件仍要进入评估
	f.producer.fail = false
	f.chain.ignoreRange = true
	report, err = j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Inserted)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 1, report.Enqueued)
	assert.Equal(t, []string{fmt.Sprintf("0x%064x:0", 985)}, f.producer.ids)
	assert.Equal(t, uint64(985), f.cursor(t, coin.ID))
}

func TestIngestionInvalidTransferCountsTowardsCursor(t *testing.T) {
	f := newFixture()
	coin := f.coin(pepe)
	bad := xfer(pepe, 999, 0)
	bad.TxHash = ""
	f.chain.transfers[pepe] = []provider.Transfer{xfer(pepe, 985, 0), bad}

	report, err := f.job(nil, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.Invalid)
	assert.Equal(t, uint64(999), f.cursor(t, coin.ID))
}

func TestIngestionRotatesTokenBatches(t *testing.T) {
	f := newFixture()
	f.conf.MaxTokensPerTick = 2
	f.coin(pepe)
	f.coin(shib)
	f.coin(floki)
	j := f.job(nil, nil)

	_, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	_, err = j.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{pepe, shib, floki, pepe}, f.chain.contracts())
	// 每批第一个 token 之前不等待
	assert.Equal(t, 2, f.sleeps)
}

func TestIngestionSkipsOverlappingTick(t *testing.T) {
	f := newFixture()
	f.coin(pepe)
	j := f.job(nil, nil)
	j.running.Store(true)

	report, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Empty(t, f.chain.calls)

	j.running.Store(false)
	report, err = j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Skipped)
}

func TestIngestionChainFailureDoesNotBlockOthers(t *testing.T) {
	f := newFixture()
	f.conf.Chains = []string{"eth", "base"}
	f.chain.headErr["ethereum"] = errors.New("rpc down")
	f.chain.heads["base"] = 500
	f.coin(pepe)
	baseCoin := f.store.PutCoin(&model.Coin{Chain: "base", ContractAddress: shib, Decimals: 18, IsActive: true})
	f.chain.transfers[shib] = []provider.Transfer{xfer(shib, 490, 0)}

	report, err := f.job(nil, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Chains)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.Inserted)

	v, ok, err := f.store.Manager().CursorDAO.Get(context.Background(), baseCoin.ID, "base")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(490), v)
}

func TestNextCursor(t *testing.T) {
	tests := []struct {
		name          string
		highest       uint64
		lowest        uint64
		truncated     bool
		persistFailed bool
		failedBlock   uint64
		want          uint64
	}{
		{name: "complete fetch", highest: 120, lowest: 100, want: 120},
		{name: "truncated", highest: 120, lowest: 100, truncated: true, want: 119},
		{name: "truncated single block", highest: 120, lowest: 120, truncated: true, want: 120},
		{name: "persist failure", highest: 120, lowest: 100, persistFailed: true, failedBlock: 110, want: 109},
		{name: "failure after truncation point", highest: 120, lowest: 100, truncated: true, persistFailed: true, failedBlock: 120, want: 119},
		{name: "failure at block zero", highest: 5, persistFailed: true, failedBlock: 0, want: 0},
		{name: "empty", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextCursor(tt.highest, tt.lowest, tt.truncated, tt.persistFailed, tt.failedBlock))
		})
	}
}
