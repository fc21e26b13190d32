package scanner

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"web3-radar/internal/worker/config"
	"web3-radar/internal/worker/dao/memdao"
	"web3-radar/internal/worker/model"
	"web3-radar/pkg/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	token   = "0x6982508145454ce325ddbe47a25d4ec3d2311933"
	walletA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	walletB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	walletC = "0xcccccccccccccccccccccccccccccccccccccccc"
	dexPool = "0xdddddddddddddddddddddddddddddddddddddddd"
)

var scanTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// units 以 18 位精度表示的原始金额
func units(n int64) string {
	v := new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	return v.String()
}

type fakeProvider struct {
	mu        sync.Mutex
	transfers []provider.Transfer
	calls     []provider.FetchOptions
	failFor   string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) LatestBlock(context.Context, string) (uint64, error) { return 1_000_000, nil }

func (p *fakeProvider) FetchTransfers(_ context.Context, _ string, _ string, from, to uint64, opts provider.FetchOptions) ([]provider.Transfer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, opts)
	if p.failFor != "" && (opts.ToAddress == p.failFor || opts.FromAddress == p.failFor) {
		return nil, errors.New("rate limited")
	}
	var out []provider.Transfer
	for _, t := range p.transfers {
		if t.BlockNumber < from || t.BlockNumber > to {
			continue
		}
		if opts.ToAddress != "" && !strings.EqualFold(t.To, opts.ToAddress) {
			continue
		}
		if opts.FromAddress != "" && !strings.EqualFold(t.From, opts.FromAddress) {
			continue
		}
		out = append(out, t)
		if opts.MaxCount > 0 && len(out) >= opts.MaxCount {
			break
		}
	}
	return out, nil
}

func transfer(from, to string, amount int64, block uint64, ts time.Time) provider.Transfer {
	t := provider.Transfer{
		Chain:       "eth",
		Contract:    token,
		From:        from,
		To:          to,
		RawValue:    units(amount),
		BlockNumber: block,
		TxHash:      "0x01",
	}
	if !ts.IsZero() {
		t.Timestamp = ts.Unix()
	}
	return t
}

func newScanner(p provider.ChainDataProvider, store *memdao.Store) *Scanner {
	s := NewScanner(zap.NewNop(), p, store.Manager().SignalDAO, config.DefaultScannerConfig())
	s.SetClock(func() time.Time { return scanTime })
	return s
}

func testCoin(store *memdao.Store) *model.Coin {
	return store.PutCoin(&model.Coin{Chain: "eth", ContractAddress: token, Symbol: "PEPE", Decimals: 18})
}

// accumulatingWallet walletA 在 30 小时内分 3 笔收到 30,000 个
func accumulatingWallet() []provider.Transfer {
	return []provider.Transfer{
		transfer(dexPool, walletA, 10_000, 990_000, scanTime.Add(-30*time.Hour)),
		transfer(dexPool, walletA, 10_000, 995_000, scanTime.Add(-10*time.Hour)),
		transfer(dexPool, walletA, 10_000, 999_000, scanTime.Add(-time.Hour)),
	}
}

func TestScanCreatesSignalWithScore90(t *testing.T) {
	store := memdao.New()
	coin := testCoin(store)
	p := &fakeProvider{transfers: append(accumulatingWallet(),
		// walletB 收到后又全部卖出
		transfer(dexPool, walletB, 20_000, 996_000, scanTime.Add(-5*time.Hour)),
		transfer(walletB, dexPool, 25_000, 997_000, scanTime.Add(-4*time.Hour)),
	)}

	res, err := newScanner(p, store).Scan(context.Background(), coin, 1_000_000, 2.0)
	require.NoError(t, err)
	// dexPool 收到 walletB 卖出的币，也会进入候选
	require.Len(t, res.Candidates, 3)
	assert.Equal(t, walletA, res.Candidates[0].Wallet)
	assert.Equal(t, dexPool, res.Candidates[1].Wallet)
	require.Len(t, res.SignalIDs, 1)

	sigs := store.AccumulationSignals()
	require.Len(t, sigs, 1)
	assert.Equal(t, 90.0, sigs[0].Score)
	assert.Equal(t, model.SourceWalletScanner, sigs[0].Source)
	assert.Equal(t, walletA, *sigs[0].Wallet)
	assert.InDelta(t, 60_000, sigs[0].AmountUsd, 1e-6)
	assert.InDelta(t, 30_000, sigs[0].AmountUnits, 1e-9)

	var flowB WalletFlow
	for _, f := range res.Flows {
		if f.Wallet == walletB {
			flowB = f
		}
	}
	assert.False(t, flowB.Triggered)
	assert.Equal(t, -1, flowB.NetRaw.Sign())
}

func TestScanAntiSpam(t *testing.T) {
	store := memdao.New()
	coin := testCoin(store)
	require.NoError(t, store.Manager().SignalDAO.CreateAccumulation(context.Background(), &model.AccumulationSignal{
		CoinID:    coin.ID,
		Source:    model.SourceRuleEngine,
		AmountUsd: 75_000,
		Score:     80,
		CreatedAt: scanTime.Add(-2 * time.Hour),
	}))

	p := &fakeProvider{transfers: accumulatingWallet()}
	res, err := newScanner(p, store).Scan(context.Background(), coin, 1_000_000, 2.0)
	require.NoError(t, err)
	assert.Empty(t, res.SignalIDs)
	assert.Len(t, store.AccumulationSignals(), 1)
	require.Len(t, res.Flows, 1)
	assert.True(t, res.Flows[0].Triggered)
	assert.Equal(t, "recent signal exists", res.Flows[0].Reason)
}

func TestScanAntiSpamWindowExpired(t *testing.T) {
	store := memdao.New()
	coin := testCoin(store)
	require.NoError(t, store.Manager().SignalDAO.CreateAccumulation(context.Background(), &model.AccumulationSignal{
		CoinID:    coin.ID,
		AmountUsd: 75_000,
		CreatedAt: scanTime.Add(-7 * time.Hour),
	}))

	p := &fakeProvider{transfers: accumulatingWallet()}
	res, err := newScanner(p, store).Scan(context.Background(), coin, 1_000_000, 2.0)
	require.NoError(t, err)
	assert.Len(t, res.SignalIDs, 1)
}

func TestScanSkipsWithoutPrice(t *testing.T) {
	store := memdao.New()
	p := &fakeProvider{transfers: accumulatingWallet()}
	res, err := newScanner(p, store).Scan(context.Background(), testCoin(store), 1_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, "no price", res.SkipReason)
	assert.Empty(t, p.calls)
}

func TestScanThresholds(t *testing.T) {
	tests := []struct {
		name      string
		transfers []provider.Transfer
		price     float64
		reason    string
	}{
		{
			name:      "net usd too small",
			transfers: accumulatingWallet(),
			price:     1.0,
			reason:    "net $30000.00 below $50000.00",
		},
		{
			name: "too few transfers",
			transfers: []provider.Transfer{
				transfer(dexPool, walletA, 30_000, 990_000, scanTime.Add(-30*time.Hour)),
				transfer(dexPool, walletA, 1, 999_000, scanTime.Add(-time.Hour)),
			},
			price:  2.0,
			reason: "2 transfers, need 3",
		},
		{
			name: "span too short",
			transfers: []provider.Transfer{
				transfer(dexPool, walletA, 10_000, 998_000, scanTime.Add(-5*time.Hour)),
				transfer(dexPool, walletA, 10_000, 999_000, scanTime.Add(-3*time.Hour)),
				transfer(dexPool, walletA, 10_000, 999_500, scanTime.Add(-time.Hour)),
			},
			price:  2.0,
			reason: "span 4h0m0s shorter than 24h0m0s",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memdao.New()
			p := &fakeProvider{transfers: tt.transfers}
			res, err := newScanner(p, store).Scan(context.Background(), testCoin(store), 1_000_000, tt.price)
			require.NoError(t, err)
			require.Len(t, res.Flows, 1)
			assert.False(t, res.Flows[0].Triggered)
			assert.Equal(t, tt.reason, res.Flows[0].Reason)
			assert.Empty(t, store.AccumulationSignals())
		})
	}
}

func TestScanBlockSpanFallback(t *testing.T) {
	store := memdao.New()
	// 没有时间戳：10,000 个区块 * 12s ≈ 33 小时
	p := &fakeProvider{transfers: []provider.Transfer{
		transfer(dexPool, walletA, 10_000, 989_000, time.Time{}),
		transfer(dexPool, walletA, 10_000, 995_000, time.Time{}),
		transfer(dexPool, walletA, 10_000, 999_000, time.Time{}),
	}}
	res, err := newScanner(p, store).Scan(context.Background(), testCoin(store), 1_000_000, 2.0)
	require.NoError(t, err)
	require.Len(t, res.Flows, 1)
	assert.Equal(t, "blocks", res.Flows[0].DurationSource)
	assert.Equal(t, 120_000*time.Second, res.Flows[0].Duration)
	assert.True(t, res.Flows[0].Triggered)
}

func TestScanTopKAndFreshQueries(t *testing.T) {
	store := memdao.New()
	conf := config.DefaultScannerConfig()
	conf.TopK = 2
	conf.Concurrency = 3
	p := &fakeProvider{transfers: []provider.Transfer{
		transfer(dexPool, walletC, 5, 999_000, scanTime),
		transfer(dexPool, walletA, 100, 999_001, scanTime),
		transfer(dexPool, walletB, 100, 999_002, scanTime),
	}}
	s := NewScanner(zap.NewNop(), p, store.Manager().SignalDAO, conf)
	res, err := s.Scan(context.Background(), testCoin(store), 1_000_000, 1.0)
	require.NoError(t, err)

	require.Len(t, res.Candidates, 2)
	// 数量相同按首次出现顺序
	assert.Equal(t, walletA, res.Candidates[0].Wallet)
	assert.Equal(t, walletB, res.Candidates[1].Wallet)

	// 1 次发现 + 每个钱包流入、流出各 1 次
	require.Len(t, p.calls, 5)
	for _, opts := range p.calls {
		assert.Empty(t, opts.PageKey)
		assert.False(t, opts.ToAddress != "" && opts.FromAddress != "")
	}
}

func TestScanWalletErrorDoesNotAbort(t *testing.T) {
	store := memdao.New()
	p := &fakeProvider{
		transfers: append(accumulatingWallet(), transfer(dexPool, walletB, 1, 999_000, scanTime)),
		failFor:   walletB,
	}
	res, err := newScanner(p, store).Scan(context.Background(), testCoin(store), 1_000_000, 2.0)
	require.NoError(t, err)
	assert.Len(t, res.SignalIDs, 1)
	require.Len(t, res.Flows, 2)
	assert.Error(t, res.Flows[1].Err)
}
