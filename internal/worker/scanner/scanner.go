// Package scanner 钱包净流入扫描：先找出收币最多的地址，再逐个核对净流入
package scanner

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"web3-radar/internal/worker/config"
	"web3-radar/internal/worker/dao"
	"web3-radar/internal/worker/model"
	"web3-radar/internal/worker/monitor"
	"web3-radar/pkg/provider"
	"web3-radar/pkg/utils"

	"github.com/bytedance/sonic"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const RuleWalletAccumulation = "wallet_accumulation"

// Candidate 第一阶段选出的钱包
type Candidate struct {
	Wallet      string
	ReceivedRaw *big.Int
	TxCount     int
}

// WalletFlow 第二阶段单个钱包的流入流出
type WalletFlow struct {
	Wallet         string
	ReceivedRaw    *big.Int
	SentRaw        *big.Int
	NetRaw         *big.Int
	NetUnits       float64
	NetUsd         float64
	TxCount        int
	Duration       time.Duration
	DurationSource string // timestamps / blocks
	Triggered      bool
	Reason         string
	Err            error
}

// Result 一次扫描的汇总
type Result struct {
	SkipReason string
	Candidates []Candidate
	Flows      []WalletFlow
	SignalIDs  []int64
}

// Scanner 按 token 运行的两阶段扫描
type Scanner struct {
	tl       *zap.Logger
	provider provider.ChainDataProvider
	signals  dao.SignalDAO
	conf     config.ScannerConfig
	now      func() time.Time
}

func NewScanner(tl *zap.Logger, p provider.ChainDataProvider, signals dao.SignalDAO, conf config.ScannerConfig) *Scanner {
	return &Scanner{
		tl:       tl,
		provider: p,
		signals:  signals,
		conf:     conf,
		now:      time.Now,
	}
}

// SetClock 测试用
func (s *Scanner) SetClock(now func() time.Time) {
	s.now = now
}

func windowStart(head, window uint64) uint64 {
	if head > window {
		return head - window
	}
	return 0
}

// Scan 价格未知时整个扫描跳过；第一阶段失败返回错误，单个钱包失败只记录
func (s *Scanner) Scan(ctx context.Context, coin *model.Coin, head uint64, priceUsd float64) (*Result, error) {
	res := &Result{}
	tl := s.tl.With(zap.String("chain", coin.Chain), zap.String("token", coin.ContractAddress))
	if priceUsd <= 0 {
		res.SkipReason = "no price"
		tl.Info("scanner skipped, token price unknown")
		return res, nil
	}

	candidates, err := s.discover(ctx, coin, head)
	if err != nil {
		return nil, err
	}
	res.Candidates = candidates
	if len(candidates) == 0 {
		return res, nil
	}

	res.Flows = s.detect(ctx, coin, head, priceUsd, candidates)
	monitor.ScannerWalletsChecked.WithLabelValues(coin.Chain).Add(float64(len(candidates)))

	for i := range res.Flows {
		flow := &res.Flows[i]
		if flow.Err != nil {
			tl.Warn("scanner wallet query failed", zap.String("wallet", flow.Wallet), zap.Error(flow.Err))
			continue
		}
		if !flow.Triggered {
			continue
		}

		spam, err := s.signals.HasRecentAccumulation(ctx, coin.ID, s.conf.MinNetUsd, s.now().Add(-s.spamWindow()))
		if err != nil {
			tl.Warn("anti-spam check failed", zap.Error(err))
			continue
		}
		if spam {
			flow.Reason = "recent signal exists"
			tl.Info("scanner signal suppressed by anti-spam window", zap.String("wallet", flow.Wallet))
			continue
		}

		id, err := s.createSignal(ctx, coin, flow)
		if err != nil {
			tl.Error("create scanner signal failed", zap.String("wallet", flow.Wallet), zap.Error(err))
			continue
		}
		res.SignalIDs = append(res.SignalIDs, id)
		tl.Info("wallet accumulation detected",
			zap.String("wallet", flow.Wallet),
			zap.Float64("net_usd", flow.NetUsd),
			zap.Int("tx_count", flow.TxCount),
			zap.Duration("duration", flow.Duration))
	}
	return res, nil
}

func (s *Scanner) spamWindow() time.Duration {
	return time.Duration(s.conf.SpamWindowHours * float64(time.Hour))
}

func (s *Scanner) walletKey(addr, chain string) string {
	if norm, ok := utils.NormalizeAddress(addr, chain); ok {
		return norm
	}
	return addr
}

// discover 宽窗口内按收到的原始数量取 top-K，数量相同按首次出现顺序
func (s *Scanner) discover(ctx context.Context, coin *model.Coin, head uint64) ([]Candidate, error) {
	transfers, err := s.provider.FetchTransfers(ctx, coin.Chain, coin.ContractAddress,
		windowStart(head, s.conf.DiscoveryWindowBlocks), head,
		provider.FetchOptions{MaxCount: s.conf.DiscoveryMax})
	if err != nil {
		return nil, fmt.Errorf("scanner discovery: %w", err)
	}

	index := make(map[string]int)
	var all []Candidate
	for _, t := range transfers {
		if t.To == "" {
			continue
		}
		raw, ok := utils.ParseBigInt(t.RawValue)
		if !ok || raw.Sign() <= 0 {
			continue
		}
		key := s.walletKey(t.To, coin.Chain)
		i, seen := index[key]
		if !seen {
			i = len(all)
			index[key] = i
			all = append(all, Candidate{Wallet: key, ReceivedRaw: new(big.Int)})
		}
		all[i].ReceivedRaw.Add(all[i].ReceivedRaw, raw)
		all[i].TxCount++
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].ReceivedRaw.Cmp(all[j].ReceivedRaw) > 0
	})
	if len(all) > s.conf.TopK {
		all = all[:s.conf.TopK]
	}
	return all, nil
}

// detect 每个钱包的流入、流出各自独立查询，结果按候选顺序返回
func (s *Scanner) detect(ctx context.Context, coin *model.Coin, head uint64, priceUsd float64, candidates []Candidate) []WalletFlow {
	flows := make([]WalletFlow, len(candidates))
	workers := s.conf.Concurrency
	if workers <= 0 {
		workers = 1
	}
	p := pool.New().WithMaxGoroutines(workers)
	for i, c := range candidates {
		p.Go(func() {
			flows[i] = s.walletFlow(ctx, coin, head, priceUsd, c.Wallet)
		})
	}
	p.Wait()
	return flows
}

func (s *Scanner) walletFlow(ctx context.Context, coin *model.Coin, head uint64, priceUsd float64, wallet string) WalletFlow {
	flow := WalletFlow{Wallet: wallet}
	from := windowStart(head, s.conf.DetectionWindowBlocks)

	incoming, err := s.provider.FetchTransfers(ctx, coin.Chain, coin.ContractAddress, from, head,
		provider.FetchOptions{ToAddress: wallet, MaxCount: s.conf.DiscoveryMax})
	if err != nil {
		flow.Err = fmt.Errorf("incoming transfers: %w", err)
		return flow
	}
	outgoing, err := s.provider.FetchTransfers(ctx, coin.Chain, coin.ContractAddress, from, head,
		provider.FetchOptions{FromAddress: wallet, MaxCount: s.conf.DiscoveryMax})
	if err != nil {
		flow.Err = fmt.Errorf("outgoing transfers: %w", err)
		return flow
	}

	flow.ReceivedRaw = sumRaw(incoming)
	flow.SentRaw = sumRaw(outgoing)
	flow.NetRaw = new(big.Int).Sub(flow.ReceivedRaw, flow.SentRaw)
	flow.TxCount = len(incoming) + len(outgoing)
	if flow.NetRaw.Sign() <= 0 {
		flow.Reason = "net flow not positive"
		return flow
	}

	decimals := coin.Decimals
	for _, t := range incoming {
		if t.Decimals != nil {
			decimals = *t.Decimals
			break
		}
	}
	flow.NetUnits = utils.BigToUnits(flow.NetRaw, utils.NormalizeDecimals(&decimals))
	flow.NetUsd = flow.NetUnits * priceUsd

	combined := make([]provider.Transfer, 0, flow.TxCount)
	combined = append(combined, incoming...)
	combined = append(combined, outgoing...)
	flow.Duration, flow.DurationSource = s.span(coin.Chain, combined)

	minDuration := time.Duration(s.conf.MinDurationHours * float64(time.Hour))
	switch {
	case flow.NetUsd < s.conf.MinNetUsd:
		flow.Reason = fmt.Sprintf("net $%.2f below $%.2f", flow.NetUsd, s.conf.MinNetUsd)
	case flow.TxCount < s.conf.MinTxCount:
		flow.Reason = fmt.Sprintf("%d transfers, need %d", flow.TxCount, s.conf.MinTxCount)
	case flow.Duration < minDuration:
		flow.Reason = fmt.Sprintf("span %s shorter than %s", flow.Duration, minDuration)
	default:
		flow.Triggered = true
	}
	return flow
}

func sumRaw(transfers []provider.Transfer) *big.Int {
	total := new(big.Int)
	for _, t := range transfers {
		if raw, ok := utils.ParseBigInt(t.RawValue); ok && raw.Sign() > 0 {
			total.Add(total, raw)
		}
	}
	return total
}

// span 所有记录都带时间戳时用时间戳，否则按区块差估算
func (s *Scanner) span(chain string, transfers []provider.Transfer) (time.Duration, string) {
	if len(transfers) < 2 {
		return 0, "timestamps"
	}
	withTs := true
	var minTs, maxTs int64
	var minBlock, maxBlock uint64
	for i, t := range transfers {
		ts := utils.ToUnixSeconds(t.Timestamp)
		if ts <= 0 {
			withTs = false
		}
		if i == 0 {
			minTs, maxTs = ts, ts
			minBlock, maxBlock = t.BlockNumber, t.BlockNumber
			continue
		}
		minTs, maxTs = min(minTs, ts), max(maxTs, ts)
		minBlock, maxBlock = min(minBlock, t.BlockNumber), max(maxBlock, t.BlockNumber)
	}
	if withTs {
		return time.Duration(maxTs-minTs) * time.Second, "timestamps"
	}
	secs := float64(maxBlock-minBlock) * utils.SecondsPerBlock(chain, s.conf.SecondsPerBlock)
	return time.Duration(secs * float64(time.Second)), "blocks"
}

func (s *Scanner) createSignal(ctx context.Context, coin *model.Coin, flow *WalletFlow) (int64, error) {
	details, err := sonic.Marshal(map[string]interface{}{
		"received_raw":    flow.ReceivedRaw.String(),
		"sent_raw":        flow.SentRaw.String(),
		"net_raw":         flow.NetRaw.String(),
		"tx_count":        flow.TxCount,
		"duration_hours":  flow.Duration.Hours(),
		"duration_source": flow.DurationSource,
		"window_blocks":   s.conf.DetectionWindowBlocks,
	})
	if err != nil {
		return 0, err
	}

	wallet := flow.Wallet
	sig := &model.AccumulationSignal{
		CoinID:         coin.ID,
		Wallet:         &wallet,
		Source:         model.SourceWalletScanner,
		AmountUnits:    flow.NetUnits,
		AmountUsd:      flow.NetUsd,
		Score:          s.conf.SignalScore,
		TriggeredRules: []string{RuleWalletAccumulation},
		Details:        datatypes.JSON(details),
		CreatedAt:      s.now(),
	}
	if supply, ok := coin.Supply(); ok {
		pct := flow.NetUnits / supply * 100
		sig.SupplyPercentage = &pct
	}
	if liq, ok := coin.Liquidity(); ok {
		ratio := flow.NetUsd / liq * 100
		sig.LiquidityRatio = &ratio
	}
	if err := s.signals.CreateAccumulation(ctx, sig); err != nil {
		return 0, err
	}
	monitor.SignalsCreated.WithLabelValues("scanner", string(model.SourceWalletScanner)).Inc()
	return sig.ID, nil
}
