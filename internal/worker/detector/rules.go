package detector

import (
	"context"
	"fmt"
	"math"
	"time"

	"web3-radar/internal/worker/model"
)

const (
	clusterWindow     = time.Hour
	clusterMinWallets = 3
	swapSpikeWindow   = time.Hour
	lpAddLiquidityPct = 5.0
)

// DefaultRules 固定顺序的规则集，最大分合计 108
func DefaultRules() []Rule {
	return []Rule{
		LargeTransfer{},
		AccumulationPattern{},
		WhaleCluster{},
		DexSwapSpike{},
		LPAdd{},
		PriceVolumeConfirmation{},
	}
}

func notTriggered(name, reason string) Result {
	return Result{RuleName: name, Reason: reason}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// LargeTransfer 单笔大额：amountUsd >= max(阈值, 1% 流动性)
type LargeTransfer struct{}

func (LargeTransfer) Name() string      { return RuleLargeTransfer }
func (LargeTransfer) MaxScore() float64 { return 20 }
func (LargeTransfer) Requires() []Input { return []Input{InputAmountUsd} }

func (r LargeTransfer) Evaluate(_ context.Context, ec *EvalContext) Result {
	usd, _ := ec.amountUsd()
	threshold, floor := ec.largeTransferThreshold()
	evidence := map[string]interface{}{
		"amount_usd":      usd,
		"threshold_usd":   threshold,
		"liquidity_floor": floor,
	}
	if usd < threshold {
		res := notTriggered(r.Name(), fmt.Sprintf("amount $%.2f below threshold $%.2f", usd, threshold))
		res.Evidence = evidence
		return res
	}
	return Result{
		RuleName:  r.Name(),
		Triggered: true,
		Score:     r.MaxScore(),
		Reason:    fmt.Sprintf("transfer of $%.2f >= $%.2f", usd, threshold),
		Evidence:  evidence,
	}
}

// AccumulationPattern 数量(15) + 供应占比(15) + 流动性占比(10)
type AccumulationPattern struct{}

const (
	accUnitsScore     = 15
	accSupplyScore    = 15
	accLiquidityScore = 10
)

func (AccumulationPattern) Name() string      { return RuleAccumulationPattern }
func (AccumulationPattern) MaxScore() float64 { return 40 }
func (AccumulationPattern) Requires() []Input { return []Input{InputAmountUsd} }

func (r AccumulationPattern) Evaluate(_ context.Context, ec *EvalContext) Result {
	usd, _ := ec.amountUsd()
	amount := ec.Event.Amount
	cfg := ec.Config

	var (
		score   float64
		matched []string
	)
	evidence := map[string]interface{}{
		"amount_units":    amount,
		"units_threshold": cfg.UnitsThreshold,
	}

	if amount >= cfg.UnitsThreshold {
		score += accUnitsScore
		matched = append(matched, "units")
	}
	if supply, ok := ec.supply(); ok {
		pct := amount / supply * 100
		evidence["supply_percentage"] = pct
		if pct >= cfg.SupplyPercentage {
			score += accSupplyScore
			matched = append(matched, "supply")
		}
	}
	if liq, ok := ec.liquidity(); ok {
		ratio := usd / liq * 100
		evidence["liquidity_ratio"] = ratio
		if ratio >= cfg.LiquidityRatio {
			score += accLiquidityScore
			matched = append(matched, "liquidity")
		}
	}
	score = math.Min(score, r.MaxScore())
	evidence["matched"] = matched

	if score <= 0 {
		res := notTriggered(r.Name(), "no accumulation sub-rule matched")
		res.Evidence = evidence
		return res
	}
	return Result{
		RuleName:  r.Name(),
		Triggered: true,
		Score:     score,
		Reason:    fmt.Sprintf("matched %v", matched),
		Evidence:  evidence,
	}
}

// WhaleCluster 本笔为大额，且 1 小时内 >= 3 个不同地址收到大额转账
type WhaleCluster struct{}

func (WhaleCluster) Name() string      { return RuleWhaleCluster }
func (WhaleCluster) MaxScore() float64 { return 18 }
func (WhaleCluster) Requires() []Input { return []Input{InputAmountUsd} }

func (r WhaleCluster) Evaluate(ctx context.Context, ec *EvalContext) Result {
	usd, _ := ec.amountUsd()
	threshold, _ := ec.largeTransferThreshold()
	if usd < threshold {
		return notTriggered(r.Name(), "event is not a large transfer")
	}
	if ec.Stats == nil {
		return notTriggered(r.Name(), "cluster statistics unavailable")
	}

	e := ec.Event
	wallets, err := ec.Stats.CountLargeRecipients(ctx, e.Chain, e.TokenContract, threshold, e.Timestamp.Add(-clusterWindow), e.Timestamp)
	if err != nil {
		return notTriggered(r.Name(), fmt.Sprintf("cluster lookup failed: %v", err))
	}
	evidence := map[string]interface{}{
		"wallets":       wallets,
		"threshold_usd": threshold,
		"window":        clusterWindow.String(),
	}
	if wallets < clusterMinWallets {
		res := notTriggered(r.Name(), fmt.Sprintf("%d large recipients in window, need %d", wallets, clusterMinWallets))
		res.Evidence = evidence
		return res
	}
	score := math.Min(r.MaxScore(), 12+2*float64(wallets-clusterMinWallets))
	return Result{
		RuleName:  r.Name(),
		Triggered: true,
		Score:     score,
		Reason:    fmt.Sprintf("%d wallets received large transfers within %s", wallets, clusterWindow),
		Evidence:  evidence,
	}
}

// DexSwapSpike 1 小时 swap 量 >= 基线均值 * 倍数
type DexSwapSpike struct{}

func (DexSwapSpike) Name() string      { return RuleDexSwapSpike }
func (DexSwapSpike) MaxScore() float64 { return 12 }
func (DexSwapSpike) Requires() []Input { return []Input{InputBaselineSwap} }

func (r DexSwapSpike) Evaluate(ctx context.Context, ec *EvalContext) Result {
	e := ec.Event
	if e.Type != model.EventSwap {
		return notTriggered(r.Name(), "not a swap event")
	}
	if ec.Stats == nil {
		return notTriggered(r.Name(), "swap statistics unavailable")
	}
	volume, err := ec.Stats.SumSwapUsd(ctx, e.Chain, e.TokenContract, e.Timestamp.Add(-swapSpikeWindow), e.Timestamp)
	if err != nil {
		return notTriggered(r.Name(), fmt.Sprintf("swap volume lookup failed: %v", err))
	}

	threshold := ec.Baseline.AvgSwapUsd * ec.Config.SwapSpikeFactor
	ratio := volume / threshold
	evidence := map[string]interface{}{
		"volume_1h_usd":      volume,
		"baseline_swap_usd":  ec.Baseline.AvgSwapUsd,
		"spike_factor":       ec.Config.SwapSpikeFactor,
		"ratio_to_threshold": round2(ratio),
		"baseline_estimated": ec.Baseline.Estimated,
	}
	if ratio < 1 {
		res := notTriggered(r.Name(), fmt.Sprintf("1h swap volume $%.2f below $%.2f", volume, threshold))
		res.Evidence = evidence
		return res
	}

	factor := 0.8
	switch {
	case ratio >= 2:
		factor = 1.0
	case ratio >= 1.5:
		factor = 0.9
	}
	return Result{
		RuleName:  r.Name(),
		Triggered: true,
		Score:     round2(r.MaxScore() * factor),
		Reason:    fmt.Sprintf("1h swap volume %.2fx of spike threshold", ratio),
		Evidence:  evidence,
	}
}

// LPAdd 加池金额 >= 阈值 或 >= 5% 当前流动性
type LPAdd struct{}

func (LPAdd) Name() string      { return RuleLPAdd }
func (LPAdd) MaxScore() float64 { return 8 }
func (LPAdd) Requires() []Input { return []Input{InputAmountUsd} }

func (r LPAdd) Evaluate(_ context.Context, ec *EvalContext) Result {
	if ec.Event.Type != model.EventLPAdd {
		return notTriggered(r.Name(), "not an lp_add event")
	}
	usd, _ := ec.amountUsd()
	evidence := map[string]interface{}{
		"amount_usd":    usd,
		"threshold_usd": ec.Config.LPAddUsd,
	}

	pct := -1.0
	if liq, ok := ec.liquidity(); ok {
		pct = usd / liq * 100
		evidence["liquidity_pct"] = pct
	}
	if usd < ec.Config.LPAddUsd && pct < lpAddLiquidityPct {
		res := notTriggered(r.Name(), "liquidity add below thresholds")
		res.Evidence = evidence
		return res
	}

	score := 6.0
	switch {
	case pct >= 20:
		score = 8
	case pct >= 10:
		score = 7
	}
	return Result{
		RuleName:  r.Name(),
		Triggered: true,
		Score:     score,
		Reason:    fmt.Sprintf("liquidity add of $%.2f", usd),
		Evidence:  evidence,
	}
}

// PriceVolumeConfirmation 价格上涨 >2%，或价格持平(±1%)且成交额 >= 2 倍基线
type PriceVolumeConfirmation struct{}

func (PriceVolumeConfirmation) Name() string      { return RulePriceVolume }
func (PriceVolumeConfirmation) MaxScore() float64 { return 10 }
func (PriceVolumeConfirmation) Requires() []Input {
	return []Input{InputCurrentPrice, InputBaselinePrice, InputBaselineVolume}
}

func (r PriceVolumeConfirmation) Evaluate(_ context.Context, ec *EvalContext) Result {
	base := ec.Baseline
	change := (ec.CurrentPrice - base.Price) / base.Price * 100
	usd, _ := ec.amountUsd()
	volumeRatio := usd / base.AvgTransferUsd
	evidence := map[string]interface{}{
		"current_price":      ec.CurrentPrice,
		"baseline_price":     base.Price,
		"price_change_pct":   round2(change),
		"volume_ratio":       round2(volumeRatio),
		"baseline_estimated": base.Estimated,
	}

	switch {
	case change > 2:
		return Result{
			RuleName:  r.Name(),
			Triggered: true,
			Score:     r.MaxScore(),
			Reason:    fmt.Sprintf("price up %.2f%%", change),
			Evidence:  evidence,
		}
	case math.Abs(change) <= 1 && volumeRatio >= 2:
		return Result{
			RuleName:  r.Name(),
			Triggered: true,
			Score:     8,
			Reason:    fmt.Sprintf("flat price with %.2fx baseline volume", volumeRatio),
			Evidence:  evidence,
		}
	}
	res := notTriggered(r.Name(), "no price/volume confirmation")
	res.Evidence = evidence
	return res
}
