package detector

import (
	"context"
	"time"

	"web3-radar/internal/worker/config"
	"web3-radar/internal/worker/model"
)

const (
	RuleLargeTransfer       = "large_transfer"
	RuleAccumulationPattern = "accumulation_pattern"
	RuleWhaleCluster        = "whale_cluster"
	RuleDexSwapSpike        = "dex_swap_spike"
	RuleLPAdd               = "lp_add"
	RulePriceVolume         = "price_volume_confirmation"
)

// Input 规则依赖的上下文字段
type Input string

const (
	InputAmountUsd      Input = "amountUsd"
	InputLiquidity      Input = "liquidity"
	InputCurrentPrice   Input = "currentPrice"
	InputBaselinePrice  Input = "baseline.price"
	InputBaselineVolume Input = "baseline.avgTransferUsd"
	InputBaselineSwap   Input = "baseline.avgSwapUsd"
)

// Result 单条规则的评估结果，不直接持久化
type Result struct {
	RuleName  string                 `json:"rule"`
	Triggered bool                   `json:"triggered"`
	Score     float64                `json:"score"`
	Reason    string                 `json:"reason"`
	Evidence  map[string]interface{} `json:"evidence,omitempty"`
	Guarded   bool                   `json:"guarded,omitempty"`
}

// Rule 固定规则集中的一条规则
type Rule interface {
	Name() string
	MaxScore() float64
	Requires() []Input
	Evaluate(ctx context.Context, ec *EvalContext) Result
}

// Stats 规则需要的窗口统计
type Stats interface {
	CountLargeRecipients(ctx context.Context, chain, contract string, minUsd float64, since, until time.Time) (int, error)
	SumSwapUsd(ctx context.Context, chain, contract string, since, until time.Time) (float64, error)
}

// Baseline 事件之前 7 天的历史基线
type Baseline struct {
	AvgTransferUsd float64 `json:"avg_transfer_usd"`
	AvgSwapUsd     float64 `json:"avg_swap_usd"`
	Price          float64 `json:"price"`
	TransferCount  int64   `json:"transfer_count"`
	SwapCount      int64   `json:"swap_count"`
	Estimated      bool    `json:"estimated"`
	PriceSource    string  `json:"price_source,omitempty"` // history / coin
}

// EvalContext 单次评估的只读上下文
type EvalContext struct {
	Event        *model.NormalizedEvent
	Coin         *model.Coin
	Baseline     Baseline
	Config       config.DetectionConfig
	CurrentPrice float64 // 0 表示未知
	Stats        Stats
}

func (ec *EvalContext) amountUsd() (float64, bool) {
	if ec.Event == nil || ec.Event.AmountUsd == nil || *ec.Event.AmountUsd <= 0 {
		return 0, false
	}
	return *ec.Event.AmountUsd, true
}

func (ec *EvalContext) liquidity() (float64, bool) {
	if ec.Coin == nil {
		return 0, false
	}
	return ec.Coin.Liquidity()
}

func (ec *EvalContext) supply() (float64, bool) {
	if ec.Coin == nil {
		return 0, false
	}
	return ec.Coin.Supply()
}

// has 判断某个输入是否可用
func (ec *EvalContext) has(in Input) bool {
	switch in {
	case InputAmountUsd:
		_, ok := ec.amountUsd()
		return ok
	case InputLiquidity:
		_, ok := ec.liquidity()
		return ok
	case InputCurrentPrice:
		return ec.CurrentPrice > 0
	case InputBaselinePrice:
		return ec.Baseline.Price > 0
	case InputBaselineVolume:
		return ec.Baseline.AvgTransferUsd > 0
	case InputBaselineSwap:
		return ec.Baseline.AvgSwapUsd > 0
	default:
		return false
	}
}

// largeTransferThreshold 配置阈值与 1% 流动性取大
func (ec *EvalContext) largeTransferThreshold() (threshold float64, liquidityFloor float64) {
	threshold = ec.Config.LargeTransferUsd
	if liq, ok := ec.liquidity(); ok {
		liquidityFloor = liq * 0.01
		if liquidityFloor > threshold {
			threshold = liquidityFloor
		}
	}
	return threshold, liquidityFloor
}
