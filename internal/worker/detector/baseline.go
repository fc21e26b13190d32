package detector

import (
	"context"
	"fmt"
	"time"

	"web3-radar/internal/worker/dao"
	"web3-radar/internal/worker/model"
)

const (
	BaselineWindow = 7 * 24 * time.Hour

	estimatedTransferPct = 0.005
	estimatedSwapPct     = 0.002
)

// BuildBaseline 事件之前 7 天的基线；没有历史时按流动性估算并标记 estimated
func BuildBaseline(ctx context.Context, events dao.EventDAO, event *model.NormalizedEvent, coin *model.Coin) (Baseline, error) {
	var b Baseline
	stats, err := events.GetBaseline(ctx, event.Chain, event.TokenContract, event.Timestamp.Add(-BaselineWindow), event.Timestamp)
	if err != nil {
		return b, fmt.Errorf("load baseline: %w", err)
	}

	b.TransferCount = stats.TransferCount
	b.SwapCount = stats.SwapCount
	b.AvgTransferUsd = stats.AvgTransferUsd
	b.AvgSwapUsd = stats.AvgSwapUsd

	liq, hasLiq := coin.Liquidity()
	if b.TransferCount == 0 && hasLiq {
		b.AvgTransferUsd = liq * estimatedTransferPct
		b.Estimated = true
	}
	if b.SwapCount == 0 && hasLiq {
		b.AvgSwapUsd = liq * estimatedSwapPct
		b.Estimated = true
	}

	switch {
	case stats.LastPrice > 0:
		b.Price = stats.LastPrice
		b.PriceSource = "history"
	default:
		if p, ok := coin.Price(); ok {
			b.Price = p
			b.PriceSource = "coin"
		}
	}
	return b, nil
}
