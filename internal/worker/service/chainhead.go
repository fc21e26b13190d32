package service

import (
	"context"
	"fmt"

	"web3-radar/pkg/provider"
	"web3-radar/pkg/utils"

	"go.uber.org/zap"
)

// ChainHeadSource 按链选择的高度来源
type ChainHeadSource interface {
	provider.HeadSource
	Supports(chain string) bool
}

// ChainHead 优先使用配置的节点 RPC，失败或未配置时回落到数据 provider
type ChainHead struct {
	tl       *zap.Logger
	sources  []ChainHeadSource
	fallback provider.HeadSource
}

func NewChainHead(tl *zap.Logger, fallback provider.HeadSource, sources ...ChainHeadSource) *ChainHead {
	return &ChainHead{tl: tl, sources: sources, fallback: fallback}
}

func (h *ChainHead) LatestBlock(ctx context.Context, chain string) (uint64, error) {
	chain = utils.CanonicalChain(chain)
	for _, src := range h.sources {
		if src == nil || !src.Supports(chain) {
			continue
		}
		head, err := src.LatestBlock(ctx, chain)
		if err == nil && head > 0 {
			return head, nil
		}
		h.tl.Warn("rpc head lookup failed, falling back", zap.String("chain", chain), zap.Error(err))
		break
	}
	if h.fallback == nil {
		return 0, fmt.Errorf("no head source for chain %s", chain)
	}
	return h.fallback.LatestBlock(ctx, chain)
}
