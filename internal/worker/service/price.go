package service

import (
	"context"
	"time"

	"web3-radar/internal/worker/cache"
	"web3-radar/internal/worker/dao"
	"web3-radar/internal/worker/model"
	"web3-radar/pkg/provider"
	"web3-radar/pkg/utils"

	"go.uber.org/zap"
)

// PriceResolver 价格解析：缓存 -> 已持久化价格 -> 实时查询 -> 过期的持久化价格
type PriceResolver struct {
	tl     *zap.Logger
	cache  *cache.PriceCache
	coins  dao.CoinDAO
	source provider.PriceSource
	maxAge time.Duration
	now    func() time.Time
}

// NewPriceResolver source 可以为 nil，此时只使用缓存和数据库
func NewPriceResolver(tl *zap.Logger, priceCache *cache.PriceCache, coins dao.CoinDAO, source provider.PriceSource, maxAge time.Duration) *PriceResolver {
	return &PriceResolver{
		tl:     tl,
		cache:  priceCache,
		coins:  coins,
		source: source,
		maxAge: maxAge,
		now:    time.Now,
	}
}

func (r *PriceResolver) fresh(coin *model.Coin) bool {
	if coin.PriceUpdatedAt == nil {
		return false
	}
	return r.maxAge <= 0 || r.now().Sub(*coin.PriceUpdatedAt) <= r.maxAge
}

// Resolve 返回 coin 的 USD 单价，未知时返回 false
func (r *PriceResolver) Resolve(ctx context.Context, coin *model.Coin) (float64, bool) {
	if coin == nil {
		return 0, false
	}
	key := utils.TokenPriceKey(coin.Chain, coin.ContractAddress)
	if price, ok := r.cache.Get(ctx, key); ok {
		return price, true
	}

	stored, hasStored := coin.Price()
	if hasStored && r.fresh(coin) {
		r.cache.Set(ctx, key, stored)
		return stored, true
	}

	if r.source != nil {
		if price, ok := r.source.TokenPriceUsd(ctx, coin.Chain, coin.ContractAddress); ok && price > 0 {
			r.cache.Set(ctx, key, price)
			if coin.ID != 0 {
				if err := r.coins.UpdatePrice(ctx, coin.ID, price, r.now()); err != nil {
					r.tl.Warn("persist token price failed", zap.Int64("coin_id", coin.ID), zap.Error(err))
				}
			}
			return price, true
		}
	}

	if hasStored {
		r.tl.Debug("using stale token price",
			zap.Int64("coin_id", coin.ID),
			zap.String("chain", coin.Chain),
			zap.Float64("price", stored))
		return stored, true
	}
	r.tl.Debug("token price unavailable", zap.Int64("coin_id", coin.ID), zap.String("chain", coin.Chain), zap.String("contract", coin.ContractAddress))
	return 0, false
}

// ResolveNative 原生币 USD 价格
func (r *PriceResolver) ResolveNative(ctx context.Context, chain string) (float64, bool) {
	key := utils.NativePriceKey(chain)
	if price, ok := r.cache.Get(ctx, key); ok {
		return price, true
	}
	if r.source == nil {
		return 0, false
	}
	price, ok := r.source.NativePriceUsd(ctx, chain)
	if !ok || price <= 0 {
		return 0, false
	}
	r.cache.Set(ctx, key, price)
	return price, true
}

// PriceOf 按 (chain, contract) 查询，不存在的 coin 不会被创建；contract 为空视为原生币
func (r *PriceResolver) PriceOf(ctx context.Context, chain, contract string) (float64, bool) {
	if contract == "" {
		return r.ResolveNative(ctx, chain)
	}
	coin, err := r.coins.GetByContract(ctx, chain, contract)
	if err != nil {
		coin = &model.Coin{Chain: chain, ContractAddress: contract}
	}
	return r.Resolve(ctx, coin)
}
