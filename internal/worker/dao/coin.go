package dao

import (
	"context"
	"time"

	"web3-radar/internal/worker/model"
)

// CoinDAO 定义 token 注册表数据访问接口
type CoinDAO interface {
	// GetByID 不存在时返回 ErrNotFound
	GetByID(ctx context.Context, id int64) (*model.Coin, error)

	// GetByContract 通过 (chain, contract) 查询
	GetByContract(ctx context.Context, chain, contract string) (*model.Coin, error)

	// FindOrCreate 不存在时创建一条未激活记录
	FindOrCreate(ctx context.Context, chain, contract, symbol string, decimals int) (*model.Coin, error)

	// ListTracked 激活、famous 或被任意用户关注的 token，按 id 升序
	ListTracked(ctx context.Context, chain string) ([]*model.Coin, error)

	// UpdatePrice 回写最新价格
	UpdatePrice(ctx context.Context, id int64, priceUsd float64, at time.Time) error
}
