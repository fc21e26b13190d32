package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"web3-radar/internal/worker/model"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// coinDAO 实现CoinDAO接口
type coinDAO struct {
	db         *gorm.DB
	localCache *cache.Cache // chain:contract -> coin id
}

// NewCoinDAO 创建CoinDAO实例
func NewCoinDAO(db *gorm.DB) CoinDAO {
	return &coinDAO{
		db:         db,
		localCache: cache.New(10*time.Minute, time.Minute),
	}
}

func coinIDKey(chain, contract string) string {
	return fmt.Sprintf("%s:%s", chain, contract)
}

func (c *coinDAO) GetByID(ctx context.Context, id int64) (*model.Coin, error) {
	var coin model.Coin
	if err := c.db.WithContext(ctx).First(&coin, id).Error; err != nil {
		return nil, translateError(err)
	}
	return &coin, nil
}

func (c *coinDAO) GetByContract(ctx context.Context, chain, contract string) (*model.Coin, error) {
	// 先用本地缓存的 id 走主键
	if cached, found := c.localCache.Get(coinIDKey(chain, contract)); found {
		if id, ok := cached.(int64); ok {
			coin, err := c.GetByID(ctx, id)
			if err == nil || !errors.Is(err, ErrNotFound) {
				return coin, err
			}
			c.localCache.Delete(coinIDKey(chain, contract))
		}
	}

	var coin model.Coin
	err := c.db.WithContext(ctx).
		Where("chain = ? AND contract_address = ?", chain, contract).
		First(&coin).Error
	if err != nil {
		return nil, translateError(err)
	}
	c.localCache.Set(coinIDKey(chain, contract), coin.ID, cache.DefaultExpiration)
	return &coin, nil
}

func (c *coinDAO) FindOrCreate(ctx context.Context, chain, contract, symbol string, decimals int) (*model.Coin, error) {
	coin, err := c.GetByContract(ctx, chain, contract)
	if err == nil {
		return coin, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	created := &model.Coin{
		ContractAddress: contract,
		Chain:           chain,
		Symbol:          symbol,
		Decimals:        decimals,
	}
	// 并发创建时以先写入者为准
	err = c.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(created).Error
	if err != nil {
		return nil, translateError(err)
	}
	if created.ID != 0 {
		return created, nil
	}
	return c.GetByContract(ctx, chain, contract)
}

func (c *coinDAO) ListTracked(ctx context.Context, chain string) ([]*model.Coin, error) {
	var coins []*model.Coin
	watched := c.db.Model(&model.WatchlistEntry{}).Select("coin_id")
	err := c.db.WithContext(ctx).
		Where("chain = ?", chain).
		Where(c.db.Where("is_active = ?", true).
			Or("is_famous = ?", true).
			Or("id IN (?)", watched)).
		Order("id ASC").
		Find(&coins).Error
	if err != nil {
		return nil, err
	}
	return coins, nil
}

func (c *coinDAO) UpdatePrice(ctx context.Context, id int64, priceUsd float64, at time.Time) error {
	return c.db.WithContext(ctx).
		Model(&model.Coin{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"price_usd":        decimal.NewFromFloat(priceUsd),
			"price_updated_at": at,
		}).Error
}
