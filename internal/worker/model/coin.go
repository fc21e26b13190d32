package model

import (
	"time"

	"web3-radar/internal/worker/config"

	"github.com/shopspring/decimal"
)

// Coin token 注册表（外部维护，本服务只回填价格）
type Coin struct {
	ID                int64            `gorm:"column:id;primaryKey;autoIncrement:true" json:"id"`
	ContractAddress   string           `gorm:"column:contract_address;type:varchar(128);not null;uniqueIndex:uk_coin_contract_chain,priority:1" json:"contract_address"`
	Chain             string           `gorm:"column:chain;type:varchar(32);not null;uniqueIndex:uk_coin_contract_chain,priority:2" json:"chain"`
	Symbol            string           `gorm:"column:symbol;type:varchar(64)" json:"symbol"`
	Name              string           `gorm:"column:name;type:varchar(128)" json:"name"`
	Decimals          int              `gorm:"column:decimals;default:18" json:"decimals"`
	TotalSupply       *decimal.Decimal `gorm:"column:total_supply;type:numeric" json:"total_supply,omitempty"`
	CirculatingSupply *decimal.Decimal `gorm:"column:circulating_supply;type:numeric" json:"circulating_supply,omitempty"`
	PriceUsd          *decimal.Decimal `gorm:"column:price_usd;type:numeric" json:"price_usd,omitempty"`
	LiquidityUsd      *decimal.Decimal `gorm:"column:liquidity_usd;type:numeric" json:"liquidity_usd,omitempty"`
	PriceUpdatedAt    *time.Time       `gorm:"column:price_updated_at" json:"price_updated_at,omitempty"`
	IsActive          bool             `gorm:"column:is_active;default:false" json:"is_active"`
	IsFamous          bool             `gorm:"column:is_famous;default:false" json:"is_famous"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (*Coin) TableName() string {
	return "coins"
}

func decimalValue(d *decimal.Decimal) (float64, bool) {
	if d == nil || !d.IsPositive() {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// Price 已持久化的价格
func (c *Coin) Price() (float64, bool) {
	return decimalValue(c.PriceUsd)
}

// Liquidity 流动性（USD）
func (c *Coin) Liquidity() (float64, bool) {
	return decimalValue(c.LiquidityUsd)
}

// Supply 优先流通量，缺失时用总量
func (c *Coin) Supply() (float64, bool) {
	if v, ok := decimalValue(c.CirculatingSupply); ok {
		return v, true
	}
	return decimalValue(c.TotalSupply)
}

// TokenSettings token 级阈值覆盖，字段为空表示沿用系统默认
type TokenSettings struct {
	ID                 int64            `gorm:"column:id;primaryKey;autoIncrement:true"`
	CoinID             int64            `gorm:"column:coin_id;uniqueIndex;not null"`
	LargeTransferUsd   *decimal.Decimal `gorm:"column:large_transfer_usd;type:numeric"`
	SupplyPercentage   *decimal.Decimal `gorm:"column:supply_percentage;type:numeric"`
	LiquidityRatio     *decimal.Decimal `gorm:"column:liquidity_ratio;type:numeric"`
	SwapSpikeFactor    *decimal.Decimal `gorm:"column:swap_spike_factor;type:numeric"`
	UnitsThreshold     *decimal.Decimal `gorm:"column:units_threshold;type:numeric"`
	LPAddUsd           *decimal.Decimal `gorm:"column:lp_add_usd;type:numeric"`
	CandidateThreshold *decimal.Decimal `gorm:"column:candidate_threshold;type:numeric"`
	AlertThreshold     *decimal.Decimal `gorm:"column:alert_threshold;type:numeric"`
	UpdatedAt          time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (*TokenSettings) TableName() string {
	return "token_settings"
}

// ToOverride nil 安全
func (s *TokenSettings) ToOverride() *config.Override {
	if s == nil {
		return nil
	}
	return &config.Override{
		LargeTransferUsd:   s.LargeTransferUsd,
		SupplyPercentage:   s.SupplyPercentage,
		LiquidityRatio:     s.LiquidityRatio,
		SwapSpikeFactor:    s.SwapSpikeFactor,
		UnitsThreshold:     s.UnitsThreshold,
		LPAddUsd:           s.LPAddUsd,
		CandidateThreshold: s.CandidateThreshold,
		AlertThreshold:     s.AlertThreshold,
	}
}

// WatchlistEntry 用户关注列表（只读）
type WatchlistEntry struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement:true"`
	UserID    int64     `gorm:"column:user_id;not null;index"`
	CoinID    int64     `gorm:"column:coin_id;not null;index"`
	ChatID    string    `gorm:"column:chat_id;type:varchar(64)"` // telegram chat
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (*WatchlistEntry) TableName() string {
	return "watchlist_items"
}
