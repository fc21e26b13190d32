package config

import (
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// DetectionConfig 规则阈值，系统默认值 + token 级覆盖
type DetectionConfig struct {
	LargeTransferUsd   float64 `mapstructure:"large_transfer_usd" json:"large_transfer_usd"`
	SupplyPercentage   float64 `mapstructure:"supply_percentage" json:"supply_percentage"`
	LiquidityRatio     float64 `mapstructure:"liquidity_ratio" json:"liquidity_ratio"`
	SwapSpikeFactor    float64 `mapstructure:"swap_spike_factor" json:"swap_spike_factor"`
	UnitsThreshold     float64 `mapstructure:"units_threshold" json:"units_threshold"`
	LPAddUsd           float64 `mapstructure:"lp_add_usd" json:"lp_add_usd"`
	CandidateThreshold float64 `mapstructure:"candidate_threshold" json:"candidate_threshold"`
	AlertThreshold     float64 `mapstructure:"alert_threshold" json:"alert_threshold"`
	MaxPossibleScore   float64 `mapstructure:"max_possible_score" json:"max_possible_score"`
}

// DefaultDetectionConfig 系统默认阈值
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		LargeTransferUsd:   50_000,
		SupplyPercentage:   0.5,
		LiquidityRatio:     2.0,
		SwapSpikeFactor:    3.0,
		UnitsThreshold:     1_000_000,
		LPAddUsd:           25_000,
		CandidateThreshold: 60,
		AlertThreshold:     75,
		MaxPossibleScore:   108,
	}
}

// withDefaults 未配置（<=0）的字段使用默认值
func (d DetectionConfig) withDefaults() DetectionConfig {
	def := DefaultDetectionConfig()
	fill := func(v *float64, fallback float64) {
		if *v <= 0 {
			*v = fallback
		}
	}
	fill(&d.LargeTransferUsd, def.LargeTransferUsd)
	fill(&d.SupplyPercentage, def.SupplyPercentage)
	fill(&d.LiquidityRatio, def.LiquidityRatio)
	fill(&d.SwapSpikeFactor, def.SwapSpikeFactor)
	fill(&d.UnitsThreshold, def.UnitsThreshold)
	fill(&d.LPAddUsd, def.LPAddUsd)
	fill(&d.CandidateThreshold, def.CandidateThreshold)
	fill(&d.AlertThreshold, def.AlertThreshold)
	fill(&d.MaxPossibleScore, def.MaxPossibleScore)
	return d
}

// Override token 级覆盖值，nil 表示沿用默认
type Override struct {
	LargeTransferUsd   *decimal.Decimal
	SupplyPercentage   *decimal.Decimal
	LiquidityRatio     *decimal.Decimal
	SwapSpikeFactor    *decimal.Decimal
	UnitsThreshold     *decimal.Decimal
	LPAddUsd           *decimal.Decimal
	CandidateThreshold *decimal.Decimal
	AlertThreshold     *decimal.Decimal
}

// Merge 返回合并覆盖后的新配置，不修改接收者
func (d DetectionConfig) Merge(o *Override) DetectionConfig {
	if o == nil {
		return d
	}
	apply := func(dst *float64, v *decimal.Decimal) {
		if v != nil && v.IsPositive() {
			*dst = v.InexactFloat64()
		}
	}
	apply(&d.LargeTransferUsd, o.LargeTransferUsd)
	apply(&d.SupplyPercentage, o.SupplyPercentage)
	apply(&d.LiquidityRatio, o.LiquidityRatio)
	apply(&d.SwapSpikeFactor, o.SwapSpikeFactor)
	apply(&d.UnitsThreshold, o.UnitsThreshold)
	apply(&d.LPAddUsd, o.LPAddUsd)
	apply(&d.CandidateThreshold, o.CandidateThreshold)
	apply(&d.AlertThreshold, o.AlertThreshold)
	return d
}

// DetectionDefaults 可热更新的默认阈值
type DetectionDefaults struct {
	v atomic.Pointer[DetectionConfig]
}

func NewDetectionDefaults(cfg DetectionConfig) *DetectionDefaults {
	d := &DetectionDefaults{}
	d.Store(cfg)
	return d
}

func (d *DetectionDefaults) Load() DetectionConfig {
	if p := d.v.Load(); p != nil {
		return *p
	}
	return DefaultDetectionConfig()
}

func (d *DetectionDefaults) Store(cfg DetectionConfig) {
	cfg = cfg.withDefaults()
	d.v.Store(&cfg)
}
