package provider

import (
	"context"
	"errors"
)

var (
	// ErrUnsupportedChain provider 不支持该链
	ErrUnsupportedChain = errors.New("provider: unsupported chain")
	// ErrRateLimited provider 限流（429）
	ErrRateLimited = errors.New("provider: rate limited")
)

// Transfer 统一的链上转账记录
type Transfer struct {
	UniqueID    string `json:"unique_id,omitempty"` // provider 自带的唯一ID
	Provider    string `json:"provider"`
	Chain       string `json:"chain"`
	Contract    string `json:"contract"`
	Symbol      string `json:"symbol,omitempty"`
	Decimals    *int   `json:"decimals,omitempty"`
	Category    string `json:"category,omitempty"` // transfer / swap / lp_add
	From        string `json:"from"`
	To          string `json:"to"`
	RawValue    string `json:"raw_value"` // hex 或十进制整数
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    *int   `json:"log_index,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"` // unix 秒，0 表示未知
	Raw         []byte `json:"raw,omitempty"`
}

// FetchOptions 单次查询参数；PageKey 只属于一次查询，不能跨查询复用
type FetchOptions struct {
	ToAddress   string
	FromAddress string
	MaxCount    int
	PageKey     string
}

// ChainDataProvider 链上数据源
type ChainDataProvider interface {
	Name() string
	LatestBlock(ctx context.Context, chain string) (uint64, error)
	FetchTransfers(ctx context.Context, chain, contract string, fromBlock, toBlock uint64, opts FetchOptions) ([]Transfer, error)
}

// HeadSource 只负责返回链高度
type HeadSource interface {
	LatestBlock(ctx context.Context, chain string) (uint64, error)
}

// PriceSource 价格源，失败返回 false，不返回错误
type PriceSource interface {
	TokenPriceUsd(ctx context.Context, chain, contract string) (float64, bool)
	NativePriceUsd(ctx context.Context, chain string) (float64, bool)
}
