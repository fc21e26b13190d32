package utils

import "strings"

// ChainFamily 链类型
type ChainFamily string

const (
	FamilyEVM    ChainFamily = "evm"
	FamilySolana ChainFamily = "solana"
)

// ChainInfo 链的静态信息
type ChainInfo struct {
	Name            string
	ChainID         uint64
	Family          ChainFamily
	MoralisChain    string // moralis chain 参数
	AlchemyNetwork  string // alchemy 子域名
	WrappedNative   string // 原生币包装合约，用于查询原生币价格
	SecondsPerBlock float64
}

var chainRegistry = map[string]ChainInfo{
	"ethereum": {Name: "ethereum", ChainID: 1, Family: FamilyEVM, MoralisChain: "eth", AlchemyNetwork: "eth-mainnet",
		WrappedNative: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", SecondsPerBlock: 12},
	"bsc": {Name: "bsc", ChainID: 56, Family: FamilyEVM, MoralisChain: "bsc", AlchemyNetwork: "bnb-mainnet",
		WrappedNative: "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c", SecondsPerBlock: 3},
	"polygon": {Name: "polygon", ChainID: 137, Family: FamilyEVM, MoralisChain: "polygon", AlchemyNetwork: "polygon-mainnet",
		WrappedNative: "0x0d500b1d8e8ef31e21c99d1db9a6444d3adf1270", SecondsPerBlock: 2},
	"base": {Name: "base", ChainID: 8453, Family: FamilyEVM, MoralisChain: "base", AlchemyNetwork: "base-mainnet",
		WrappedNative: "0x4200000000000000000000000000000000000006", SecondsPerBlock: 2},
	"arbitrum": {Name: "arbitrum", ChainID: 42161, Family: FamilyEVM, MoralisChain: "arbitrum", AlchemyNetwork: "arb-mainnet",
		WrappedNative: "0x82af49447d8a07e3bd95bd0d56f35241523fbab1", SecondsPerBlock: 0.25},
	"solana": {Name: "solana", ChainID: 0, Family: FamilySolana, MoralisChain: "mainnet",
		WrappedNative: "So11111111111111111111111111111111111111112", SecondsPerBlock: 0.4},
}

var chainAliases = map[string]string{
	"eth":      "ethereum",
	"mainnet":  "ethereum",
	"bnb":      "bsc",
	"matic":    "polygon",
	"arb":      "arbitrum",
	"sol":      "solana",
	"ethereum": "ethereum",
}

// CanonicalChain 统一链名（小写 + 别名）
func CanonicalChain(chain string) string {
	c := strings.ToLower(strings.TrimSpace(chain))
	if alias, ok := chainAliases[c]; ok {
		return alias
	}
	return c
}

// LookupChain 查询链信息
func LookupChain(chain string) (ChainInfo, bool) {
	info, ok := chainRegistry[CanonicalChain(chain)]
	return info, ok
}

// IsEVMChain 是否 EVM 链，未知链按 EVM 处理
func IsEVMChain(chain string) bool {
	info, ok := LookupChain(chain)
	return !ok || info.Family == FamilyEVM
}

// SecondsPerBlock 出块时间，未知链返回 fallback
func SecondsPerBlock(chain string, fallback float64) float64 {
	if info, ok := LookupChain(chain); ok && info.SecondsPerBlock > 0 {
		return info.SecondsPerBlock
	}
	return fallback
}
