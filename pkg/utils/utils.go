package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
)

// IsUnixSeconds 检查时间戳是否为秒级
func IsUnixSeconds(ts int64) bool {
	// 定义时间戳范围：1970-01-01 到 2100-01-01
	const maxUnix = 4_102_444_800 // 2100-01-01 00:00:00 UTC
	return ts >= 0 && ts < maxUnix
}

// ToUnixSeconds 毫秒级时间戳转秒
func ToUnixSeconds(ts int64) int64 {
	if ts <= 0 || IsUnixSeconds(ts) {
		return ts
	}
	return ts / 1000
}

// ChecksumAddress 将 EVM 地址转换为 EIP-55 Checksum 格式，非 EVM 链原样返回
func ChecksumAddress(addr string, chain string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" || !IsEVMChain(chain) {
		return addr
	}
	return common.HexToAddress(addr).Hex()
}

// NormalizeAddress 统一地址格式：EVM 小写 hex，solana 保持 base58
// 地址非法时返回 false
func NormalizeAddress(addr string, chain string) (string, bool) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", false
	}
	if !IsEVMChain(chain) {
		pk, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return "", false
		}
		return pk.String(), true
	}
	if !common.IsHexAddress(addr) {
		return "", false
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), true
}
