package utils

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// DefaultDecimals 缺省精度（ERC20 约定）
	DefaultDecimals = 18
	// maxDecimals uint256 能表示的最大十进制位数
	maxDecimals = 77
)

// NormalizeDecimals 处理缺失或非法的精度
func NormalizeDecimals(decimals *int) int {
	if decimals == nil || *decimals < 0 || *decimals > maxDecimals {
		return DefaultDecimals
	}
	return *decimals
}

// ParseBigInt 解析十六进制(0x)或十进制整数字符串，支持负号
func ParseBigInt(raw string) (*big.Int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, false
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	base := 10
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}
	if s == "" || strings.ContainsAny(s, "_+-") {
		return nil, false
	}

	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, false
	}
	if negative {
		v.Neg(v)
	}
	return v, true
}

// BigToUnits 原始整数按精度移位后转成浮点数量
func BigToUnits(raw *big.Int, decimals int) float64 {
	if raw == nil {
		return 0
	}
	if decimals < 0 || decimals > maxDecimals {
		decimals = DefaultDecimals
	}
	return decimal.NewFromBigInt(raw, int32(-decimals)).InexactFloat64()
}

// RawToUnits 原始金额字符串转数量，非法输入返回 0
func RawToUnits(raw string, decimals int) float64 {
	v, ok := ParseBigInt(raw)
	if !ok {
		return 0
	}
	return BigToUnits(v, decimals)
}

// UnitsToDecimal 数量转 decimal，用于落库
func UnitsToDecimal(raw *big.Int, decimals int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	if decimals < 0 || decimals > maxDecimals {
		decimals = DefaultDecimals
	}
	return decimal.NewFromBigInt(raw, int32(-decimals))
}
