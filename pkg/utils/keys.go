package utils

import "fmt"

func TokenPriceKey(chain, tokenAddress string) string {
	return fmt.Sprintf("radar:price:%s:%s", CanonicalChain(chain), tokenAddress)
}

func NativePriceKey(chain string) string {
	return fmt.Sprintf("radar:price:%s:native", CanonicalChain(chain))
}

func AlertCooldownKey(userID, coinID int64) string {
	return fmt.Sprintf("radar:alert_cooldown:%d:%d", userID, coinID)
}
