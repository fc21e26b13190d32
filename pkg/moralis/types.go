package moralis

// TransfersResp erc20 转账分页响应
type TransfersResp struct {
	Cursor   string          `json:"cursor"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Result   []TokenTransfer `json:"result"`
}

type TokenTransfer struct {
	TokenName        string `json:"token_name"`
	TokenSymbol      string `json:"token_symbol"`
	TokenDecimals    string `json:"token_decimals"`
	TransactionHash  string `json:"transaction_hash"`
	Address          string `json:"address"` // token 合约
	BlockTimestamp   string `json:"block_timestamp"`
	BlockNumber      string `json:"block_number"`
	ToAddress        string `json:"to_address"`
	FromAddress      string `json:"from_address"`
	Value            string `json:"value"` // 原始整数
	TransactionIndex int    `json:"transaction_index"`
	LogIndex         int    `json:"log_index"`
	PossibleSpam     bool   `json:"possible_spam"`
}

// TokenPriceResp 价格响应（evm 与 solana gateway 共用字段）
type TokenPriceResp struct {
	UsdPrice      float64 `json:"usdPrice"`
	TokenSymbol   string  `json:"tokenSymbol"`
	TokenDecimals string  `json:"tokenDecimals"`
	ExchangeName  string  `json:"exchangeName"`
}

// DateToBlockResp 时间转区块高度
type DateToBlockResp struct {
	Date      string `json:"date"`
	Block     uint64 `json:"block"`
	Timestamp int64  `json:"timestamp"`
}
