package alchemy

type assetTransferParams struct {
	FromBlock         string   `json:"fromBlock"`
	ToBlock           string   `json:"toBlock"`
	ContractAddresses []string `json:"contractAddresses"`
	Category          []string `json:"category"`
	WithMetadata      bool     `json:"withMetadata"`
	ExcludeZeroValue  bool     `json:"excludeZeroValue"`
	MaxCount          string   `json:"maxCount"`
	Order             string   `json:"order"`
	PageKey           string   `json:"pageKey,omitempty"`
	ToAddress         string   `json:"toAddress,omitempty"`
	FromAddress       string   `json:"fromAddress,omitempty"`
}

type assetTransfersResult struct {
	Transfers []assetTransfer `json:"transfers"`
	PageKey   string          `json:"pageKey"`
}

type assetTransfer struct {
	BlockNum    string      `json:"blockNum"`
	UniqueID    string      `json:"uniqueId"`
	Hash        string      `json:"hash"`
	From        string      `json:"from"`
	To          string      `json:"to"`
	Value       *float64    `json:"value"`
	Asset       string      `json:"asset"`
	Category    string      `json:"category"`
	RawContract rawContract `json:"rawContract"`
	Metadata    struct {
		BlockTimestamp string `json:"blockTimestamp"`
	} `json:"metadata"`
}

type rawContract struct {
	Value   string `json:"value"`
	Address string `json:"address"`
	Decimal string `json:"decimal"`
}
