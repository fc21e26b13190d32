package moralis

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"web3-radar/internal/worker/config"
	"web3-radar/pkg/httpclient"
	"web3-radar/pkg/provider"
	"web3-radar/pkg/utils"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

const (
	providerName = "moralis"
	pageLimit    = 100
	pageRetries  = 2
)

type MoralisClient struct {
	baseURL    string
	gatewayURL string
	httpClient *httpclient.HTTPClient
	logger     *zap.Logger
}

func NewMoralisClient(cfg config.MoralisConfig, logger *zap.Logger) *MoralisClient {
	return newMoralisClient(cfg, logger, 200*time.Millisecond)
}

// newMoralisClient 429/5xx 由 resty 按 retryWait 指数退避重试
func newMoralisClient(cfg config.MoralisConfig, logger *zap.Logger, retryWait time.Duration) *MoralisClient {
	httpCfg := httpclient.HTTPClientConfig{
		Timeout:       time.Duration(cfg.Timeout) * time.Second,
		RateLimit:     cfg.RateLimit,
		MaxRetries:    pageRetries,
		RetryWaitTime: retryWait,
		XApiKey:       cfg.APIKey,
	}

	return &MoralisClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		gatewayURL: strings.TrimRight(cfg.GatewayURL, "/"),
		httpClient: httpclient.NewHTTPClient(httpCfg, logger),
		logger:     logger,
	}
}

func (m *MoralisClient) Name() string {
	return providerName
}

// LatestBlock 通过 dateToBlock 取当前高度，solana 不支持
func (m *MoralisClient) LatestBlock(ctx context.Context, chain string) (uint64, error) {
	info, ok := utils.LookupChain(chain)
	if !ok || info.Family != utils.FamilyEVM {
		return 0, fmt.Errorf("moralis latest block %s: %w", chain, provider.ErrUnsupportedChain)
	}

	var resp DateToBlockResp
	url := fmt.Sprintf("%s/api/v2.2/dateToBlock", m.baseURL)
	params := map[string]string{
		"chain": info.MoralisChain,
		"date":  strconv.FormatInt(time.Now().Unix(), 10),
	}
	if err := m.httpClient.Get(ctx, url, params, nil, &resp); err != nil {
		return 0, wrapErr(err)
	}
	return resp.Block, nil
}

// FetchTransfers 按区块区间分页拉取 erc20 转账，opts.PageKey 为起始 cursor。
// 指定 ToAddress/FromAddress 时走钱包维度接口，只返回该钱包在此合约上的转账
func (m *MoralisClient) FetchTransfers(ctx context.Context, chain, contract string, fromBlock, toBlock uint64, opts provider.FetchOptions) ([]provider.Transfer, error) {
	info, ok := utils.LookupChain(chain)
	if !ok || info.Family != utils.FamilyEVM {
		return nil, fmt.Errorf("moralis transfers %s: %w", chain, provider.ErrUnsupportedChain)
	}

	contract = strings.ToLower(contract)
	url := fmt.Sprintf("%s/api/v2.2/erc20/%s/transfers", m.baseURL, contract)
	wallet := opts.ToAddress
	if wallet == "" {
		wallet = opts.FromAddress
	}
	if wallet != "" {
		url = fmt.Sprintf("%s/api/v2.2/%s/erc20/transfers", m.baseURL, strings.ToLower(wallet))
	}

	cursor := opts.PageKey
	result := make([]provider.Transfer, 0)
	for {
		params := map[string]string{
			"chain":      info.MoralisChain,
			"from_block": strconv.FormatUint(fromBlock, 10),
			"to_block":   strconv.FormatUint(toBlock, 10),
			"limit":      strconv.Itoa(pageLimit),
			"order":      "ASC",
		}
		if wallet != "" {
			params["contract_addresses[0]"] = contract
		}
		if cursor != "" {
			params["cursor"] = cursor
		}

		var page TransfersResp
		if err := m.httpClient.Get(ctx, url, params, nil, &page); err != nil {
			return result, fmt.Errorf("fetch moralis transfers failed, contract: %s: %w", contract, wrapErr(err))
		}

		for _, item := range page.Result {
			if wallet != "" && item.Address != "" && !strings.EqualFold(item.Address, contract) {
				continue
			}
			if opts.ToAddress != "" && !strings.EqualFold(item.ToAddress, opts.ToAddress) {
				continue
			}
			if opts.FromAddress != "" && !strings.EqualFold(item.FromAddress, opts.FromAddress) {
				continue
			}
			result = append(result, m.toTransfer(info.Name, item))
			if opts.MaxCount > 0 && len(result) >= opts.MaxCount {
				return result, nil
			}
		}

		cursor = page.Cursor
		if cursor == "" || len(page.Result) < pageLimit {
			break
		}
	}
	return result, nil
}

func (m *MoralisClient) toTransfer(chain string, item TokenTransfer) provider.Transfer {
	t := provider.Transfer{
		Provider: providerName,
		Chain:    chain,
		Contract: item.Address,
		Symbol:   item.TokenSymbol,
		Category: "transfer",
		From:     item.FromAddress,
		To:       item.ToAddress,
		RawValue: item.Value,
		TxHash:   item.TransactionHash,
	}
	if d, err := strconv.Atoi(item.TokenDecimals); err == nil {
		t.Decimals = &d
	}
	logIndex := item.LogIndex
	t.LogIndex = &logIndex
	if n, err := strconv.ParseUint(item.BlockNumber, 10, 64); err == nil {
		t.BlockNumber = n
	}
	if ts, err := time.Parse(time.RFC3339, item.BlockTimestamp); err == nil {
		t.Timestamp = ts.Unix()
	}
	if raw, err := sonic.Marshal(item); err == nil {
		t.Raw = raw
	}
	return t
}

// GetTokenPrice 查询 token 美元价格
func (m *MoralisClient) GetTokenPrice(ctx context.Context, chain, contract string) (float64, error) {
	info, ok := utils.LookupChain(chain)
	if !ok {
		return 0, fmt.Errorf("moralis price %s: %w", chain, provider.ErrUnsupportedChain)
	}

	var url string
	params := map[string]string{}
	if info.Family == utils.FamilySolana {
		url = fmt.Sprintf("%s/token/mainnet/%s/price", m.gatewayURL, contract)
	} else {
		url = fmt.Sprintf("%s/api/v2.2/erc20/%s/price", m.baseURL, strings.ToLower(contract))
		params["chain"] = info.MoralisChain
	}

	var resp TokenPriceResp
	if err := m.httpClient.Get(ctx, url, params, nil, &resp); err != nil {
		return 0, wrapErr(err)
	}
	return resp.UsdPrice, nil
}

// TokenPriceUsd 实现 provider.PriceSource，失败只记日志
func (m *MoralisClient) TokenPriceUsd(ctx context.Context, chain, contract string) (float64, bool) {
	price, err := m.GetTokenPrice(ctx, chain, contract)
	if err != nil {
		m.logger.Warn("moralis token price failed", zap.String("chain", chain), zap.String("contract", contract), zap.Error(err))
		return 0, false
	}
	return price, price > 0
}

// NativePriceUsd 用包装原生币合约查询原生币价格
func (m *MoralisClient) NativePriceUsd(ctx context.Context, chain string) (float64, bool) {
	info, ok := utils.LookupChain(chain)
	if !ok || info.WrappedNative == "" {
		return 0, false
	}
	return m.TokenPriceUsd(ctx, chain, info.WrappedNative)
}

func (m *MoralisClient) Close() error {
	return m.httpClient.Close()
}

func wrapErr(err error) error {
	if httpclient.IsStatus(err, http.StatusTooManyRequests) {
		return fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
	}
	return err
}
