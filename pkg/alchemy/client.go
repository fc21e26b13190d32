package alchemy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"web3-radar/internal/worker/config"
	"web3-radar/pkg/provider"
	"web3-radar/pkg/utils"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

const (
	providerName = "alchemy"
	maxPageSize  = 1000
	pageRetries  = 3
)

// Client alchemy JSON-RPC 数据源，每条链一个 rpc 连接
type Client struct {
	cfg     config.AlchemyConfig
	logger  *zap.Logger
	timeout time.Duration
	backoff time.Duration

	mu      sync.Mutex
	clients map[string]*rpc.Client
}

func NewClient(cfg config.AlchemyConfig, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:     cfg,
		logger:  logger,
		timeout: timeout,
		backoff: 200 * time.Millisecond,
		clients: make(map[string]*rpc.Client),
	}
}

func (c *Client) Name() string {
	return providerName
}

// endpoint 优先使用配置的 url，否则按 network 拼接
func (c *Client) endpoint(chain string) (string, error) {
	name := utils.CanonicalChain(chain)
	if url, ok := c.cfg.URLs[name]; ok && url != "" {
		return url, nil
	}
	info, ok := utils.LookupChain(name)
	if !ok || info.AlchemyNetwork == "" || c.cfg.APIKey == "" {
		return "", fmt.Errorf("alchemy endpoint %s: %w", chain, provider.ErrUnsupportedChain)
	}
	return fmt.Sprintf("https://%s.g.alchemy.com/v2/%s", info.AlchemyNetwork, c.cfg.APIKey), nil
}

func (c *Client) rpcClient(ctx context.Context, chain string) (*rpc.Client, error) {
	name := utils.CanonicalChain(chain)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cli, ok := c.clients[name]; ok {
		return cli, nil
	}
	url, err := c.endpoint(name)
	if err != nil {
		return nil, err
	}
	cli, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial alchemy %s: %w", name, err)
	}
	c.clients[name] = cli
	return cli, nil
}

// LatestBlock eth_blockNumber
func (c *Client) LatestBlock(ctx context.Context, chain string) (uint64, error) {
	cli, err := c.rpcClient(ctx, chain)
	if err != nil {
		return 0, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var head hexutil.Uint64
	if err := cli.CallContext(callCtx, &head, "eth_blockNumber"); err != nil {
		return 0, fmt.Errorf("alchemy eth_blockNumber %s: %w", chain, err)
	}
	return uint64(head), nil
}

// FetchTransfers alchemy_getAssetTransfers，pageKey 分页直到 MaxCount 或数据取完
func (c *Client) FetchTransfers(ctx context.Context, chain, contract string, fromBlock, toBlock uint64, opts provider.FetchOptions) ([]provider.Transfer, error) {
	if !utils.IsEVMChain(chain) {
		return nil, fmt.Errorf("alchemy transfers %s: %w", chain, provider.ErrUnsupportedChain)
	}
	cli, err := c.rpcClient(ctx, chain)
	if err != nil {
		return nil, err
	}

	chainName := utils.CanonicalChain(chain)
	pageKey := opts.PageKey
	result := make([]provider.Transfer, 0)
	for {
		pageSize := maxPageSize
		if opts.MaxCount > 0 && opts.MaxCount-len(result) < pageSize {
			pageSize = opts.MaxCount - len(result)
		}

		params := assetTransferParams{
			FromBlock:         hexutil.EncodeUint64(fromBlock),
			ToBlock:           hexutil.EncodeUint64(toBlock),
			ContractAddresses: []string{contract},
			Category:          []string{"erc20"},
			WithMetadata:      true,
			ExcludeZeroValue:  true,
			MaxCount:          hexutil.EncodeUint64(uint64(pageSize)),
			Order:             "asc",
			PageKey:           pageKey,
			ToAddress:         opts.ToAddress,
			FromAddress:       opts.FromAddress,
		}

		var page assetTransfersResult
		if err := c.callWithBackoff(ctx, cli, &page, params); err != nil {
			return result, fmt.Errorf("alchemy transfers %s %s: %w", chainName, contract, err)
		}
		for _, item := range page.Transfers {
			result = append(result, toTransfer(chainName, item))
		}

		pageKey = page.PageKey
		if pageKey == "" || (opts.MaxCount > 0 && len(result) >= opts.MaxCount) {
			break
		}
	}
	return result, nil
}

func (c *Client) callWithBackoff(ctx context.Context, cli *rpc.Client, out *assetTransfersResult, params assetTransferParams) error {
	var err error
	for i := 0; i < pageRetries; i++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err = cli.CallContext(callCtx, out, "alchemy_getAssetTransfers", params)
		cancel()
		if err == nil {
			return nil
		}
		c.logger.Debug("alchemy page retry", zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff << i):
		}
	}
	return err
}

func toTransfer(chain string, item assetTransfer) provider.Transfer {
	t := provider.Transfer{
		UniqueID: item.UniqueID,
		Provider: providerName,
		Chain:    chain,
		Contract: item.RawContract.Address,
		Symbol:   item.Asset,
		Category: "transfer",
		From:     item.From,
		To:       item.To,
		RawValue: item.RawContract.Value,
		TxHash:   item.Hash,
	}
	if n, ok := parseQuantity(item.BlockNum); ok {
		t.BlockNumber = n
	}
	if d, ok := parseQuantity(item.RawContract.Decimal); ok {
		decimals := int(d)
		t.Decimals = &decimals
	}
	if idx := logIndexFromUniqueID(item.UniqueID); idx >= 0 {
		t.LogIndex = &idx
	}
	if item.Metadata.BlockTimestamp != "" {
		if ts, err := time.Parse(time.RFC3339, item.Metadata.BlockTimestamp); err == nil {
			t.Timestamp = ts.Unix()
		}
	}
	if raw, err := sonic.Marshal(item); err == nil {
		t.Raw = raw
	}
	return t
}

// logIndexFromUniqueID uniqueId 形如 0xhash:log:5
func logIndexFromUniqueID(uid string) int {
	i := strings.LastIndex(uid, ":log:")
	if i < 0 {
		return -1
	}
	n, ok := parseQuantity(uid[i+len(":log:"):])
	if !ok {
		return -1
	}
	return int(n)
}

// parseQuantity 兼容 0x 前导零和十进制
func parseQuantity(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		return n, err == nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, cli := range c.clients {
		cli.Close()
		delete(c.clients, name)
	}
	return nil
}
