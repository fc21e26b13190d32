package evm_client

import (
	"context"
	"fmt"
	"time"

	"web3-radar/pkg/utils"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Init evm client
func Init(rawurl string) (*ethclient.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("init evm client error: %w", err)
	}
	return client, nil
}

// HeadSource 多链 ethclient 取最新区块
type HeadSource struct {
	clients map[string]*ethclient.Client
}

func NewHeadSource(clients map[string]*ethclient.Client) *HeadSource {
	normalized := make(map[string]*ethclient.Client, len(clients))
	for chain, c := range clients {
		normalized[utils.CanonicalChain(chain)] = c
	}
	return &HeadSource{clients: normalized}
}

// Supports 是否配置了该链的节点
func (h *HeadSource) Supports(chain string) bool {
	_, ok := h.clients[utils.CanonicalChain(chain)]
	return ok
}

func (h *HeadSource) LatestBlock(ctx context.Context, chain string) (uint64, error) {
	c, ok := h.clients[utils.CanonicalChain(chain)]
	if !ok {
		return 0, fmt.Errorf("no evm client for chain %s", chain)
	}
	return c.BlockNumber(ctx)
}

func (h *HeadSource) Close() {
	for _, c := range h.clients {
		c.Close()
	}
}
