package solana_client

import (
	"context"
	"fmt"

	"web3-radar/pkg/utils"

	"github.com/gagliardetto/solana-go/rpc"
)

// Init solana client
func Init(rawUrl string) *rpc.Client {
	return rpc.New(rawUrl)
}

// HeadSource 以 finalized slot 作为 solana 的区块高度
type HeadSource struct {
	client *rpc.Client
}

func NewHeadSource(client *rpc.Client) *HeadSource {
	return &HeadSource{client: client}
}

func (h *HeadSource) Supports(chain string) bool {
	return h.client != nil && utils.CanonicalChain(chain) == "solana"
}

func (h *HeadSource) LatestBlock(ctx context.Context, chain string) (uint64, error) {
	if !h.Supports(chain) {
		return 0, fmt.Errorf("solana head source does not serve chain %s", chain)
	}
	return h.client.GetSlot(ctx, rpc.CommitmentFinalized)
}
