package alchemy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"web3-radar/internal/worker/config"
	"web3-radar/pkg/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type rpcRequest struct {
	ID     json.RawMessage       `json:"id"`
	Method string                `json:"method"`
	Params []assetTransferParams `json:"params"`
}

func newRPCServer(t *testing.T, handle func(req rpcRequest) string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, handle(req))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(config.AlchemyConfig{URLs: map[string]string{"ethereum": srv.URL}}, zap.NewNop())
	c.backoff = 0
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLatestBlock(t *testing.T) {
	c := newRPCServer(t, func(req rpcRequest) string {
		assert.Equal(t, "eth_blockNumber", req.Method)
		return `"0x1312d00"`
	})
	head, err := c.LatestBlock(context.Background(), "eth")
	require.NoError(t, err)
	assert.Equal(t, uint64(20000000), head)
}

func TestFetchTransfersPageKeyIsolation(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []assetTransferParams
	)
	snapshot := func() []assetTransferParams {
		mu.Lock()
		defer mu.Unlock()
		return append([]assetTransferParams(nil), calls...)
	}
	c := newRPCServer(t, func(req rpcRequest) string {
		assert.Equal(t, "alchemy_getAssetTransfers", req.Method)
		p := req.Params[0]
		mu.Lock()
		calls = append(calls, p)
		mu.Unlock()
		if p.PageKey == "" {
			return `{"pageKey":"k2","transfers":[{"blockNum":"0x10","uniqueId":"0xaa:log:3","hash":"0xaa","from":"0x1","to":"0x2","asset":"TKN","rawContract":{"value":"0x0de0b6b3a7640000","address":"0xabc","decimal":"0x12"},"metadata":{"blockTimestamp":"2024-01-01T00:00:00.000Z"}}]}`
		}
		return `{"pageKey":"","transfers":[{"blockNum":"0x11","uniqueId":"0xbb:log:0","hash":"0xbb","from":"0x1","to":"0x3","rawContract":{"value":"0x01","address":"0xabc","decimal":"0x12"}}]}`
	})

	transfers, err := c.FetchTransfers(context.Background(), "ethereum", "0xabc", 16, 32, provider.FetchOptions{ToAddress: "0x2", MaxCount: 10})
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	seen := snapshot()
	require.Len(t, seen, 2)
	assert.Equal(t, "0x10", seen[0].FromBlock)
	assert.Equal(t, "0x20", seen[0].ToBlock)
	assert.Equal(t, "0xa", seen[0].MaxCount)
	assert.Equal(t, "0x9", seen[1].MaxCount)
	assert.Equal(t, "0x2", seen[0].ToAddress)
	assert.Equal(t, "k2", seen[1].PageKey)

	first := transfers[0]
	assert.Equal(t, uint64(16), first.BlockNumber)
	require.NotNil(t, first.Decimals)
	assert.Equal(t, 18, *first.Decimals)
	require.NotNil(t, first.LogIndex)
	assert.Equal(t, 3, *first.LogIndex)
	assert.Equal(t, int64(1704067200), first.Timestamp)
	assert.Equal(t, "0x0de0b6b3a7640000", first.RawValue)
	assert.Zero(t, transfers[1].Timestamp)

	_, err = c.FetchTransfers(context.Background(), "ethereum", "0xabc", 16, 32, provider.FetchOptions{FromAddress: "0x2", MaxCount: 10})
	require.NoError(t, err)
	seen = snapshot()
	require.Len(t, seen, 4)
	assert.Equal(t, "", seen[2].PageKey)
	assert.Equal(t, "0x2", seen[2].FromAddress)
	assert.Equal(t, "", seen[2].ToAddress)
}

func TestFetchTransfersRejectsSolana(t *testing.T) {
	c := NewClient(config.AlchemyConfig{}, zap.NewNop())
	_, err := c.FetchTransfers(context.Background(), "solana", "mint", 1, 2, provider.FetchOptions{})
	assert.ErrorIs(t, err, provider.ErrUnsupportedChain)
}
