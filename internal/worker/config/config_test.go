package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
log:
  level: debug
database:
  driver: mysql
  dsn: "user:pass@tcp(127.0.0.1:3306)/radar"
ingestion:
  chains: [ethereum, bsc]
  max_tokens_per_tick: 3
alchemy:
  urls:
    ethereum: "http://localhost:8545"
detection:
  large_transfer_usd: 75000
scanner:
  enable: true
  top_k: 7
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.worker.yaml"), []byte(sampleYAML), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, []string{"ethereum", "bsc"}, cfg.Ingestion.Chains)
	assert.Equal(t, 3, cfg.Ingestion.MaxTokensPerTick)
	assert.Equal(t, "http://localhost:8545", cfg.Alchemy.URLs["ethereum"])

	// 显式配置覆盖默认值
	assert.Equal(t, 75000.0, cfg.Detection.LargeTransferUsd)
	assert.Equal(t, 7, cfg.Scanner.TopK)

	// 未配置字段使用默认值
	assert.Equal(t, 108.0, cfg.Detection.MaxPossibleScore)
	assert.Equal(t, 300, cfg.Ingestion.IntervalSec)
	assert.Equal(t, uint64(20), cfg.Ingestion.InitialBacklogBlocks)
	assert.Equal(t, 50, cfg.Ingestion.MaxEventsPerTick)
	assert.Equal(t, uint64(50_000), cfg.Scanner.DiscoveryWindowBlocks)
	assert.Equal(t, uint64(200_000), cfg.Scanner.DetectionWindowBlocks)
	assert.Equal(t, 90.0, cfg.Scanner.SignalScore)
	assert.Equal(t, "memory", cfg.Worker.QueueDriver)
	assert.Equal(t, 75.0, cfg.Alert.MinScore)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestDetectionMerge(t *testing.T) {
	base := DefaultDetectionConfig()
	large := decimal.NewFromInt(10_000)
	zero := decimal.Zero

	merged := base.Merge(&Override{LargeTransferUsd: &large, AlertThreshold: &zero})
	assert.Equal(t, 10_000.0, merged.LargeTransferUsd)
	assert.Equal(t, 75.0, merged.AlertThreshold, "non-positive override is ignored")
	assert.Equal(t, 50_000.0, base.LargeTransferUsd, "merge must not mutate the defaults")
	assert.Equal(t, base, base.Merge(nil))
}

func TestDetectionDefaults(t *testing.T) {
	d := NewDetectionDefaults(DetectionConfig{LargeTransferUsd: 1})
	got := d.Load()
	assert.Equal(t, 1.0, got.LargeTransferUsd)
	assert.Equal(t, 60.0, got.CandidateThreshold)

	d.Store(DefaultDetectionConfig())
	assert.Equal(t, 50_000.0, d.Load().LargeTransferUsd)
}
