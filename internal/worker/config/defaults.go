package config

import "strings"

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Kafka.TopicJobs == "" {
		c.Kafka.TopicJobs = "radar_jobs"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "web3-radar-worker"
	}
	if c.Elasticsearch.DebugIndex == "" {
		c.Elasticsearch.DebugIndex = "radar_rule_debug"
	}

	w := &c.Worker
	if w.WorkerNum <= 0 {
		w.WorkerNum = 4
	}
	if w.QueueDriver == "" {
		w.QueueDriver = "memory"
	}
	w.QueueDriver = strings.ToLower(w.QueueDriver)
	if w.QueueBuffer <= 0 {
		w.QueueBuffer = 2000
	}
	if w.MaxAttempts <= 0 {
		w.MaxAttempts = 3
	}

	if c.Moralis.BaseURL == "" {
		c.Moralis.BaseURL = "https://deep-index.moralis.io"
	}
	if c.Moralis.GatewayURL == "" {
		c.Moralis.GatewayURL = "https://solana-gateway.moralis.io"
	}
	if c.Moralis.Timeout <= 0 {
		c.Moralis.Timeout = 15
	}
	if c.Alchemy.Timeout <= 0 {
		c.Alchemy.Timeout = 15
	}
	if c.Telegram.Timeout <= 0 {
		c.Telegram.Timeout = 10
	}
	if c.Telegram.MaxRetries <= 0 {
		c.Telegram.MaxRetries = 3
	}

	in := &c.Ingestion
	if in.Provider == "" {
		in.Provider = "alchemy"
	}
	if len(in.Chains) == 0 {
		in.Chains = []string{"ethereum"}
	}
	if in.IntervalSec <= 0 {
		in.IntervalSec = 300
	}
	if in.MaxTokensPerTick <= 0 {
		in.MaxTokensPerTick = 5
	}
	if in.TokenDelayMs <= 0 {
		in.TokenDelayMs = 2000
	}
	if in.InitialBacklogBlocks == 0 {
		in.InitialBacklogBlocks = 20
	}
	if in.MaxEventsPerTick <= 0 {
		in.MaxEventsPerTick = 50
	}
	if in.PriceTTLSec <= 0 {
		in.PriceTTLSec = 300
	}
	if in.PriceMaxAgeSec <= 0 {
		in.PriceMaxAgeSec = 1800
	}

	c.Scanner = c.Scanner.withDefaults()
	c.Detection = c.Detection.withDefaults()

	a := &c.Alert
	if a.CooldownSec <= 0 {
		a.CooldownSec = 3600
	}
	if a.MinScore <= 0 {
		a.MinScore = c.Detection.AlertThreshold
	}
	if a.RetentionDays <= 0 {
		a.RetentionDays = 30
	}
}

// withDefaults 未配置的扫描参数使用默认值
func (s ScannerConfig) withDefaults() ScannerConfig {
	if s.DiscoveryMax <= 0 {
		s.DiscoveryMax = 1000
	}
	if s.DiscoveryWindowBlocks == 0 {
		s.DiscoveryWindowBlocks = 50_000
	}
	if s.TopK <= 0 {
		s.TopK = 5
	}
	if s.DetectionWindowBlocks == 0 {
		s.DetectionWindowBlocks = 200_000
	}
	if s.MinNetUsd <= 0 {
		s.MinNetUsd = 50_000
	}
	if s.MinTxCount <= 0 {
		s.MinTxCount = 3
	}
	if s.MinDurationHours <= 0 {
		s.MinDurationHours = 24
	}
	if s.SecondsPerBlock <= 0 {
		s.SecondsPerBlock = 12
	}
	if s.SpamWindowHours <= 0 {
		s.SpamWindowHours = 6
	}
	if s.SignalScore <= 0 {
		s.SignalScore = 90
	}
	if s.Concurrency <= 0 {
		s.Concurrency = 1
	}
	return s
}

// DefaultScannerConfig 默认扫描参数
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{Enable: true}.withDefaults()
}
