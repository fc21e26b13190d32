package config

import (
	"fmt"
	"time"

	"web3-radar/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config 定义整个配置的结构
type Config struct {
	Log                LogConfig           `mapstructure:"log"`
	Kafka              KafkaConfig         `mapstructure:"kafka"`
	Redis              RedisConfig         `mapstructure:"redis"`
	Database           DatabaseConfig      `mapstructure:"database"`
	Elasticsearch      ElasticsearchConfig `mapstructure:"elasticsearch"`
	Worker             WorkerConfig        `mapstructure:"worker"`
	Monitor            MonitorConfig       `mapstructure:"monitor"`
	Moralis            MoralisConfig       `mapstructure:"moralis"`
	Alchemy            AlchemyConfig       `mapstructure:"alchemy"`
	Telegram           TelegramConfig      `mapstructure:"telegram"`
	Ingestion          IngestionConfig     `mapstructure:"ingestion"`
	Scanner            ScannerConfig       `mapstructure:"scanner"`
	Detection          DetectionConfig     `mapstructure:"detection"`
	Alert              AlertConfig         `mapstructure:"alert"`
	Inspector          InspectorConfig     `mapstructure:"inspector"`
	EvmRpcUrls         map[string]string   `mapstructure:"evm_rpc_urls"`
	SolanaClientRawUrl string              `mapstructure:"solana_client_rawurl"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers   string `mapstructure:"brokers"`
	TopicJobs string `mapstructure:"topic_jobs"`
	GroupID   string `mapstructure:"group_id"`
}

// RedisConfig Redis 配置，address 为空时不启用
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig 数据库配置，driver: postgres | mysql
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	DebugIndex string   `mapstructure:"debug_index"`
}

// LogConfig Log 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// WorkerConfig 任务队列配置，queue_driver: memory | kafka
type WorkerConfig struct {
	WorkerNum   int    `mapstructure:"worker_num"`
	QueueDriver string `mapstructure:"queue_driver"`
	QueueBuffer int    `mapstructure:"queue_buffer"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

type MonitorConfig struct {
	Enable         bool   `mapstructure:"enable"`
	PrometheusAddr string `mapstructure:"prometheus_addr"`
}

type MoralisConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	GatewayURL string `mapstructure:"gateway_url"`
	APIKey     string `mapstructure:"api_key"`
	RateLimit  int    `mapstructure:"rate_limit"`
	Timeout    int    `mapstructure:"timeout"`
}

// AlchemyConfig urls 按链覆盖默认 endpoint
type AlchemyConfig struct {
	APIKey  string            `mapstructure:"api_key"`
	URLs    map[string]string `mapstructure:"urls"`
	Timeout int               `mapstructure:"timeout"`
}

type TelegramConfig struct {
	APIBase    string `mapstructure:"api_base"`
	BotToken   string `mapstructure:"bot_token"`
	Timeout    int    `mapstructure:"timeout"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// IngestionConfig 定时拉取配置，时间单位见字段名
type IngestionConfig struct {
	Provider             string   `mapstructure:"provider"`
	Chains               []string `mapstructure:"chains"`
	IntervalSec          int      `mapstructure:"interval_sec"`
	MaxTokensPerTick     int      `mapstructure:"max_tokens_per_tick"`
	TokenDelayMs         int      `mapstructure:"token_delay_ms"`
	InitialBacklogBlocks uint64   `mapstructure:"initial_backlog_blocks"`
	MaxEventsPerTick     int      `mapstructure:"max_events_per_tick"`
	PriceTTLSec          int      `mapstructure:"price_ttl_sec"`
	PriceMaxAgeSec       int      `mapstructure:"price_max_age_sec"`
}

func (c IngestionConfig) Interval() time.Duration   { return time.Duration(c.IntervalSec) * time.Second }
func (c IngestionConfig) TokenDelay() time.Duration { return time.Duration(c.TokenDelayMs) * time.Millisecond }
func (c IngestionConfig) PriceTTL() time.Duration   { return time.Duration(c.PriceTTLSec) * time.Second }
func (c IngestionConfig) PriceMaxAge() time.Duration {
	return time.Duration(c.PriceMaxAgeSec) * time.Second
}

// ScannerConfig 钱包累积扫描配置
type ScannerConfig struct {
	Enable                bool    `mapstructure:"enable"`
	DiscoveryMax          int     `mapstructure:"discovery_max"`
	DiscoveryWindowBlocks uint64  `mapstructure:"discovery_window_blocks"`
	TopK                  int     `mapstructure:"top_k"`
	DetectionWindowBlocks uint64  `mapstructure:"detection_window_blocks"`
	MinNetUsd             float64 `mapstructure:"min_net_usd"`
	MinTxCount            int     `mapstructure:"min_tx_count"`
	MinDurationHours      float64 `mapstructure:"min_duration_hours"`
	SecondsPerBlock       float64 `mapstructure:"seconds_per_block"`
	SpamWindowHours       float64 `mapstructure:"spam_window_hours"`
	SignalScore           float64 `mapstructure:"signal_score"`
	Concurrency           int     `mapstructure:"concurrency"`
}

type AlertConfig struct {
	CooldownSec   int     `mapstructure:"cooldown_sec"`
	MinScore      float64 `mapstructure:"min_score"`
	RetentionDays int     `mapstructure:"retention_days"`
}

func (c AlertConfig) Cooldown() time.Duration { return time.Duration(c.CooldownSec) * time.Second }

// InspectorConfig 调试记录，es_sink 依赖 elasticsearch.addresses
type InspectorConfig struct {
	Enable bool `mapstructure:"enable"`
	ESSink bool `mapstructure:"es_sink"`
}

// Load 读取 dir 下的 config.worker.yaml 并补全默认值
func Load(dir string) (Config, error) {
	var config Config

	v := viper.New()
	v.SetConfigName("config.worker")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		return config, fmt.Errorf("read config file: %w", err)
	}
	if err := mapstructure.Decode(v.AllSettings(), &config); err != nil {
		return config, fmt.Errorf("decode config file: %w", err)
	}
	config.applyDefaults()
	return config, nil
}

func InitConfig() Config {
	config, err := Load("./config/")
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}
	return config
}

// WatchConfig 配置文件变化时重新加载并通知 hooks
func WatchConfig(hooks ...func(Config)) {
	v := viper.New()
	v.SetConfigName("config.worker")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config/")
	if err := v.ReadInConfig(); err != nil {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig, err := Load("./config/")
		if err != nil {
			return
		}
		logger.SetLogLevel(newConfig.Log.Level)
		for _, hook := range hooks {
			hook(newConfig)
		}
	})
	v.WatchConfig()
}
