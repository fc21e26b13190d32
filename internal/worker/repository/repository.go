package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"web3-radar/internal/worker/config"
	"web3-radar/pkg/database"
	"web3-radar/pkg/elasticsearch"
	"web3-radar/pkg/evm_client"
	"web3-radar/pkg/solana_client"
	"web3-radar/pkg/utils"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var once sync.Once
var r *repositoryImpl

func New(cfg config.Config, logger *zap.Logger) Repository {
	once.Do(func() {
		r = &repositoryImpl{
			cfg:    cfg,
			logger: logger,
		}
		r.init()
	})
	return r
}

type repositoryImpl struct {
	cfg          config.Config
	logger       *zap.Logger
	db           *gorm.DB
	rdb          *redis.Client
	mq           *kafka.Writer
	es           *elasticsearch.Client
	evmClients   map[string]*ethclient.Client
	solanaClient *rpc.Client
}

func (r *repositoryImpl) init() {
	var err error
	r.db, err = database.Open(r.cfg.Database.Driver, r.cfg.Database.DSN)
	if err != nil {
		panic(err)
	}

	// redis 可选，不配置时冷却和价格缓存退化为进程内
	if strings.TrimSpace(r.cfg.Redis.Address) != "" {
		r.rdb = redis.NewClient(&redis.Options{
			Addr:     r.cfg.Redis.Address,
			Password: r.cfg.Redis.Password,
			DB:       r.cfg.Redis.DB,
			PoolSize: 20,
		})
		if err := r.rdb.Ping(context.Background()).Err(); err != nil {
			r.logger.Warn("failed to connect to redis, continue", zap.Error(err))
		}
	} else {
		r.logger.Info("redis address empty, using in-process caches")
	}

	// 任务队列需要拿到写入结果，不能用 async
	if r.cfg.Worker.QueueDriver == "kafka" && strings.TrimSpace(r.cfg.Kafka.Brokers) != "" {
		brokers := strings.Split(r.cfg.Kafka.Brokers, ",")
		r.mq = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchBytes:   1024 * 1024, // 1MB
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			Compression:  kafka.Snappy,
			MaxAttempts:  5,
			WriteTimeout: 2 * time.Second,
		}
	}

	if len(r.cfg.Elasticsearch.Addresses) > 0 {
		r.es, err = elasticsearch.NewClient(elasticsearch.Config{
			Addresses: r.cfg.Elasticsearch.Addresses,
			Username:  r.cfg.Elasticsearch.Username,
			Password:  r.cfg.Elasticsearch.Password,
		}, r.logger)
		if err != nil {
			r.logger.Warn("failed to create elasticsearch client, continue without it", zap.Error(err))
		}
	}

	// 初始化rpc client
	r.evmClients = make(map[string]*ethclient.Client, len(r.cfg.EvmRpcUrls))
	for chain, url := range r.cfg.EvmRpcUrls {
		if strings.TrimSpace(url) == "" {
			continue
		}
		client, err := evm_client.Init(url)
		if err != nil {
			r.logger.Warn("failed to init evm client", zap.String("chain", chain), zap.Error(err))
			continue
		}
		r.evmClients[utils.CanonicalChain(chain)] = client
	}
	if strings.TrimSpace(r.cfg.SolanaClientRawUrl) != "" {
		r.solanaClient = solana_client.Init(r.cfg.SolanaClientRawUrl)
	}
}

func (r *repositoryImpl) GetDB() *gorm.DB {
	return r.db
}

func (r *repositoryImpl) GetRDB() *redis.Client {
	return r.rdb
}

func (r *repositoryImpl) GetMQ() MQClient {
	return r.mq
}

func (r *repositoryImpl) GetES() *elasticsearch.Client {
	return r.es
}

func (r *repositoryImpl) GetEvmClients() map[string]*ethclient.Client {
	return r.evmClients
}

func (r *repositoryImpl) GetSolanaClient() *rpc.Client {
	return r.solanaClient
}

func (r *repositoryImpl) Close() error {
	if r.db != nil {
		if sqlDB, err := r.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if r.rdb != nil {
		r.rdb.Close()
	}
	if r.mq != nil {
		r.mq.Close()
	}
	for _, c := range r.evmClients {
		c.Close()
	}
	if r.solanaClient != nil {
		r.solanaClient.Close()
	}
	return nil
}
