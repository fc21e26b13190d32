package repository

import (
	"web3-radar/pkg/elasticsearch"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"
)

type RedisClient = *redis.Client
type DBClient = *gorm.DB
type MQClient = *kafka.Writer

// Repository 外部连接，可选组件未配置时返回 nil
type Repository interface {
	GetDB() DBClient
	GetRDB() RedisClient
	GetMQ() MQClient
	GetES() *elasticsearch.Client
	GetEvmClients() map[string]*ethclient.Client
	GetSolanaClient() *rpc.Client
	Close() error
}
