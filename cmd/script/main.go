package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"web3-radar/internal/worker"
	"web3-radar/internal/worker/config"
	"web3-radar/internal/worker/dao"
	"web3-radar/internal/worker/dao/memdao"
	"web3-radar/internal/worker/repository"
	"web3-radar/internal/worker/model"
	"web3-radar/pkg/logger"
	"web3-radar/pkg/utils"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// 一次性拉取：对单条链执行一轮 ingestion，等待评估和通知处理完后退出

func main() {
	startTime := time.Now()

	chain := pflag.String("chain", "", "chain to ingest, defaults to the first configured chain")
	token := pflag.String("token", "", "contract address to track in dry-run mode")
	dryRun := pflag.Bool("dry-run", false, "use in-memory storage, send no notifications")
	timeout := pflag.Duration("timeout", 10*time.Minute, "overall timeout")
	falsePositive := pflag.String("false-positive", "", "mark a signal as false positive, e.g. accumulation:42 or market:7")
	by := pflag.String("by", "ops", "operator recorded with --false-positive")
	note := pflag.String("note", "", "note recorded with --false-positive")
	pflag.Parse()

	// 初始化配置文件
	cfg := config.InitConfig()
	if *chain != "" {
		cfg.Ingestion.Chains = []string{utils.CanonicalChain(*chain)}
	} else if len(cfg.Ingestion.Chains) > 1 {
		cfg.Ingestion.Chains = cfg.Ingestion.Chains[:1]
	}
	// 单次运行不暴露指标
	cfg.Monitor.Enable = false

	// 初始化 trace provider
	logger.InitTrace("web3-radar", "script")
	// 启动主 span
	ctx, span := logger.StartSpan(context.Background(), "main", "main")
	defer span.End()

	// 创建 root logger 并注入 trace 上下文
	rootLogger := logger.NewLogger("script")
	logger.SetLogLevel(cfg.Log.Level)
	tl := logger.WithTrace(ctx, rootLogger)

	if *falsePositive != "" {
		if err := markFalsePositive(ctx, cfg, tl, *falsePositive, *by, *note); err != nil {
			tl.Error("Failed to mark false positive", zap.String("signal", *falsePositive), zap.Error(err))
			os.Exit(1)
		}
		tl.Info("Signal marked as false positive", zap.String("signal", *falsePositive), zap.String("by", *by))
		return
	}

	var core *worker.Core
	if *dryRun {
		if strings.TrimSpace(*token) == "" {
			tl.Error("--token is required with --dry-run")
			os.Exit(2)
		}
		store := memdao.New()
		store.PutCoin(&model.Coin{
			Chain:           cfg.Ingestion.Chains[0],
			ContractAddress: strings.ToLower(strings.TrimSpace(*token)),
			IsActive:        true,
		})
		core = worker.NewDryRun(cfg, tl, store.Manager())
	} else {
		core = worker.New(cfg, tl)
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	tl.Info("Starting one-shot ingestion",
		zap.Strings("chains", cfg.Ingestion.Chains),
		zap.Bool("dry_run", *dryRun))
	report, err := core.RunOnce(ctx)
	core.Stop(context.Background())
	if err != nil {
		tl.Error("Failed to run ingestion", zap.Error(err))
		os.Exit(1)
	}
	tl.Info("Task completed successfully",
		zap.Int("tokens", report.Tokens),
		zap.Int("inserted", report.Inserted),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("invalid", report.Invalid),
		zap.Int("enqueued", report.Enqueued),
		zap.Int("errors", report.Errors),
		zap.Duration("taken_time", time.Since(startTime)))
}

// markFalsePositive ref 格式为 kind:id
func markFalsePositive(ctx context.Context, cfg config.Config, tl *zap.Logger, ref, by, note string) error {
	kind, rawID, ok := strings.Cut(ref, ":")
	if !ok {
		return errors.New("expected kind:id")
	}
	sk := dao.SignalKind(strings.ToLower(strings.TrimSpace(kind)))
	if sk != dao.SignalAccumulation && sk != dao.SignalMarket {
		return errors.New("unknown signal kind " + kind)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil {
		return err
	}

	repo := repository.New(cfg, tl)
	defer repo.Close()
	return dao.NewDAOManager(repo.GetDB()).SignalDAO.MarkFalsePositive(ctx, sk, id, by, note)
}
