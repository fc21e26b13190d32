package worker

import (
	"context"
	"time"

	"web3-radar/internal/worker/alert"
	"web3-radar/internal/worker/cache"
	"web3-radar/internal/worker/config"
	"web3-radar/internal/worker/dao"
	"web3-radar/internal/worker/detector"
	"web3-radar/internal/worker/handler"
	"web3-radar/internal/worker/inspector"
	"web3-radar/internal/worker/job"
	"web3-radar/internal/worker/monitor"
	"web3-radar/internal/worker/queue"
	"web3-radar/internal/worker/repository"
	"web3-radar/internal/worker/scanner"
	"web3-radar/internal/worker/service"
	"web3-radar/pkg/alchemy"
	"web3-radar/pkg/evm_client"
	"web3-radar/pkg/moralis"
	"web3-radar/pkg/provider"
	"web3-radar/pkg/solana_client"
	"web3-radar/pkg/telegram"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const alertCleanupInterval = 24 * time.Hour

type closer interface {
	Close() error
}

type Core struct {
	cfg       config.Config
	tl        *zap.Logger
	repo      repository.Repository
	daos      *dao.DAOManager
	defaults  *config.DetectionDefaults
	scheduler *job.Scheduler
	queue     queue.Queue
	ingestion *job.IngestionJob
	engine    *detector.Engine
	esSink    *inspector.ESSink
	closers   []closer
	metrics   *monitor.MetricsServer
}

// deps 外部连接，dry-run 时全部为空
type deps struct {
	repo      repository.Repository
	daos      *dao.DAOManager
	rdb       *redis.Client
	headSrc   []service.ChainHeadSource
	bulk      inspector.BulkClient
	mq        queue.MessageWriter
	notifyOff bool
}

func New(cfg config.Config, logger *zap.Logger) *Core {
	// 初始化repo
	repo := repository.New(cfg, logger)

	if cfg.Database.AutoMigrate {
		if err := dao.AutoMigrate(repo.GetDB()); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
	}

	d := deps{
		repo: repo,
		daos: dao.NewDAOManager(repo.GetDB()),
		rdb:  repo.GetRDB(),
		headSrc: []service.ChainHeadSource{
			evm_client.NewHeadSource(repo.GetEvmClients()),
			solana_client.NewHeadSource(repo.GetSolanaClient()),
		},
	}
	if es := repo.GetES(); es != nil {
		d.bulk = es
	}
	if mq := repo.GetMQ(); mq != nil {
		d.mq = mq
	}
	return newCore(cfg, logger, d)
}

// NewDryRun 使用给定的 DAO（通常是 memdao），不连接数据库、redis、kafka，不发送通知
func NewDryRun(cfg config.Config, logger *zap.Logger, daos *dao.DAOManager) *Core {
	cfg.Worker.QueueDriver = "memory"
	cfg.Inspector.ESSink = false
	return newCore(cfg, logger, deps{daos: daos, notifyOff: true})
}

func newCore(cfg config.Config, logger *zap.Logger, d deps) *Core {
	c := &Core{
		cfg:       cfg,
		tl:        logger,
		repo:      d.repo,
		daos:      d.daos,
		defaults:  config.NewDetectionDefaults(cfg.Detection),
		scheduler: job.NewScheduler(logger),
		metrics:   monitor.NewMetricsServer(cfg.Monitor),
	}

	// 数据源
	dataProvider, priceSource := c.providers()

	priceCache := cache.NewPriceCache(logger, d.rdb, cfg.Ingestion.PriceTTL())
	prices := service.NewPriceResolver(logger, priceCache, d.daos.CoinDAO, priceSource, cfg.Ingestion.PriceMaxAge())
	head := service.NewChainHead(logger, dataProvider, d.headSrc...)
	normalizer := service.NewNormalizer(logger, d.daos.EventDAO)

	// 任务队列
	router := queue.NewRouter()
	if cfg.Worker.QueueDriver == "kafka" && d.mq != nil {
		c.queue = queue.NewKafkaQueue(cfg.Kafka, logger, d.mq, router, cfg.Worker)
	} else {
		c.queue = queue.NewMemoryQueue(logger, router, cfg.Worker.WorkerNum, cfg.Worker.QueueBuffer, cfg.Worker.MaxAttempts)
	}

	// 告警
	var cooldown alert.Cooldown
	if d.rdb != nil {
		cooldown = alert.NewRedisCooldown(d.rdb)
	} else {
		cooldown = alert.NewLocalCooldown()
	}
	dispatcher := alert.NewDispatcher(logger, d.daos.AlertDAO, c.queue, cooldown, cfg.Alert)

	// 规则引擎
	engineOpts := []detector.EngineOption{detector.WithAlertDispatcher(dispatcher)}
	if insp := c.inspector(d.bulk); insp != nil {
		engineOpts = append(engineOpts, detector.WithInspector(insp))
	}
	c.engine = detector.NewEngine(logger, d.daos, prices, c.defaults, engineOpts...)

	// 消费端
	var notifier handler.Notifier
	if !d.notifyOff {
		notifier = telegram.NewSender(cfg.Telegram.APIBase, cfg.Telegram.BotToken,
			time.Duration(cfg.Telegram.Timeout)*time.Second, logger)
	}
	handler.Register(router,
		handler.NewEvaluateHandler(logger, c.engine),
		handler.NewNormalizeHandler(logger, normalizer, prices, c.queue),
		handler.NewNotifyHandler(logger, d.daos.AlertDAO, notifier, cfg.Telegram.MaxRetries),
	)

	// 拉取
	var tokenScanner job.TokenScanner
	if cfg.Scanner.Enable {
		tokenScanner = scanner.NewScanner(logger, dataProvider, d.daos.SignalDAO, cfg.Scanner)
	}
	c.ingestion = job.NewIngestionJob(cfg.Ingestion, logger, d.daos, dataProvider, head, prices, normalizer, tokenScanner, c.queue)

	// 注册定时任务
	c.scheduler.RegisterJob("ingestion", cfg.Ingestion.Interval(), c.ingestion.Run,
		job.WithTimeout(cfg.Ingestion.Interval()))
	alertCleanup := job.NewAlertCleanup(cfg.Alert, d.daos.AlertDAO, logger)
	c.scheduler.RegisterJob("alert_cleanup", alertCleanupInterval, alertCleanup.Run,
		job.WithTimeout(time.Hour), job.WithDelayedStart())

	return c
}

// providers 拉取用配置的 provider，价格统一走 moralis
func (c *Core) providers() (provider.ChainDataProvider, provider.PriceSource) {
	var (
		dataProvider provider.ChainDataProvider
		priceSource  provider.PriceSource
	)
	var mc *moralis.MoralisClient
	if c.cfg.Moralis.APIKey != "" || c.cfg.Ingestion.Provider == "moralis" {
		mc = moralis.NewMoralisClient(c.cfg.Moralis, c.tl)
		c.closers = append(c.closers, mc)
		priceSource = mc
	}
	if c.cfg.Ingestion.Provider == "moralis" {
		dataProvider = mc
	} else {
		ac := alchemy.NewClient(c.cfg.Alchemy, c.tl)
		c.closers = append(c.closers, ac)
		dataProvider = ac
	}
	c.tl.Info("chain data provider selected",
		zap.String("provider", dataProvider.Name()),
		zap.Bool("price_source", priceSource != nil))
	return dataProvider, priceSource
}

func (c *Core) inspector(bulk inspector.BulkClient) *inspector.Inspector {
	if !c.cfg.Inspector.Enable {
		return nil
	}
	sinks := []inspector.Sink{inspector.NewLogSink(c.tl)}
	if c.cfg.Inspector.ESSink && bulk != nil && c.cfg.Elasticsearch.DebugIndex != "" {
		c.esSink = inspector.NewESSink(context.Background(), c.tl, bulk, c.cfg.Elasticsearch.DebugIndex)
		sinks = append(sinks, c.esSink)
	}
	return inspector.New(sinks...)
}

// ApplyConfig 配置热加载，只刷新检测阈值
func (c *Core) ApplyConfig(cfg config.Config) {
	c.defaults.Store(cfg.Detection)
	c.tl.Info("detection defaults reloaded",
		zap.Float64("candidate_threshold", cfg.Detection.CandidateThreshold),
		zap.Float64("alert_threshold", cfg.Detection.AlertThreshold))
}

func (c *Core) Start(ctx context.Context) {
	c.tl.Info("Starting worker core...")
	// 启动监控服务
	c.metrics.Run(func(err error) {
		c.tl.Error("metrics server exited", zap.Error(err))
	})

	// 启动队列消费
	c.queue.Run(ctx)

	// 启动调度器
	c.scheduler.Start(ctx)
	c.tl.Info("Worker started successfully")

	// 等待外部关闭信号
	<-ctx.Done()
	c.tl.Info("Shutting down worker due to context cancellation...")
}

// RunOnce 执行一次拉取，memory 队列会等待评估和通知处理完
func (c *Core) RunOnce(ctx context.Context) (*job.TickReport, error) {
	c.queue.Run(ctx)
	defer c.queue.Stop()

	report, err := c.ingestion.RunOnce(ctx)
	if err != nil {
		return report, err
	}
	if mq, ok := c.queue.(*queue.MemoryQueue); ok {
		if err := mq.WaitIdle(ctx); err != nil {
			return report, err
		}
	}
	return report, nil
}

// Stop 优雅关闭 Core 的所有资源
func (c *Core) Stop(ctx context.Context) {
	c.tl.Info("Stopping worker core...")

	// 停止调度器
	if c.scheduler != nil {
		c.scheduler.Stop(ctx)
	}

	// 停止队列
	if err := c.queue.Stop(); err != nil {
		c.tl.Warn("queue stop failed", zap.Error(err))
	}

	if c.esSink != nil {
		c.esSink.Close()
	}

	// 停止 Prometheus 监控服务
	_ = c.metrics.Stop(ctx)

	for _, cl := range c.closers {
		_ = cl.Close()
	}
	if c.repo != nil {
		c.repo.Close()
	}

	c.tl.Info("Worker core stopped.")
}
