package job

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"web3-radar/internal/worker/config"
	"web3-radar/internal/worker/dao"
	"web3-radar/internal/worker/model"
	"web3-radar/internal/worker/monitor"
	"web3-radar/internal/worker/queue"
	"web3-radar/internal/worker/scanner"
	"web3-radar/internal/worker/service"
	"web3-radar/pkg/logger"
	"web3-radar/pkg/provider"
	"web3-radar/pkg/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PriceResolver 当前 USD 价格
type PriceResolver interface {
	Resolve(ctx context.Context, coin *model.Coin) (float64, bool)
}

// TokenScanner 钱包扫描，可为 nil
type TokenScanner interface {
	Scan(ctx context.Context, coin *model.Coin, head uint64, priceUsd float64) (*scanner.Result, error)
}

// TickReport 一次拉取的统计
type TickReport struct {
	Skipped    bool
	Chains     int
	Tokens     int
	Inserted   int
	Duplicates int
	Invalid    int
	Enqueued   int
	Errors     int
}

func (r *TickReport) add(o tokenReport) {
	r.Tokens++
	r.Inserted += o.inserted
	r.Duplicates += o.duplicates
	r.Invalid += o.invalid
	r.Enqueued += o.enqueued
	r.Errors += o.errors
}

type tokenReport struct {
	inserted   int
	duplicates int
	invalid    int
	enqueued   int
	errors     int
}

// IngestionJob 定时拉取 tracked token 的转账，入库后投递规则评估
type IngestionJob struct {
	tl         *zap.Logger
	conf       config.IngestionConfig
	daos       *dao.DAOManager
	provider   provider.ChainDataProvider
	head       provider.HeadSource
	prices     PriceResolver
	normalizer *service.Normalizer
	scanner    TokenScanner
	producer   queue.Producer

	running atomic.Bool
	mu      sync.Mutex
	offsets map[string]int // 每条链的轮转起点
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewIngestionJob(
	conf config.IngestionConfig,
	logger *zap.Logger,
	daos *dao.DAOManager,
	p provider.ChainDataProvider,
	head provider.HeadSource,
	prices PriceResolver,
	normalizer *service.Normalizer,
	tokenScanner TokenScanner,
	producer queue.Producer,
) *IngestionJob {
	if head == nil {
		head = p
	}
	return &IngestionJob{
		tl:         logger,
		conf:       conf,
		daos:       daos,
		provider:   p,
		head:       head,
		prices:     prices,
		normalizer: normalizer,
		scanner:    tokenScanner,
		producer:   producer,
		offsets:    make(map[string]int),
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run 供 Scheduler 调用
func (j *IngestionJob) Run(ctx context.Context) error {
	report, err := j.RunOnce(ctx)
	if err != nil {
		return err
	}
	if !report.Skipped {
		j.tl.Info("ingestion tick completed",
			zap.Int("chains", report.Chains),
			zap.Int("tokens", report.Tokens),
			zap.Int("inserted", report.Inserted),
			zap.Int("duplicates", report.Duplicates),
			zap.Int("invalid", report.Invalid),
			zap.Int("enqueued", report.Enqueued),
			zap.Int("errors", report.Errors))
	}
	return nil
}

// RunOnce 执行一次完整拉取；上一次未结束时直接返回 Skipped
func (j *IngestionJob) RunOnce(ctx context.Context) (*TickReport, error) {
	report := &TickReport{}
	if !j.running.CompareAndSwap(false, true) {
		monitor.IngestionTicksSkipped.Inc()
		j.tl.Info("previous ingestion tick still running, skipping")
		report.Skipped = true
		return report, nil
	}
	defer j.running.Store(false)

	ctx, span := logger.StartSpan(ctx, "ingestion", "Tick")
	defer span.End()
	tl := logger.WithTrace(ctx, j.tl)

	startTime := time.Now()
	defer func() {
		monitor.IngestionTickDuration.Observe(time.Since(startTime).Seconds())
	}()

	for _, raw := range j.conf.Chains {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		chain := utils.CanonicalChain(raw)
		report.Chains++
		if err := j.runChain(ctx, tl, chain, report); err != nil {
			report.Errors++
			tl.Warn("ingestion failed for chain", zap.String("chain", chain), zap.Error(err))
		}
	}
	return report, nil
}

// nextBatch 从轮转起点取至多 MaxTokensPerTick 个 token
func (j *IngestionJob) nextBatch(chain string, coins []*model.Coin) []*model.Coin {
	limit := j.conf.MaxTokensPerTick
	if limit <= 0 || len(coins) <= limit {
		return coins
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	start := j.offsets[chain] % len(coins)
	batch := make([]*model.Coin, 0, limit)
	for i := 0; i < limit; i++ {
		batch = append(batch, coins[(start+i)%len(coins)])
	}
	j.offsets[chain] = (start + limit) % len(coins)
	return batch
}

func (j *IngestionJob) runChain(ctx context.Context, tl *zap.Logger, chain string, report *TickReport) error {
	ctx, span := logger.StartSpan(ctx, "ingestion", "Chain", attribute.String("chain", chain))
	defer span.End()

	coins, err := j.daos.CoinDAO.ListTracked(ctx, chain)
	if err != nil {
		monitor.IngestionErrors.WithLabelValues(chain, "list_tokens").Inc()
		return err
	}
	if len(coins) == 0 {
		return nil
	}

	head, err := j.head.LatestBlock(ctx, chain)
	if err != nil {
		monitor.IngestionErrors.WithLabelValues(chain, "head").Inc()
		return err
	}

	batch := j.nextBatch(chain, coins)
	for i, coin := range batch {
		if i > 0 {
			if err := j.sleep(ctx, j.conf.TokenDelay()); err != nil {
				return err
			}
		}
		tr := j.processToken(ctx, tl, chain, coin, head)
		report.add(tr)
	}
	return nil
}

func (j *IngestionJob) processToken(ctx context.Context, tl *zap.Logger, chain string, coin *model.Coin, head uint64) tokenReport {
	var tr tokenReport
	tl = tl.With(zap.String("chain", chain), zap.String("token", coin.ContractAddress), zap.Int64("coin_id", coin.ID))

	// 1. 价格
	price, hasPrice := j.prices.Resolve(ctx, coin)

	// 2. 钱包扫描，失败不影响拉取
	if j.scanner != nil {
		if _, err := j.scanner.Scan(ctx, coin, head, price); err != nil {
			monitor.IngestionErrors.WithLabelValues(chain, "scanner").Inc()
			tl.Warn("scanner failed", zap.Error(err))
		}
	}

	// 3-4. 区块范围
	last, exists, err := j.daos.CursorDAO.Get(ctx, coin.ID, chain)
	if err != nil {
		monitor.IngestionErrors.WithLabelValues(chain, "cursor").Inc()
		tl.Warn("load cursor failed", zap.Error(err))
		tr.errors++
		return tr
	}
	var from uint64
	switch {
	case exists:
		from = last + 1
	case head > j.conf.InitialBacklogBlocks:
		from = head - j.conf.InitialBacklogBlocks
	}
	if from > head {
		return tr
	}

	// 5. 拉取
	transfers, err := j.provider.FetchTransfers(ctx, chain, coin.ContractAddress, from, head,
		provider.FetchOptions{MaxCount: j.conf.MaxEventsPerTick})
	if err != nil {
		monitor.IngestionErrors.WithLabelValues(chain, "fetch").Inc()
		tl.Warn("fetch transfers failed", zap.Uint64("from", from), zap.Uint64("to", head), zap.Error(err))
		tr.errors++
		return tr
	}
	truncated := j.conf.MaxEventsPerTick > 0 && len(transfers) >= j.conf.MaxEventsPerTick
	if truncated {
		transfers = transfers[:j.conf.MaxEventsPerTick]
	}

	// 6. 标准化 -> 补价 -> 入库 -> 投递
	var (
		highest, lowest uint64
		failedBlock     uint64
		persistFailed   bool
	)
	for _, t := range transfers {
		if t.BlockNumber > highest {
			highest = t.BlockNumber
		}
		if lowest == 0 || (t.BlockNumber > 0 && t.BlockNumber < lowest) {
			lowest = t.BlockNumber
		}
		if t.Chain == "" {
			t.Chain = chain
		}
		if t.Contract == "" {
			t.Contract = coin.ContractAddress
		}
		if t.Symbol == "" {
			t.Symbol = coin.Symbol
		}
		if t.Decimals == nil && coin.Decimals > 0 {
			d := coin.Decimals
			t.Decimals = &d
		}

		event, err := j.normalizer.Normalize(t)
		if err != nil {
			tr.invalid++
			monitor.IngestionEvents.WithLabelValues(chain, "invalid").Inc()
			tl.Warn("invalid transfer skipped", zap.String("tx_hash", t.TxHash), zap.Error(err))
			continue
		}
		if hasPrice {
			service.Enrich(event, price)
		}

		inserted, err := j.normalizer.Ingest(ctx, event)
		if err != nil {
			tr.errors++
			monitor.IngestionEvents.WithLabelValues(chain, "error").Inc()
			tl.Error("persist event failed", zap.String("event_id", event.EventID), zap.Error(err))
			if !persistFailed || t.BlockNumber < failedBlock {
				failedBlock = t.BlockNumber
			}
			persistFailed = true
			continue
		}
		// 重复事件也入队：上次入队失败或进程在入库后退出时靠重读补齐，评估按 eventId 幂等
		if inserted {
			tr.inserted++
			monitor.IngestionEvents.WithLabelValues(chain, "inserted").Inc()
		} else {
			tr.duplicates++
			monitor.IngestionEvents.WithLabelValues(chain, "duplicate").Inc()
		}

		if err := j.producer.Enqueue(ctx, model.JOB_EVALUATE_RULES, model.EvaluateRulesPayload{EventID: event.EventID}); err != nil {
			tr.errors++
			monitor.IngestionErrors.WithLabelValues(chain, "enqueue").Inc()
			tl.Warn("enqueue evaluate_rules failed", zap.String("event_id", event.EventID), zap.Error(err))
			continue
		}
		tr.enqueued++
	}

	// 7. 游标只前进
	target := NextCursor(highest, lowest, truncated, persistFailed, failedBlock)
	if target == 0 || (exists && target <= last) {
		return tr
	}
	if _, err := j.daos.CursorDAO.Advance(ctx, coin.ID, chain, target); err != nil {
		monitor.IngestionErrors.WithLabelValues(chain, "cursor").Inc()
		tl.Warn("advance cursor failed", zap.Uint64("block", target), zap.Error(err))
		tr.errors++
		return tr
	}
	tl.Debug("cursor advanced",
		zap.Uint64("from", from),
		zap.Uint64("block", target),
		zap.Bool("truncated", truncated),
		zap.Int("fetched", len(transfers)))
	return tr
}

// NextCursor 被截断且跨多个区块时回退到 highest-1，让最高区块下次重读；
// 入库失败时不越过失败区块
func NextCursor(highest, lowest uint64, truncated, persistFailed bool, failedBlock uint64) uint64 {
	target := highest
	if truncated && highest > lowest {
		target = highest - 1
	}
	if persistFailed {
		if failedBlock == 0 {
			return 0
		}
		if failedBlock-1 < target {
			target = failedBlock - 1
		}
	}
	return target
}

// SetSleep 测试用
func (j *IngestionJob) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	j.sleep = fn
}
