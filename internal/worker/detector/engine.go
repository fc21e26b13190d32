package detector

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"web3-radar/internal/worker/alert"
	"web3-radar/internal/worker/config"
	"web3-radar/internal/worker/dao"
	"web3-radar/internal/worker/inspector"
	"web3-radar/internal/worker/model"
	"web3-radar/internal/worker/monitor"
	"web3-radar/pkg/logger"
	"web3-radar/pkg/utils"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	DustFloorUsd = 0.10

	SkipNotFound         = "skipped: not found"
	SkipAlreadyEvaluated = "skipped: already evaluated"
	SkipStablecoin       = "stablecoin"
	SkipInvalidUnits     = "invalid token units"
	SkipDust             = "dust amount"
)

var stablecoins = map[string]struct{}{
	"USDT": {},
	"USDC": {},
}

// IsStablecoin 按 symbol 判断，大小写不敏感
func IsStablecoin(symbol string) bool {
	_, ok := stablecoins[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

// PriceLookup 当前 USD 价格
type PriceLookup interface {
	Resolve(ctx context.Context, coin *model.Coin) (float64, bool)
}

// Outcome 单个事件的评估结果
type Outcome struct {
	EventID        string
	CoinID         int64
	Score          float64
	RawScore       float64
	TriggeredRules []string
	Tier           Tier
	Downgraded     bool
	SkipReason     string
	Results        []Result
	SignalID       int64
	MarketSignalID int64
	AlertsCreated  int
}

// Skipped 是否在规则评估前终止
func (o *Outcome) Skipped() bool {
	return o.SkipReason != ""
}

// Engine 逐事件规则评估
type Engine struct {
	tl        *zap.Logger
	daos      *dao.DAOManager
	prices    PriceLookup
	defaults  *config.DetectionDefaults
	rules     []Rule
	alerts    alert.Dispatcher
	inspector *inspector.Inspector
	now       func() time.Time
}

type EngineOption func(*Engine)

// WithRules 替换默认规则集
func WithRules(rules ...Rule) EngineOption {
	return func(e *Engine) { e.rules = rules }
}

func WithAlertDispatcher(d alert.Dispatcher) EngineOption {
	return func(e *Engine) { e.alerts = d }
}

func WithInspector(i *inspector.Inspector) EngineOption {
	return func(e *Engine) { e.inspector = i }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(tl *zap.Logger, daos *dao.DAOManager, prices PriceLookup, defaults *config.DetectionDefaults, opts ...EngineOption) *Engine {
	if defaults == nil {
		defaults = config.NewDetectionDefaults(config.DefaultDetectionConfig())
	}
	e := &Engine{
		tl:       tl,
		daos:     daos,
		prices:   prices,
		defaults: defaults,
		rules:    DefaultRules(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) skip(out *Outcome, session *inspector.Session, reason string) *Outcome {
	out.SkipReason = reason
	out.Score = 0
	session.RecordSkip(reason)
	monitor.EvaluationSkipped.WithLabelValues(reason).Inc()
	return out
}

// Evaluate 评估一个事件；跳过不是错误，只有存储失败返回 error
func (e *Engine) Evaluate(ctx context.Context, eventID string) (*Outcome, error) {
	ctx, span := logger.StartSpan(ctx, "detector", "Evaluate", attribute.String("event_id", eventID))
	defer span.End()
	tl := logger.WithTrace(ctx, e.tl).With(zap.String("event_id", eventID))

	startTime := time.Now()
	defer func() {
		monitor.EvaluationDuration.Observe(time.Since(startTime).Seconds())
	}()

	out := &Outcome{EventID: eventID}
	session := e.inspector.NewSession(eventID)
	defer func() {
		session.Finish(context.WithoutCancel(ctx), out.Score, out.Tier.String(), out.TriggeredRules)
	}()

	// 1. 加载事件
	event, err := e.daos.EventDAO.GetByEventID(ctx, eventID)
	if errors.Is(err, dao.ErrNotFound) {
		tl.Debug("event not found, skipping")
		return e.skip(out, session, SkipNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", eventID, err)
	}
	session.SetToken(event.Chain, event.TokenContract)

	exists, err := e.daos.SignalDAO.ExistsForEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("check signal for %s: %w", eventID, err)
	}
	if exists {
		tl.Debug("event already produced a signal, skipping")
		return e.skip(out, session, SkipAlreadyEvaluated), nil
	}

	// 2. token 注册表
	coin, err := e.daos.CoinDAO.FindOrCreate(ctx, event.Chain, event.TokenContract, event.TokenSymbol, event.TokenDecimals)
	if err != nil {
		return nil, fmt.Errorf("resolve coin %s:%s: %w", event.Chain, event.TokenContract, err)
	}
	out.CoinID = coin.ID

	// 3. 回填 amount_usd，持久化失败不影响本次评估
	var currentPrice float64
	if e.prices != nil {
		if p, ok := e.prices.Resolve(ctx, coin); ok {
			currentPrice = p
		}
	}
	if event.UsdValue() == 0 && currentPrice > 0 && event.Amount > 0 {
		usd := event.Amount * currentPrice
		event.AmountUsd = &usd
		if _, err := e.daos.EventDAO.BackfillAmountUsd(ctx, eventID, usd); err != nil {
			tl.Warn("backfill amount_usd failed", zap.Error(err))
		}
	}

	// 4. 终止条件
	symbol := event.TokenSymbol
	if symbol == "" {
		symbol = coin.Symbol
	}
	if IsStablecoin(symbol) {
		return e.skip(out, session, SkipStablecoin), nil
	}
	if event.Amount <= 0 {
		return e.skip(out, session, SkipInvalidUnits), nil
	}
	if event.AmountUsd != nil && *event.AmountUsd < DustFloorUsd {
		return e.skip(out, session, SkipDust), nil
	}

	// 5. 评估上下文
	settings, err := e.daos.SettingsDAO.GetByCoin(ctx, coin.ID)
	if err != nil {
		tl.Warn("load token settings failed, using defaults", zap.Error(err))
		settings = nil
	}
	cfg := e.defaults.Load().Merge(settings.ToOverride())

	baseline, err := BuildBaseline(ctx, e.daos.EventDAO, event, coin)
	if err != nil {
		return nil, err
	}
	ec := &EvalContext{
		Event:        event,
		Coin:         coin,
		Baseline:     baseline,
		Config:       cfg,
		CurrentPrice: currentPrice,
		Stats:        e.daos.EventDAO,
	}
	session.SetSnapshot("baseline", baseline)
	session.SetSnapshot("config", cfg)
	session.SetSnapshot("amount_usd", event.AmountUsd)
	session.SetSnapshot("current_price", currentPrice)

	// 6-7. 规则
	results := make([]Result, 0, len(e.rules))
	for _, rule := range e.rules {
		res := EvaluateGuarded(ctx, rule, ec)
		results = append(results, res)
		session.RecordRule(inspector.RuleRecord{
			Rule:      res.RuleName,
			Triggered: res.Triggered,
			Score:     res.Score,
			Reason:    res.Reason,
			Guarded:   res.Guarded,
			Evidence:  res.Evidence,
		})
		if res.Guarded {
			monitor.RuleGuarded.WithLabelValues(res.RuleName).Inc()
		}
		if res.Triggered {
			monitor.RuleTriggered.WithLabelValues(res.RuleName).Inc()
			out.TriggeredRules = append(out.TriggeredRules, res.RuleName)
		}
	}
	out.Results = results

	// 8. 打分与分级
	out.RawScore = RawScore(results)
	out.Score = CalculateFinalScore(results, cfg)
	cls := Classify(out.Score, results, cfg)
	out.Tier, out.Downgraded = cls.Tier, cls.Downgraded

	if out.Tier == TierNone {
		tl.Debug("event evaluated below candidate threshold",
			zap.Float64("score", out.Score),
			zap.Strings("triggered", out.TriggeredRules))
		return out, nil
	}
	if out.Downgraded {
		tl.Info("alert-level score without multi-evidence, downgraded to candidate",
			zap.Float64("score", out.Score),
			zap.Strings("triggered", out.TriggeredRules))
	}

	if err := e.persistSignals(ctx, out, ec); err != nil {
		return nil, err
	}
	if out.Tier == TierAlert {
		e.dispatchAlerts(ctx, tl, out, ec)
	}

	tl.Info("signal created",
		zap.String("tier", out.Tier.String()),
		zap.Float64("score", out.Score),
		zap.Strings("triggered", out.TriggeredRules),
		zap.Int64("signal_id", out.SignalID))
	return out, nil
}

// MarketSignalType 价格异动 > 累积模式 > 默认成交量异动
func MarketSignalType(triggered []string) model.MarketSignalType {
	has := func(name string) bool {
		for _, t := range triggered {
			if t == name {
				return true
			}
		}
		return false
	}
	switch {
	case has(RulePriceVolume):
		return model.SignalPriceAnomaly
	case has(RuleAccumulationPattern):
		return model.SignalTrending
	default:
		return model.SignalVolumeSpike
	}
}

func (e *Engine) persistSignals(ctx context.Context, out *Outcome, ec *EvalContext) error {
	event, coin := ec.Event, ec.Coin
	details, err := sonic.Marshal(map[string]interface{}{
		"results":    out.Results,
		"baseline":   ec.Baseline,
		"tier":       out.Tier.String(),
		"downgraded": out.Downgraded,
		"raw_score":  out.RawScore,
		"tx_hash":    event.TxHash,
		"block":      event.BlockNumber,
	})
	if err != nil {
		return fmt.Errorf("encode signal details: %w", err)
	}

	eventID := event.EventID
	wallet := event.ToAddress
	sig := &model.AccumulationSignal{
		CoinID:         coin.ID,
		EventID:        &eventID,
		Source:         model.SourceRuleEngine,
		AmountUnits:    event.Amount,
		AmountUsd:      event.UsdValue(),
		Score:          out.Score,
		TriggeredRules: append([]string{}, out.TriggeredRules...),
		Details:        datatypes.JSON(details),
		CreatedAt:      e.now(),
	}
	if wallet != "" {
		sig.Wallet = &wallet
	}
	if supply, ok := coin.Supply(); ok {
		pct := event.Amount / supply * 100
		sig.SupplyPercentage = &pct
	}
	if liq, ok := coin.Liquidity(); ok && event.UsdValue() > 0 {
		ratio := event.UsdValue() / liq * 100
		sig.LiquidityRatio = &ratio
	}
	if err := e.daos.SignalDAO.CreateAccumulation(ctx, sig); err != nil {
		return fmt.Errorf("create accumulation signal: %w", err)
	}
	out.SignalID = sig.ID
	monitor.SignalsCreated.WithLabelValues(out.Tier.String(), string(model.SourceRuleEngine)).Inc()

	if out.Tier != TierAlert {
		return nil
	}
	market := &model.MarketSignal{
		CoinID:     coin.ID,
		EventID:    &eventID,
		SignalType: MarketSignalType(out.TriggeredRules),
		Score:      out.Score,
		Details:    datatypes.JSON(details),
		CreatedAt:  e.now(),
	}
	if err := e.daos.SignalDAO.CreateMarket(ctx, market); err != nil {
		return fmt.Errorf("create market signal: %w", err)
	}
	out.MarketSignalID = market.ID
	return nil
}

// dispatchAlerts 单个用户失败只记录日志
func (e *Engine) dispatchAlerts(ctx context.Context, tl *zap.Logger, out *Outcome, ec *EvalContext) {
	if e.alerts == nil {
		return
	}
	watchers, err := e.daos.WatchlistDAO.WatchersOf(ctx, ec.Coin.ID)
	if err != nil {
		tl.Warn("load watchers failed", zap.Int64("coin_id", ec.Coin.ID), zap.Error(err))
		return
	}
	if len(watchers) == 0 {
		return
	}

	message := FormatAlertMessage(ec.Event, ec.Coin, out)
	signalID := out.SignalID
	eventID := out.EventID
	for _, w := range watchers {
		if !e.alerts.ShouldSendAlert(ctx, w.UserID, ec.Coin.ID, out.Score) {
			continue
		}
		err := e.alerts.CreateAlert(ctx, alert.Input{
			UserID:   w.UserID,
			CoinID:   ec.Coin.ID,
			ChatID:   w.ChatID,
			SignalID: &signalID,
			EventID:  &eventID,
			Score:    out.Score,
			Message:  message,
		})
		if err != nil {
			tl.Warn("create alert failed", zap.Int64("user_id", w.UserID), zap.Error(err))
			continue
		}
		out.AlertsCreated++
	}
}

// FormatAlertMessage telegram 告警文本，按 HTML parse mode 发送，外部字段需转义
func FormatAlertMessage(event *model.NormalizedEvent, coin *model.Coin, out *Outcome) string {
	symbol := coin.Symbol
	if symbol == "" {
		symbol = event.TokenSymbol
	}
	symbol = html.EscapeString(symbol)
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 Accumulation alert: %s (%s)\n", symbol, html.EscapeString(event.Chain))
	fmt.Fprintf(&b, "Score: %.0f/100\n", out.Score)
	fmt.Fprintf(&b, "Amount: %.4f %s ($%.2f)\n", event.Amount, symbol, event.UsdValue())
	if event.ToAddress != "" {
		fmt.Fprintf(&b, "Wallet: %s\n", html.EscapeString(utils.ChecksumAddress(event.ToAddress, event.Chain)))
	}
	fmt.Fprintf(&b, "Rules: %s\n", html.EscapeString(strings.Join(out.TriggeredRules, ", ")))
	fmt.Fprintf(&b, "Tx: %s", html.EscapeString(event.TxHash))
	return b.String()
}
