package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"web3-radar/internal/worker/dao"
	"web3-radar/internal/worker/model"
	"web3-radar/pkg/provider"
	"web3-radar/pkg/utils"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// ErrMissingField 必填字段缺失，单条拒绝，不影响批次
var ErrMissingField = errors.New("missing required field")

// EventID 优先使用 provider 唯一ID，否则为 txHash:logIndex
func EventID(t provider.Transfer) string {
	if id := strings.TrimSpace(t.UniqueID); id != "" {
		return id
	}
	logIndex := 0
	if t.LogIndex != nil {
		logIndex = *t.LogIndex
	}
	return fmt.Sprintf("%s:%d", strings.ToLower(strings.TrimSpace(t.TxHash)), logIndex)
}

type Normalizer struct {
	tl      *zap.Logger
	events  dao.EventDAO
	now     func() time.Time
	marshal func(interface{}) ([]byte, error)
}

func NewNormalizer(tl *zap.Logger, events dao.EventDAO) *Normalizer {
	return &Normalizer{
		tl:      tl,
		events:  events,
		now:     time.Now,
		marshal: sonic.Marshal,
	}
}

func normalizeAddress(addr, chain string) string {
	if v, ok := utils.NormalizeAddress(addr, chain); ok {
		return v
	}
	// 非法地址保留原值，EVM 统一小写
	addr = strings.TrimSpace(addr)
	if utils.IsEVMChain(chain) {
		return strings.ToLower(addr)
	}
	return addr
}

// Normalize 将一条 provider 记录映射为一个标准化事件，amount_usd 留空
func (n *Normalizer) Normalize(t provider.Transfer) (*model.NormalizedEvent, error) {
	chain := utils.CanonicalChain(t.Chain)
	if chain == "" {
		return nil, fmt.Errorf("%w: chain", ErrMissingField)
	}
	if strings.TrimSpace(t.TxHash) == "" {
		return nil, fmt.Errorf("%w: txHash", ErrMissingField)
	}

	decimals := utils.NormalizeDecimals(t.Decimals)
	timestamp := n.now().UTC()
	if t.Timestamp > 0 {
		timestamp = time.Unix(utils.ToUnixSeconds(t.Timestamp), 0).UTC()
	}

	// metadata 只做排查用，编码失败时留空
	metadata, err := n.marshal(map[string]interface{}{
		"category":            t.Category,
		"raw_value":           t.RawValue,
		"log_index":           t.LogIndex,
		"estimated_timestamp": t.Timestamp <= 0,
	})
	if err != nil {
		n.tl.Warn("encode event metadata failed", zap.String("tx_hash", t.TxHash), zap.Error(err))
		metadata = nil
	}

	event := &model.NormalizedEvent{
		EventID:       EventID(t),
		Provider:      t.Provider,
		Chain:         chain,
		Type:          model.ParseEventType(t.Category),
		TxHash:        strings.TrimSpace(t.TxHash),
		Timestamp:     timestamp,
		BlockNumber:   t.BlockNumber,
		TokenContract: normalizeAddress(t.Contract, chain),
		TokenSymbol:   strings.TrimSpace(t.Symbol),
		TokenDecimals: decimals,
		FromAddress:   normalizeAddress(t.From, chain),
		ToAddress:     normalizeAddress(t.To, chain),
		Amount:        utils.RawToUnits(t.RawValue, decimals),
		Metadata:      metadata,
	}
	if len(t.Raw) > 0 && sonic.Valid(t.Raw) {
		event.RawData = t.Raw
	}
	return event, nil
}

// Enrich 按单一时刻的价格计算 amount_usd
func Enrich(event *model.NormalizedEvent, priceUsd float64) {
	if event == nil || priceUsd <= 0 || event.AmountUsd != nil {
		return
	}
	usd := event.Amount * priceUsd
	event.AmountUsd = &usd
}

// Ingest 幂等写入：已存在跳过，并发插入冲突视为成功；返回是否新插入
func (n *Normalizer) Ingest(ctx context.Context, event *model.NormalizedEvent) (bool, error) {
	_, err := n.events.GetByEventID(ctx, event.EventID)
	if err == nil {
		n.tl.Debug("event already ingested", zap.String("event_id", event.EventID))
		return false, nil
	}
	if !errors.Is(err, dao.ErrNotFound) {
		return false, fmt.Errorf("lookup event %s: %w", event.EventID, err)
	}

	if err := n.events.Create(ctx, event); err != nil {
		if errors.Is(err, dao.ErrDuplicateKey) {
			n.tl.Debug("event inserted concurrently", zap.String("event_id", event.EventID))
			return false, nil
		}
		return false, fmt.Errorf("insert event %s: %w", event.EventID, err)
	}
	return true, nil
}
