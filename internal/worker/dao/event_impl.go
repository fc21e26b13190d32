package dao

import (
	"context"
	"time"

	"web3-radar/internal/worker/model"

	"gorm.io/gorm"
)

// eventDAO 实现EventDAO接口
type eventDAO struct {
	db *gorm.DB
}

// NewEventDAO 创建EventDAO实例
func NewEventDAO(db *gorm.DB) EventDAO {
	return &eventDAO{db: db}
}

func (e *eventDAO) GetByEventID(ctx context.Context, eventID string) (*model.NormalizedEvent, error) {
	var event model.NormalizedEvent
	err := e.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&event).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &event, nil
}

func (e *eventDAO) Create(ctx context.Context, event *model.NormalizedEvent) error {
	return translateError(e.db.WithContext(ctx).Create(event).Error)
}

func (e *eventDAO) BackfillAmountUsd(ctx context.Context, eventID string, amountUsd float64) (bool, error) {
	res := e.db.WithContext(ctx).
		Model(&model.NormalizedEvent{}).
		Where("event_id = ? AND (amount_usd IS NULL OR amount_usd = 0)", eventID).
		Update("amount_usd", amountUsd)
	if res.Error != nil {
		return false, translateError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

type baselineRow struct {
	Type   string
	AvgUsd float64
	Cnt    int64
}

func (e *eventDAO) GetBaseline(ctx context.Context, chain, contract string, since, before time.Time) (*Baseline, error) {
	var rows []baselineRow
	err := e.db.WithContext(ctx).
		Model(&model.NormalizedEvent{}).
		Select("type, AVG(amount_usd) AS avg_usd, COUNT(*) AS cnt").
		Where("chain = ? AND token_contract = ?", chain, contract).
		Where("timestamp >= ? AND timestamp < ?", since, before).
		Where("type IN ?", []model.EventType{model.EventTransfer, model.EventSwap}).
		Where("amount_usd > 0").
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	baseline := &Baseline{}
	for _, row := range rows {
		switch model.EventType(row.Type) {
		case model.EventTransfer:
			baseline.AvgTransferUsd, baseline.TransferCount = row.AvgUsd, row.Cnt
		case model.EventSwap:
			baseline.AvgSwapUsd, baseline.SwapCount = row.AvgUsd, row.Cnt
		}
	}

	// 最近一笔有价值事件的隐含价格
	var last model.NormalizedEvent
	err = e.db.WithContext(ctx).
		Select("amount, amount_usd").
		Where("chain = ? AND token_contract = ?", chain, contract).
		Where("timestamp >= ? AND timestamp < ?", since, before).
		Where("amount > 0 AND amount_usd > 0").
		Order("timestamp DESC").
		Limit(1).
		Find(&last).Error
	if err != nil {
		return nil, err
	}
	if last.Amount > 0 && last.AmountUsd != nil {
		baseline.LastPrice = *last.AmountUsd / last.Amount
	}
	return baseline, nil
}

func (e *eventDAO) CountLargeRecipients(ctx context.Context, chain, contract string, minUsd float64, since, until time.Time) (int, error) {
	var count int64
	err := e.db.WithContext(ctx).
		Model(&model.NormalizedEvent{}).
		Where("chain = ? AND token_contract = ? AND type = ?", chain, contract, model.EventTransfer).
		Where("amount_usd >= ?", minUsd).
		Where("timestamp >= ? AND timestamp <= ?", since, until).
		Distinct("to_address").
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (e *eventDAO) SumSwapUsd(ctx context.Context, chain, contract string, since, until time.Time) (float64, error) {
	var total float64
	err := e.db.WithContext(ctx).
		Model(&model.NormalizedEvent{}).
		Select("COALESCE(SUM(amount_usd), 0)").
		Where("chain = ? AND token_contract = ? AND type = ?", chain, contract, model.EventSwap).
		Where("timestamp >= ? AND timestamp <= ?", since, until).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
