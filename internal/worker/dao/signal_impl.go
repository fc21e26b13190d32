package dao

import (
	"context"
	"fmt"
	"time"

	"web3-radar/internal/worker/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// signalDAO 实现SignalDAO接口
type signalDAO struct {
	db *gorm.DB
}

// NewSignalDAO 创建SignalDAO实例
func NewSignalDAO(db *gorm.DB) SignalDAO {
	return &signalDAO{db: db}
}

func (s *signalDAO) CreateAccumulation(ctx context.Context, signal *model.AccumulationSignal) error {
	return translateError(s.db.WithContext(ctx).Create(signal).Error)
}

func (s *signalDAO) CreateMarket(ctx context.Context, signal *model.MarketSignal) error {
	return translateError(s.db.WithContext(ctx).Create(signal).Error)
}

func (s *signalDAO) HasRecentAccumulation(ctx context.Context, coinID int64, minUsd float64, since time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.AccumulationSignal{}).
		Where("coin_id = ? AND amount_usd >= ? AND created_at >= ?", coinID, minUsd, since).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *signalDAO) ExistsForEvent(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.AccumulationSignal{}).
		Where("event_id = ?", eventID).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *signalDAO) MarkFalsePositive(ctx context.Context, kind SignalKind, id int64, by, note string) error {
	var target interface{}
	switch kind {
	case SignalAccumulation:
		target = &model.AccumulationSignal{}
	case SignalMarket:
		target = &model.MarketSignal{}
	default:
		return fmt.Errorf("unknown signal kind %q", kind)
	}

	res := s.db.WithContext(ctx).
		Model(target).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"false_positive": true,
			"marked_by":      by,
			"marked_at":      time.Now(),
			"mark_note":      note,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// cursorDAO 实现CursorDAO接口
type cursorDAO struct {
	db *gorm.DB
}

// NewCursorDAO 创建CursorDAO实例
func NewCursorDAO(db *gorm.DB) CursorDAO {
	return &cursorDAO{db: db}
}

func (c *cursorDAO) Get(ctx context.Context, coinID int64, chain string) (uint64, bool, error) {
	var cursor model.IngestionCursor
	err := c.db.WithContext(ctx).
		Where("coin_id = ? AND chain = ?", coinID, chain).
		Take(&cursor).Error
	if err != nil {
		if err = translateError(err); err == ErrNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	return cursor.LastBlock, true, nil
}

func (c *cursorDAO) Advance(ctx context.Context, coinID int64, chain string, block uint64) (bool, error) {
	// 条件更新保证游标只前进
	res := c.db.WithContext(ctx).
		Model(&model.IngestionCursor{}).
		Where("coin_id = ? AND chain = ? AND last_block < ?", coinID, chain, block).
		Updates(map[string]interface{}{
			"last_block": block,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	// 首次写入，已存在（>= block）时不做任何事
	res = c.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.IngestionCursor{CoinID: coinID, Chain: chain, LastBlock: block})
	if res.Error != nil {
		return false, translateError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// settingsDAO 实现SettingsDAO接口
type settingsDAO struct {
	db *gorm.DB
}

// NewSettingsDAO 创建SettingsDAO实例
func NewSettingsDAO(db *gorm.DB) SettingsDAO {
	return &settingsDAO{db: db}
}

func (s *settingsDAO) GetByCoin(ctx context.Context, coinID int64) (*model.TokenSettings, error) {
	var settings model.TokenSettings
	err := s.db.WithContext(ctx).
		Where("coin_id = ?", coinID).
		Take(&settings).Error
	if err != nil {
		if err = translateError(err); err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &settings, nil
}

// watchlistDAO 实现WatchlistDAO接口
type watchlistDAO struct {
	db *gorm.DB
}

// NewWatchlistDAO 创建WatchlistDAO实例
func NewWatchlistDAO(db *gorm.DB) WatchlistDAO {
	return &watchlistDAO{db: db}
}

func (w *watchlistDAO) WatchersOf(ctx context.Context, coinID int64) ([]*model.WatchlistEntry, error) {
	var entries []*model.WatchlistEntry
	err := w.db.WithContext(ctx).
		Where("coin_id = ?", coinID).
		Order("user_id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// alertDAO 实现AlertDAO接口
type alertDAO struct {
	db *gorm.DB
}

// NewAlertDAO 创建AlertDAO实例
func NewAlertDAO(db *gorm.DB) AlertDAO {
	return &alertDAO{db: db}
}

func (a *alertDAO) Create(ctx context.Context, alert *model.Alert) error {
	return translateError(a.db.WithContext(ctx).Create(alert).Error)
}

func (a *alertDAO) GetByAlertID(ctx context.Context, alertID string) (*model.Alert, error) {
	var alert model.Alert
	err := a.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Take(&alert).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &alert, nil
}

func (a *alertDAO) MarkStatus(ctx context.Context, alertID, status string, at time.Time) error {
	updates := map[string]interface{}{"status": status}
	if status == model.ALERT_STATUS_SENT {
		updates["sent_at"] = at
	}
	return a.db.WithContext(ctx).
		Model(&model.Alert{}).
		Where("alert_id = ?", alertID).
		Updates(updates).Error
}

func (a *alertDAO) DeleteDeliveredBefore(ctx context.Context, before time.Time, limit int) (int64, error) {
	ids := a.db.Model(&model.Alert{}).
		Select("id").
		Where("status = ? AND created_at < ?", model.ALERT_STATUS_SENT, before).
		Limit(limit)
	// mysql 不支持 IN 子查询带 LIMIT，先取 id
	var batch []int64
	if err := ids.WithContext(ctx).Pluck("id", &batch).Error; err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}
	res := a.db.WithContext(ctx).Where("id IN ?", batch).Delete(&model.Alert{})
	return res.RowsAffected, res.Error
}
