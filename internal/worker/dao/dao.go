package dao

import (
	"web3-radar/internal/worker/model"

	"gorm.io/gorm"
)

// DAOManager 管理所有DAO实例
type DAOManager struct {
	EventDAO     EventDAO
	CoinDAO      CoinDAO
	SignalDAO    SignalDAO
	CursorDAO    CursorDAO
	SettingsDAO  SettingsDAO
	WatchlistDAO WatchlistDAO
	AlertDAO     AlertDAO
}

// NewDAOManager 创建DAO管理器实例
func NewDAOManager(db *gorm.DB) *DAOManager {
	return &DAOManager{
		EventDAO:     NewEventDAO(db),
		CoinDAO:      NewCoinDAO(db),
		SignalDAO:    NewSignalDAO(db),
		CursorDAO:    NewCursorDAO(db),
		SettingsDAO:  NewSettingsDAO(db),
		WatchlistDAO: NewWatchlistDAO(db),
		AlertDAO:     NewAlertDAO(db),
	}
}

// AutoMigrate 建表，coins/watchlist_items 正常由外部服务维护
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.NormalizedEvent{},
		&model.Coin{},
		&model.TokenSettings{},
		&model.WatchlistEntry{},
		&model.AccumulationSignal{},
		&model.MarketSignal{},
		&model.IngestionCursor{},
		&model.Alert{},
	)
}
