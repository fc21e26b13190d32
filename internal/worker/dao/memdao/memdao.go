// Package memdao 提供 dao 接口的内存实现，用于测试和 dry-run
package memdao

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"web3-radar/internal/worker/dao"
	"web3-radar/internal/worker/model"

	"github.com/shopspring/decimal"
)

type cursorKey struct {
	coinID int64
	chain  string
}

// Store 所有内存表，共享一把锁
type Store struct {
	mu sync.RWMutex

	events    map[string]*model.NormalizedEvent
	eventSeq  int64
	coins     map[int64]*model.Coin
	coinSeq   int64
	settings  map[int64]*model.TokenSettings
	watchlist []*model.WatchlistEntry
	acc       []*model.AccumulationSignal
	market    []*model.MarketSignal
	cursors   map[cursorKey]uint64
	alerts    map[string]*model.Alert
	alertSeq  int64

	now func() time.Time
}

func New() *Store {
	return &Store{
		events:   make(map[string]*model.NormalizedEvent),
		coins:    make(map[int64]*model.Coin),
		settings: make(map[int64]*model.TokenSettings),
		cursors:  make(map[cursorKey]uint64),
		alerts:   make(map[string]*model.Alert),
		now:      time.Now,
	}
}

// SetClock 替换 created_at 使用的时钟
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Manager 以内存表构造 DAOManager
func (s *Store) Manager() *dao.DAOManager {
	return &dao.DAOManager{
		EventDAO:     (*EventDAO)(s),
		CoinDAO:      (*CoinDAO)(s),
		SignalDAO:    (*SignalDAO)(s),
		CursorDAO:    (*CursorDAO)(s),
		SettingsDAO:  (*SettingsDAO)(s),
		WatchlistDAO: (*WatchlistDAO)(s),
		AlertDAO:     (*AlertDAO)(s),
	}
}

// PutCoin 写入或覆盖 coin，ID 为 0 时分配
func (s *Store) PutCoin(coin *model.Coin) *model.Coin {
	s.mu.Lock()
	defer s.mu.Unlock()
	if coin.ID == 0 {
		s.coinSeq++
		coin.ID = s.coinSeq
	} else if coin.ID > s.coinSeq {
		s.coinSeq = coin.ID
	}
	cp := *coin
	s.coins[coin.ID] = &cp
	return coin
}

func (s *Store) PutSettings(settings *model.TokenSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *settings
	s.settings[settings.CoinID] = &cp
}

func (s *Store) AddWatcher(entry *model.WatchlistEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.watchlist = append(s.watchlist, &cp)
}

func (s *Store) Events() []*model.NormalizedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.NormalizedEvent, 0, len(s.events))
	for _, e := range s.events {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) AccumulationSignals() []*model.AccumulationSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.AccumulationSignal, len(s.acc))
	for i, sig := range s.acc {
		cp := *sig
		out[i] = &cp
	}
	return out
}

func (s *Store) MarketSignals() []*model.MarketSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.MarketSignal, len(s.market))
	for i, sig := range s.market {
		cp := *sig
		out[i] = &cp
	}
	return out
}

func (s *Store) Alerts() []*model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EventDAO 内存 dao.EventDAO
type EventDAO Store

func (d *EventDAO) store() *Store { return (*Store)(d) }

func (d *EventDAO) GetByEventID(_ context.Context, eventID string) (*model.NormalizedEvent, error) {
	s := d.store()
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, dao.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (d *EventDAO) Create(_ context.Context, event *model.NormalizedEvent) error {
	s := d.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.EventID]; ok {
		return dao.ErrDuplicateKey
	}
	s.eventSeq++
	event.ID = s.eventSeq
	event.CreatedAt = s.now()
	cp := *event
	s.events[event.EventID] = &cp
	return nil
}

func (d *EventDAO) BackfillAmountUsd(_ context.Context, eventID string, amountUsd float64) (bool, error) {
	s := d.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok || (e.AmountUsd != nil && *e.AmountUsd != 0) {
		return false, nil
	}
	v := amountUsd
	e.AmountUsd = &v
	return true, nil
}

func (d *EventDAO) each(chain, contract string, fn func(e *model.NormalizedEvent)) {
	s := d.store()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events {
		if e.Chain == chain && e.TokenContract == contract {
			fn(e)
		}
	}
}

func (d *EventDAO) GetBaseline(_ context.Context, chain, contract string, since, before time.Time) (*dao.Baseline, error) {
	var (
		transferSum, swapSum float64
		baseline             dao.Baseline
		last                 *model.NormalizedEvent
	)
	d.each(chain, contract, func(e *model.NormalizedEvent) {
		if e.Timestamp.Before(since) || !e.Timestamp.Before(before) || e.UsdValue() <= 0 {
			return
		}
		switch e.Type {
		case model.EventTransfer:
			transferSum += e.UsdValue()
			baseline.TransferCount++
		case model.EventSwap:
			swapSum += e.UsdValue()
			baseline.SwapCount++
		}
		if e.Amount > 0 && (last == nil || e.Timestamp.After(last.Timestamp)) {
			last = e
		}
	})
	if baseline.TransferCount > 0 {
		baseline.AvgTransferUsd = transferSum / float64(baseline.TransferCount)
	}
	if baseline.SwapCount > 0 {
		baseline.AvgSwapUsd = swapSum / float64(baseline.SwapCount)
	}
	if last != nil {
		baseline.LastPrice = last.UsdValue() / last.Amount
	}
	return &baseline, nil
}

func inRange(t, since, until time.Time) bool {
	return !t.Before(since) && !t.After(until)
}

func (d *EventDAO) CountLargeRecipients(_ context.Context, chain, contract string, minUsd float64, since, until time.Time) (int, error) {
	recipients := make(map[string]struct{})
	d.each(chain, contract, func(e *model.NormalizedEvent) {
		if e.Type == model.EventTransfer && e.AmountUsd != nil && *e.AmountUsd >= minUsd && inRange(e.Timestamp, since, until) {
			recipients[e.ToAddress] = struct{}{}
		}
	})
	return len(recipients), nil
}

func (d *EventDAO) SumSwapUsd(_ context.Context, chain, contract string, since, until time.Time) (float64, error) {
	var total float64
	d.each(chain, contract, func(e *model.NormalizedEvent) {
		if e.Type == model.EventSwap && inRange(e.Timestamp, since, until) {
			total += e.UsdValue()
		}
	})
	return total, nil
}

// CoinDAO 内存 dao.CoinDAO
type CoinDAO Store

func (d *CoinDAO) store() *Store { return (*Store)(d) }

func (d *CoinDAO) GetByID(_ context.Context, id int64) (*model.Coin, error) {
	s := d.store()
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.coins[id]
	if !ok {
		return nil, dao.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (d *CoinDAO) GetByContract(_ context.Context, chain, contract string) (*model.Coin, error) {
	s := d.store()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.coins {
		if c.Chain == chain && c.ContractAddress == contract {
			cp := *c
			return &cp, nil
		}
	}
	return nil, dao.ErrNotFound
}

func (d *CoinDAO) FindOrCreate(ctx context.Context, chain, contract, symbol string, decimals int) (*model.Coin, error) {
	if c, err := d.GetByContract(ctx, chain, contract); err == nil {
		return c, nil
	}
	s := d.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.coins {
		if c.Chain == chain && c.ContractAddress == contract {
			cp := *c
			return &cp, nil
		}
	}
	s.coinSeq++
	c := &model.Coin{ID: s.coinSeq, Chain: chain, ContractAddress: contract, Symbol: symbol, Decimals: decimals}
	s.coins[c.ID] = c
	cp := *c
	return &cp, nil
}

func (d *CoinDAO) ListTracked(_ context.Context, chain string) ([]*model.Coin, error) {
	s := d.store()
	s.mu.RLock()
	defer s.mu.RUnlock()
	watched := make(map[int64]bool, len(s.watchlist))
	for _, w := range s.watchlist {
		watched[w.CoinID] = true
	}
	var out []*model.Coin
	for _, c := range s.coins {
		if c.Chain == chain && (c.IsActive || c.IsFamous || watched[c.ID]) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *CoinDAO) UpdatePrice(_ context.Context, id int64, priceUsd float64, at time.Time) error {
	s := d.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coins[id]
	if !ok {
		return dao.ErrNotFound
	}
	p := decimal.NewFromFloat(priceUsd)
	c.PriceUsd = &p
	c.PriceUpdatedAt = &at
	return nil
}

// SignalDAO 内存 dao.SignalDAO
type SignalDAO Store

func (d *SignalDAO) store() *Store { return (*Store)(d) }

func (d *SignalDAO) CreateAccumulation(_ context.Context, signal *model.AccumulationSignal) error {
	s := d.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	signal.ID = int64(len(s.acc) + 1)
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = s.now()
	}
	cp := *signal
	s.acc = append(s.acc, &cp)
	return nil
}

func (d *SignalDAO) CreateMarket(_ context.Context, signal *model.MarketSignal) error {
	s := d.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	signal.ID = int64(len(s.market) + 1)
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = s.now()
	}
	cp := *signal
	s.market = append(s.market, &cp)
	return nil
}

func (d *SignalDAO) HasRecentAccumulation(_ context.Context, coinID int64, minUsd float64, since time.Time) (bool, error) {
	s := d.store()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sig := range s.acc {
		if sig.CoinID == coinID && sig.AmountUsd >= minUsd && !sig.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (d *SignalDAO) ExistsForEvent(_ context.Context, eventID string) (bool, error) {
	s := d.store()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sig := range s.acc {
		if sig.EventID != nil && *sig.EventID == eventID {
			return true, nil
		}
	}
	return false, nil
}

func (d *SignalDAO) MarkFalsePositive(_ context.Context, kind dao.SignalKind, id int64, by, note string) error {
	s := d.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var audit *model.FalsePositiveAudit
	switch kind {
	case dao.SignalAccumulation:
		if id > 0 && int(id) <= len(s.acc) {
			audit = &s.acc[id-1].FalsePositiveAudit
		}
	case dao.SignalMarket:
		if id > 0 && int(id) <= len(s.market) {
			audit = &s.market[id-1].FalsePositiveAudit
		}
	default:
		return fmt.Errorf("unknown signal kind %q", kind)
	}
	if audit == nil {
		return dao.ErrNotFound
	}
	audit.FalsePositive = true
	audit.MarkedBy = &by
	audit.MarkedAt = &now
	audit.MarkNote = &note
	return nil
}

// CursorDAO 内存 dao.CursorDAO
type CursorDAO Store

func (d *CursorDAO) Get(_ context.Context, coinID int64, chain string) (uint64, bool, error) {
	s := (*Store)(d)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cursors[cursorKey{coinID, chain}]
	return v, ok, nil
}

func (d *CursorDAO) Advance(_ context.Context, coinID int64, chain string, block uint64) (bool, error) {
	s := (*Store)(d)
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cursorKey{coinID, chain}
	if cur, ok := s.cursors[key]; ok && cur >= block {
		return false, nil
	}
	s.cursors[key] = block
	return true, nil
}

// SettingsDAO 内存 dao.SettingsDAO
type SettingsDAO Store

func (d *SettingsDAO) GetByCoin(_ context.Context, coinID int64) (*model.TokenSettings, error) {
	s := (*Store)(d)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[coinID]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

// WatchlistDAO 内存 dao.WatchlistDAO
type WatchlistDAO Store

func (d *WatchlistDAO) WatchersOf(_ context.Context, coinID int64) ([]*model.WatchlistEntry, error) {
	s := (*Store)(d)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.WatchlistEntry
	for _, w := range s.watchlist {
		if w.CoinID == coinID {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// AlertDAO 内存 dao.AlertDAO
type AlertDAO Store

func (d *AlertDAO) Create(_ context.Context, alert *model.Alert) error {
	s := (*Store)(d)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[alert.AlertID]; ok {
		return dao.ErrDuplicateKey
	}
	s.alertSeq++
	alert.ID = s.alertSeq
	if alert.Status == "" {
		alert.Status = model.ALERT_STATUS_PENDING
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now()
	}
	cp := *alert
	s.alerts[alert.AlertID] = &cp
	return nil
}

func (d *AlertDAO) GetByAlertID(_ context.Context, alertID string) (*model.Alert, error) {
	s := (*Store)(d)
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[alertID]
	if !ok {
		return nil, dao.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (d *AlertDAO) MarkStatus(_ context.Context, alertID, status string, at time.Time) error {
	s := (*Store)(d)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok {
		return nil
	}
	a.Status = status
	if status == model.ALERT_STATUS_SENT {
		a.SentAt = &at
	}
	return nil
}

func (d *AlertDAO) DeleteDeliveredBefore(_ context.Context, before time.Time, limit int) (int64, error) {
	s := (*Store)(d)
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, a := range s.alerts {
		if limit > 0 && deleted >= int64(limit) {
			break
		}
		if a.Status == model.ALERT_STATUS_SENT && a.CreatedAt.Before(before) {
			delete(s.alerts, id)
			deleted++
		}
	}
	return deleted, nil
}
