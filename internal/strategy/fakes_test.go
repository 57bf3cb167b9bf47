package strategy

import (
	"context"
	"sort"
	"sync"
	"time"

	errs "nifty-strangler/internal/errors"
	"nifty-strangler/internal/models"
	"nifty-strangler/internal/notify"
	"nifty-strangler/internal/store"
	"nifty-strangler/pkg/utils"
)

// memStore is an in-memory TradeStore.
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	trades      map[int64]*models.TradeRecord
	adjustments []models.AdjustmentRecord
	summaries   map[string]models.DailySummary
	updates     map[int64]int
	panicOn     int64
}

func newMemStore() *memStore {
	return &memStore{
		trades:    make(map[int64]*models.TradeRecord),
		summaries: make(map[string]models.DailySummary),
		updates:   make(map[int64]int),
	}
}

func (m *memStore) InsertTrade(_ context.Context, t *models.TradeRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec := *t
	rec.ID = m.nextID
	if rec.Status == "" {
		rec.Status = models.TradeOpen
	}
	if rec.TradeDate.IsZero() {
		rec.TradeDate = utils.TradeDate(rec.EntryTime)
	}
	m.trades[rec.ID] = &rec
	return rec.ID, nil
}

func (m *memStore) UpdateTrade(_ context.Context, id int64, u models.TradeUpdate) error {
	if id == m.panicOn {
		panic("store exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return errs.ErrTradeNotFound
	}
	m.updates[id]++
	if u.ExitTime != nil {
		at := *u.ExitTime
		t.ExitTime = &at
	}
	if u.RealizedPnL != nil {
		t.RealizedPnL = *u.RealizedPnL
	}
	if u.UnrealizedPnL != nil {
		t.UnrealizedPnL = *u.UnrealizedPnL
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.CloseReason != nil {
		t.CloseReason = *u.CloseReason
	}
	if u.AdjustmentLevel != nil {
		t.AdjustmentLevel = *u.AdjustmentLevel
	}
	if u.AdjustmentCount != nil {
		t.AdjustmentCount = *u.AdjustmentCount
	}
	if u.Legs != nil {
		t.Legs = u.Legs
	}
	return nil
}

func (m *memStore) GetTrade(_ context.Context, id int64) (*models.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return nil, errs.ErrTradeNotFound
	}
	c := *t
	return &c, nil
}

func (m *memStore) GetOpenTrades(ctx context.Context) ([]models.TradeRecord, error) {
	return m.ListTrades(ctx, store.TradeFilter{Status: models.TradeOpen})
}

func (m *memStore) GetTradesForDate(ctx context.Context, date time.Time) ([]models.TradeRecord, error) {
	day := utils.TradeDate(date)
	return m.ListTrades(ctx, store.TradeFilter{StartDate: day, EndDate: day})
}

func (m *memStore) GetTradeCountToday(ctx context.Context, now time.Time) (int, error) {
	trades, err := m.GetTradesForDate(ctx, now)
	return len(trades), err
}

func (m *memStore) ListTrades(_ context.Context, f store.TradeFilter) ([]models.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TradeRecord
	for _, t := range m.trades {
		if !f.StartDate.IsZero() && t.TradeDate.Before(f.StartDate) {
			continue
		}
		if !f.EndDate.IsZero() && t.TradeDate.After(f.EndDate) {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Strategy != "" && t.StrategyType != f.Strategy {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) InsertAdjustment(_ context.Context, a *models.AdjustmentRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trades[a.TradeID]; ok {
		t.AdjustmentLevel = a.Level
	}
	rec := *a
	rec.ID = int64(len(m.adjustments) + 1)
	m.adjustments = append(m.adjustments, rec)
	return rec.ID, nil
}

func (m *memStore) GetAdjustments(_ context.Context, tradeID int64) ([]models.AdjustmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AdjustmentRecord
	for _, a := range m.adjustments {
		if a.TradeID == tradeID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) UpsertDailySummary(_ context.Context, d models.DailySummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[d.TradeDate.Format("2006-01-02")] = d
	return nil
}

func (m *memStore) ListDailySummaries(_ context.Context, limit int) ([]models.DailySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DailySummary
	for _, d := range m.summaries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeDate.After(out[j].TradeDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) adjustmentsFor(id int64) []models.AdjustmentRecord {
	out, _ := m.GetAdjustments(context.Background(), id)
	return out
}

func (m *memStore) trade(id int64) models.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.trades[id]
}

func (m *memStore) updateCount(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates[id]
}

var _ store.TradeStore = (*memStore)(nil)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Send(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) count(t notify.NotificationType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, s := range r.sent {
		if s.Type == t {
			n++
		}
	}
	return n
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
