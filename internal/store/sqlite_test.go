package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	errs "nifty-strangler/internal/errors"
	"nifty-strangler/internal/models"
	"nifty-strangler/pkg/utils"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "strangler_test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTrade(entry time.Time) *models.TradeRecord {
	return &models.TradeRecord{
		EntryTime:        entry,
		StrategyType:     models.StrategyGammaStrangle,
		EntrySpot:        22010,
		Quantity:         65,
		PremiumCollected: 5200,
		NetDelta:         -1.5,
		GammaScore:       48.2,
		Legs: []models.Leg{
			{Symbol: "NFO:NIFTY2460622300CE", Strike: 22300, OptionType: models.OptionCall, Side: models.OrderSideSell, EntryPrice: 60, CurrentPrice: 60, Quantity: 65},
			{Symbol: "NFO:NIFTY2460621700PE", Strike: 21700, OptionType: models.OptionPut, Side: models.OrderSideSell, EntryPrice: 55, CurrentPrice: 55, Quantity: 65},
		},
	}
}

func TestTradeLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	entry := time.Date(2024, 6, 3, 9, 25, 0, 0, utils.IndiaLocation)

	id, err := s.InsertTrade(ctx, sampleTrade(entry))
	if err != nil {
		t.Fatalf("InsertTrade: %v", err)
	}

	open, err := s.GetOpenTrades(ctx)
	if err != nil {
		t.Fatalf("GetOpenTrades: %v", err)
	}
	if len(open) != 1 || open[0].ID != id {
		t.Fatalf("open trades = %+v", open)
	}
	got := open[0]
	if got.Status != models.TradeOpen || !got.EntryTime.Equal(entry) || len(got.Legs) != 2 {
		t.Errorf("unexpected trade: %+v", got)
	}
	if got.Legs[0].Strike != 22300 || got.Legs[1].OptionType != models.OptionPut {
		t.Errorf("legs not round-tripped: %+v", got.Legs)
	}

	exit := entry.Add(3 * time.Hour)
	status := models.TradeClosed
	reason := models.ReasonForceClose
	realized := 1250.5
	zero := 0.0
	err = s.UpdateTrade(ctx, id, models.TradeUpdate{
		ExitTime:      &exit,
		Status:        &status,
		CloseReason:   &reason,
		RealizedPnL:   &realized,
		UnrealizedPnL: &zero,
	})
	if err != nil {
		t.Fatalf("UpdateTrade: %v", err)
	}

	closed, err := s.GetTrade(ctx, id)
	if err != nil {
		t.Fatalf("GetTrade: %v", err)
	}
	if closed.Status != models.TradeClosed || closed.CloseReason != reason || closed.RealizedPnL != realized {
		t.Errorf("unexpected closed trade: %+v", closed)
	}
	if closed.ExitTime == nil || !closed.ExitTime.Equal(exit) {
		t.Errorf("exit time = %v, want %v", closed.ExitTime, exit)
	}

	open, _ = s.GetOpenTrades(ctx)
	if len(open) != 0 {
		t.Errorf("open trades after close = %d", len(open))
	}
}

func TestUpdateUnknownTrade(t *testing.T) {
	s := newTestStore(t)
	level := 2
	err := s.UpdateTrade(context.Background(), 999, models.TradeUpdate{AdjustmentLevel: &level})
	if !errors.Is(err, errs.ErrTradeNotFound) {
		t.Errorf("err = %v, want ErrTradeNotFound", err)
	}
	if err := s.UpdateTrade(context.Background(), 999, models.TradeUpdate{}); err != nil {
		t.Errorf("empty update err = %v", err)
	}
}

func TestTradeCountByDate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	day1 := time.Date(2024, 6, 3, 9, 25, 0, 0, utils.IndiaLocation)
	day2 := day1.AddDate(0, 0, 1)

	for _, at := range []time.Time{day1, day1.Add(time.Hour), day2} {
		if _, err := s.InsertTrade(ctx, sampleTrade(at)); err != nil {
			t.Fatalf("InsertTrade: %v", err)
		}
	}

	if n, err := s.GetTradeCountToday(ctx, day1.Add(5*time.Hour)); err != nil || n != 2 {
		t.Errorf("count day1 = %d, %v, want 2", n, err)
	}
	if n, _ := s.GetTradeCountToday(ctx, day2); n != 1 {
		t.Errorf("count day2 = %d, want 1", n)
	}
	trades, err := s.GetTradesForDate(ctx, day1)
	if err != nil || len(trades) != 2 {
		t.Errorf("GetTradesForDate = %d, %v", len(trades), err)
	}

	recent, err := s.ListTrades(ctx, TradeFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(recent) != 2 || !recent[0].EntryTime.Equal(day2) {
		t.Errorf("ListTrades not newest first: %+v", recent)
	}
}

func TestInsertAdjustmentRaisesLevel(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	entry := time.Date(2024, 6, 3, 9, 25, 0, 0, utils.IndiaLocation)
	id, _ := s.InsertTrade(ctx, sampleTrade(entry))

	for _, level := range []int{1, 2} {
		_, err := s.InsertAdjustment(ctx, &models.AdjustmentRecord{
			TradeID:   id,
			Level:     level,
			Action:    "Roll CE 22300 → new 20-delta",
			Reason:    "delta",
			Spot:      22150,
			PnL:       -900,
			Timestamp: entry.Add(time.Duration(level) * time.Minute),
		})
		if err != nil {
			t.Fatalf("InsertAdjustment: %v", err)
		}
	}

	adjs, err := s.GetAdjustments(ctx, id)
	if err != nil {
		t.Fatalf("GetAdjustments: %v", err)
	}
	if len(adjs) != 2 || adjs[0].Level != 1 || adjs[1].Level != 2 {
		t.Errorf("adjustments = %+v", adjs)
	}

	trade, _ := s.GetTrade(ctx, id)
	if trade.AdjustmentLevel != 2 {
		t.Errorf("adjustment level = %d, want 2", trade.AdjustmentLevel)
	}
}

func TestUpsertDailySummaryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	date := time.Date(2024, 6, 3, 15, 20, 0, 0, utils.IndiaLocation)

	summary := models.DailySummary{TradeDate: date, TotalTrades: 2, WinningTrades: 1, NetPnL: 800, WinRate: 50}
	for i := 0; i < 3; i++ {
		if err := s.UpsertDailySummary(ctx, summary); err != nil {
			t.Fatalf("UpsertDailySummary: %v", err)
		}
	}
	summary.NetPnL = 950
	if err := s.UpsertDailySummary(ctx, summary); err != nil {
		t.Fatalf("UpsertDailySummary: %v", err)
	}

	all, err := s.ListDailySummaries(ctx, 0)
	if err != nil {
		t.Fatalf("ListDailySummaries: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("summaries = %d, want 1", len(all))
	}
	if all[0].NetPnL != 950 || !all[0].TradeDate.Equal(utils.TradeDate(date)) {
		t.Errorf("summary = %+v", all[0])
	}
}
