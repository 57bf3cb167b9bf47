// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"nifty-strangler/internal/models"
)

// TradeStore defines the persistence contract for structures, their
// adjustment audit trail and the end-of-day summaries.
type TradeStore interface {
	// Trades
	InsertTrade(ctx context.Context, trade *models.TradeRecord) (int64, error)
	UpdateTrade(ctx context.Context, id int64, update models.TradeUpdate) error
	GetTrade(ctx context.Context, id int64) (*models.TradeRecord, error)
	GetOpenTrades(ctx context.Context) ([]models.TradeRecord, error)
	GetTradesForDate(ctx context.Context, date time.Time) ([]models.TradeRecord, error)
	GetTradeCountToday(ctx context.Context, now time.Time) (int, error)
	ListTrades(ctx context.Context, filter TradeFilter) ([]models.TradeRecord, error)

	// Adjustments
	InsertAdjustment(ctx context.Context, adj *models.AdjustmentRecord) (int64, error)
	GetAdjustments(ctx context.Context, tradeID int64) ([]models.AdjustmentRecord, error)

	// Daily summaries
	UpsertDailySummary(ctx context.Context, summary models.DailySummary) error
	ListDailySummaries(ctx context.Context, limit int) ([]models.DailySummary, error)

	// Lifecycle
	Close() error
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	StartDate time.Time
	EndDate   time.Time
	Status    models.TradeStatus
	Strategy  models.StrategyType
	Limit     int
}

// dateLayout is the on-disk format of trade_date columns.
const dateLayout = "2006-01-02"
