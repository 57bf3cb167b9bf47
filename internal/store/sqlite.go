package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	errs "nifty-strangler/internal/errors"
	"nifty-strangler/internal/models"
	"nifty-strangler/pkg/utils"
)

// SQLiteStore implements TradeStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", errs.Join(errs.ErrDatabaseError, err))
	}

	// The engine writes from one goroutine at a time; readers come from the CLI.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", errs.Join(errs.ErrDatabaseError, err))
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- One row per structure
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_date TEXT NOT NULL,
		entry_time DATETIME NOT NULL,
		exit_time DATETIME,
		strategy_type TEXT NOT NULL DEFAULT 'GAMMA_STRANGLE',
		entry_spot REAL NOT NULL DEFAULT 0,
		quantity INTEGER NOT NULL DEFAULT 0,
		premium_collected REAL NOT NULL DEFAULT 0,
		realized_pnl REAL NOT NULL DEFAULT 0,
		unrealized_pnl REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'OPEN',
		close_reason TEXT NOT NULL DEFAULT '',
		adjustment_level INTEGER NOT NULL DEFAULT 0,
		adjustment_count INTEGER NOT NULL DEFAULT 0,
		net_delta REAL NOT NULL DEFAULT 0,
		gamma_score REAL NOT NULL DEFAULT 50,
		legs TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Append-only gamma defense audit trail
	CREATE TABLE IF NOT EXISTS adjustments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id INTEGER NOT NULL,
		adj_time DATETIME NOT NULL,
		level INTEGER NOT NULL,
		action TEXT NOT NULL,
		reason TEXT NOT NULL,
		spot_at_adj REAL NOT NULL,
		pnl_at_adj REAL NOT NULL,
		FOREIGN KEY (trade_id) REFERENCES trades(id)
	);

	-- End-of-day rollup
	CREATE TABLE IF NOT EXISTS daily_summary (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_date TEXT NOT NULL UNIQUE,
		total_trades INTEGER NOT NULL DEFAULT 0,
		winning_trades INTEGER NOT NULL DEFAULT 0,
		net_pnl REAL NOT NULL DEFAULT 0,
		max_drawdown REAL NOT NULL DEFAULT 0,
		capital_used REAL NOT NULL DEFAULT 0,
		win_rate REAL NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_trades_date ON trades(trade_date);
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
	CREATE INDEX IF NOT EXISTS idx_adjustments_trade ON adjustments(trade_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Trades Methods
// ============================================================================

const tradeColumns = `id, trade_date, entry_time, exit_time, strategy_type, entry_spot, quantity,
	premium_collected, realized_pnl, unrealized_pnl, status, close_reason,
	adjustment_level, adjustment_count, net_delta, gamma_score, legs`

// InsertTrade saves a new structure and returns its id.
func (s *SQLiteStore) InsertTrade(ctx context.Context, trade *models.TradeRecord) (int64, error) {
	legs, err := json.Marshal(legsOrEmpty(trade.Legs))
	if err != nil {
		return 0, fmt.Errorf("failed to encode legs: %w", err)
	}

	tradeDate := trade.TradeDate
	if tradeDate.IsZero() {
		tradeDate = trade.EntryTime
	}
	status := trade.Status
	if status == "" {
		status = models.TradeOpen
	}
	strategy := trade.StrategyType
	if strategy == "" {
		strategy = models.StrategyGammaStrangle
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (trade_date, entry_time, exit_time, strategy_type, entry_spot, quantity,
			premium_collected, realized_pnl, unrealized_pnl, status, close_reason,
			adjustment_level, adjustment_count, net_delta, gamma_score, legs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, formatDate(tradeDate), trade.EntryTime, nullTime(trade.ExitTime), strategy, trade.EntrySpot, trade.Quantity,
		trade.PremiumCollected, trade.RealizedPnL, trade.UnrealizedPnL, status, trade.CloseReason,
		trade.AdjustmentLevel, trade.AdjustmentCount, trade.NetDelta, trade.GammaScore, string(legs))
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read trade id: %w", err)
	}
	trade.ID = id
	trade.TradeDate = utils.TradeDate(tradeDate)
	trade.Status = status
	trade.StrategyType = strategy
	return id, nil
}

// UpdateTrade applies the non-nil fields of update.
func (s *SQLiteStore) UpdateTrade(ctx context.Context, id int64, update models.TradeUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if update.ExitTime != nil {
		add("exit_time", *update.ExitTime)
	}
	if update.RealizedPnL != nil {
		add("realized_pnl", *update.RealizedPnL)
	}
	if update.UnrealizedPnL != nil {
		add("unrealized_pnl", *update.UnrealizedPnL)
	}
	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.CloseReason != nil {
		add("close_reason", *update.CloseReason)
	}
	if update.AdjustmentLevel != nil {
		add("adjustment_level", *update.AdjustmentLevel)
	}
	if update.AdjustmentCount != nil {
		add("adjustment_count", *update.AdjustmentCount)
	}
	if update.Legs != nil {
		legs, err := json.Marshal(update.Legs)
		if err != nil {
			return fmt.Errorf("failed to encode legs: %w", err)
		}
		add("legs", string(legs))
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx, "UPDATE trades SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update trade %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("trade %d: %w", id, errs.ErrTradeNotFound)
	}
	return nil
}

// GetTrade returns one trade by id.
func (s *SQLiteStore) GetTrade(ctx context.Context, id int64) (*models.TradeRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+tradeColumns+" FROM trades WHERE id = ?", id)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trade %d: %w", id, errs.ErrTradeNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetOpenTrades returns every trade still OPEN, oldest first.
func (s *SQLiteStore) GetOpenTrades(ctx context.Context) ([]models.TradeRecord, error) {
	return s.queryTrades(ctx, "SELECT "+tradeColumns+" FROM trades WHERE status = ? ORDER BY id ASC", string(models.TradeOpen))
}

// GetTradesForDate returns the trades opened on date's IST calendar day.
func (s *SQLiteStore) GetTradesForDate(ctx context.Context, date time.Time) ([]models.TradeRecord, error) {
	return s.queryTrades(ctx, "SELECT "+tradeColumns+" FROM trades WHERE trade_date = ? ORDER BY id ASC", formatDate(date))
}

// GetTradeCountToday counts the trades opened on now's IST calendar day.
func (s *SQLiteStore) GetTradeCountToday(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades WHERE trade_date = ?", formatDate(now)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return count, nil
}

// ListTrades returns trades matching filter, newest first.
func (s *SQLiteStore) ListTrades(ctx context.Context, filter TradeFilter) ([]models.TradeRecord, error) {
	query := "SELECT " + tradeColumns + " FROM trades WHERE 1=1"
	args := []interface{}{}

	if !filter.StartDate.IsZero() {
		query += " AND trade_date >= ?"
		args = append(args, formatDate(filter.StartDate))
	}
	if !filter.EndDate.IsZero() {
		query += " AND trade_date <= ?"
		args = append(args, formatDate(filter.EndDate))
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Strategy != "" {
		query += " AND strategy_type = ?"
		args = append(args, string(filter.Strategy))
	}

	query += " ORDER BY entry_time DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.queryTrades(ctx, query, args...)
}

func (s *SQLiteStore) queryTrades(ctx context.Context, query string, args ...interface{}) ([]models.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}

	return trades, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (models.TradeRecord, error) {
	var t models.TradeRecord
	var tradeDate, status, strategy, legsJSON string
	var exitTime sql.NullTime

	err := row.Scan(&t.ID, &tradeDate, &t.EntryTime, &exitTime, &strategy, &t.EntrySpot, &t.Quantity,
		&t.PremiumCollected, &t.RealizedPnL, &t.UnrealizedPnL, &status, &t.CloseReason,
		&t.AdjustmentLevel, &t.AdjustmentCount, &t.NetDelta, &t.GammaScore, &legsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return t, err
	}
	if err != nil {
		return t, fmt.Errorf("failed to scan trade: %w", err)
	}

	t.TradeDate, err = parseDate(tradeDate)
	if err != nil {
		return t, fmt.Errorf("trade %d: %w", t.ID, err)
	}
	t.EntryTime = t.EntryTime.In(utils.IndiaLocation)
	if exitTime.Valid {
		et := exitTime.Time.In(utils.IndiaLocation)
		t.ExitTime = &et
	}
	t.Status = models.TradeStatus(status)
	t.StrategyType = models.StrategyType(strategy)

	if err := json.Unmarshal([]byte(legsJSON), &t.Legs); err != nil {
		return t, fmt.Errorf("trade %d: failed to decode legs: %w", t.ID, err)
	}
	return t, nil
}

// ============================================================================
// Adjustment Methods
// ============================================================================

// InsertAdjustment appends an audit record and raises the trade's
// adjustment level to the record's level, in one transaction.
func (s *SQLiteStore) InsertAdjustment(ctx context.Context, adj *models.AdjustmentRecord) (int64, error) {
	if adj.Timestamp.IsZero() {
		adj.Timestamp = time.Now().In(utils.IndiaLocation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO adjustments (trade_id, adj_time, level, action, reason, spot_at_adj, pnl_at_adj)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, adj.TradeID, adj.Timestamp, adj.Level, adj.Action, adj.Reason, adj.Spot, adj.PnL)
	if err != nil {
		return 0, fmt.Errorf("failed to insert adjustment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE trades SET adjustment_level = ? WHERE id = ?", adj.Level, adj.TradeID); err != nil {
		return 0, fmt.Errorf("failed to update adjustment level: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read adjustment id: %w", err)
	}
	adj.ID = id
	return id, nil
}

// GetAdjustments returns a trade's audit trail in insertion order.
func (s *SQLiteStore) GetAdjustments(ctx context.Context, tradeID int64) ([]models.AdjustmentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trade_id, adj_time, level, action, reason, spot_at_adj, pnl_at_adj
		FROM adjustments
		WHERE trade_id = ?
		ORDER BY id ASC
	`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	var out []models.AdjustmentRecord
	for rows.Next() {
		var a models.AdjustmentRecord
		if err := rows.Scan(&a.ID, &a.TradeID, &a.Timestamp, &a.Level, &a.Action, &a.Reason, &a.Spot, &a.PnL); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		a.Timestamp = a.Timestamp.In(utils.IndiaLocation)
		out = append(out, a)
	}

	return out, rows.Err()
}

// ============================================================================
// Daily Summary Methods
// ============================================================================

// UpsertDailySummary writes the summary for its date, replacing any
// earlier row for the same date.
func (s *SQLiteStore) UpsertDailySummary(ctx context.Context, summary models.DailySummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_summary (trade_date, total_trades, winning_trades, net_pnl, max_drawdown, capital_used, win_rate, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(trade_date) DO UPDATE SET
			total_trades = excluded.total_trades,
			winning_trades = excluded.winning_trades,
			net_pnl = excluded.net_pnl,
			max_drawdown = excluded.max_drawdown,
			capital_used = excluded.capital_used,
			win_rate = excluded.win_rate,
			updated_at = CURRENT_TIMESTAMP
	`, formatDate(summary.TradeDate), summary.TotalTrades, summary.WinningTrades, summary.NetPnL,
		summary.MaxDrawdown, summary.CapitalUsed, summary.WinRate)
	if err != nil {
		return fmt.Errorf("failed to upsert daily summary: %w", err)
	}
	return nil
}

// ListDailySummaries returns summaries newest first. A non-positive limit
// returns all of them.
func (s *SQLiteStore) ListDailySummaries(ctx context.Context, limit int) ([]models.DailySummary, error) {
	query := `
		SELECT trade_date, total_trades, winning_trades, net_pnl, max_drawdown, capital_used, win_rate
		FROM daily_summary
		ORDER BY trade_date DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily summaries: %w", err)
	}
	defer rows.Close()

	var out []models.DailySummary
	for rows.Next() {
		var d models.DailySummary
		var date string
		if err := rows.Scan(&date, &d.TotalTrades, &d.WinningTrades, &d.NetPnL, &d.MaxDrawdown, &d.CapitalUsed, &d.WinRate); err != nil {
			return nil, fmt.Errorf("failed to scan daily summary: %w", err)
		}
		if d.TradeDate, err = parseDate(date); err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	return out, rows.Err()
}

// ============================================================================
// Helpers
// ============================================================================

func formatDate(t time.Time) string {
	return utils.TradeDate(t).Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, utils.IndiaLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid trade date %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func legsOrEmpty(legs []models.Leg) []models.Leg {
	if legs == nil {
		return []models.Leg{}
	}
	return legs
}

var _ TradeStore = (*SQLiteStore)(nil)
