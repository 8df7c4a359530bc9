package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"ZoneSentinel/internal/engine"
)

// SQLiteRecorder persists runs, their ledgers and equity curves to SQLite.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id        TEXT PRIMARY KEY,
			symbol        TEXT NOT NULL,
			driver        TEXT NOT NULL,
			started_at    INTEGER NOT NULL,
			duration_ms   INTEGER,
			zones_found   INTEGER,
			signals       INTEGER,
			rejections    INTEGER,
			trades        INTEGER,
			wins          INTEGER,
			losses        INTEGER,
			win_rate      REAL,
			profit_factor REAL,
			net_profit    REAL,
			max_drawdown  REAL,
			return_pct    REAL,
			final_balance TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL,
			ticket      INTEGER,
			zone_id     TEXT,
			timeframe   TEXT,
			tier        TEXT,
			direction   TEXT,
			entry_price REAL,
			exit_price  REAL,
			stop_price  REAL,
			size        REAL,
			open_time   INTEGER,
			close_time  INTEGER,
			exit_reason TEXT,
			pnl         TEXT,
			reason      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id)`,

		`CREATE TABLE IF NOT EXISTS equity (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id         TEXT NOT NULL,
			timestamp      INTEGER NOT NULL,
			equity         REAL,
			balance        REAL,
			open_positions INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_equity_run ON equity(run_id, timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordRun writes the run row, every ledger entry and the equity curve in
// one transaction.
func (r *SQLiteRecorder) RecordRun(res *engine.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	st := res.Stats
	if _, err := tx.Exec(`INSERT INTO runs
		(run_id, symbol, driver, started_at, duration_ms, zones_found, signals, rejections,
		 trades, wins, losses, win_rate, profit_factor, net_profit, max_drawdown, return_pct, final_balance)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		res.RunID, res.Symbol, string(res.Driver), res.StartedAt.Unix(), res.Duration.Milliseconds(),
		st.ZonesFound, st.Signals, st.Rejections,
		st.Trades, st.Wins, st.Losses, st.WinRate, st.ProfitFactor, st.NetProfit, st.MaxDrawdown, st.ReturnPct,
		res.FinalBalance.String(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	tradeStmt, err := tx.Prepare(`INSERT INTO trades
		(run_id, ticket, zone_id, timeframe, tier, direction, entry_price, exit_price, stop_price,
		 size, open_time, close_time, exit_reason, pnl, reason)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare trades: %w", err)
	}
	defer tradeStmt.Close()
	for _, ct := range res.Ledger {
		if _, err := tradeStmt.Exec(res.RunID, ct.Ticket, ct.ZoneID, string(ct.Timeframe), ct.Tier.String(),
			string(ct.Direction), ct.EntryPrice, ct.ExitPrice, ct.StopPrice, ct.Size,
			ct.OpenTime.Unix(), ct.CloseTime.Unix(), string(ct.ExitReason), ct.PnL.String(), ct.Reason,
		); err != nil {
			return fmt.Errorf("insert trade %d: %w", ct.Ticket, err)
		}
	}

	eqStmt, err := tx.Prepare(`INSERT INTO equity
		(run_id, timestamp, equity, balance, open_positions) VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare equity: %w", err)
	}
	defer eqStmt.Close()
	for _, pt := range res.Equity {
		if _, err := eqStmt.Exec(res.RunID, pt.Time.Unix(), pt.Equity, pt.Balance, pt.OpenPositions); err != nil {
			return fmt.Errorf("insert equity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.logger.Debug("run recorded",
		zap.String("run", res.RunID),
		zap.Int("trades", len(res.Ledger)),
		zap.Int("equity_points", len(res.Equity)))
	return nil
}

// Recent lists the latest runs, newest first.
func (r *SQLiteRecorder) Recent(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(`SELECT run_id, symbol, driver, started_at, trades, win_rate,
		net_profit, max_drawdown, final_balance
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var started int64
		if err := rows.Scan(&s.RunID, &s.Symbol, &s.Driver, &started, &s.Trades, &s.WinRate,
			&s.NetProfit, &s.MaxDrawdown, &s.FinalBalance); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.StartedAt = time.Unix(started, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}
