package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"signal-backtest/internal/backtest"
	"signal-backtest/internal/store"
)

// ErrNotFound 表示指定的回测记录不存在。
var ErrNotFound = errors.New("history: run not found")

// Service 负责持久化与查询回测结果。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化历史服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("history: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

// Ping 检查底层数据库是否可用。
func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Service) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			generator TEXT NOT NULL,
			regime INTEGER NOT NULL,
			samples INTEGER NOT NULL,
			accuracy REAL NOT NULL,
			params TEXT NOT NULL,
			metrics TEXT NOT NULL,
			equity_curve TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_backtest_runs_symbol ON backtest_runs(symbol);`,
		`CREATE TABLE IF NOT EXISTS backtest_trades (
			run_id INTEGER NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			side TEXT NOT NULL,
			entry_index INTEGER NOT NULL,
			exit_index INTEGER NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			risk REAL NOT NULL,
			trade_return REAL NOT NULL,
			pnl REAL NOT NULL,
			capital_after REAL NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("history: 初始化表失败: %w", err)
		}
	}
	return nil
}

// RecordRun 在单个事务中写入回测汇总与逐笔交易，返回记录ID。
func (s *Service) RecordRun(ctx context.Context, run Run) (int64, error) {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return 0, fmt.Errorf("history: 序列化参数失败: %w", err)
	}
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return 0, fmt.Errorf("history: 序列化指标失败: %w", err)
	}
	curve, err := json.Marshal(run.EquityCurve)
	if err != nil {
		return 0, fmt.Errorf("history: 序列化资金曲线失败: %w", err)
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("history: 开启事务失败: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO backtest_runs (symbol, generator, regime, samples, accuracy, params, metrics, equity_curve, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.ToUpper(run.Symbol), run.Generator, run.Regime, run.Samples, run.Accuracy,
		string(params), string(metrics), string(curve), run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("history: 写入回测记录失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history: 获取记录ID失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO backtest_trades (run_id, seq, side, entry_index, exit_index, entry_price, exit_price, risk, trade_return, pnl, capital_after)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("history: 预编译交易写入失败: %w", err)
	}
	defer stmt.Close()

	for i, t := range run.Trades {
		if _, err := stmt.ExecContext(ctx, id, i+1, t.Side.String(), t.EntryIndex, t.ExitIndex,
			t.EntryPrice, t.ExitPrice, t.Risk, t.Return, t.PnL, t.CapitalAfter); err != nil {
			return 0, fmt.Errorf("history: 写入交易失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("history: 提交事务失败: %w", err)
	}

	s.logger.Debug("回测记录已保存",
		zap.Int64("run_id", id),
		zap.String("symbol", run.Symbol),
		zap.Int("trades", len(run.Trades)),
	)

	return id, nil
}

// ListRuns 按时间倒序返回回测记录，symbol 为空时不过滤。返回结果不含逐笔交易。
func (s *Service) ListRuns(ctx context.Context, symbol string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, symbol, generator, regime, samples, accuracy, params, metrics, equity_curve, created_at FROM backtest_runs`
	args := make([]interface{}, 0, 2)
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, strings.ToUpper(symbol))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: 查询回测记录失败: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: 读取回测记录失败: %w", err)
	}

	return runs, nil
}

// GetRun 返回单条回测记录及其逐笔交易。
func (s *Service) GetRun(ctx context.Context, id int64) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, symbol, generator, regime, samples, accuracy, params, metrics, equity_curve, created_at FROM backtest_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}

	run.Trades, err = s.ListTrades(ctx, id)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListTrades 按顺序返回某次回测的逐笔交易。
func (s *Service) ListTrades(ctx context.Context, runID int64) ([]backtest.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT side, entry_index, exit_index, entry_price, exit_price, risk, trade_return, pnl, capital_after
		 FROM backtest_trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: 查询交易失败: %w", err)
	}
	defer rows.Close()

	trades := make([]backtest.Trade, 0)
	for rows.Next() {
		var (
			side string
			t    backtest.Trade
		)
		if err := rows.Scan(&side, &t.EntryIndex, &t.ExitIndex, &t.EntryPrice, &t.ExitPrice,
			&t.Risk, &t.Return, &t.PnL, &t.CapitalAfter); err != nil {
			return nil, fmt.Errorf("history: 解析交易失败: %w", err)
		}
		t.Side, _ = backtest.ParseSignal(side)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: 读取交易失败: %w", err)
	}

	return trades, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run     Run
		params  string
		metrics string
		curve   string
		created string
	)
	if err := row.Scan(&run.ID, &run.Symbol, &run.Generator, &run.Regime, &run.Samples, &run.Accuracy,
		&params, &metrics, &curve, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("history: 解析回测记录失败: %w", err)
	}

	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return Run{}, fmt.Errorf("history: 解析参数失败: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &run.Metrics); err != nil {
		return Run{}, fmt.Errorf("history: 解析指标失败: %w", err)
	}
	if err := json.Unmarshal([]byte(curve), &run.EquityCurve); err != nil {
		return Run{}, fmt.Errorf("history: 解析资金曲线失败: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		ts = time.Time{}
	}
	run.CreatedAt = ts

	return run, nil
}
