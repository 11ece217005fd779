package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const deleteRun = `DELETE FROM trader_runs WHERE trader_name = $1`

func (q *Queries) DeleteRun(ctx context.Context, traderName string) error {
	_, err := q.db.Exec(ctx, deleteRun, traderName)
	return err
}

const insertRun = `INSERT INTO trader_runs (
    trader_name, security_class, exchanges, security_list, codes,
    start_timestamp, end_timestamp, level, provider, real_time, use_window_start
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

type InsertRunParams struct {
	TraderName     string
	SecurityClass  string
	Exchanges      []string
	SecurityList   []string
	Codes          []string
	StartTimestamp time.Time
	EndTimestamp   time.Time
	Level          string
	Provider       string
	RealTime       bool
	UseWindowStart bool
}

func (q *Queries) InsertRun(ctx context.Context, arg InsertRunParams) (int64, error) {
	tag, err := q.db.Exec(ctx, insertRun,
		arg.TraderName,
		arg.SecurityClass,
		arg.Exchanges,
		arg.SecurityList,
		arg.Codes,
		arg.StartTimestamp,
		arg.EndTimestamp,
		arg.Level,
		arg.Provider,
		arg.RealTime,
		arg.UseWindowStart,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const getClosePrice = `SELECT close FROM kdata
WHERE security_id = $1 AND level = $2 AND timestamp <= $3
ORDER BY timestamp DESC
LIMIT 1`

type GetClosePriceParams struct {
	SecurityID string
	Level      string
	Timestamp  time.Time
}

func (q *Queries) GetClosePrice(ctx context.Context, arg GetClosePriceParams) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := q.db.QueryRow(ctx, getClosePrice, arg.SecurityID, arg.Level, arg.Timestamp).Scan(&price)
	return price, err
}

const listKdata = `SELECT security_id, open, close, high, low, volume, timestamp FROM kdata
WHERE security_id = $1 AND level = $2 AND timestamp > $3 AND timestamp <= $4
ORDER BY timestamp`

type ListKdataParams struct {
	SecurityID string
	Level      string
	After      time.Time
	UpTo       time.Time
}

type KdataRow struct {
	SecurityID string
	Open       decimal.Decimal
	Close      decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Volume     decimal.Decimal
	Timestamp  time.Time
}

func (q *Queries) ListKdata(ctx context.Context, arg ListKdataParams) ([]KdataRow, error) {
	rows, err := q.db.Query(ctx, listKdata, arg.SecurityID, arg.Level, arg.After, arg.UpTo)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (KdataRow, error) {
		var k KdataRow
		err := row.Scan(&k.SecurityID, &k.Open, &k.Close, &k.High, &k.Low, &k.Volume, &k.Timestamp)
		return k, err
	})
}

const listFactorScores = `SELECT security_id, timestamp, score_values FROM factor_scores
WHERE factor = $1 AND level = $2 AND timestamp > $3 AND timestamp <= $4
ORDER BY timestamp, security_id`

type ListFactorScoresParams struct {
	Factor string
	Level  string
	After  time.Time
	UpTo   time.Time
}

type FactorScoreRow struct {
	SecurityID string
	Timestamp  time.Time
	Values     []float64
}

func (q *Queries) ListFactorScores(ctx context.Context, arg ListFactorScoresParams) ([]FactorScoreRow, error) {
	rows, err := q.db.Query(ctx, listFactorScores, arg.Factor, arg.Level, arg.After, arg.UpTo)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (FactorScoreRow, error) {
		var s FactorScoreRow
		err := row.Scan(&s.SecurityID, &s.Timestamp, &s.Values)
		return s, err
	})
}

const insertSignal = `INSERT INTO trading_signals (
    id, trader_name, security_id, timestamp, kind, level, order_money, position_fraction
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`

type InsertSignalParams struct {
	ID               string
	TraderName       string
	SecurityID       string
	Timestamp        time.Time
	Kind             string
	Level            string
	OrderMoney       decimal.Decimal
	PositionFraction decimal.Decimal
}

func (q *Queries) InsertSignal(ctx context.Context, arg InsertSignalParams) error {
	_, err := q.db.Exec(ctx, insertSignal,
		arg.ID,
		arg.TraderName,
		arg.SecurityID,
		arg.Timestamp,
		arg.Kind,
		arg.Level,
		arg.OrderMoney,
		arg.PositionFraction,
	)
	return err
}
