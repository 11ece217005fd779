// Package repository persists runs and signals and reads market data and
// stored factor scores from PostgreSQL.
package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrRunNotRecorded = errors.New("run was not recorded")
	ErrNoPrice        = errors.New("no price found in datasource")
)

//go:embed schema.sql
var schema string

type runsRepository interface {
	DeleteRun(ctx context.Context, traderName string) error
	InsertRun(ctx context.Context, arg InsertRunParams) (int64, error)
}
type kdataRepository interface {
	GetClosePrice(ctx context.Context, arg GetClosePriceParams) (decimal.Decimal, error)
	ListKdata(ctx context.Context, arg ListKdataParams) ([]KdataRow, error)
}
type scoresRepository interface {
	ListFactorScores(ctx context.Context, arg ListFactorScoresParams) ([]FactorScoreRow, error)
}
type signalsRepository interface {
	InsertSignal(ctx context.Context, arg InsertSignalParams) error
}

// Database holds the connection pool and the queries, split by concern so
// tests can swap each one out.
type Database struct {
	runs    runsRepository
	kdata   kdataRepository
	scores  scoresRepository
	signals signalsRepository
	inTx    func(ctx context.Context, fn func(runsRepository) error) error
	conn    *pgxpool.Pool
}

// NewDatabase creates a new Database instance and verifies connectivity.
func NewDatabase(ctx context.Context, dbURL string) (*Database, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	conn, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	queries := NewQueries(conn)
	return &Database{
		runs:    queries,
		kdata:   queries,
		scores:  queries,
		signals: queries,
		inTx: func(ctx context.Context, fn func(runsRepository) error) error {
			return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
				return fn(queries.WithTx(tx))
			})
		},
		conn: conn,
	}, nil
}

// Migrate creates the tables the trader reads and writes when missing.
func (db *Database) Migrate(ctx context.Context) error {
	if _, err := db.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (db *Database) Close() {
	if db.conn != nil {
		db.conn.Close()
	}
}
