package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"trader/types"
)

// ClosePrice returns the close of the latest bar of id at level stamped at
// or before ts.
func (db *Database) ClosePrice(ctx context.Context, id types.SecurityID, level types.Level, ts time.Time) (decimal.Decimal, error) {
	price, err := db.kdata.GetClosePrice(ctx, GetClosePriceParams{
		SecurityID: string(id),
		Level:      level.String(),
		Timestamp:  ts,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%s at %s %w", id, ts.Format(time.DateTime), ErrNoPrice)
		}
		return decimal.Zero, err
	}
	return price, nil
}

// Kdata returns the bars of id at level with after < timestamp <= upTo,
// oldest first. No bars is not an error.
func (db *Database) Kdata(ctx context.Context, id types.SecurityID, level types.Level, after, upTo time.Time) ([]types.Kdata, error) {
	rows, err := db.kdata.ListKdata(ctx, ListKdataParams{
		SecurityID: string(id),
		Level:      level.String(),
		After:      after,
		UpTo:       upTo,
	})
	if err != nil {
		return nil, err
	}
	return convertKdata(rows, level), nil
}

func convertKdata(rows []KdataRow, level types.Level) []types.Kdata {
	kdata := make([]types.Kdata, 0, len(rows))
	for _, row := range rows {
		kdata = append(kdata, types.Kdata{
			SecurityID: types.SecurityID(row.SecurityID),
			Open:       row.Open,
			Close:      row.Close,
			High:       row.High,
			Low:        row.Low,
			Volume:     row.Volume,
			Level:      level,
			Timestamp:  row.Timestamp,
		})
	}
	return kdata
}
