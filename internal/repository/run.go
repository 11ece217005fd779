package repository

import (
	"context"
	"fmt"

	"trader/types"
)

// RecordRun replaces any earlier run of the same trader with meta.
func (db *Database) RecordRun(ctx context.Context, meta types.RunMeta) error {
	arg := InsertRunParams{
		TraderName:     meta.TraderName,
		SecurityClass:  string(meta.SecurityClass),
		Exchanges:      meta.Exchanges,
		SecurityList:   make([]string, 0, len(meta.SecurityList)),
		Codes:          meta.Codes,
		StartTimestamp: meta.Start,
		EndTimestamp:   meta.End,
		Level:          meta.Level.String(),
		Provider:       meta.Provider,
		RealTime:       meta.RealTime,
		UseWindowStart: meta.UseWindowStart,
	}
	for _, id := range meta.SecurityList {
		arg.SecurityList = append(arg.SecurityList, string(id))
	}

	return db.inTx(ctx, func(runs runsRepository) error {
		if err := runs.DeleteRun(ctx, meta.TraderName); err != nil {
			return fmt.Errorf("delete run %s: %w", meta.TraderName, err)
		}
		n, err := runs.InsertRun(ctx, arg)
		if err != nil {
			return fmt.Errorf("insert run %s: %w", meta.TraderName, err)
		}
		if n != 1 {
			return fmt.Errorf("trader %s %w", meta.TraderName, ErrRunNotRecorded)
		}
		return nil
	})
}
