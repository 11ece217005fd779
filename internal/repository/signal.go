package repository

import (
	"context"
	"time"

	"trader/types"
)

func (db *Database) SaveSignal(ctx context.Context, traderName string, sig types.TradingSignal) error {
	return db.signals.InsertSignal(ctx, InsertSignalParams{
		ID:               sig.ID(),
		TraderName:       traderName,
		SecurityID:       string(sig.SecurityID()),
		Timestamp:        sig.Timestamp(),
		Kind:             string(sig.Kind()),
		Level:            sig.Level().String(),
		OrderMoney:       sig.OrderMoney(),
		PositionFraction: sig.PositionFraction(),
	})
}

type signalSaver interface {
	SaveSignal(ctx context.Context, traderName string, sig types.TradingSignal) error
}

const defaultSaveTimeout = 5 * time.Second

// SignalStore persists every signal it hears about.
type SignalStore struct {
	db         signalSaver
	traderName string
	timeout    time.Duration
}

func NewSignalStore(db signalSaver, traderName string) *SignalStore {
	return &SignalStore{db: db, traderName: traderName, timeout: defaultSaveTimeout}
}

func (s *SignalStore) OnTradingSignal(sig types.TradingSignal) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.db.SaveSignal(ctx, s.traderName, sig)
}
