// Package sink holds signal listeners that forward trading signals out of
// the process and recorders for account fills.
package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"trader/types"
)

var csvHeader = []string{
	"id",
	"security_id",
	"timestamp", // RFC3339
	"kind",
	"level",
	"order_money",
	"position_fraction",
}

// CSVWriter writes one row per signal. The header is written before the
// first row and every row is flushed right away.
type CSVWriter struct {
	mu          sync.Mutex
	cw          *csv.Writer
	closer      io.Closer
	wroteHeader bool
}

func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{cw: csv.NewWriter(w)}
}

// NewCSVFile creates (or truncates) the file at path.
func NewCSVFile(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create signals file: %w", err)
	}
	w := NewCSVWriter(f)
	w.closer = f
	return w, nil
}

func (w *CSVWriter) OnTradingSignal(sig types.TradingSignal) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.wroteHeader {
		if err := w.cw.Write(csvHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		w.wroteHeader = true
	}
	record := []string{
		sig.ID(),
		string(sig.SecurityID()),
		sig.Timestamp().Format(time.RFC3339),
		string(sig.Kind()),
		sig.Level().String(),
		sig.OrderMoney().String(),
		sig.PositionFraction().String(),
	}
	if err := w.cw.Write(record); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}
