package memory

import (
	"context"
	"sync"

	"moneybook/internal/core"
	"moneybook/internal/sheets"
)

// ActivityLog keeps exported rows in memory. Used when no spreadsheet is
// configured and in tests.
type ActivityLog struct {
	mu   sync.Mutex
	rows [][]string
}

var _ sheets.ActivityWriter = (*ActivityLog)(nil)

func New() *ActivityLog {
	return &ActivityLog{}
}

func (l *ActivityLog) AppendActivity(_ context.Context, ev core.TransactionEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, sheets.ActivityRow(ev))
	return nil
}

// Rows returns a copy of the appended rows in order.
func (l *ActivityLog) Rows() [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]string, len(l.rows))
	for i, r := range l.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
