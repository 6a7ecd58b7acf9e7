package worker

import (
	"context"
	"fmt"

	"moneybook/internal/core"
	"moneybook/internal/log"
	"moneybook/internal/sheets"
)

// SheetsExporter mirrors transaction events into a spreadsheet activity log.
type SheetsExporter struct {
	writer sheets.ActivityWriter
	logger *log.Logger
}

func NewSheetsExporter(writer sheets.ActivityWriter, logger *log.Logger) *SheetsExporter {
	if logger == nil {
		logger = log.Discard()
	}
	return &SheetsExporter{writer: writer, logger: logger.WithComponent(log.ComponentSheets)}
}

// HandleEvent appends ev. A returned error asks the consumer to redeliver.
func (e *SheetsExporter) HandleEvent(ctx context.Context, ev core.TransactionEvent) error {
	if err := e.writer.AppendActivity(ctx, ev); err != nil {
		return fmt.Errorf("export %s for transaction %d: %w", ev.Kind, ev.TransactionID, err)
	}
	e.logger.InfoContext(ctx, "Exported transaction event",
		log.FieldOperation, log.OpExport,
		log.FieldEvent, string(ev.Kind),
		log.FieldTransactionID, ev.TransactionID,
		log.FieldOwnerID, ev.OwnerID)
	return nil
}
