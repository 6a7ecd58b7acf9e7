package sheets

import (
	"context"
	"strconv"

	"moneybook/internal/core"
)

// Ports for outbound adapters.
type (
	// ActivityWriter appends one row per transaction event to an external log.
	ActivityWriter interface {
		AppendActivity(ctx context.Context, ev core.TransactionEvent) error
	}
)

// ActivityHeader names the columns written by ActivityRow.
var ActivityHeader = []string{"timestamp", "event", "transaction_id", "owner_id", "name", "type", "amount", "image_key"}

// ActivityRow renders ev in ActivityHeader column order.
func ActivityRow(ev core.TransactionEvent) []string {
	return []string{
		ev.OccurredAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		string(ev.Kind),
		strconv.FormatInt(ev.TransactionID, 10),
		strconv.FormatInt(ev.OwnerID, 10),
		ev.Name,
		ev.Type.String(),
		ev.Amount.String(),
		ev.ImageKey,
	}
}
