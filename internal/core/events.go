package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventCreated EventKind = "transaction.created"
	EventUpdated EventKind = "transaction.updated"
	EventDeleted EventKind = "transaction.deleted"
)

// EventKind names a change to a transaction.
type EventKind string

// TransactionEvent is a snapshot of a transaction at the moment it changed.
// Deleted transactions can no longer be read back, so the snapshot travels
// with the event.
type TransactionEvent struct {
	Kind          EventKind
	TransactionID int64
	OwnerID       int64
	Name          string
	Amount        decimal.Decimal
	Type          Type
	ImageKey      string
	OccurredAt    time.Time
}

// NewTransactionEvent snapshots t for kind.
func NewTransactionEvent(kind EventKind, t Transaction, at time.Time) TransactionEvent {
	return TransactionEvent{
		Kind:          kind,
		TransactionID: t.ID,
		OwnerID:       t.OwnerID,
		Name:          t.Name,
		Amount:        t.Amount,
		Type:          t.Type,
		ImageKey:      t.ImageKey,
		OccurredAt:    at.UTC(),
	}
}
