package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"moneybook/internal/core"

	"github.com/shopspring/decimal"
)

// TransactionEventMessage is the wire form of a core.TransactionEvent. The
// amount travels as a decimal string so no precision is lost.
type TransactionEventMessage struct {
	Event         string    `json:"event"`
	TransactionID int64     `json:"transaction_id"`
	OwnerID       int64     `json:"owner_id"`
	Name          string    `json:"name"`
	Amount        string    `json:"amount"`
	Type          string    `json:"type"`
	ImageKey      string    `json:"image_key,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionEventMessage converts ev to its wire form
func NewTransactionEventMessage(ev core.TransactionEvent) *TransactionEventMessage {
	ts := ev.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &TransactionEventMessage{
		Event:         string(ev.Kind),
		TransactionID: ev.TransactionID,
		OwnerID:       ev.OwnerID,
		Name:          ev.Name,
		Amount:        ev.Amount.String(),
		Type:          ev.Type.String(),
		ImageKey:      ev.ImageKey,
		Timestamp:     ts,
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ToEvent converts the message back into a domain event
func (m *TransactionEventMessage) ToEvent() (core.TransactionEvent, error) {
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return core.TransactionEvent{}, fmt.Errorf("invalid amount %q: %w", m.Amount, err)
	}
	return core.TransactionEvent{
		Kind:          core.EventKind(m.Event),
		TransactionID: m.TransactionID,
		OwnerID:       m.OwnerID,
		Name:          m.Name,
		Amount:        amount,
		Type:          core.Type(m.Type),
		ImageKey:      m.ImageKey,
		OccurredAt:    m.Timestamp,
	}, nil
}

// TransactionEventMessageFromJSON decodes and checks a message body.
func TransactionEventMessageFromJSON(data []byte) (*TransactionEventMessage, error) {
	var msg TransactionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch core.EventKind(msg.Event) {
	case core.EventCreated, core.EventUpdated, core.EventDeleted:
	default:
		return nil, fmt.Errorf("unknown event %q", msg.Event)
	}
	if msg.TransactionID <= 0 {
		return nil, errors.New("missing transaction_id")
	}
	if _, err := decimal.NewFromString(msg.Amount); err != nil {
		return nil, fmt.Errorf("invalid amount %q", msg.Amount)
	}
	return &msg, nil
}
