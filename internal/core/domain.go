package core

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Type = "income"
	Expense Type = "expense"
)

type (
	// Type classifies a transaction as money coming in or going out.
	Type string

	// Owner is the authenticated identity a transaction belongs to.
	Owner struct {
		ID        int64
		TokenName string
	}

	Transaction struct {
		ID          int64
		OwnerID     int64
		Name        string
		Description string // empty means null
		Amount      decimal.Decimal
		Type        Type
		ImageKey    string // empty means no image attached
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// AccessToken is a persisted API token. Only the SHA-256 hash of the
	// plaintext is ever stored.
	AccessToken struct {
		ID         int64
		UserID     int64
		Name       string
		TokenHash  string
		LastUsedAt time.Time
		ExpiresAt  time.Time // zero means no expiry
		CreatedAt  time.Time
	}

	// OrphanBlob is a blob whose deletion failed and must be retried.
	OrphanBlob struct {
		ID            int64
		BlobKey       string
		Reason        string
		Attempts      int
		LastError     string
		CreatedAt     time.Time
		NextAttemptAt time.Time
	}
)

var (
	// ErrNotFound covers both missing records and records owned by someone
	// else; callers must not be able to tell the two apart.
	ErrNotFound = errors.New("transaction not found")

	ErrUnauthenticated = errors.New("unauthenticated")
)

// Valid reports whether t is one of the two known transaction types.
func (t Type) Valid() bool {
	switch t {
	case Income, Expense:
		return true
	default:
		return false
	}
}

func (t Type) String() string {
	return string(t)
}

// HasImage reports whether an image blob is attached.
func (t Transaction) HasImage() bool {
	return t.ImageKey != ""
}

// Expired reports whether the token is past its expiry at the given time.
func (a AccessToken) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}
