// Package ports declares the collaborators the transaction service depends
// on. Every store call takes the owner explicitly; there is no implicit
// current user anywhere below the HTTP layer.
package ports

import (
	"context"
	"io"
	"time"

	"moneybook/internal/core"
)

type (
	// TransactionStore is the durable source of truth for transactions.
	TransactionStore interface {
		// ListTransactions returns the owner's transactions, newest id first.
		ListTransactions(ctx context.Context, ownerID int64) ([]core.Transaction, error)
		// GetTransaction returns core.ErrNotFound unless id exists and belongs to ownerID.
		GetTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error)
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		// UpdateTransaction replaces name, description, amount and type of
		// the row matching t.ID and t.OwnerID. image_key is written only when
		// t.ImageKey is non-empty, and replacedKey is the key it held just
		// before, read atomically with the write. With no new image the
		// stored key is left alone and replacedKey is empty.
		UpdateTransaction(ctx context.Context, t core.Transaction) (updated core.Transaction, replacedKey string, err error)
		// DeleteTransaction removes the row and returns it as it was at
		// the moment of deletion.
		DeleteTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error)
		Ping(ctx context.Context) error
	}

	// BlobStore is keyed binary storage for receipt images.
	BlobStore interface {
		Put(ctx context.Context, key, contentType string, r io.Reader) error
		Get(ctx context.Context, key string) (io.ReadCloser, error)
		// Delete removes key. Deleting a missing key is not an error.
		Delete(ctx context.Context, key string) error
		// URL returns the public address of key.
		URL(key string) string
	}

	// OrphanQueue remembers blobs that could not be deleted in-line.
	OrphanQueue interface {
		EnqueueOrphan(ctx context.Context, key, reason string) error
		DueOrphans(ctx context.Context, now time.Time, limit int) ([]core.OrphanBlob, error)
		ResolveOrphan(ctx context.Context, id int64) error
		RetryOrphanLater(ctx context.Context, id int64, lastErr string, next time.Time) error
	}

	// TokenStore persists hashed API tokens.
	TokenStore interface {
		CreateToken(ctx context.Context, t core.AccessToken) (core.AccessToken, error)
		// FindTokenByHash returns core.ErrNotFound for unknown hashes.
		FindTokenByHash(ctx context.Context, hash string) (core.AccessToken, error)
		TouchToken(ctx context.Context, id int64, at time.Time) error
	}

	// IdentityProvider resolves request credentials to an owner.
	IdentityProvider interface {
		// Authenticate returns core.ErrUnauthenticated for any unusable token.
		Authenticate(ctx context.Context, token string) (core.Owner, error)
	}

	// EventPublisher announces transaction changes to other processes.
	EventPublisher interface {
		PublishTransactionEvent(ctx context.Context, ev core.TransactionEvent) error
	}
)
