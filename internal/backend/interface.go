package backend

import (
	"context"

	"moneybook/internal/ports"
)

// Store is the record store: transactions, orphaned blobs and API tokens
// share one database so a single backend serves all three.
type Store interface {
	ports.TransactionStore
	ports.OrphanQueue
	ports.TokenStore
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the opened backends and a cleanup function that
// releases them.
type BackendResult struct {
	Store    Store
	Blobs    ports.BlobStore
	Identity ports.IdentityProvider

	// ServeImages is true when the API process itself must serve
	// /storage/images/{key}, i.e. the blob backend has no public host.
	ServeImages bool

	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend opens the record store, blob store and identity provider
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Record store
	Type         BackendType
	SQLiteDBPath string
	DatabaseURL  string

	// Blob store
	BlobType          BlobType
	BlobLocalDir      string
	BlobPublicBaseURL string
	GCSBucket         string

	// Identity; empty selects hashed tokens from the record store
	StaticTokens string
}

// BackendType represents the type of record store
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// BlobType represents the type of blob store
type BlobType string

const (
	MemoryBlobs BlobType = "memory"
	LocalBlobs  BlobType = "local"
	GCSBlobs    BlobType = "gcs"
)

func (bt BlobType) String() string {
	return string(bt)
}

// IsValid returns true if the blob type is valid
func (bt BlobType) IsValid() bool {
	switch bt {
	case MemoryBlobs, LocalBlobs, GCSBlobs:
		return true
	default:
		return false
	}
}
