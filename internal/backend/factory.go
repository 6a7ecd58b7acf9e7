package backend

import (
	"context"
	"errors"
	"fmt"

	"moneybook/internal/auth"
	"moneybook/internal/blob/gcs"
	"moneybook/internal/blob/local"
	blobmem "moneybook/internal/blob/memory"
	"moneybook/internal/log"
	"moneybook/internal/ports"
	"moneybook/internal/storage"
	"moneybook/internal/storage/memory"
	"moneybook/internal/storage/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

var _ Factory = (*DefaultFactory)(nil)

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, closeStore, err := f.createStore(ctx, config)
	if err != nil {
		return nil, err
	}

	blobs, serveImages, err := f.createBlobStore(ctx, config)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	identity, err := f.createIdentity(store, config)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	return &BackendResult{
		Store:       store,
		Blobs:       blobs,
		Identity:    identity,
		ServeImages: serveImages,
		Cleanup:     closeStore,
	}, nil
}

// OpenStore opens only the record store, for tools that never touch blobs.
func (f *DefaultFactory) OpenStore(ctx context.Context, config Config) (Store, CleanupFunc, error) {
	if !config.Type.IsValid() {
		return nil, nil, fmt.Errorf("invalid backend type: %s", config.Type)
	}
	return f.createStore(ctx, config)
}

func (f *DefaultFactory) createStore(ctx context.Context, config Config) (Store, CleanupFunc, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
		return repo, repo.Close, nil
	case PostgresBackend:
		repo, err := postgres.Open(ctx, config.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.Info("Initialized Postgres store")
		return repo, repo.Close, nil
	case MemoryBackend:
		f.logger.Warn("Using in-memory store, records are lost on restart")
		return memory.NewStore(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createBlobStore(ctx context.Context, config Config) (ports.BlobStore, bool, error) {
	switch config.BlobType {
	case LocalBlobs:
		s, err := local.New(config.BlobLocalDir, config.BlobPublicBaseURL)
		if err != nil {
			return nil, false, fmt.Errorf("failed to initialize local blob store: %w", err)
		}
		f.logger.Info("Initialized local blob store", "dir", config.BlobLocalDir)
		return s, true, nil
	case GCSBlobs:
		s, err := gcs.NewFromEnv(ctx, config.GCSBucket)
		if err != nil {
			return nil, false, fmt.Errorf("failed to initialize GCS blob store: %w", err)
		}
		f.logger.Info("Initialized GCS blob store", "bucket", config.GCSBucket)
		return s, false, nil
	case MemoryBlobs:
		f.logger.Warn("Using in-memory blob store, images are lost on restart")
		return blobmem.New(config.BlobPublicBaseURL), true, nil
	default:
		return nil, false, fmt.Errorf("unsupported blob type: %s", config.BlobType)
	}
}

func (f *DefaultFactory) createIdentity(store Store, config Config) (ports.IdentityProvider, error) {
	if config.StaticTokens == "" {
		return auth.NewTokenProvider(store, f.logger), nil
	}
	tokens, err := auth.ParseStaticTokens(config.StaticTokens)
	if err != nil {
		return nil, fmt.Errorf("invalid static tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil, errors.New("static tokens configured but none parsed")
	}
	f.logger.Warn("Using static API tokens", "count", len(tokens))
	return auth.NewStaticProvider(tokens), nil
}
