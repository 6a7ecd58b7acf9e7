package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"moneybook/internal/blob"
	"moneybook/internal/cache"
	"moneybook/internal/core"
	"moneybook/internal/log"
	"moneybook/internal/ports"
)

// Listing is an owner's transactions together with their totals.
type Listing struct {
	Transactions []core.Transaction
	Summary      core.Summary
}

// Options carries the optional collaborators of TransactionService.
type Options struct {
	Events    ports.EventPublisher
	ListCache cache.Cache[Listing]
	Logger    *log.Logger
	Now       func() time.Time
}

// TransactionService owns transaction CRUD for a single owner at a time and
// keeps receipt blobs in step with the records that reference them.
type TransactionService struct {
	store     ports.TransactionStore
	blobs     ports.BlobStore
	orphans   ports.OrphanQueue
	events    ports.EventPublisher
	listCache cache.Cache[Listing]
	logger    *log.Logger
	structLog *log.StructuredLogger
	now       func() time.Time
}

func NewTransactionService(store ports.TransactionStore, blobs ports.BlobStore, orphans ports.OrphanQueue, opts Options) *TransactionService {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentService)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &TransactionService{
		store:     store,
		blobs:     blobs,
		orphans:   orphans,
		events:    opts.Events,
		listCache: opts.ListCache,
		logger:    logger,
		structLog: log.NewStructuredLogger(logger),
		now:       now,
	}
}

// List returns every transaction of ownerID, newest first, with totals
// computed over exactly that set. A cached listing is only stored when no
// write for the owner committed while it was being read.
func (s *TransactionService) List(ctx context.Context, ownerID int64) (Listing, error) {
	cacheKey := listCacheKey(ownerID)
	var gen uint64
	if s.listCache != nil {
		if cached, ok := s.listCache.Get(cacheKey); ok {
			return cached, nil
		}
		gen = s.listCache.Generation(cacheKey)
	}

	txs, err := s.store.ListTransactions(ctx, ownerID)
	if err != nil {
		s.structLog.LogError(ctx, "Failed to list transactions", err, log.ErrorTypeDatabase, log.OpList,
			log.NewFields().WithOwner(ownerID))
		return Listing{}, fmt.Errorf("list transactions: %w", err)
	}
	if txs == nil {
		txs = []core.Transaction{}
	}

	listing := Listing{Transactions: txs, Summary: core.Summarize(txs)}
	if s.listCache != nil && !s.listCache.Fill(cacheKey, listing, gen) {
		s.logger.DebugContext(ctx, "Skipped caching listing raced by a write", log.FieldOwnerID, ownerID)
	}
	return listing, nil
}

// Get returns core.ErrNotFound unless id exists and belongs to ownerID.
func (s *TransactionService) Get(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, ownerID, id)
	if errors.Is(err, core.ErrNotFound) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		s.structLog.LogError(ctx, "Failed to read transaction", err, log.ErrorTypeDatabase, log.OpRead,
			log.NewFields().WithOwner(ownerID).WithTransaction(id, "", ""))
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// Create validates in, stores its image and inserts the record. Validation
// failures are returned as core.FieldErrors before anything is written.
func (s *TransactionService) Create(ctx context.Context, ownerID int64, in core.TransactionInput) (core.Transaction, error) {
	draft, err := in.Validate(true)
	if err != nil {
		return core.Transaction{}, err
	}

	key, err := s.putImage(ctx, draft.Image)
	if err != nil {
		s.structLog.LogError(ctx, "Failed to store image", err, log.ErrorTypeBlob, log.OpCreate,
			log.NewFields().WithOwner(ownerID))
		return core.Transaction{}, err
	}

	created, err := s.store.CreateTransaction(ctx, core.Transaction{
		OwnerID:     ownerID,
		Name:        draft.Name,
		Description: draft.Description,
		Amount:      draft.Amount,
		Type:        draft.Type,
		ImageKey:    key,
	})
	if err != nil {
		s.structLog.LogError(ctx, "Failed to insert transaction", err, log.ErrorTypeDatabase, log.OpCreate,
			log.NewFields().WithOwner(ownerID).WithBlob(key))
		s.discardBlob(ctx, key, "create rolled back")
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	s.afterWrite(ctx, log.OpCreate, core.EventCreated, created)
	return created, nil
}

// Update replaces name, description, amount and type of an owned
// transaction. The image is swapped only when in carries a new one; the blob
// the store reports as replaced is removed once no record references it.
func (s *TransactionService) Update(ctx context.Context, ownerID, id int64, in core.TransactionInput) (core.Transaction, error) {
	existing, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return core.Transaction{}, err
	}

	draft, err := in.Validate(false)
	if err != nil {
		return core.Transaction{}, err
	}

	newKey, err := s.putImage(ctx, draft.Image)
	if err != nil {
		s.structLog.LogError(ctx, "Failed to store image", err, log.ErrorTypeBlob, log.OpUpdate,
			log.NewFields().WithOwner(ownerID).WithTransaction(id, "", ""))
		return core.Transaction{}, err
	}

	// ImageKey stays empty without a new image so the store leaves the
	// current key alone, whatever it is by now.
	updated, replaced, err := s.store.UpdateTransaction(ctx, core.Transaction{
		ID:          existing.ID,
		OwnerID:     existing.OwnerID,
		Name:        draft.Name,
		Description: draft.Description,
		Amount:      draft.Amount,
		Type:        draft.Type,
		ImageKey:    newKey,
	})
	if err != nil {
		s.discardBlob(ctx, newKey, "update rolled back")
		if errors.Is(err, core.ErrNotFound) {
			return core.Transaction{}, core.ErrNotFound
		}
		s.structLog.LogError(ctx, "Failed to update transaction", err, log.ErrorTypeDatabase, log.OpUpdate,
			log.NewFields().WithOwner(ownerID).WithTransaction(id, "", "").WithBlob(newKey))
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	if replaced != "" && replaced != newKey {
		s.discardBlob(ctx, replaced, "replaced by update")
	}

	s.afterWrite(ctx, log.OpUpdate, core.EventUpdated, updated)
	return updated, nil
}

// Delete removes an owned transaction and then the image it held at the
// moment of deletion.
func (s *TransactionService) Delete(ctx context.Context, ownerID, id int64) error {
	deleted, err := s.store.DeleteTransaction(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.ErrNotFound
		}
		s.structLog.LogError(ctx, "Failed to delete transaction", err, log.ErrorTypeDatabase, log.OpDelete,
			log.NewFields().WithOwner(ownerID).WithTransaction(id, "", ""))
		return fmt.Errorf("delete transaction: %w", err)
	}

	if deleted.HasImage() {
		s.discardBlob(ctx, deleted.ImageKey, "transaction deleted")
	}

	s.afterWrite(ctx, log.OpDelete, core.EventDeleted, deleted)
	return nil
}

// ImageURL returns the public address of t's image, or "" when it has none.
func (s *TransactionService) ImageURL(t core.Transaction) string {
	if !t.HasImage() {
		return ""
	}
	return s.blobs.URL(t.ImageKey)
}

// Ping reports whether the backing store is reachable.
func (s *TransactionService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *TransactionService) putImage(ctx context.Context, img *core.Image) (string, error) {
	if img == nil {
		return "", nil
	}
	key := blob.NewKey(img.Ext)
	if err := s.blobs.Put(ctx, key, img.ContentType, bytes.NewReader(img.Data)); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return key, nil
}

// discardBlob deletes key, queueing it for the janitor when the delete fails.
func (s *TransactionService) discardBlob(ctx context.Context, key, reason string) {
	if key == "" {
		return
	}
	// The request may already be cancelled; cleanup must still run.
	ctx = context.WithoutCancel(ctx)

	err := s.blobs.Delete(ctx, key)
	if err == nil {
		return
	}

	s.structLog.LogWarn(ctx, "Blob delete failed, queueing for retry", log.OpCleanup,
		log.NewFields().WithBlob(key).WithError(err))

	if qerr := s.orphans.EnqueueOrphan(ctx, key, reason+": "+err.Error()); qerr != nil {
		s.structLog.LogError(ctx, "Failed to queue orphan blob", qerr, log.ErrorTypeDatabase, log.OpCleanup,
			log.NewFields().WithBlob(key))
		return
	}
	orphanBlobsEnqueued.Inc()
}

func (s *TransactionService) afterWrite(ctx context.Context, op string, kind core.EventKind, t core.Transaction) {
	if s.listCache != nil {
		s.listCache.Invalidate(listCacheKey(t.OwnerID))
	}
	transactionsWritten.WithLabelValues(op).Inc()
	s.structLog.LogTransactionWritten(ctx, op, t.OwnerID, t.ID, t.Type.String(), t.Amount.String(), t.ImageKey)
	s.publish(ctx, kind, t)
}

func listCacheKey(ownerID int64) string {
	return strconv.FormatInt(ownerID, 10)
}

func (s *TransactionService) publish(ctx context.Context, kind core.EventKind, t core.Transaction) {
	if s.events == nil {
		return
	}
	ev := core.NewTransactionEvent(kind, t, s.now())
	if err := s.events.PublishTransactionEvent(ctx, ev); err != nil {
		// Don't fail the request - the record is already committed
		s.logger.WarnContext(ctx, "Failed to publish transaction event",
			log.FieldEvent, string(kind),
			log.FieldTransactionID, t.ID,
			log.FieldError, err)
	}
}
