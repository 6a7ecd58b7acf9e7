package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"moneybook/internal/blob"
	blobmem "moneybook/internal/blob/memory"
	"moneybook/internal/cache"
	"moneybook/internal/core"
	"moneybook/internal/storage/memory"

	"github.com/shopspring/decimal"
)

var (
	pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	gifData = []byte("GIF89a\x01\x00\x01\x00")

	errInjected = errors.New("injected failure")
)

// faultyStore wraps the memory store and fails selected operations. The
// before/after hooks run once, letting a test interleave another write.
type faultyStore struct {
	*memory.Store
	failCreate, failUpdate, failDelete, failList bool
	listCalls                                     int

	beforeUpdate, beforeDelete, afterList func()
}

func runOnce(hook *func()) {
	if fn := *hook; fn != nil {
		*hook = nil
		fn()
	}
}

func (f *faultyStore) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if f.failCreate {
		return core.Transaction{}, errInjected
	}
	return f.Store.CreateTransaction(ctx, t)
}

func (f *faultyStore) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, string, error) {
	if f.failUpdate {
		return core.Transaction{}, "", errInjected
	}
	runOnce(&f.beforeUpdate)
	return f.Store.UpdateTransaction(ctx, t)
}

func (f *faultyStore) DeleteTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	if f.failDelete {
		return core.Transaction{}, errInjected
	}
	runOnce(&f.beforeDelete)
	return f.Store.DeleteTransaction(ctx, ownerID, id)
}

func (f *faultyStore) ListTransactions(ctx context.Context, ownerID int64) ([]core.Transaction, error) {
	f.listCalls++
	if f.failList {
		return nil, errInjected
	}
	txs, err := f.Store.ListTransactions(ctx, ownerID)
	runOnce(&f.afterList)
	return txs, err
}

// faultyBlobs wraps the memory blob store and fails selected operations.
type faultyBlobs struct {
	*blobmem.Store
	failPut, failDelete bool
}

func (f *faultyBlobs) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	if f.failPut {
		return errInjected
	}
	return f.Store.Put(ctx, key, contentType, r)
}

func (f *faultyBlobs) Delete(ctx context.Context, key string) error {
	if f.failDelete {
		return errInjected
	}
	return f.Store.Delete(ctx, key)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.TransactionEvent
	err    error
}

func (p *recordingPublisher) PublishTransactionEvent(ctx context.Context, ev core.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) kinds() []core.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.EventKind, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

type fixture struct {
	svc    *TransactionService
	store  *faultyStore
	blobs  *faultyBlobs
	events *recordingPublisher
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	mem := memory.NewStore()
	f := &fixture{
		store:  &faultyStore{Store: mem},
		blobs:  &faultyBlobs{Store: blobmem.New("http://localhost")},
		events: &recordingPublisher{},
	}
	opts := Options{Events: f.events}
	if withCache {
		opts.ListCache = cache.NewLRUCache[Listing](16, time.Minute)
	}
	f.svc = NewTransactionService(f.store, f.blobs, mem, opts)
	return f
}

func validInput(name, amount, typ string, image []byte) core.TransactionInput {
	in := core.TransactionInput{Name: name, Amount: amount, Type: typ}
	if image != nil {
		in.Image = &core.Upload{Filename: "receipt", Data: image}
	}
	return in
}

func (f *fixture) mustCreate(t *testing.T, owner int64, in core.TransactionInput) core.Transaction {
	t.Helper()
	tx, err := f.svc.Create(context.Background(), owner, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tx
}

func TestCreate_Success(t *testing.T) {
	f := newFixture(t, false)
	in := validInput("Coffee", "5000", "expense", pngData)
	in.Description = "  "

	tx := f.mustCreate(t, 1, in)

	if tx.ID == 0 || tx.OwnerID != 1 || tx.Name != "Coffee" || tx.Type != core.Expense {
		t.Fatalf("unexpected transaction %+v", tx)
	}
	if tx.Description != "" {
		t.Fatalf("blank description should be stored as null, got %q", tx.Description)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("5000")) {
		t.Fatalf("amount = %s", tx.Amount)
	}
	if !blob.ValidKey(tx.ImageKey) || !f.blobs.Has(tx.ImageKey) {
		t.Fatalf("image key %q not stored", tx.ImageKey)
	}
	if got := f.svc.ImageURL(tx); got != "http://localhost/storage/images/"+tx.ImageKey {
		t.Fatalf("ImageURL = %q", got)
	}
	if kinds := f.events.kinds(); len(kinds) != 1 || kinds[0] != core.EventCreated {
		t.Fatalf("events = %v", kinds)
	}
}

func TestCreate_ValidationFailsWithoutSideEffects(t *testing.T) {
	tests := []struct {
		name   string
		in     core.TransactionInput
		fields []string
	}{
		{"missing image", validInput("Coffee", "5000", "expense", nil), []string{"image"}},
		{"missing name", validInput(" ", "5000", "expense", pngData), []string{"name"}},
		{"bad amount and type", validInput("Coffee", "abc", "transfer", pngData), []string{"amount", "type"}},
		{"not an image", validInput("Coffee", "1", "income", []byte("plain text")), []string{"image"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			_, err := f.svc.Create(context.Background(), 1, tt.in)

			var fe core.FieldErrors
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want FieldErrors", err)
			}
			for _, field := range tt.fields {
				if len(fe[field]) == 0 {
					t.Errorf("expected error for %s, got %v", field, fe)
				}
			}
			if len(f.blobs.Keys()) != 0 {
				t.Fatal("validation failure must not write blobs")
			}
			list, _ := f.store.ListTransactions(context.Background(), 1)
			if len(list) != 0 {
				t.Fatal("validation failure must not write records")
			}
			if len(f.events.kinds()) != 0 {
				t.Fatal("validation failure must not publish")
			}
		})
	}
}

func TestCreate_InsertFailureRemovesBlob(t *testing.T) {
	f := newFixture(t, false)
	f.store.failCreate = true

	_, err := f.svc.Create(context.Background(), 1, validInput("Coffee", "5000", "expense", pngData))
	if !errors.Is(err, errInjected) {
		t.Fatalf("err = %v, want wrapped injected error", err)
	}
	if keys := f.blobs.Keys(); len(keys) != 0 {
		t.Fatalf("blob left behind: %v", keys)
	}
	if len(f.store.Orphans()) != 0 {
		t.Fatal("nothing should be queued when rollback succeeds")
	}
}

func TestCreate_InsertAndRollbackFailureQueuesOrphan(t *testing.T) {
	f := newFixture(t, false)
	f.store.failCreate = true
	f.blobs.failDelete = true

	if _, err := f.svc.Create(context.Background(), 1, validInput("Coffee", "5000", "expense", pngData)); err == nil {
		t.Fatal("expected error")
	}
	keys := f.blobs.Keys()
	orphans := f.store.Orphans()
	if len(keys) != 1 || len(orphans) != 1 || orphans[0].BlobKey != keys[0] {
		t.Fatalf("expected the stray blob to be queued: keys=%v orphans=%+v", keys, orphans)
	}
}

func TestCreate_BlobFailureWritesNothing(t *testing.T) {
	f := newFixture(t, false)
	f.blobs.failPut = true

	if _, err := f.svc.Create(context.Background(), 1, validInput("Coffee", "5000", "expense", pngData)); !errors.Is(err, errInjected) {
		t.Fatalf("err = %v", err)
	}
	list, _ := f.store.Store.ListTransactions(context.Background(), 1)
	if len(list) != 0 {
		t.Fatal("record must not be inserted when the image cannot be stored")
	}
}

func TestList_OrderAndSummary(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	empty, err := f.svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(empty.Transactions) != 0 || !empty.Summary.Balance.IsZero() ||
		!empty.Summary.TotalIncome.IsZero() || !empty.Summary.TotalExpense.IsZero() {
		t.Fatalf("empty listing = %+v", empty)
	}

	a := f.mustCreate(t, 1, validInput("Salary", "1000.50", "income", pngData))
	b := f.mustCreate(t, 1, validInput("Coffee", "200.25", "expense", gifData))
	f.mustCreate(t, 2, validInput("Other", "999", "income", pngData))

	listing, err := f.svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listing.Transactions) != 2 || listing.Transactions[0].ID != b.ID || listing.Transactions[1].ID != a.ID {
		t.Fatalf("unexpected order: %+v", listing.Transactions)
	}
	sum := listing.Summary
	if !sum.TotalIncome.Equal(decimal.RequireFromString("1000.50")) ||
		!sum.TotalExpense.Equal(decimal.RequireFromString("200.25")) ||
		!sum.Balance.Equal(decimal.RequireFromString("800.25")) {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestList_CacheInvalidatedByWrites(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.mustCreate(t, 1, validInput("Coffee", "1", "expense", pngData))
	if _, err := f.svc.List(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.List(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if f.store.listCalls != 1 {
		t.Fatalf("second List should be cached, store called %d times", f.store.listCalls)
	}

	tx := f.mustCreate(t, 1, validInput("Tea", "2", "expense", pngData))
	listing, _ := f.svc.List(ctx, 1)
	if len(listing.Transactions) != 2 || f.store.listCalls != 2 {
		t.Fatalf("create must invalidate cache (calls=%d, len=%d)", f.store.listCalls, len(listing.Transactions))
	}

	if err := f.svc.Delete(ctx, 1, tx.ID); err != nil {
		t.Fatal(err)
	}
	listing, _ = f.svc.List(ctx, 1)
	if len(listing.Transactions) != 1 {
		t.Fatalf("delete must invalidate cache, got %d", len(listing.Transactions))
	}
}

func TestList_WriteDuringReadIsNotCached(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.store.afterList = func() {
		f.mustCreate(t, 1, validInput("Coffee", "1", "expense", pngData))
	}
	first, err := f.svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(first.Transactions) != 0 {
		t.Fatalf("first listing was read before the create, got %d", len(first.Transactions))
	}

	second, err := f.svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(second.Transactions) != 1 || f.store.listCalls != 2 {
		t.Fatalf("listing read before the create must not be served (calls=%d, len=%d)",
			f.store.listCalls, len(second.Transactions))
	}

	if _, err := f.svc.List(ctx, 1); err != nil || f.store.listCalls != 2 {
		t.Fatalf("fresh listing should be cached (calls=%d, err=%v)", f.store.listCalls, err)
	}
}

func TestList_StoreError(t *testing.T) {
	f := newFixture(t, false)
	f.store.failList = true
	if _, err := f.svc.List(context.Background(), 1); !errors.Is(err, errInjected) {
		t.Fatalf("err = %v", err)
	}
}

func TestGet_OwnershipIsolation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	tx := f.mustCreate(t, 1, validInput("Coffee", "5000", "expense", pngData))

	got, err := f.svc.Get(ctx, 1, tx.ID)
	if err != nil || got.ID != tx.ID {
		t.Fatalf("owner Get = %+v, %v", got, err)
	}

	_, foreignErr := f.svc.Get(ctx, 2, tx.ID)
	_, missingErr := f.svc.Get(ctx, 2, tx.ID+100)
	if !errors.Is(foreignErr, core.ErrNotFound) || !errors.Is(missingErr, core.ErrNotFound) {
		t.Fatalf("foreign=%v missing=%v", foreignErr, missingErr)
	}
	if foreignErr.Error() != missingErr.Error() {
		t.Fatal("not-owned and absent must be indistinguishable")
	}
}

func TestUpdate_KeepsImageWhenNoneSupplied(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	tx := f.mustCreate(t, 1, validInput("Coffee", "5000", "expense", pngData))

	in := validInput("Tea", "12.5", "income", nil)
	in.Description = "afternoon"
	updated, err := f.svc.Update(ctx, 1, tx.ID, in)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "Tea" || updated.Description != "afternoon" || updated.Type != core.Income ||
		!updated.Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("fields not replaced: %+v", updated)
	}
	if updated.ImageKey != tx.ImageKey || !f.blobs.Has(tx.ImageKey) {
		t.Fatal("image must be unchanged")
	}
	if kinds := f.events.kinds(); len(kinds) != 2 || kinds[1] != core.EventUpdated {
		t.Fatalf("events = %v", kinds)
	}
}

func TestUpdate_ReplacesImage(t *testing.T) {
	f := newFixture(t, false)
	tx := f.mustCreate(t, 1, validInput("Coffee", "5000", "expense", pngData))

	updated, err := f.svc.Update(context.Background(), 1, tx.ID, validInput("Coffee", "5000", "expense", gifData))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ImageKey == tx.ImageKey {
		t.Fatal("expected a new image key")
	}
	if f.blobs.Has(tx.ImageKey) {
		t.Fatal("old blob must be deleted")
	}
	if !f.blobs.Has(updated.ImageKey) {
		t.Fatal("new blob must exist")
	}
}

func TestUpdate_RecordFailureKeepsOldImage(t *testing.T) {
	f := newFixture(t, false)
	tx := f.mustCreate(t, 1, validInput("Coffee", "5000", "expense", pngData))
	f.store.failUpdate = true

	if _, err := f.svc.Update(context.Background(), 1, tx.ID, validInput("Coffee", "1", "expense", gifData)); !errors.Is(err, errInjected) {
		t.Fatalf("err = %v", err)
	}
	keys := f.blobs.Keys()
	if len(keys) != 1 || keys[0] != tx.ImageKey {
		t.Fatalf("only the original blob should remain, got %v", keys)
	}
	got, _ := f.svc.Get(context.Background(), 1, tx.ID)
	if got.ImageKey != tx.ImageKey || !got.Amount.Equal(tx.Amount) {
		t.Fatal("record must be unchanged")
	}
}

func TestUpdate_OldBlobDeleteFailureStillSucceeds(t *testing.T) {
	f := newFixture(t, false)
	tx := f.mustCreate(t, 1, validInput("Coffee", "5000", "expense", pngData))
	f.blobs.failDelete = true

	updated, err := f.svc.Update(context.Background(), 1, tx.ID, validInput("Coffee", "5000", "expense", gifData))
	if err != nil {
		t.Fatalf("Update should succeed, got %v", err)
	}
	orphans := f.store.Orphans()
	if len(orphans) != 1 || orphans[0].BlobKey != tx.ImageKey {
		t.Fatalf("old blob should be queued, got %+v", orphans)
	}
	if !f.blobs.Has(updated.ImageKey) {
		t.Fatal("new blob must exist")
	}
}

func TestUpdate_ConcurrentImageSwapIsKept(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	tx := f.mustCreate(t, 1, validInput("Coffee", "5000", "expense", pngData))

	var swapped core.Transaction
	f.store.beforeUpdate = func() {
		var err error
		swapped, err = f.svc.Update(ctx, 1, tx.ID, validInput("Coffee", "5000", "expense", gifData))
		if err != nil {
			t.Errorf("interleaved Update: %v", err)
		}
	}

	updated, err := f.svc.Update(ctx, 1, tx.ID, validInput("Tea", "12", "expense", nil))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "Tea" || updated.ImageKey != swapped.ImageKey {
		t.Fatalf("updated = %+v, want name Tea and image %s", updated, swapped.ImageKey)
	}

	keys := f.blobs.Keys()
	if len(keys) != 1 || keys[0] != swapped.ImageKey {
		t.Fatalf("only the swapped-in blob should remain, got %v", keys)
	}
	if orphans := f.store.Orphans(); len(orphans) != 0 {
		t.Fatalf("nothing should be queued, got %+v", orphans)
	}
}

func TestUpdate_NotFoundBeforeValidation(t *testing.T) {
	f := newFixture(t, false)
	tx := f.mustCreate(t, 1, validInput("Coffee", "5000", "expense", pngData))

	_, err := f.svc.Update(context.Background(), 2, tx.ID, core.TransactionInput{})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	_, err = f.svc.Update(context.Background(), 1, tx.ID, validInput("", "x", "", nil))
	var fe core.FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("owner with bad input should get FieldErrors, got %v", err)
	}
	if len(f.blobs.Keys()) != 1 {
		t.Fatal("failed update must not touch blobs")
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	tx := f.mustCreate(t, 1, validInput("Coffee", "5000", "expense", pngData))

	if err := f.svc.Delete(ctx, 2, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("foreign delete = %v", err)
	}
	if !f.blobs.Has(tx.ImageKey) {
		t.Fatal("foreign delete must not touch the blob")
	}

	if err := f.svc.Delete(ctx, 1, tx.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, 1, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Get after delete = %v", err)
	}
	if f.blobs.Has(tx.ImageKey) {
		t.Fatal("blob must be deleted")
	}
	if kinds := f.events.kinds(); kinds[len(kinds)-1] != core.EventDeleted {
		t.Fatalf("events = %v", kinds)
	}
	if err := f.svc.Delete(ctx, 1, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete = %v", err)
	}
}

func TestDelete_RemovesImageHeldAtDeletion(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	tx := f.mustCreate(t, 1, validInput("Coffee", "5000", "expense", pngData))

	f.store.beforeDelete = func() {
		if _, err := f.svc.Update(ctx, 1, tx.ID, validInput("Coffee", "5000", "expense", gifData)); err != nil {
			t.Errorf("interleaved Update: %v", err)
		}
	}
	if err := f.svc.Delete(ctx, 1, tx.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if keys := f.blobs.Keys(); len(keys) != 0 {
		t.Fatalf("no blob should outlive the record, got %v", keys)
	}
}

func TestDelete_BlobFailureQueuesOrphan(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	tx := f.mustCreate(t, 1, validInput("Coffee", "5000", "expense", pngData))
	f.blobs.failDelete = true

	if err := f.svc.Delete(ctx, 1, tx.ID); err != nil {
		t.Fatalf("Delete should succeed, got %v", err)
	}
	if _, err := f.svc.Get(ctx, 1, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatal("record must be gone")
	}
	orphans := f.store.Orphans()
	if len(orphans) != 1 || orphans[0].BlobKey != tx.ImageKey {
		t.Fatalf("orphans = %+v", orphans)
	}
}

func TestDelete_RecordFailureKeepsBlob(t *testing.T) {
	f := newFixture(t, false)
	tx := f.mustCreate(t, 1, validInput("Coffee", "5000", "expense", pngData))
	f.store.failDelete = true

	if err := f.svc.Delete(context.Background(), 1, tx.ID); !errors.Is(err, errInjected) {
		t.Fatalf("err = %v", err)
	}
	if !f.blobs.Has(tx.ImageKey) {
		t.Fatal("a live record must keep its blob")
	}
}

func TestPublishFailureDoesNotFailWrites(t *testing.T) {
	f := newFixture(t, false)
	f.events.err = errInjected

	tx := f.mustCreate(t, 1, validInput("Coffee", "5000", "expense", pngData))
	if _, err := f.svc.Update(context.Background(), 1, tx.ID, validInput("Tea", "1", "income", nil)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := f.svc.Delete(context.Background(), 1, tx.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestCoffeeScenario(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	coffee := f.mustCreate(t, 1, validInput("Coffee", "5000", "expense", pngData))
	listing, _ := f.svc.List(ctx, 1)
	if len(listing.Transactions) != 1 ||
		!listing.Summary.TotalExpense.Equal(decimal.NewFromInt(5000)) ||
		!listing.Summary.Balance.Equal(decimal.NewFromInt(-5000)) {
		t.Fatalf("after create: %+v", listing.Summary)
	}

	other, _ := f.svc.List(ctx, 2)
	if len(other.Transactions) != 0 {
		t.Fatal("user B must see nothing")
	}
	if _, err := f.svc.Get(ctx, 2, coffee.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatal("user B must get not found")
	}

	if err := f.svc.Delete(ctx, 1, coffee.ID); err != nil {
		t.Fatal(err)
	}
	listing, _ = f.svc.List(ctx, 1)
	if len(listing.Transactions) != 0 || !listing.Summary.Balance.IsZero() {
		t.Fatalf("after delete: %+v", listing)
	}
	if len(f.blobs.Keys()) != 0 {
		t.Fatal("image must be gone")
	}
}
