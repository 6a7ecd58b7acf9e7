// Package storetest holds behaviour checks shared by every store backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"moneybook/internal/core"
	"moneybook/internal/ports"

	"github.com/shopspring/decimal"
)

func sample(owner int64, name string, typ core.Type, amount string) core.Transaction {
	return core.Transaction{
		OwnerID: owner,
		Name:    name,
		Amount:  decimal.RequireFromString(amount),
		Type:    typ,
	}
}

// TransactionStore checks ordering, owner scoping and update/delete
// semantics. newStore must return an empty store.
func TransactionStore(t *testing.T, newStore func(t *testing.T) ports.TransactionStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		in := sample(1, "Coffee", core.Expense, "5000")
		in.Description = "morning"
		in.ImageKey = "0123456789abcdef0123456789abcdef.png"

		created, err := s.CreateTransaction(ctx, in)
		if err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
		if created.ID == 0 {
			t.Fatal("expected assigned id")
		}
		if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
			t.Fatal("expected timestamps to be set")
		}

		got, err := s.GetTransaction(ctx, 1, created.ID)
		if err != nil {
			t.Fatalf("GetTransaction: %v", err)
		}
		if got.Name != "Coffee" || got.Description != "morning" || got.Type != core.Expense ||
			!got.Amount.Equal(decimal.RequireFromString("5000")) || got.ImageKey != in.ImageKey {
			t.Fatalf("round trip mismatch: %+v", got)
		}
	})

	t.Run("empty description and image stay empty", func(t *testing.T) {
		s := newStore(t)
		created, err := s.CreateTransaction(ctx, sample(1, "Salary", core.Income, "1000.25"))
		if err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
		if created.Description != "" || created.ImageKey != "" {
			t.Fatalf("expected empty optional fields, got %+v", created)
		}
		if created.Amount.String() != "1000.25" {
			t.Fatalf("amount = %s, want exact 1000.25", created.Amount)
		}
	})

	t.Run("list is owner scoped and newest first", func(t *testing.T) {
		s := newStore(t)
		var ids []int64
		for _, name := range []string{"a", "b", "c"} {
			tx, err := s.CreateTransaction(ctx, sample(1, name, core.Expense, "1"))
			if err != nil {
				t.Fatalf("CreateTransaction: %v", err)
			}
			ids = append(ids, tx.ID)
		}
		if _, err := s.CreateTransaction(ctx, sample(2, "other", core.Income, "9")); err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}

		list, err := s.ListTransactions(ctx, 1)
		if err != nil {
			t.Fatalf("ListTransactions: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("got %d transactions, want 3", len(list))
		}
		for i, tx := range list {
			if tx.OwnerID != 1 {
				t.Fatalf("leaked transaction of owner %d", tx.OwnerID)
			}
			if want := ids[len(ids)-1-i]; tx.ID != want {
				t.Fatalf("position %d has id %d, want %d", i, tx.ID, want)
			}
		}

		empty, err := s.ListTransactions(ctx, 42)
		if err != nil {
			t.Fatalf("ListTransactions: %v", err)
		}
		if len(empty) != 0 {
			t.Fatalf("expected no transactions for unknown owner, got %d", len(empty))
		}
	})

	t.Run("foreign owner sees not found", func(t *testing.T) {
		s := newStore(t)
		tx, err := s.CreateTransaction(ctx, sample(1, "mine", core.Expense, "1"))
		if err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}

		if _, err := s.GetTransaction(ctx, 2, tx.ID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("Get as other owner = %v, want ErrNotFound", err)
		}
		if _, err := s.GetTransaction(ctx, 1, tx.ID+1000); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("Get missing = %v, want ErrNotFound", err)
		}

		hijack := tx
		hijack.OwnerID = 2
		hijack.Name = "stolen"
		if _, _, err := s.UpdateTransaction(ctx, hijack); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("Update as other owner = %v, want ErrNotFound", err)
		}
		if _, err := s.DeleteTransaction(ctx, 2, tx.ID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("Delete as other owner = %v, want ErrNotFound", err)
		}

		still, err := s.GetTransaction(ctx, 1, tx.ID)
		if err != nil || still.Name != "mine" {
			t.Fatalf("owner's record changed: %+v, %v", still, err)
		}
	})

	t.Run("update replaces fields", func(t *testing.T) {
		s := newStore(t)
		in := sample(1, "Coffee", core.Expense, "5000")
		in.Description = "old"
		in.ImageKey = "0123456789abcdef0123456789abcdef.png"
		tx, err := s.CreateTransaction(ctx, in)
		if err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}

		tx.Name = "Tea"
		tx.Description = ""
		tx.Amount = decimal.RequireFromString("12.5")
		tx.Type = core.Income
		tx.ImageKey = "fedcba9876543210fedcba9876543210.jpg"
		updated, replaced, err := s.UpdateTransaction(ctx, tx)
		if err != nil {
			t.Fatalf("UpdateTransaction: %v", err)
		}
		if replaced != in.ImageKey {
			t.Fatalf("replaced key = %q, want %q", replaced, in.ImageKey)
		}
		if updated.Name != "Tea" || updated.Description != "" || updated.Type != core.Income ||
			!updated.Amount.Equal(decimal.RequireFromString("12.5")) || updated.ImageKey != tx.ImageKey {
			t.Fatalf("update not applied: %+v", updated)
		}
		if updated.ID != tx.ID || updated.OwnerID != 1 {
			t.Fatal("id and owner must not change")
		}
		if !updated.CreatedAt.Equal(tx.CreatedAt) {
			t.Fatalf("created_at changed from %v to %v", tx.CreatedAt, updated.CreatedAt)
		}
	})

	t.Run("update without image keeps stored key", func(t *testing.T) {
		s := newStore(t)
		in := sample(1, "Coffee", core.Expense, "5000")
		in.ImageKey = "0123456789abcdef0123456789abcdef.png"
		tx, err := s.CreateTransaction(ctx, in)
		if err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}

		// Another writer swaps the image after tx was read.
		swap := tx
		swap.ImageKey = "fedcba9876543210fedcba9876543210.gif"
		if _, _, err := s.UpdateTransaction(ctx, swap); err != nil {
			t.Fatalf("UpdateTransaction swap: %v", err)
		}

		stale := tx
		stale.Name = "Tea"
		stale.ImageKey = ""
		updated, replaced, err := s.UpdateTransaction(ctx, stale)
		if err != nil {
			t.Fatalf("UpdateTransaction: %v", err)
		}
		if replaced != "" {
			t.Fatalf("replaced key = %q, want none", replaced)
		}
		if updated.Name != "Tea" || updated.ImageKey != swap.ImageKey {
			t.Fatalf("updated = %+v, want name Tea and image %s", updated, swap.ImageKey)
		}
		got, err := s.GetTransaction(ctx, 1, tx.ID)
		if err != nil || got.ImageKey != swap.ImageKey {
			t.Fatalf("stored image = %q, %v", got.ImageKey, err)
		}
	})

	t.Run("update to an image from none reports no replaced key", func(t *testing.T) {
		s := newStore(t)
		tx, err := s.CreateTransaction(ctx, sample(1, "Coffee", core.Expense, "1"))
		if err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
		tx.ImageKey = "0123456789abcdef0123456789abcdef.png"
		updated, replaced, err := s.UpdateTransaction(ctx, tx)
		if err != nil {
			t.Fatalf("UpdateTransaction: %v", err)
		}
		if replaced != "" || updated.ImageKey != tx.ImageKey {
			t.Fatalf("updated = %+v, replaced = %q", updated, replaced)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		in := sample(1, "gone", core.Expense, "1")
		in.ImageKey = "0123456789abcdef0123456789abcdef.png"
		tx, err := s.CreateTransaction(ctx, in)
		if err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
		deleted, err := s.DeleteTransaction(ctx, 1, tx.ID)
		if err != nil {
			t.Fatalf("DeleteTransaction: %v", err)
		}
		if deleted.ID != tx.ID || deleted.ImageKey != in.ImageKey {
			t.Fatalf("deleted = %+v", deleted)
		}
		if _, err := s.GetTransaction(ctx, 1, tx.ID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("Get after delete = %v, want ErrNotFound", err)
		}
		if _, err := s.DeleteTransaction(ctx, 1, tx.ID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("second delete = %v, want ErrNotFound", err)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := newStore(t).Ping(ctx); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})
}

// OrphanQueue checks due selection, rescheduling and resolution.
func OrphanQueue(t *testing.T, newQueue func(t *testing.T) ports.OrphanQueue) {
	ctx := context.Background()

	t.Run("enqueue, retry later, resolve", func(t *testing.T) {
		q := newQueue(t)
		if err := q.EnqueueOrphan(ctx, "a.png", "delete failed"); err != nil {
			t.Fatalf("EnqueueOrphan: %v", err)
		}
		if err := q.EnqueueOrphan(ctx, "b.png", "rollback failed"); err != nil {
			t.Fatalf("EnqueueOrphan: %v", err)
		}

		now := time.Now().Add(time.Second)
		due, err := q.DueOrphans(ctx, now, 10)
		if err != nil {
			t.Fatalf("DueOrphans: %v", err)
		}
		if len(due) != 2 {
			t.Fatalf("got %d due orphans, want 2", len(due))
		}
		if due[0].BlobKey != "a.png" || due[0].Reason != "delete failed" || due[0].Attempts != 0 {
			t.Fatalf("unexpected first orphan %+v", due[0])
		}

		limited, err := q.DueOrphans(ctx, now, 1)
		if err != nil || len(limited) != 1 {
			t.Fatalf("limit not applied: %d, %v", len(limited), err)
		}

		if err := q.RetryOrphanLater(ctx, due[0].ID, "still failing", now.Add(time.Hour)); err != nil {
			t.Fatalf("RetryOrphanLater: %v", err)
		}
		if err := q.ResolveOrphan(ctx, due[1].ID); err != nil {
			t.Fatalf("ResolveOrphan: %v", err)
		}

		due, err = q.DueOrphans(ctx, now, 10)
		if err != nil {
			t.Fatalf("DueOrphans: %v", err)
		}
		if len(due) != 0 {
			t.Fatalf("expected nothing due, got %+v", due)
		}

		later, err := q.DueOrphans(ctx, now.Add(2*time.Hour), 10)
		if err != nil {
			t.Fatalf("DueOrphans: %v", err)
		}
		if len(later) != 1 || later[0].Attempts != 1 || later[0].LastError != "still failing" {
			t.Fatalf("rescheduled orphan not returned correctly: %+v", later)
		}
	})
}

// TokenStore checks hash lookup and last-used tracking.
func TokenStore(t *testing.T, newStore func(t *testing.T) ports.TokenStore) {
	ctx := context.Background()

	t.Run("create, find, touch", func(t *testing.T) {
		s := newStore(t)
		expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		created, err := s.CreateToken(ctx, core.AccessToken{UserID: 7, Name: "cli", TokenHash: "abc", ExpiresAt: expires})
		if err != nil {
			t.Fatalf("CreateToken: %v", err)
		}
		if created.ID == 0 {
			t.Fatal("expected token id")
		}

		found, err := s.FindTokenByHash(ctx, "abc")
		if err != nil {
			t.Fatalf("FindTokenByHash: %v", err)
		}
		if found.UserID != 7 || found.Name != "cli" || !found.ExpiresAt.Equal(expires) {
			t.Fatalf("unexpected token %+v", found)
		}
		if !found.LastUsedAt.IsZero() {
			t.Fatal("fresh token must not have a last use")
		}

		at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		if err := s.TouchToken(ctx, found.ID, at); err != nil {
			t.Fatalf("TouchToken: %v", err)
		}
		found, _ = s.FindTokenByHash(ctx, "abc")
		if !found.LastUsedAt.Equal(at) {
			t.Fatalf("LastUsedAt = %v, want %v", found.LastUsedAt, at)
		}

		if _, err := s.FindTokenByHash(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("FindTokenByHash unknown = %v, want ErrNotFound", err)
		}
	})
}
