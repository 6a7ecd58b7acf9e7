package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"moneybook/internal/core"
	"moneybook/internal/ports"
	"moneybook/internal/storage/storetest"

	"github.com/shopspring/decimal"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "moneybook.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_Transactions(t *testing.T) {
	storetest.TransactionStore(t, func(t *testing.T) ports.TransactionStore { return newTestRepo(t) })
}

func TestSQLiteRepository_Orphans(t *testing.T) {
	storetest.OrphanQueue(t, func(t *testing.T) ports.OrphanQueue { return newTestRepo(t) })
}

func TestSQLiteRepository_Tokens(t *testing.T) {
	storetest.TokenStore(t, func(t *testing.T) ports.TokenStore { return newTestRepo(t) })
}

// noReadBack fails the single-row lookup so writes that re-read their row
// after committing are caught.
type noReadBack struct {
	DBTX
}

func (n noReadBack) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	if strings.HasPrefix(query, "-- name: GetTransactionForOwner") {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		return n.DBTX.QueryRowContext(cancelled, query, args...)
	}
	return n.DBTX.QueryRowContext(ctx, query, args...)
}

func TestSQLiteRepository_WritesReturnTheirOwnRow(t *testing.T) {
	repo := newTestRepo(t)
	repo.queries = New(noReadBack{DBTX: repo.db})
	ctx := context.Background()

	created, err := repo.CreateTransaction(ctx, core.Transaction{
		OwnerID:  1,
		Name:     "Coffee",
		Amount:   decimal.RequireFromString("5000"),
		Type:     core.Expense,
		ImageKey: "a.png",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if created.ID == 0 || created.Name != "Coffee" || created.ImageKey != "a.png" || created.CreatedAt.IsZero() {
		t.Fatalf("created = %+v", created)
	}

	renamed, replaced, err := repo.UpdateTransaction(ctx, core.Transaction{
		ID: created.ID, OwnerID: 1, Name: "Tea", Amount: decimal.RequireFromString("2"), Type: core.Income,
	})
	if err != nil {
		t.Fatalf("UpdateTransaction without image: %v", err)
	}
	if renamed.Name != "Tea" || renamed.ImageKey != "a.png" || replaced != "" {
		t.Fatalf("renamed = %+v, replaced = %q", renamed, replaced)
	}

	swapped, replaced, err := repo.UpdateTransaction(ctx, core.Transaction{
		ID: created.ID, OwnerID: 1, Name: "Tea", Amount: decimal.RequireFromString("2"), Type: core.Income, ImageKey: "b.gif",
	})
	if err != nil {
		t.Fatalf("UpdateTransaction with image: %v", err)
	}
	if swapped.ImageKey != "b.gif" || replaced != "a.png" {
		t.Fatalf("swapped = %+v, replaced = %q", swapped, replaced)
	}

	_, _, err = repo.UpdateTransaction(ctx, core.Transaction{
		ID: created.ID, OwnerID: 2, Name: "x", Amount: decimal.Zero, Type: core.Income, ImageKey: "c.png",
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("foreign update err = %v", err)
	}
}

func TestSQLiteRepository_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moneybook.db")
	first, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	first.Close()

	second, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	second.Close()

	version, err := RunMigrations(dsn(path))
	if err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	if version != 3 {
		t.Fatalf("schema version = %d, want 3", version)
	}
}

func TestTimeFormatSortsLexically(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	earlier := formatTime(base)
	later := formatTime(base.Add(time.Nanosecond))
	if !(earlier < later) {
		t.Fatalf("%q should sort before %q", earlier, later)
	}
	parsed, err := parseTime(earlier)
	if err != nil || !parsed.Equal(base) {
		t.Fatalf("parseTime(%q) = %v, %v", earlier, parsed, err)
	}
	if len(formatTime(base.In(time.FixedZone("CET", 3600)))) != len(earlier) {
		t.Fatal("formatted times must be fixed width")
	}
}
