package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"moneybook/internal/core"
	"moneybook/internal/ports"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository implements the transaction, orphan and token ports on a
// single SQLite database.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var (
	_ ports.TransactionStore = (*SQLiteRepository)(nil)
	_ ports.OrphanQueue      = (*SQLiteRepository)(nil)
	_ ports.TokenStore       = (*SQLiteRepository)(nil)
)

func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dsn(dbPath)); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, ownerID int64) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := toTransaction(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	row, err := r.queries.GetTransactionForOwner(ctx, GetTransactionForOwnerParams{ID: id, OwnerID: ownerID})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return toTransaction(row)
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	now := formatTime(r.now())
	row, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		OwnerID:     t.OwnerID,
		Name:        t.Name,
		Description: nullString(t.Description),
		Amount:      t.Amount.String(),
		Type:        t.Type.String(),
		ImageKey:    nullString(t.ImageKey),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return toTransaction(row)
}

// UpdateTransaction writes image_key only when t.ImageKey is set. The key it
// replaces is read inside the same write transaction, so a concurrent update
// cannot slip between the read and the write.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, string, error) {
	now := formatTime(r.now())
	if t.ImageKey == "" {
		row, err := r.queries.UpdateTransaction(ctx, UpdateTransactionParams{
			Name:        t.Name,
			Description: nullString(t.Description),
			Amount:      t.Amount.String(),
			Type:        t.Type.String(),
			UpdatedAt:   now,
			ID:          t.ID,
			OwnerID:     t.OwnerID,
		})
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, "", core.ErrNotFound
		}
		if err != nil {
			return core.Transaction{}, "", fmt.Errorf("update transaction %d: %w", t.ID, err)
		}
		updated, err := toTransaction(row)
		return updated, "", err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, "", fmt.Errorf("update transaction %d: begin: %w", t.ID, err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	previous, err := q.GetTransactionImageKey(ctx, t.ID, t.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, "", core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, "", fmt.Errorf("update transaction %d: read image key: %w", t.ID, err)
	}
	row, err := q.UpdateTransactionWithImage(ctx, UpdateTransactionWithImageParams{
		Name:        t.Name,
		Description: nullString(t.Description),
		Amount:      t.Amount.String(),
		Type:        t.Type.String(),
		ImageKey:    nullString(t.ImageKey),
		UpdatedAt:   now,
		ID:          t.ID,
		OwnerID:     t.OwnerID,
	})
	if err != nil {
		return core.Transaction{}, "", fmt.Errorf("update transaction %d: %w", t.ID, err)
	}
	updated, err := toTransaction(row)
	if err != nil {
		return core.Transaction{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return core.Transaction{}, "", fmt.Errorf("update transaction %d: commit: %w", t.ID, err)
	}
	return updated, previous.String, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	row, err := r.queries.DeleteTransaction(ctx, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction %d: %w", id, err)
	}
	return toTransaction(row)
}

func (r *SQLiteRepository) EnqueueOrphan(ctx context.Context, key, reason string) error {
	now := formatTime(r.now())
	err := r.queries.CreateOrphanBlob(ctx, CreateOrphanBlobParams{
		BlobKey:       key,
		Reason:        reason,
		CreatedAt:     now,
		NextAttemptAt: now,
	})
	if err != nil {
		return fmt.Errorf("enqueue orphan blob %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) DueOrphans(ctx context.Context, now time.Time, limit int) ([]core.OrphanBlob, error) {
	rows, err := r.queries.GetDueOrphanBlobs(ctx, formatTime(now), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get due orphan blobs: %w", err)
	}
	out := make([]core.OrphanBlob, 0, len(rows))
	for _, row := range rows {
		created, err := parseTime(row.CreatedAt)
		if err != nil {
			return nil, err
		}
		next, err := parseTime(row.NextAttemptAt)
		if err != nil {
			return nil, err
		}
		out = append(out, core.OrphanBlob{
			ID:            row.ID,
			BlobKey:       row.BlobKey,
			Reason:        row.Reason,
			Attempts:      int(row.Attempts),
			LastError:     row.LastError,
			CreatedAt:     created,
			NextAttemptAt: next,
		})
	}
	return out, nil
}

func (r *SQLiteRepository) ResolveOrphan(ctx context.Context, id int64) error {
	if err := r.queries.DeleteOrphanBlob(ctx, id); err != nil {
		return fmt.Errorf("resolve orphan blob %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) RetryOrphanLater(ctx context.Context, id int64, lastErr string, next time.Time) error {
	if err := r.queries.RescheduleOrphanBlob(ctx, lastErr, formatTime(next), id); err != nil {
		return fmt.Errorf("reschedule orphan blob %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) CreateToken(ctx context.Context, t core.AccessToken) (core.AccessToken, error) {
	var expires sql.NullString
	if !t.ExpiresAt.IsZero() {
		expires = sql.NullString{String: formatTime(t.ExpiresAt), Valid: true}
	}
	res, err := r.queries.CreateAccessToken(ctx, CreateAccessTokenParams{
		UserID:    t.UserID,
		Name:      t.Name,
		TokenHash: t.TokenHash,
		ExpiresAt: expires,
		CreatedAt: formatTime(r.now()),
	})
	if err != nil {
		return core.AccessToken{}, fmt.Errorf("create access token: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.AccessToken{}, fmt.Errorf("create access token: last insert id: %w", err)
	}
	row, err := r.queries.GetAccessTokenByID(ctx, id)
	if err != nil {
		return core.AccessToken{}, fmt.Errorf("reload access token %d: %w", id, err)
	}
	return toAccessToken(row)
}

func (r *SQLiteRepository) FindTokenByHash(ctx context.Context, hash string) (core.AccessToken, error) {
	row, err := r.queries.GetAccessTokenByHash(ctx, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return core.AccessToken{}, core.ErrNotFound
	}
	if err != nil {
		return core.AccessToken{}, fmt.Errorf("find access token: %w", err)
	}
	return toAccessToken(row)
}

func (r *SQLiteRepository) TouchToken(ctx context.Context, id int64, at time.Time) error {
	if err := r.queries.TouchAccessToken(ctx, formatTime(at), id); err != nil {
		return fmt.Errorf("touch access token %d: %w", id, err)
	}
	return nil
}

func toTransaction(row TransactionRow) (core.Transaction, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: bad amount %q: %w", row.ID, row.Amount, err)
	}
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	updated, err := parseTime(row.UpdatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Name:        row.Name,
		Description: row.Description.String,
		Amount:      amount,
		Type:        core.Type(row.Type),
		ImageKey:    row.ImageKey.String,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

func toAccessToken(row AccessTokenRow) (core.AccessToken, error) {
	t := core.AccessToken{
		ID:        row.ID,
		UserID:    row.UserID,
		Name:      row.Name,
		TokenHash: row.TokenHash,
	}
	var err error
	if t.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return core.AccessToken{}, err
	}
	if row.LastUsedAt.Valid {
		if t.LastUsedAt, err = parseTime(row.LastUsedAt.String); err != nil {
			return core.AccessToken{}, err
		}
	}
	if row.ExpiresAt.Valid {
		if t.ExpiresAt, err = parseTime(row.ExpiresAt.String); err != nil {
			return core.AccessToken{}, err
		}
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
