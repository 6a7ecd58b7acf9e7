// Package postgres implements the storage ports on PostgreSQL via a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"moneybook/internal/core"
	"moneybook/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ ports.TransactionStore = (*Repository)(nil)
	_ ports.OrphanQueue      = (*Repository)(nil)
	_ ports.TokenStore       = (*Repository)(nil)
)

// Open connects to databaseURL and migrates the schema.
func Open(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := RunMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repository{pool: pool, now: time.Now}, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const transactionColumns = `id, owner_id, name, description, amount::text, type, image_key, created_at, updated_at`

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		t           core.Transaction
		description *string
		amount      string
		typ         string
		imageKey    *string
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &description, &amount, &typ, &imageKey, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: bad amount %q: %w", t.ID, amount, err)
	}
	t.Type = core.Type(typ)
	if description != nil {
		t.Description = *description
	}
	if imageKey != nil {
		t.ImageKey = *imageKey
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func (r *Repository) ListTransactions(ctx context.Context, ownerID int64) ([]core.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE owner_id = $1 ORDER BY id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (r *Repository) GetTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND owner_id = $2`, id, ownerID)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

func (r *Repository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	now := r.now().UTC()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO transactions (owner_id, name, description, amount, type, image_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $7)
		RETURNING `+transactionColumns,
		t.OwnerID, t.Name, nullable(t.Description), t.Amount.String(), t.Type.String(), nullable(t.ImageKey), now)
	created, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return created, nil
}

// UpdateTransaction writes image_key only when t.ImageKey is set. The
// replaced key comes from a row-locked subquery of the same statement.
func (r *Repository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, string, error) {
	now := r.now().UTC()
	if t.ImageKey == "" {
		row := r.pool.QueryRow(ctx, `
			UPDATE transactions
			SET name = $1, description = $2, amount = $3::numeric, type = $4, updated_at = $5
			WHERE id = $6 AND owner_id = $7
			RETURNING `+transactionColumns,
			t.Name, nullable(t.Description), t.Amount.String(), t.Type.String(), now, t.ID, t.OwnerID)
		updated, err := scanTransaction(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Transaction{}, "", core.ErrNotFound
		}
		if err != nil {
			return core.Transaction{}, "", fmt.Errorf("update transaction %d: %w", t.ID, err)
		}
		return updated, "", nil
	}

	var previous *string
	row := r.pool.QueryRow(ctx, `
		UPDATE transactions
		SET name = $1, description = $2, amount = $3::numeric, type = $4, image_key = $5, updated_at = $6
		FROM (
			SELECT id AS locked_id, image_key AS previous_key
			FROM transactions
			WHERE id = $7 AND owner_id = $8
			FOR UPDATE
		) AS locked
		WHERE transactions.id = locked.locked_id
		RETURNING `+transactionColumns+`, locked.previous_key`,
		t.Name, nullable(t.Description), t.Amount.String(), t.Type.String(), nullable(t.ImageKey), now, t.ID, t.OwnerID)
	updated, err := scanTransaction(trailingColumn{Row: row, dest: &previous})
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, "", core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, "", fmt.Errorf("update transaction %d: %w", t.ID, err)
	}
	if previous == nil {
		return updated, "", nil
	}
	return updated, *previous, nil
}

// trailingColumn scans one extra column after the transaction columns.
type trailingColumn struct {
	pgx.Row
	dest any
}

func (c trailingColumn) Scan(dest ...any) error {
	return c.Row.Scan(append(dest, c.dest)...)
}

func (r *Repository) DeleteTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	row := r.pool.QueryRow(ctx,
		`DELETE FROM transactions WHERE id = $1 AND owner_id = $2 RETURNING `+transactionColumns, id, ownerID)
	deleted, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction %d: %w", id, err)
	}
	return deleted, nil
}

func (r *Repository) EnqueueOrphan(ctx context.Context, key, reason string) error {
	now := r.now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO orphan_blobs (blob_key, reason, created_at, next_attempt_at)
		VALUES ($1, $2, $3, $3)`, key, reason, now)
	if err != nil {
		return fmt.Errorf("enqueue orphan blob %s: %w", key, err)
	}
	return nil
}

func (r *Repository) DueOrphans(ctx context.Context, now time.Time, limit int) ([]core.OrphanBlob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, blob_key, reason, attempts, last_error, created_at, next_attempt_at
		FROM orphan_blobs
		WHERE next_attempt_at <= $1
		ORDER BY next_attempt_at ASC, id ASC
		LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("get due orphan blobs: %w", err)
	}
	defer rows.Close()

	var out []core.OrphanBlob
	for rows.Next() {
		var o core.OrphanBlob
		if err := rows.Scan(&o.ID, &o.BlobKey, &o.Reason, &o.Attempts, &o.LastError, &o.CreatedAt, &o.NextAttemptAt); err != nil {
			return nil, fmt.Errorf("scan orphan blob: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repository) ResolveOrphan(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM orphan_blobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("resolve orphan blob %d: %w", id, err)
	}
	return nil
}

func (r *Repository) RetryOrphanLater(ctx context.Context, id int64, lastErr string, next time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE orphan_blobs
		SET attempts = attempts + 1, last_error = $1, next_attempt_at = $2
		WHERE id = $3`, lastErr, next.UTC(), id)
	if err != nil {
		return fmt.Errorf("reschedule orphan blob %d: %w", id, err)
	}
	return nil
}

const tokenColumns = `id, user_id, name, token_hash, last_used_at, expires_at, created_at`

func scanToken(row pgx.Row) (core.AccessToken, error) {
	var (
		t        core.AccessToken
		lastUsed *time.Time
		expires  *time.Time
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.TokenHash, &lastUsed, &expires, &t.CreatedAt); err != nil {
		return core.AccessToken{}, err
	}
	if lastUsed != nil {
		t.LastUsedAt = lastUsed.UTC()
	}
	if expires != nil {
		t.ExpiresAt = expires.UTC()
	}
	return t, nil
}

func (r *Repository) CreateToken(ctx context.Context, t core.AccessToken) (core.AccessToken, error) {
	var expires *time.Time
	if !t.ExpiresAt.IsZero() {
		e := t.ExpiresAt.UTC()
		expires = &e
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO access_tokens (user_id, name, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+tokenColumns,
		t.UserID, t.Name, t.TokenHash, expires, r.now().UTC())
	created, err := scanToken(row)
	if err != nil {
		return core.AccessToken{}, fmt.Errorf("create access token: %w", err)
	}
	return created, nil
}

func (r *Repository) FindTokenByHash(ctx context.Context, hash string) (core.AccessToken, error) {
	t, err := scanToken(r.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM access_tokens WHERE token_hash = $1`, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.AccessToken{}, core.ErrNotFound
	}
	if err != nil {
		return core.AccessToken{}, fmt.Errorf("find access token: %w", err)
	}
	return t, nil
}

func (r *Repository) TouchToken(ctx context.Context, id int64, at time.Time) error {
	if _, err := r.pool.Exec(ctx, `UPDATE access_tokens SET last_used_at = $1 WHERE id = $2`, at.UTC(), id); err != nil {
		return fmt.Errorf("touch access token %d: %w", id, err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
