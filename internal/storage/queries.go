package storage

import (
	"context"
	"database/sql"
)

const transactionColumns = `id, owner_id, name, description, amount, type, image_key, created_at, updated_at`

func scanTransaction(row interface{ Scan(...interface{}) error }) (TransactionRow, error) {
	var i TransactionRow
	err := row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.Name,
		&i.Description,
		&i.Amount,
		&i.Type,
		&i.ImageKey,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listTransactionsByOwner = `-- name: ListTransactionsByOwner :many
SELECT ` + transactionColumns + ` FROM transactions
WHERE owner_id = ?
ORDER BY id DESC
`

func (q *Queries) ListTransactionsByOwner(ctx context.Context, ownerID int64) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsByOwner, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		i, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getTransactionForOwner = `-- name: GetTransactionForOwner :one
SELECT ` + transactionColumns + ` FROM transactions
WHERE id = ? AND owner_id = ?
`

type GetTransactionForOwnerParams struct {
	ID      int64
	OwnerID int64
}

func (q *Queries) GetTransactionForOwner(ctx context.Context, arg GetTransactionForOwnerParams) (TransactionRow, error) {
	row := q.db.QueryRowContext(ctx, getTransactionForOwner, arg.ID, arg.OwnerID)
	return scanTransaction(row)
}

const createTransaction = `-- name: CreateTransaction :one
INSERT INTO transactions (owner_id, name, description, amount, type, image_key, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + transactionColumns + `
`

type CreateTransactionParams struct {
	OwnerID     int64
	Name        string
	Description sql.NullString
	Amount      string
	Type        string
	ImageKey    sql.NullString
	CreatedAt   string
	UpdatedAt   string
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (TransactionRow, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.OwnerID,
		arg.Name,
		arg.Description,
		arg.Amount,
		arg.Type,
		arg.ImageKey,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanTransaction(row)
}

const updateTransaction = `-- name: UpdateTransaction :one
UPDATE transactions
SET name = ?, description = ?, amount = ?, type = ?, updated_at = ?
WHERE id = ? AND owner_id = ?
RETURNING ` + transactionColumns + `
`

type UpdateTransactionParams struct {
	Name        string
	Description sql.NullString
	Amount      string
	Type        string
	UpdatedAt   string
	ID          int64
	OwnerID     int64
}

func (q *Queries) UpdateTransaction(ctx context.Context, arg UpdateTransactionParams) (TransactionRow, error) {
	row := q.db.QueryRowContext(ctx, updateTransaction,
		arg.Name,
		arg.Description,
		arg.Amount,
		arg.Type,
		arg.UpdatedAt,
		arg.ID,
		arg.OwnerID,
	)
	return scanTransaction(row)
}

const updateTransactionWithImage = `-- name: UpdateTransactionWithImage :one
UPDATE transactions
SET name = ?, description = ?, amount = ?, type = ?, image_key = ?, updated_at = ?
WHERE id = ? AND owner_id = ?
RETURNING ` + transactionColumns + `
`

type UpdateTransactionWithImageParams struct {
	Name        string
	Description sql.NullString
	Amount      string
	Type        string
	ImageKey    sql.NullString
	UpdatedAt   string
	ID          int64
	OwnerID     int64
}

func (q *Queries) UpdateTransactionWithImage(ctx context.Context, arg UpdateTransactionWithImageParams) (TransactionRow, error) {
	row := q.db.QueryRowContext(ctx, updateTransactionWithImage,
		arg.Name,
		arg.Description,
		arg.Amount,
		arg.Type,
		arg.ImageKey,
		arg.UpdatedAt,
		arg.ID,
		arg.OwnerID,
	)
	return scanTransaction(row)
}

const getTransactionImageKey = `-- name: GetTransactionImageKey :one
SELECT image_key FROM transactions
WHERE id = ? AND owner_id = ?
`

func (q *Queries) GetTransactionImageKey(ctx context.Context, id, ownerID int64) (sql.NullString, error) {
	row := q.db.QueryRowContext(ctx, getTransactionImageKey, id, ownerID)
	var imageKey sql.NullString
	err := row.Scan(&imageKey)
	return imageKey, err
}

const deleteTransaction = `-- name: DeleteTransaction :one
DELETE FROM transactions WHERE id = ? AND owner_id = ?
RETURNING ` + transactionColumns + `
`

func (q *Queries) DeleteTransaction(ctx context.Context, id, ownerID int64) (TransactionRow, error) {
	row := q.db.QueryRowContext(ctx, deleteTransaction, id, ownerID)
	return scanTransaction(row)
}

const createAccessToken = `-- name: CreateAccessToken :execresult
INSERT INTO access_tokens (user_id, name, token_hash, expires_at, created_at)
VALUES (?, ?, ?, ?, ?)
`

type CreateAccessTokenParams struct {
	UserID    int64
	Name      string
	TokenHash string
	ExpiresAt sql.NullString
	CreatedAt string
}

func (q *Queries) CreateAccessToken(ctx context.Context, arg CreateAccessTokenParams) (sql.Result, error) {
	return q.db.ExecContext(ctx, createAccessToken,
		arg.UserID,
		arg.Name,
		arg.TokenHash,
		arg.ExpiresAt,
		arg.CreatedAt,
	)
}

const accessTokenColumns = `id, user_id, name, token_hash, last_used_at, expires_at, created_at`

func scanAccessToken(row interface{ Scan(...interface{}) error }) (AccessTokenRow, error) {
	var i AccessTokenRow
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Name,
		&i.TokenHash,
		&i.LastUsedAt,
		&i.ExpiresAt,
		&i.CreatedAt,
	)
	return i, err
}

const getAccessTokenByID = `-- name: GetAccessTokenByID :one
SELECT ` + accessTokenColumns + ` FROM access_tokens WHERE id = ?
`

func (q *Queries) GetAccessTokenByID(ctx context.Context, id int64) (AccessTokenRow, error) {
	return scanAccessToken(q.db.QueryRowContext(ctx, getAccessTokenByID, id))
}

const getAccessTokenByHash = `-- name: GetAccessTokenByHash :one
SELECT ` + accessTokenColumns + ` FROM access_tokens WHERE token_hash = ?
`

func (q *Queries) GetAccessTokenByHash(ctx context.Context, tokenHash string) (AccessTokenRow, error) {
	return scanAccessToken(q.db.QueryRowContext(ctx, getAccessTokenByHash, tokenHash))
}

const touchAccessToken = `-- name: TouchAccessToken :exec
UPDATE access_tokens SET last_used_at = ? WHERE id = ?
`

func (q *Queries) TouchAccessToken(ctx context.Context, lastUsedAt string, id int64) error {
	_, err := q.db.ExecContext(ctx, touchAccessToken, lastUsedAt, id)
	return err
}

const createOrphanBlob = `-- name: CreateOrphanBlob :exec
INSERT INTO orphan_blobs (blob_key, reason, created_at, next_attempt_at)
VALUES (?, ?, ?, ?)
`

type CreateOrphanBlobParams struct {
	BlobKey       string
	Reason        string
	CreatedAt     string
	NextAttemptAt string
}

func (q *Queries) CreateOrphanBlob(ctx context.Context, arg CreateOrphanBlobParams) error {
	_, err := q.db.ExecContext(ctx, createOrphanBlob,
		arg.BlobKey,
		arg.Reason,
		arg.CreatedAt,
		arg.NextAttemptAt,
	)
	return err
}

const getDueOrphanBlobs = `-- name: GetDueOrphanBlobs :many
SELECT id, blob_key, reason, attempts, last_error, created_at, next_attempt_at
FROM orphan_blobs
WHERE next_attempt_at <= ?
ORDER BY next_attempt_at ASC, id ASC
LIMIT ?
`

func (q *Queries) GetDueOrphanBlobs(ctx context.Context, now string, limit int64) ([]OrphanBlobRow, error) {
	rows, err := q.db.QueryContext(ctx, getDueOrphanBlobs, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrphanBlobRow
	for rows.Next() {
		var i OrphanBlobRow
		if err := rows.Scan(
			&i.ID,
			&i.BlobKey,
			&i.Reason,
			&i.Attempts,
			&i.LastError,
			&i.CreatedAt,
			&i.NextAttemptAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteOrphanBlob = `-- name: DeleteOrphanBlob :exec
DELETE FROM orphan_blobs WHERE id = ?
`

func (q *Queries) DeleteOrphanBlob(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteOrphanBlob, id)
	return err
}

const rescheduleOrphanBlob = `-- name: RescheduleOrphanBlob :exec
UPDATE orphan_blobs
SET attempts = attempts + 1, last_error = ?, next_attempt_at = ?
WHERE id = ?
`

func (q *Queries) RescheduleOrphanBlob(ctx context.Context, lastError, nextAttemptAt string, id int64) error {
	_, err := q.db.ExecContext(ctx, rescheduleOrphanBlob, lastError, nextAttemptAt, id)
	return err
}
