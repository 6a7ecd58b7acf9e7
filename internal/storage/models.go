package storage

import "database/sql"

type TransactionRow struct {
	ID          int64
	OwnerID     int64
	Name        string
	Description sql.NullString
	Amount      string
	Type        string
	ImageKey    sql.NullString
	CreatedAt   string
	UpdatedAt   string
}

type AccessTokenRow struct {
	ID         int64
	UserID     int64
	Name       string
	TokenHash  string
	LastUsedAt sql.NullString
	ExpiresAt  sql.NullString
	CreatedAt  string
}

type OrphanBlobRow struct {
	ID            int64
	BlobKey       string
	Reason        string
	Attempts      int64
	LastError     string
	CreatedAt     string
	NextAttemptAt string
}
