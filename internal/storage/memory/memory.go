// Package memory implements the storage ports in process memory. Data is lost
// on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"moneybook/internal/core"
	"moneybook/internal/ports"
)

type Store struct {
	mu sync.RWMutex

	transactions map[int64]core.Transaction
	nextTxID     int64

	orphans      map[int64]core.OrphanBlob
	nextOrphanID int64

	tokens      map[int64]core.AccessToken
	nextTokenID int64

	now func() time.Time
}

var (
	_ ports.TransactionStore = (*Store)(nil)
	_ ports.OrphanQueue      = (*Store)(nil)
	_ ports.TokenStore       = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		transactions: make(map[int64]core.Transaction),
		orphans:      make(map[int64]core.OrphanBlob),
		tokens:       make(map[int64]core.AccessToken),
		now:          time.Now,
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) ListTransactions(ctx context.Context, ownerID int64) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Transaction, 0)
	for _, t := range s.transactions {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) GetTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transactions[id]
	if !ok || t.OwnerID != ownerID {
		return core.Transaction{}, core.ErrNotFound
	}
	return t, nil
}

func (s *Store) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTxID++
	now := s.now().UTC()
	t.ID = s.nextTxID
	t.CreatedAt = now
	t.UpdatedAt = now
	s.transactions[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.transactions[t.ID]
	if !ok || existing.OwnerID != t.OwnerID {
		return core.Transaction{}, "", core.ErrNotFound
	}
	var replaced string
	if t.ImageKey != "" {
		replaced = existing.ImageKey
		existing.ImageKey = t.ImageKey
	}
	existing.Name = t.Name
	existing.Description = t.Description
	existing.Amount = t.Amount
	existing.Type = t.Type
	existing.UpdatedAt = s.now().UTC()
	s.transactions[t.ID] = existing
	return existing, replaced, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok || t.OwnerID != ownerID {
		return core.Transaction{}, core.ErrNotFound
	}
	delete(s.transactions, id)
	return t, nil
}

func (s *Store) EnqueueOrphan(ctx context.Context, key, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextOrphanID++
	now := s.now().UTC()
	s.orphans[s.nextOrphanID] = core.OrphanBlob{
		ID:            s.nextOrphanID,
		BlobKey:       key,
		Reason:        reason,
		CreatedAt:     now,
		NextAttemptAt: now,
	}
	return nil
}

func (s *Store) DueOrphans(ctx context.Context, now time.Time, limit int) ([]core.OrphanBlob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []core.OrphanBlob
	for _, o := range s.orphans {
		if !o.NextAttemptAt.After(now) {
			due = append(due, o)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextAttemptAt.Equal(due[j].NextAttemptAt) {
			return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
		}
		return due[i].ID < due[j].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) ResolveOrphan(ctx context.Context, id int64) error {
	s.mu.Lock()
	delete(s.orphans, id)
	s.mu.Unlock()
	return nil
}

func (s *Store) RetryOrphanLater(ctx context.Context, id int64, lastErr string, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orphans[id]
	if !ok {
		return nil
	}
	o.Attempts++
	o.LastError = lastErr
	o.NextAttemptAt = next.UTC()
	s.orphans[id] = o
	return nil
}

// Orphans returns every queued orphan ordered by id.
func (s *Store) Orphans() []core.OrphanBlob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.OrphanBlob, 0, len(s.orphans))
	for _, o := range s.orphans {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) CreateToken(ctx context.Context, t core.AccessToken) (core.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTokenID++
	t.ID = s.nextTokenID
	t.CreatedAt = s.now().UTC()
	s.tokens[t.ID] = t
	return t, nil
}

func (s *Store) FindTokenByHash(ctx context.Context, hash string) (core.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tokens {
		if t.TokenHash == hash {
			return t, nil
		}
	}
	return core.AccessToken{}, core.ErrNotFound
}

func (s *Store) TouchToken(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tokens[id]; ok {
		t.LastUsedAt = at.UTC()
		s.tokens[id] = t
	}
	return nil
}
