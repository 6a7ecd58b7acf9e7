package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"moneybook/internal/core"
	"moneybook/internal/log"
	"moneybook/internal/ports"
)

// TokenProvider authenticates against hashed tokens in a TokenStore.
type TokenProvider struct {
	tokens ports.TokenStore
	logger *log.Logger
	now    func() time.Time
}

var _ ports.IdentityProvider = (*TokenProvider)(nil)

func NewTokenProvider(tokens ports.TokenStore, logger *log.Logger) *TokenProvider {
	if logger == nil {
		logger = log.Discard()
	}
	return &TokenProvider{
		tokens: tokens,
		logger: logger.WithComponent(log.ComponentAuth),
		now:    time.Now,
	}
}

func (p *TokenProvider) Authenticate(ctx context.Context, token string) (core.Owner, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return core.Owner{}, core.ErrUnauthenticated
	}

	t, err := p.tokens.FindTokenByHash(ctx, HashToken(token))
	if errors.Is(err, core.ErrNotFound) {
		return core.Owner{}, core.ErrUnauthenticated
	}
	if err != nil {
		return core.Owner{}, fmt.Errorf("lookup token: %w", err)
	}

	now := p.now()
	if t.Expired(now) {
		return core.Owner{}, core.ErrUnauthenticated
	}

	if err := p.tokens.TouchToken(ctx, t.ID, now); err != nil {
		// last_used_at is informational; the request still proceeds
		p.logger.WarnContext(ctx, "Failed to record token use",
			log.FieldError, err,
			log.FieldOwnerID, t.UserID)
	}

	return core.Owner{ID: t.UserID, TokenName: t.Name}, nil
}

// StaticProvider maps a fixed set of tokens to owner ids. Used for the
// memory backend and local development.
type StaticProvider struct {
	owners map[string]int64 // token hash -> owner id
}

var _ ports.IdentityProvider = (*StaticProvider)(nil)

// NewStaticProvider builds a provider from plaintext token -> owner id.
func NewStaticProvider(tokens map[string]int64) *StaticProvider {
	owners := make(map[string]int64, len(tokens))
	for tok, id := range tokens {
		owners[HashToken(tok)] = id
	}
	return &StaticProvider{owners: owners}
}

func (p *StaticProvider) Authenticate(ctx context.Context, token string) (core.Owner, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return core.Owner{}, core.ErrUnauthenticated
	}
	id, ok := p.owners[HashToken(token)]
	if !ok {
		return core.Owner{}, core.ErrUnauthenticated
	}
	return core.Owner{ID: id, TokenName: "static"}, nil
}

// ParseStaticTokens parses "token:userID,token:userID".
func ParseStaticTokens(s string) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		i := strings.LastIndexByte(pair, ':')
		if i <= 0 || i == len(pair)-1 {
			return nil, fmt.Errorf("invalid static token entry %q (want token:userID)", pair)
		}
		id, err := strconv.ParseInt(pair[i+1:], 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid user id in static token entry %q", pair)
		}
		out[pair[:i]] = id
	}
	return out, nil
}
