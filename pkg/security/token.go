package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Level is a session's security level, stamped onto a transport.Session
// once its peer authenticates. Level zero means unauthenticated.
type Level int32

// Token is one issued bearer token and the security level it grants.
type Token struct {
	Value     string
	Level     Level
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (t *Token) expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// TokenManager issues and validates the bearer tokens presented over
// the SidebandAuthentication sideband. An empty manager (no tokens
// issued) accepts every peer at level zero, matching fdbus's default
// of no authentication.
type TokenManager struct {
	mu     sync.RWMutex
	tokens map[string]*Token
}

// NewTokenManager creates an empty token manager.
func NewTokenManager() *TokenManager {
	return &TokenManager{tokens: make(map[string]*Token)}
}

// Issue generates a random token granting level, valid for ttl (0 =
// never expires).
func (tm *TokenManager) Issue(level Level, ttl time.Duration) (*Token, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("security: generate token: %w", err)
	}
	t := &Token{
		Value:     hex.EncodeToString(raw),
		Level:     level,
		CreatedAt: time.Now(),
	}
	if ttl > 0 {
		t.ExpiresAt = t.CreatedAt.Add(ttl)
	}
	tm.mu.Lock()
	tm.tokens[t.Value] = t
	tm.mu.Unlock()
	return t, nil
}

// Validate reports the security level a presented token grants. An
// empty manager accepts any value (including empty) at level zero.
func (tm *TokenManager) Validate(value string) (Level, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	if len(tm.tokens) == 0 {
		return 0, nil
	}
	t, ok := tm.tokens[value]
	if !ok {
		return 0, fmt.Errorf("security: token rejected")
	}
	if t.expired(time.Now()) {
		return 0, fmt.Errorf("security: token expired")
	}
	return t.Level, nil
}

// Revoke invalidates a token immediately.
func (tm *TokenManager) Revoke(value string) {
	tm.mu.Lock()
	delete(tm.tokens, value)
	tm.mu.Unlock()
}

// CleanupExpired drops every token past its expiry.
func (tm *TokenManager) CleanupExpired() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	now := time.Now()
	for v, t := range tm.tokens {
		if t.expired(now) {
			delete(tm.tokens, v)
		}
	}
}

// List returns every live token, for diagnostics.
func (tm *TokenManager) List() []*Token {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	out := make([]*Token, 0, len(tm.tokens))
	for _, t := range tm.tokens {
		out = append(out, t)
	}
	return out
}
