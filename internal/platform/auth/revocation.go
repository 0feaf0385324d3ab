package auth

import (
	"sync"
	"time"

	"github.com/Anup697028/mediwise-chat/internal/platform/clock"
)

// TokenRevocationStore remembers tokens ended by logout until they would have
// expired anyway. Expired entries are purged on every Revoke.
type TokenRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time // JTI -> token expiry
	clock   clock.Clock
}

// NewTokenRevocationStore returns an empty store.
func NewTokenRevocationStore(clk clock.Clock) *TokenRevocationStore {
	if clk == nil {
		clk = clock.System{}
	}
	return &TokenRevocationStore{entries: make(map[string]time.Time), clock: clk}
}

// Revoke adds a token's JTI to the revocation list.
func (s *TokenRevocationStore) Revoke(jti string, expiresAt time.Time) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, id)
		}
	}
	s.entries[jti] = expiresAt
}

// IsRevoked checks if a token JTI has been revoked.
func (s *TokenRevocationStore) IsRevoked(jti string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[jti]
	return ok
}

// Count returns the number of tracked revocations.
func (s *TokenRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
