package api

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/shadowatlas/discovery-core/internal/connector"
)

// stateTTL bounds how long an issued OAuth state token is redeemable,
// matching a realistic user-interactive authorization window.
const stateTTL = 10 * time.Minute

type stateEntry struct {
	organizationID string
	platform       connector.Platform
	expiresAt      time.Time
}

// MemoryOAuthStateStore is an in-memory OAuthStateStore, grounded on
// internal/middleware/rate_limiter.go's windowed-map-plus-background-
// cleanup idiom applied to one-shot tokens instead of rate-limit counters.
type MemoryOAuthStateStore struct {
	mu      sync.Mutex
	entries map[string]stateEntry
}

func NewMemoryOAuthStateStore() *MemoryOAuthStateStore {
	s := &MemoryOAuthStateStore{entries: make(map[string]stateEntry)}
	go s.cleanup()
	return s
}

func (s *MemoryOAuthStateStore) Issue(organizationID string, platform connector.Platform) string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	state := hex.EncodeToString(buf)

	s.mu.Lock()
	s.entries[state] = stateEntry{
		organizationID: organizationID,
		platform:       platform,
		expiresAt:      time.Now().Add(stateTTL),
	}
	s.mu.Unlock()
	return state
}

// Consume is single-use: a redeemed or expired state is never valid twice.
func (s *MemoryOAuthStateStore) Consume(state string) (string, connector.Platform, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[state]
	if !ok {
		return "", "", false
	}
	delete(s.entries, state)
	if time.Now().After(entry.expiresAt) {
		return "", "", false
	}
	return entry.organizationID, entry.platform, true
}

func (s *MemoryOAuthStateStore) cleanup() {
	ticker := time.NewTicker(stateTTL)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		now := time.Now()
		for state, entry := range s.entries {
			if now.After(entry.expiresAt) {
				delete(s.entries, state)
			}
		}
		s.mu.Unlock()
	}
}
