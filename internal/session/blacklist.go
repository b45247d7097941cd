package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Blacklist is the explicit invalidated-token set used as a fallback when
// a token cannot be tied to the live registry: logout of a token that no
// longer verifies, or a token that has to stay dead across restarts and
// replicas. Entries only need to live until the token expires.
type Blacklist interface {
	Add(ctx context.Context, token string, until time.Time) error
	Contains(ctx context.Context, token string) (bool, error)
}

// Pruner is implemented by blacklists that need explicit expiry sweeps.
type Pruner interface {
	Prune(now time.Time) int
}

// fingerprint returns the SHA-256 hex digest of token. Only digests are
// stored so a dump of the set cannot be replayed.
func fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MemoryBlacklist keeps the invalidated set in process. It is used when
// Redis is not configured.
type MemoryBlacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{entries: map[string]time.Time{}, now: time.Now}
}

func (b *MemoryBlacklist) Add(_ context.Context, token string, until time.Time) error {
	if token == "" || !until.After(b.now()) {
		return nil
	}
	b.mu.Lock()
	b.entries[fingerprint(token)] = until
	b.mu.Unlock()
	return nil
}

func (b *MemoryBlacklist) Contains(_ context.Context, token string) (bool, error) {
	b.mu.RLock()
	until, ok := b.entries[fingerprint(token)]
	b.mu.RUnlock()
	return ok && until.After(b.now()), nil
}

// Prune drops entries whose token has expired and returns how many went.
func (b *MemoryBlacklist) Prune(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for k, until := range b.entries {
		if !until.After(now) {
			delete(b.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (b *MemoryBlacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
