package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"ledger-api/internal/cache"
)

// ReplayGuard is a fast-path filter for duplicate webhook deliveries. It is an
// optimization only: the authoritative exactly-once guarantee comes from the
// conditional status=pending transition in the transaction repository, so a
// guard failure (Redis down, TTL expiry) degrades to extra no-op work, never
// to double settlement.
type ReplayGuard struct {
	cache cache.CacheService
	ttl   time.Duration
}

func NewReplayGuard(cacheService cache.CacheService, ttl time.Duration) *ReplayGuard {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &ReplayGuard{
		cache: cacheService,
		ttl:   ttl,
	}
}

// FirstDelivery claims the event key and reports whether this delivery is the
// first one seen. Errors are reported as first=true so the database-level
// guard remains the decider.
func (g *ReplayGuard) FirstDelivery(ctx context.Context, externalRef, status string) (bool, error) {
	key := g.eventKey(externalRef, status)

	acquired, err := g.cache.SetNX(ctx, key, time.Now().Unix(), g.ttl)
	if err != nil {
		return true, fmt.Errorf("replay guard unavailable: %w", err)
	}
	return acquired, nil
}

// Release drops the claim so a re-delivered copy of the event can settle
// after a transient failure. Without it a failed settlement would be
// swallowed as a replay for the full TTL.
func (g *ReplayGuard) Release(ctx context.Context, externalRef, status string) error {
	return g.cache.Delete(ctx, g.eventKey(externalRef, status))
}

func (g *ReplayGuard) eventKey(externalRef, status string) string {
	sum := sha256.Sum256([]byte(externalRef + "|" + status))
	return fmt.Sprintf("webhook:event:%s", hex.EncodeToString(sum[:16]))
}
