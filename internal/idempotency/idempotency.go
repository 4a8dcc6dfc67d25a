// Package idempotency caches the encoded response for a (tenant, message_id)
// pair so a retried request returns byte-identical output instead of
// re-executing a handler, and periodically sweeps expired entries.
package idempotency

import (
	"time"

	"github.com/maypok86/otter"
	"github.com/robfig/cron/v3"

	"github.com/agilecore/boardsyncd/internal/logging"
)

type entryKey struct {
	tenantID  string
	messageID string
}

// Store is a process-wide cache of previously produced responses, keyed by
// tenant id and message id together so one tenant can never replay another's
// cached entry.
type Store struct {
	cache otter.Cache[entryKey, []byte]
	ttl   time.Duration
	cron  *cron.Cron
}

// NewStore builds a Store holding up to maxEntries responses, each expiring
// ttl after insertion. A background cron job logs occupancy on a fixed
// cadence; otter itself evicts expired entries lazily on access and via its
// own janitor, so the cron job here is observability, not correctness.
func NewStore(maxEntries int, ttl time.Duration) (*Store, error) {
	cache, err := otter.MustBuilder[entryKey, []byte](maxEntries).
		Cost(func(_ entryKey, v []byte) uint32 { return uint32(len(v)) + 1 }).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, err
	}

	c := cron.New()
	s := &Store{cache: cache, ttl: ttl, cron: c}

	log := logging.Named("idempotency")
	if _, err := c.AddFunc("@every 1m", func() {
		log.Debugw("idempotency cache occupancy", "entries", s.cache.Size())
	}); err != nil {
		log.Warnw("failed to schedule occupancy log", "error", err)
	}
	c.Start()

	return s, nil
}

// Get returns the previously cached response bytes for (tenantID, messageID),
// if any and not yet expired.
func (s *Store) Get(tenantID, messageID string) ([]byte, bool) {
	return s.cache.Get(entryKey{tenantID: tenantID, messageID: messageID})
}

// Put records the encoded response for (tenantID, messageID). Callers must
// only call this after the handler's transaction has committed — caching a
// response for a write that never landed would let a retry believe it
// succeeded when it didn't.
func (s *Store) Put(tenantID, messageID string, response []byte) {
	s.cache.Set(entryKey{tenantID: tenantID, messageID: messageID}, response)
}

// Size reports the number of cached entries (tests, diagnostics).
func (s *Store) Size() int {
	return s.cache.Size()
}

// Close stops the cron scheduler and releases the underlying cache.
func (s *Store) Close() {
	s.cron.Stop()
	s.cache.Close()
}
