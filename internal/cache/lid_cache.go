// Package cache holds in-memory lookup structures kept hot on the event
// processing path.
package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
	"github.com/daniel-neiva/nexcrm-sub000/internal/observer"
)

// MappingStore is the persistence surface the LID cache loads from and
// writes through to.
type MappingStore interface {
	ListLIDMappings(ctx context.Context, accountID string) ([]model.LIDMapping, error)
	SaveLIDMapping(ctx context.Context, mapping *model.LIDMapping) error
}

// LIDCache maps anonymized WhatsApp LIDs to real phone numbers. The full
// mapping table is loaded on first use and every new mapping is written
// through to storage so restarts start warm.
type LIDCache struct {
	store     MappingStore
	accountID string

	mu      sync.RWMutex
	entries map[string]string
	loaded  bool

	hits   atomic.Int64
	misses atomic.Int64
}

// NewLIDCache creates a LID cache backed by the given store.
func NewLIDCache(store MappingStore, accountID string) *LIDCache {
	return &LIDCache{
		store:     store,
		accountID: accountID,
		entries:   make(map[string]string),
	}
}

// ensureLoaded populates the map from storage exactly once. A failed load
// is retried on the next call rather than latched.
func (c *LIDCache) ensureLoaded(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	mappings, err := c.store.ListLIDMappings(ctx, c.accountID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}
	for _, m := range mappings {
		c.entries[m.LID] = m.PhoneNumber
	}
	c.loaded = true
	observer.SetLIDCacheSize(len(c.entries))
	return nil
}

// Resolve returns the phone number mapped to lid, if known.
func (c *LIDCache) Resolve(ctx context.Context, lid string) (string, bool, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return "", false, err
	}

	c.mu.RLock()
	phone, ok := c.entries[lid]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
		observer.IncLIDCacheCheck(c.accountID, "hit")
	} else {
		c.misses.Add(1)
		observer.IncLIDCacheCheck(c.accountID, "miss")
	}
	return phone, ok, nil
}

// Record stores a lid to phone mapping, writing through to storage. The
// in-memory entry is kept even when the storage write fails so the current
// process can still resolve the LID; the returned error lets the caller log
// the persistence failure.
func (c *LIDCache) Record(ctx context.Context, lid, phoneNumber string) error {
	if lid == "" || phoneNumber == "" {
		return nil
	}
	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	existing, ok := c.entries[lid]
	if ok && existing == phoneNumber {
		c.mu.Unlock()
		return nil
	}
	c.entries[lid] = phoneNumber
	observer.SetLIDCacheSize(len(c.entries))
	c.mu.Unlock()

	return c.store.SaveLIDMapping(ctx, &model.LIDMapping{
		LID:         lid,
		PhoneNumber: phoneNumber,
		AccountID:   c.accountID,
	})
}

// Stats returns hit and miss counts since startup.
func (c *LIDCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
