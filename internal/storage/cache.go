package storage

import (
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/user/replacementbot/internal/schedule"
)

const snapshotKey = "snapshot"

// SnapshotLoader is the read side of a snapshot store.
type SnapshotLoader interface {
	Load() (*schedule.Snapshot, error)
}

// SnapshotCache serves interactive reads from memory so they never touch the
// file while the poll loop is busy. Save invalidates it.
type SnapshotCache struct {
	store *SnapshotStore
	cache *cache.Cache
	ttl   time.Duration
}

// NewSnapshotCache wraps a store with a read cache of the given lifetime.
func NewSnapshotCache(store *SnapshotStore, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		store: store,
		cache: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// Load returns the cached snapshot, reading the file on a miss.
func (c *SnapshotCache) Load() (*schedule.Snapshot, error) {
	if v, ok := c.cache.Get(snapshotKey); ok {
		return v.(*schedule.Snapshot), nil
	}
	snap, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	if snap != nil {
		c.cache.Set(snapshotKey, snap, c.ttl)
	}
	return snap, nil
}

// Save persists the snapshot and drops the cached copy.
func (c *SnapshotCache) Save(snap *schedule.Snapshot) error {
	defer c.cache.Delete(snapshotKey)
	return c.store.Save(snap)
}

// Invalidate drops the cached copy.
func (c *SnapshotCache) Invalidate() {
	c.cache.Delete(snapshotKey)
}
