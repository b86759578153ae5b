// SPDX-License-Identifier: EPL-2.0

// Package secretcache implements the write-through cache described in
// spec.md §5 ("Secret cache"): reads check cache first, writes go to the
// backing store first and then the cache, and a background sweep evicts
// entries idle past a TTL.
package secretcache

import (
	"sync"
	"time"
)

// SecretStore is the minimal backing store a Cache writes through to. The
// real OS keychain implementation is out of scope here; tests use an
// in-memory fake.
type SecretStore interface {
	Get(service, user string) (string, error)
	Set(service, user, value string) error
	Delete(service, user string) error
}

type key struct {
	service string
	user    string
}

type entry struct {
	value      string
	lastAccess time.Time
}

// Cache is a write-through cache in front of a SecretStore with idle-TTL
// eviction. Cache and store operations are serialized under a single
// RWMutex, per spec.md §5.
type Cache struct {
	store SecretStore

	idleTTL      time.Duration
	sweepEvery   time.Duration
	mu           sync.RWMutex
	entries      map[key]*entry
	stopSweep    chan struct{}
	sweepStopped chan struct{}
}

// New creates a Cache in front of store, evicting entries idle longer than
// idleTTL, and starts a background sweep goroutine that runs every
// sweepEvery.
func New(store SecretStore, idleTTL, sweepEvery time.Duration) *Cache {
	c := &Cache{
		store:        store,
		idleTTL:      idleTTL,
		sweepEvery:   sweepEvery,
		entries:      make(map[key]*entry),
		stopSweep:    make(chan struct{}),
		sweepStopped: make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Close stops the background sweep goroutine. Safe to call once.
func (c *Cache) Close() {
	close(c.stopSweep)
	<-c.sweepStopped
}

func (c *Cache) sweepLoop() {
	defer close(c.sweepStopped)
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	cutoff := time.Now().Add(-c.idleTTL)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.lastAccess.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}

// Get returns service/user's secret, checking the cache first and falling
// through to the backing store on a miss. A store hit is cached for
// subsequent reads.
func (c *Cache) Get(service, user string) (string, error) {
	k := key{service: service, user: user}

	c.mu.RLock()
	if e, ok := c.entries[k]; ok {
		c.mu.RUnlock()
		c.mu.Lock()
		e.lastAccess = time.Now()
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.RUnlock()

	value, err := c.store.Get(service, user)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[k] = &entry{value: value, lastAccess: time.Now()}
	c.mu.Unlock()
	return value, nil
}

// Set writes value to the backing store first, then populates the cache.
func (c *Cache) Set(service, user, value string) error {
	if err := c.store.Set(service, user, value); err != nil {
		return err
	}
	k := key{service: service, user: user}
	c.mu.Lock()
	c.entries[k] = &entry{value: value, lastAccess: time.Now()}
	c.mu.Unlock()
	return nil
}

// Delete removes service/user from the backing store and the cache.
func (c *Cache) Delete(service, user string) error {
	if err := c.store.Delete(service, user); err != nil {
		return err
	}
	k := key{service: service, user: user}
	c.mu.Lock()
	delete(c.entries, k)
	c.mu.Unlock()
	return nil
}

// Len reports the number of cached entries, for tests.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
