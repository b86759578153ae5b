// SPDX-License-Identifier: EPL-2.0

package secretcache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	values  map[string]string
	getHits int
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]string)}
}

func storeKey(service, user string) string { return service + "/" + user }

func (f *fakeStore) Get(service, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getHits++
	v, ok := f.values[storeKey(service, user)]
	if !ok {
		return "", fmt.Errorf("secret not found: %s/%s", service, user)
	}
	return v, nil
}

func (f *fakeStore) Set(service, user, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[storeKey(service, user)] = value
	return nil
}

func (f *fakeStore) Delete(service, user string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, storeKey(service, user))
	return nil
}

func TestSetThenGetHitsCacheNotStore(t *testing.T) {
	store := newFakeStore()
	c := New(store, time.Hour, time.Hour)
	defer c.Close()

	require.NoError(t, c.Set("db", "alice", "s3cr3t"))
	store.mu.Lock()
	hitsAfterSet := store.getHits
	store.mu.Unlock()
	require.Zero(t, hitsAfterSet)

	v, err := c.Get("db", "alice")
	require.NoError(t, err)
	require.Equal(t, "s3cr3t", v)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Zero(t, store.getHits, "a cached value should not round-trip to the store")
}

func TestGetMissFallsThroughAndPopulatesCache(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Set("db", "bob", "hunter2"))
	c := New(store, time.Hour, time.Hour)
	defer c.Close()

	v, err := c.Get("db", "bob")
	require.NoError(t, err)
	require.Equal(t, "hunter2", v)
	require.Equal(t, 1, c.Len())

	_, err = c.Get("db", "bob")
	require.NoError(t, err)
	store.mu.Lock()
	defer store.mu.Unlock()
	require.Equal(t, 1, store.getHits, "second read should be served from cache")
}

func TestSweepEvictsIdleEntries(t *testing.T) {
	store := newFakeStore()
	c := New(store, 20*time.Millisecond, 10*time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Set("db", "carol", "topsecret"))
	require.Equal(t, 1, c.Len())

	require.Eventually(t, func() bool {
		return c.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestDeleteRemovesFromStoreAndCache(t *testing.T) {
	store := newFakeStore()
	c := New(store, time.Hour, time.Hour)
	defer c.Close()

	require.NoError(t, c.Set("db", "dave", "pw"))
	require.NoError(t, c.Delete("db", "dave"))
	require.Zero(t, c.Len())

	_, err := store.Get("db", "dave")
	require.Error(t, err)
}
