package cron

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLockStore struct {
	holder  map[string]string
	lastTTL time.Duration
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{holder: map[string]string{}}
}

func (f *fakeLockStore) LockKey(name string) string { return "lock:" + name }

func (f *fakeLockStore) AcquireLock(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if _, held := f.holder[key]; held {
		return false, nil
	}
	f.holder[key] = owner
	f.lastTTL = ttl
	return true, nil
}

func (f *fakeLockStore) ReleaseLock(_ context.Context, key, owner string) (bool, error) {
	if f.holder[key] != owner {
		return false, nil
	}
	delete(f.holder, key)
	return true, nil
}

func TestRedisLockExcludesSecondReplica(t *testing.T) {
	store := newFakeLockStore()
	first, err := NewRedisLock(store, "cron", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "cron", time.Minute)
	require.NoError(t, err)

	ctx := context.Background()
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, defaultLockTTL, store.lastTTL)
	assert.True(t, strings.Contains(store.holder["lock:cron"], ":"))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.holder, "lock:cron", "non-owner release must not free the lock")

	require.NoError(t, first.Release(ctx))
	assert.NotContains(t, store.holder, "lock:cron")

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "cron", time.Minute)
	assert.Error(t, err)
	_, err = NewRedisLock(newFakeLockStore(), "", time.Minute)
	assert.Error(t, err)
}
