package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codeshop/codeshop-backend/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	const scope = "login:ip:10.0.0.1"

	for i, want := range []bool{true, true, false} {
		allowed, count, err := client.FixedWindowAllow(ctx, scope, 2, time.Second)
		if err != nil {
			t.Fatalf("hit %d: unexpected error: %v", i+1, err)
		}
		if allowed != want || count != int64(i+1) {
			t.Fatalf("hit %d: got allowed=%v count=%d", i+1, allowed, count)
		}
	}

	if len(mock.windows) != 1 {
		t.Fatalf("window should start once, got %+v", mock.windows)
	}
	if mock.windows[0].key != "cs:rate_limit:login:ip:10.0.0.1" || mock.windows[0].ttl != time.Second {
		t.Fatalf("unexpected window %+v", mock.windows[0])
	}
}

func TestFixedWindowAllowPropagatesErrors(t *testing.T) {
	mock := newMockCmdable()
	mock.evalErr = errors.New("connection reset")
	client := &Client{store: mock}

	if _, _, err := client.FixedWindowAllow(context.Background(), "x", 1, time.Second); err == nil {
		t.Fatalf("expected script error")
	}
}

func TestAvailabilityHash(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.AvailabilityKey("p-1")
	if key != "cs:availability:p-1" {
		t.Fatalf("unexpected availability key %s", key)
	}
	if err := client.HSetWithTTL(ctx, key, "v-1", `{"stock":3}`, time.Minute); err != nil {
		t.Fatalf("hset: %v", err)
	}
	got, err := client.HGet(ctx, key, "v-1")
	if err != nil {
		t.Fatalf("hget: %v", err)
	}
	if got != `{"stock":3}` {
		t.Fatalf("unexpected cached value %q", got)
	}
	if len(mock.expires) != 1 || mock.expires[0].ttl != time.Minute {
		t.Fatalf("expected ttl refresh on hash, got %+v", mock.expires)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := client.HGet(ctx, key, "v-1"); err != redis.Nil {
		t.Fatalf("expected redis.Nil after invalidation, got %v", err)
	}
}

func TestLockLifecycle(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("stock-reconcile")

	ok, err := client.AcquireLock(ctx, key, "worker-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock acquired, ok=%v err=%v", ok, err)
	}
	ok, err = client.AcquireLock(ctx, key, "worker-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("second acquire should fail, ok=%v err=%v", ok, err)
	}

	released, err := client.ReleaseLock(ctx, key, "worker-b")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released {
		t.Fatalf("non-owner must not release the lock")
	}

	released, err = client.ReleaseLock(ctx, key, "worker-a")
	if err != nil || !released {
		t.Fatalf("owner release failed, released=%v err=%v", released, err)
	}
	if _, exists := mock.data[key]; exists {
		t.Fatalf("lock key left behind")
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "cs:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.AccessSessionKey("jti"); got != "cs:session:access:jti" {
		t.Fatalf("unexpected session key %s", got)
	}
	if got := client.LockKey(" reconcile "); got != "cs:lock:reconcile" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := buildKey("a", "", "b"); got != "cs:a:b" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7})
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 7 {
		t.Fatalf("unexpected options db=%d pool=%d", opts.DB, opts.PoolSize)
	}

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 4, DialTimeout: 3 * time.Second})
	if err != nil {
		t.Fatalf("address config: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 4 || opts.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected errNotInitialized, got %v", err)
	}
	var nilClient *Client
	if _, err := nilClient.Get(context.Background(), "k"); !errors.Is(err, errNotInitialized) {
		t.Fatalf("nil client should report errNotInitialized, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on nil raw client should be a no-op, got %v", err)
	}
}

type mockCmdable struct {
	data     map[string]string
	hashes   map[string]map[string]string
	counters map[string]int64
	expires  []ttlCall
	windows  []ttlCall
	evalErr  error
}

type ttlCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:     make(map[string]string),
		hashes:   make(map[string]map[string]string),
		counters: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	m.expires = append(m.expires, ttlCall{key: key, ttl: ttl})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
		delete(m.hashes, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) HGet(_ context.Context, key, field string) *redis.StringCmd {
	if v, ok := m.hashes[key][field]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (m *mockCmdable) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[fmt.Sprint(values[i])] = fmt.Sprint(values[i+1])
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

// EvalSha emulates the two scripts the client loads, dispatching on hash.
func (m *mockCmdable) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	if m.evalErr != nil {
		return redis.NewCmdResult(nil, m.evalErr)
	}
	switch sha {
	case fixedWindowScript.Hash():
		m.counters[keys[0]]++
		n := m.counters[keys[0]]
		if n == 1 {
			m.windows = append(m.windows, ttlCall{key: keys[0], ttl: time.Duration(args[0].(int64)) * time.Millisecond})
		}
		return redis.NewCmdResult(n, nil)
	case releaseLockScript.Hash():
		if m.data[keys[0]] == fmt.Sprint(args[0]) {
			delete(m.data, keys[0])
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("NOSCRIPT unknown script %s", sha))
}

func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return redis.NewCmdResult(nil, errors.New("unexpected EVAL"))
}

func (m *mockCmdable) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return m.Eval(ctx, script, keys, args...)
}

func (m *mockCmdable) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *mockCmdable) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (m *mockCmdable) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}
