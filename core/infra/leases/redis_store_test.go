package leases

import (
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRedisAcquireRelease(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	lease, ok, err := store.Acquire(ctx, "controller:mastership", "bridge-a", 2*time.Second)
	if err != nil {
		if skipEval(err) {
			t.Skip("miniredis does not support EVAL")
		}
		t.Fatalf("acquire: %v", err)
	}
	if !ok || lease == nil || lease.Owner != "bridge-a" {
		t.Fatalf("expected lease acquired, ok=%v lease=%v", ok, lease)
	}

	if _, ok, err := store.Acquire(ctx, "controller:mastership", "bridge-b", 2*time.Second); err == nil && ok {
		t.Fatalf("expected contended acquire to fail")
	}

	if ok, err := store.Release(ctx, "controller:mastership", "bridge-b"); err == nil && ok {
		t.Fatalf("expected release by non-owner to report false")
	}

	if ok, err := store.Release(ctx, "controller:mastership", "bridge-a"); err != nil || !ok {
		t.Fatalf("release: ok=%v err=%v", ok, err)
	}

	if _, ok, err := store.Acquire(ctx, "controller:mastership", "bridge-b", 2*time.Second); err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisGet(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	lease, err := store.Get(ctx, "controller:mastership")
	if err != nil {
		t.Fatalf("get free: %v", err)
	}
	if lease != nil {
		t.Fatalf("expected nil lease, got %v", lease)
	}

	if _, _, err := store.Acquire(ctx, "controller:mastership", "bridge-a", 2*time.Second); err != nil {
		if skipEval(err) {
			t.Skip("miniredis does not support EVAL")
		}
		t.Fatalf("acquire: %v", err)
	}
	lease, err = store.Get(ctx, "controller:mastership")
	if err != nil || lease == nil || lease.Owner != "bridge-a" {
		t.Fatalf("get: lease=%v err=%v", lease, err)
	}
}

func skipEval(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "eval") && strings.Contains(msg, "unknown")
}
