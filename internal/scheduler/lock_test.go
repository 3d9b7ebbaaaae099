package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	l := NewMemoryLocker()
	l.now = func() time.Time { return now }

	if ok, _ := l.TryLock(ctx, "tick", time.Minute); !ok {
		t.Fatal("first lock should succeed")
	}
	if ok, _ := l.TryLock(ctx, "tick", time.Minute); ok {
		t.Fatal("second lock should fail while held")
	}
	if ok, _ := l.TryLock(ctx, "other", time.Minute); !ok {
		t.Error("distinct keys should not contend")
	}

	now = now.Add(2 * time.Minute)
	if ok, _ := l.TryLock(ctx, "tick", time.Minute); !ok {
		t.Error("expired lock should be reacquirable")
	}

	l.Unlock(ctx, "tick")
	if ok, _ := l.TryLock(ctx, "tick", time.Minute); !ok {
		t.Error("unlocked key should be reacquirable")
	}
}

type fakeRedis struct {
	keys   map[string]bool
	ttls   map[string]time.Duration
	setErr error
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, _ any, ttl time.Duration) *redis.BoolCmd {
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if f.keys[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = true
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if f.keys[k] {
			delete(f.keys, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{keys: map[string]bool{}, ttls: map[string]time.Duration{}}
	l := NewRedisLocker(fake, "")

	if ok, err := l.TryLock(ctx, "tick", 30*time.Second); err != nil || !ok {
		t.Fatalf("lock: ok=%v err=%v", ok, err)
	}
	if !fake.keys["chorequest:lock:tick"] {
		t.Errorf("keys = %v, want prefixed key", fake.keys)
	}
	if fake.ttls["chorequest:lock:tick"] != 30*time.Second {
		t.Errorf("ttl = %v", fake.ttls["chorequest:lock:tick"])
	}
	if ok, _ := l.TryLock(ctx, "tick", 30*time.Second); ok {
		t.Error("second lock should fail while held")
	}
	if err := l.Unlock(ctx, "tick"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if ok, _ := l.TryLock(ctx, "tick", 30*time.Second); !ok {
		t.Error("lock after unlock should succeed")
	}
}

func TestRedisLockerError(t *testing.T) {
	down := errors.New("connection refused")
	l := NewRedisLocker(&fakeRedis{setErr: down}, "test")
	ok, err := l.TryLock(context.Background(), "tick", time.Second)
	if ok || !errors.Is(err, down) {
		t.Errorf("ok=%v err=%v, want wrapped connection error", ok, err)
	}
}
