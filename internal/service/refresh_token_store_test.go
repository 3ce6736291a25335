package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"group-chat/internal/domain"
)

// fakeRefreshRedis guarda claves en un mapa y anota TTL y deadline de cada Set.
type fakeRefreshRedis struct {
	mu       sync.Mutex
	values   map[string]string
	ttls     map[string]time.Duration
	deadline time.Duration
	err      error
}

func newFakeRefreshRedis() *fakeRefreshRedis {
	return &fakeRefreshRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRefreshRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		f.deadline = time.Until(dl)
	}
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRefreshRedis) GetDel(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	v, ok := f.values[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	delete(f.values, key)
	cmd.SetVal(v)
	return cmd
}

func (f *fakeRefreshRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func TestRedisRefreshTokenStore_TTLAndTimeoutDefaults(t *testing.T) {
	fake := newFakeRefreshRedis()
	store := newRedisRefreshTokenStore(fake, 0)

	if err := store.Store(" j1 ", "u1", 0); err != nil {
		t.Fatalf("store: %v", err)
	}
	if got := fake.ttls[refreshKeyPrefix+"j1"]; got != defaultRefreshTTL {
		t.Fatalf("expected default TTL %v, got %v", defaultRefreshTTL, got)
	}
	if fake.deadline <= 0 || fake.deadline > defaultRefreshStoreWait {
		t.Fatalf("expected deadline within %v, got %v", defaultRefreshStoreWait, fake.deadline)
	}

	store = newRedisRefreshTokenStore(fake, 3*time.Second)
	if err := store.Store("j2", "u1", time.Hour); err != nil {
		t.Fatalf("store: %v", err)
	}
	if got := fake.ttls[refreshKeyPrefix+"j2"]; got != time.Hour {
		t.Fatalf("expected explicit TTL kept, got %v", got)
	}
	if fake.deadline <= defaultRefreshStoreWait || fake.deadline > 3*time.Second {
		t.Fatalf("expected configured timeout, got deadline in %v", fake.deadline)
	}
}

func TestRedisRefreshTokenStore_ConsumeIsSingleUse(t *testing.T) {
	fake := newFakeRefreshRedis()
	store := newRedisRefreshTokenStore(fake, time.Second)
	store.Store("j1", "u1", time.Minute)

	owner, err := store.Consume("j1")
	if err != nil || owner != "u1" {
		t.Fatalf("expected u1, got %q err=%v", owner, err)
	}
	if _, err := store.Consume("j1"); !errors.Is(err, ErrRefreshTokenUnknown) {
		t.Fatalf("expected second consume to fail, got %v", err)
	}
	if _, err := store.Consume("  "); !errors.Is(err, ErrRefreshTokenUnknown) {
		t.Fatalf("expected empty jti unknown, got %v", err)
	}

	store.Store("j2", "u1", time.Minute)
	if err := store.Revoke("j2"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := store.Consume("j2"); !errors.Is(err, ErrRefreshTokenUnknown) {
		t.Fatalf("expected revoked token unknown, got %v", err)
	}
}

func TestRedisRefreshTokenStore_RedisDownIsStoreUnavailable(t *testing.T) {
	fake := newFakeRefreshRedis()
	fake.err = errors.New("dial tcp 10.0.0.5:6379: connection refused")
	store := newRedisRefreshTokenStore(fake, time.Second)

	if err := store.Store("j1", "u1", time.Minute); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on store, got %v", err)
	}
	if _, err := store.Consume("j1"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on consume, got %v", err)
	}
	if err := store.Revoke("j1"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on revoke, got %v", err)
	}
}

func TestAuthService_RefreshThroughRedisStoreRotatesOnce(t *testing.T) {
	fake := newFakeRefreshRedis()
	svc := NewAuthService("secret", time.Minute, time.Hour, newRedisRefreshTokenStore(fake, time.Second))
	pair, err := svc.Issue("u1", "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Refresh(pair.RefreshToken); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("expected ErrTokenInvalid for losers, got %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one rotation, got %d", wins)
	}
	fake.mu.Lock()
	live := len(fake.values)
	fake.mu.Unlock()
	if live != 1 {
		t.Fatalf("expected only the rotated token stored, got %d", live)
	}
}

func TestAuthService_RefreshSurfacesStoreOutage(t *testing.T) {
	fake := newFakeRefreshRedis()
	svc := NewAuthService("secret", time.Minute, time.Hour, newRedisRefreshTokenStore(fake, time.Second))
	pair, err := svc.Issue("u1", "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	fake.err = errors.New("connection reset")
	if _, err := svc.Refresh(pair.RefreshToken); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestAuthService_RefreshRejectsTokenStoredForAnotherUser(t *testing.T) {
	store := NewMemoryRefreshTokenStore()
	svc := NewAuthService("secret", time.Minute, time.Hour, store)
	pair, err := svc.Issue("u1", "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := svc.refreshClaims(pair.RefreshToken)
	if err != nil {
		t.Fatalf("claims: %v", err)
	}
	// mismo jti registrado a nombre de otro usuario.
	store.Store(claims.ID, "u2", time.Minute)
	if _, err := svc.Refresh(pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestMemoryRefreshTokenStore_ExpiredTokenIsUnknown(t *testing.T) {
	store := NewMemoryRefreshTokenStore()
	store.Store("j1", "u1", 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	if _, err := store.Consume("j1"); !errors.Is(err, ErrRefreshTokenUnknown) {
		t.Fatalf("expected expired token unknown, got %v", err)
	}
}
