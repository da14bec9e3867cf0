package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(RedisConfig{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestNewRedisStore_RequiresURL(t *testing.T) {
	if _, err := NewRedisStore(RedisConfig{}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := NewRedisStore(RedisConfig{URL: "://bad"}); err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestRedisStore_SetGet(t *testing.T) {
	s, _ := newRedisStore(t)

	if err := s.Set(t.Context(), "k", "hello", 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got string
	ok, err := s.Get(t.Context(), "k", &got)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || got != "hello" {
		t.Errorf("expected hit with hello, got ok=%v value=%q", ok, got)
	}
}

func TestRedisStore_GetAbsent(t *testing.T) {
	s, _ := newRedisStore(t)

	var got string
	ok, err := s.Get(t.Context(), "missing", &got)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Error("expected miss for absent key")
	}
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	s, mr := newRedisStore(t)

	if err := s.Set(t.Context(), "k", 42, 10*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	mr.FastForward(11 * time.Second)

	var got int
	if ok, _ := s.Get(t.Context(), "k", &got); ok {
		t.Error("expected miss after TTL expiry")
	}
}

func TestRedisStore_TryAcquire(t *testing.T) {
	s, _ := newRedisStore(t)

	ok, err := s.TryAcquire(t.Context(), "lease", "a", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("first acquire should win")
	}

	ok, err = s.TryAcquire(t.Context(), "lease", "b", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if ok {
		t.Error("second acquire should lose while the first is live")
	}
}

func TestRedisStore_TryAcquireAfterExpiry(t *testing.T) {
	s, mr := newRedisStore(t)

	if ok, _ := s.TryAcquire(t.Context(), "lease", "a", 300*time.Second); !ok {
		t.Fatal("first acquire should win")
	}

	mr.FastForward(305 * time.Second)

	ok, err := s.TryAcquire(t.Context(), "lease", "b", 300*time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Error("acquire should win once the previous lease expired")
	}
}

func TestRedisStore_Delete(t *testing.T) {
	s, _ := newRedisStore(t)

	if err := s.Set(t.Context(), "k", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Delete(t.Context(), "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var got string
	if ok, _ := s.Get(t.Context(), "k", &got); ok {
		t.Error("expected miss after delete")
	}
}

func TestRedisStore_BackendDown(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(RedisConfig{URL: "redis://" + mr.Addr(), Timeout: time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = s.Close() }()

	mr.Close()

	var got string
	if _, err := s.Get(t.Context(), "k", &got); err == nil {
		t.Error("expected error when the backend is unreachable")
	}
}
