package cache

import (
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemoryStore()

	if err := s.Set(t.Context(), "k", "hello", 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got string
	ok, err := s.Get(t.Context(), "k", &got)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if got != "hello" {
		t.Errorf("expected hello, got %q", got)
	}
}

func TestMemoryStore_GetAbsent(t *testing.T) {
	s := NewMemoryStore()

	var got string
	ok, err := s.Get(t.Context(), "missing", &got)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Error("expected miss for absent key")
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	now := time.Now()
	s := NewMemoryStore().WithClock(func() time.Time { return now })

	if err := s.Set(t.Context(), "k", 42, 10*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got int
	if ok, _ := s.Get(t.Context(), "k", &got); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(11 * time.Second)
	if ok, _ := s.Get(t.Context(), "k", &got); ok {
		t.Error("expected miss after expiry")
	}
}

func TestMemoryStore_PermanentEntryNeverExpires(t *testing.T) {
	now := time.Now()
	s := NewMemoryStore().WithClock(func() time.Time { return now })

	if err := s.Set(t.Context(), "k", "body", 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	now = now.Add(1000 * time.Hour)

	var got string
	if ok, _ := s.Get(t.Context(), "k", &got); !ok {
		t.Error("permanent entry should survive any elapsed time")
	}
}

func TestMemoryStore_TryAcquire(t *testing.T) {
	s := NewMemoryStore()

	ok, err := s.TryAcquire(t.Context(), "lease", "owner-a", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("first acquire should win")
	}

	ok, err = s.TryAcquire(t.Context(), "lease", "owner-b", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if ok {
		t.Error("second acquire should lose while the first is live")
	}

	// The losing attempt must not have overwritten the winner's value.
	var holder string
	if ok, _ := s.Get(t.Context(), "lease", &holder); !ok || holder != "owner-a" {
		t.Errorf("expected owner-a to hold the lease, got %q", holder)
	}
}

func TestMemoryStore_TryAcquireAfterExpiry(t *testing.T) {
	now := time.Now()
	s := NewMemoryStore().WithClock(func() time.Time { return now })

	if ok, _ := s.TryAcquire(t.Context(), "lease", "a", 300*time.Second); !ok {
		t.Fatal("first acquire should win")
	}

	now = now.Add(305 * time.Second)

	ok, err := s.TryAcquire(t.Context(), "lease", "b", 300*time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Error("acquire should win once the previous holder expired")
	}
}

func TestMemoryStore_TryAcquireRejectsZeroTTL(t *testing.T) {
	s := NewMemoryStore()

	if _, err := s.TryAcquire(t.Context(), "lease", "a", 0); err == nil {
		t.Error("expected error for zero ttl")
	}
}

func TestMemoryStore_TryAcquireConcurrent(t *testing.T) {
	s := NewMemoryStore()

	const racers = 32
	var wg sync.WaitGroup
	wins := make(chan int, racers)

	for i := range racers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ok, err := s.TryAcquire(t.Context(), "lease", id, time.Minute)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if ok {
				wins <- id
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []int
	for id := range wins {
		winners = append(winners, id)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(winners))
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()

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

	// Deleting an absent key is not an error.
	if err := s.Delete(t.Context(), "k"); err != nil {
		t.Errorf("delete absent: %v", err)
	}
}

func TestMemoryStore_StructRoundTrip(t *testing.T) {
	type meta struct {
		CreatedAt int64  `msgpack:"created_at"`
		CreatedBy string `msgpack:"created_by"`
	}

	s := NewMemoryStore()
	in := meta{CreatedAt: 1700000000, CreatedBy: "system"}

	if err := s.Set(t.Context(), "meta", in, 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out meta
	if ok, _ := s.Get(t.Context(), "meta", &out); !ok {
		t.Fatal("expected hit")
	}
	if out != in {
		t.Errorf("round trip mismatch: %+v != %+v", out, in)
	}
}
