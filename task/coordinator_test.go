package task

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/gitbrag/cache"
	"github.com/justapithecus/gitbrag/log"
)

func quietLogger() *log.Logger {
	return log.NewLogger().WithOutput(io.Discard)
}

func newCoordinator(ttl time.Duration) (*Coordinator, *cache.MemoryStore) {
	store := cache.NewMemoryStore()
	return NewCoordinator(store, ttl, quietLogger()), store
}

func lease(subject, period string) Lease {
	return Lease{Subject: subject, Period: period, ParamsHash: "abcd1234", WorkerID: "w1"}
}

func TestID_LowercasesSubject(t *testing.T) {
	for _, subject := range []string{"Alice", "ALICE", "alice"} {
		if got := ID(subject, "1_year", "abcd1234"); got != "alice:1_year:abcd1234" {
			t.Errorf("ID(%q) = %q", subject, got)
		}
	}
}

func TestTryStart_SecondAttemptSameTaskLoses(t *testing.T) {
	c, _ := newCoordinator(time.Minute)
	id := ID("octo", "1_year", "abcd1234")

	ok, err := c.TryStart(t.Context(), id, lease("octo", "1_year"))
	if err != nil || !ok {
		t.Fatalf("first start: ok=%v err=%v", ok, err)
	}

	ok, err = c.TryStart(t.Context(), id, lease("octo", "1_year"))
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if ok {
		t.Error("duplicate task must be rejected")
	}

	active, err := c.IsActive(t.Context(), id)
	if err != nil || !active {
		t.Errorf("expected exactly one active lease, active=%v err=%v", active, err)
	}
}

func TestTryStart_SubjectGateBlocksOtherPeriods(t *testing.T) {
	c, _ := newCoordinator(time.Minute)

	id1 := ID("octo", "1_year", "abcd1234")
	id2 := ID("octo", "2_years", "abcd1234")

	if ok, _ := c.TryStart(t.Context(), id1, lease("octo", "1_year")); !ok {
		t.Fatal("first start should win")
	}

	ok, err := c.TryStart(t.Context(), id2, lease("octo", "2_years"))
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if ok {
		t.Error("same subject, different period must be gated while the first runs")
	}

	// After completion, the other period may start.
	c.Complete(t.Context(), id1, "octo")
	if ok, _ := c.TryStart(t.Context(), id2, lease("octo", "2_years")); !ok {
		t.Error("second period should start after the first completes")
	}
}

func TestTryStart_DistinctSubjectsNeverBlock(t *testing.T) {
	c, _ := newCoordinator(time.Minute)

	if ok, _ := c.TryStart(t.Context(), ID("alice", "1_year", "x"), lease("alice", "1_year")); !ok {
		t.Fatal("alice should start")
	}
	if ok, _ := c.TryStart(t.Context(), ID("bob", "1_year", "x"), lease("bob", "1_year")); !ok {
		t.Error("bob must not be blocked by alice's generation")
	}
}

func TestTryStart_CaseVariantsShareGate(t *testing.T) {
	c, _ := newCoordinator(time.Minute)

	if ok, _ := c.TryStart(t.Context(), ID("Octo", "1_year", "x"), lease("Octo", "1_year")); !ok {
		t.Fatal("first start should win")
	}
	if ok, _ := c.TryStart(t.Context(), ID("OCTO", "2_years", "x"), lease("OCTO", "2_years")); ok {
		t.Error("case variants of a subject must share the gate")
	}
}

func TestTryStart_Concurrent(t *testing.T) {
	c, _ := newCoordinator(time.Minute)
	id := ID("octo", "1_year", "abcd1234")

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)

	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.TryStart(t.Context(), id, lease("octo", "1_year"))
			if err != nil {
				t.Errorf("start: %v", err)
				return
			}
			if ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	if n := len(wins); n != 1 {
		t.Fatalf("expected exactly one winner, got %d", n)
	}
}

func TestComplete_ReleasesLeaseAndGate(t *testing.T) {
	c, _ := newCoordinator(time.Minute)
	id := ID("octo", "1_year", "abcd1234")

	if ok, _ := c.TryStart(t.Context(), id, lease("octo", "1_year")); !ok {
		t.Fatal("start should win")
	}
	c.Complete(t.Context(), id, "octo")

	if active, _ := c.IsActive(t.Context(), id); active {
		t.Error("lease must be gone after Complete")
	}
	if ok, _ := c.CanStartForSubject(t.Context(), "octo"); !ok {
		t.Error("subject gate must reopen after Complete")
	}
	if ok, _ := c.TryStart(t.Context(), id, lease("octo", "1_year")); !ok {
		t.Error("a new generation should start after Complete")
	}
}

func TestTryStart_ExpiredLeaseIsReacquirable(t *testing.T) {
	now := time.Now()
	store := cache.NewMemoryStore().WithClock(func() time.Time { return now })
	c := NewCoordinator(store, 300*time.Second, quietLogger())
	id := ID("octo", "1_year", "abcd1234")

	if ok, _ := c.TryStart(t.Context(), id, lease("octo", "1_year")); !ok {
		t.Fatal("start should win")
	}

	// The generation hangs past its lease TTL without completing.
	now = now.Add(305 * time.Second)

	ok, err := c.TryStart(t.Context(), id, lease("octo", "1_year"))
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !ok {
		t.Error("an expired lease must be reacquirable")
	}
}

func TestActiveTasks_TracksMembership(t *testing.T) {
	c, _ := newCoordinator(time.Minute)
	id := ID("octo", "1_year", "abcd1234")

	if active, _ := c.ActiveTasks(t.Context(), "octo"); len(active) != 0 {
		t.Fatalf("expected empty set, got %v", active)
	}

	if ok, _ := c.TryStart(t.Context(), id, lease("octo", "1_year")); !ok {
		t.Fatal("start should win")
	}

	active, err := c.ActiveTasks(t.Context(), "octo")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 || active[0] != id {
		t.Errorf("expected [%s], got %v", id, active)
	}
}
