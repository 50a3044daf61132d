package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	mu sync.Mutex
	at time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.at
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.at = f.at.Add(d)
}

func newTestCache(ttl time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{at: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := New(ttl)
	c.now = clock.Now
	return c, clock
}

func TestCache_HitSkipsLoader(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	var calls atomic.Int32
	load := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "value", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.Get(context.Background(), Key("cfg-1", "issues", "project = X"), load)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if v != "value" {
			t.Fatalf("Got %v, want value", v)
		}
	}

	if calls.Load() != 1 {
		t.Errorf("Loader ran %d times, want 1", calls.Load())
	}
}

func TestCache_ExpiryIsLazy(t *testing.T) {
	c, clock := newTestCache(time.Minute)

	var calls atomic.Int32
	load := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return calls.Load(), nil
	}

	key := Key("cfg-1", "metric", "throughput")
	if _, err := c.Get(context.Background(), key, load); err != nil {
		t.Fatal(err)
	}

	clock.Advance(59 * time.Second)
	if v, _ := c.Get(context.Background(), key, load); v != int32(1) {
		t.Errorf("Entry expired early: got %v", v)
	}

	clock.Advance(2 * time.Second)
	if v, _ := c.Get(context.Background(), key, load); v != int32(2) {
		t.Errorf("Expected reload after TTL, got %v", v)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	var calls atomic.Int32
	boom := errors.New("upstream down")
	load := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return "recovered", nil
	}

	key := Key("cfg-1", "issues", "project = X")
	if _, err := c.Get(context.Background(), key, load); !errors.Is(err, boom) {
		t.Fatalf("Expected the loader error, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatal("A failed load must not leave an entry behind")
	}

	v, err := c.Get(context.Background(), key, load)
	if err != nil || v != "recovered" {
		t.Errorf("Expected retry to succeed, got (%v, %v)", v, err)
	}
}

func TestCache_ConcurrentCallersCoalesce(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]any, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), Key("cfg-1", "issues", "q"), load)
			if err != nil {
				t.Errorf("Get failed: %v", err)
			}
			results[i] = v
		}(i)
	}

	// Give the goroutines a moment to pile onto the flight, then release.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("Loader ran %d times for %d concurrent callers, want 1", calls.Load(), n)
	}
	for i, v := range results {
		if v != "shared" {
			t.Errorf("Caller %d got %v, want shared", i, v)
		}
	}
}

func TestCache_InvalidateNamespace(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	c.Put(Key("cfg-1", "metric", "lead_time"), 1)
	c.Put(Key("cfg-1", "metric", "throughput"), 2)
	c.Put(Key("cfg-2", "metric", "lead_time"), 3)

	if removed := c.InvalidateNamespace("cfg-1"); removed != 2 {
		t.Errorf("Removed %d entries, want 2", removed)
	}

	// The other namespace survives.
	v, err := c.Get(context.Background(), Key("cfg-2", "metric", "lead_time"), func(ctx context.Context) (any, error) {
		t.Error("Loader must not run for a surviving entry")
		return nil, nil
	})
	if err != nil || v != 3 {
		t.Errorf("cfg-2 entry lost: (%v, %v)", v, err)
	}
}

func TestCache_InvalidationDuringFlightPreventsStaleStore(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "stale", nil
	}

	key := Key("cfg-1", "issues", "q")
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.Get(context.Background(), key, load); err != nil {
			t.Errorf("Get failed: %v", err)
		}
	}()

	<-started
	c.InvalidateNamespace("cfg-1")
	close(release)
	<-done

	// The in-flight caller still got its value, but nothing was stored.
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0 (load predates the invalidation)", c.Len())
	}
}

func TestCache_LoaderOutlivesCallerCancellation(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	canceled := make(chan error, 1)
	load := func(ctx context.Context) (any, error) {
		select {
		case <-ctx.Done():
			canceled <- ctx.Err()
		default:
			canceled <- nil
		}
		return "value", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Get(ctx, Key("cfg-1", "issues", "q"), load); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if err := <-canceled; err != nil {
		t.Errorf("Loader context carried the caller's cancellation: %v", err)
	}
}

func TestKey(t *testing.T) {
	if got := Key("cfg-1", "metric", "lead_time", "project = X"); got != "cfg-1:metric:lead_time:project = X" {
		t.Errorf("Key = %q", got)
	}
}
