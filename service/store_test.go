package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DefaultMaskTTL)

	payload := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}
	id, err := s.Put(ctx, payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(id) != 32 {
		t.Fatalf("id %q has length %d", id, len(id))
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %v, want %v", got, payload)
	}
}

func TestMemoryStorePayloadIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DefaultMaskTTL)

	payload := []byte("mask")
	id, err := s.Put(ctx, payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	payload[1] = 'X'

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got[0] = 'X'

	again, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(again) != "mask" {
		t.Fatalf("stored payload = %q, want %q", again, "mask")
	}
}

func TestMemoryStoreUnknownID(t *testing.T) {
	_, err := NewMemoryStore(time.Minute).Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if KindOf(err) != KindNotFound {
		t.Fatalf("kind = %v", KindOf(err))
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(DefaultMaskTTL, WithClock(clock.Now))

	id, _ := s.Put(ctx, []byte("mask"))

	// age == TTL is still readable
	clock.Advance(DefaultMaskTTL)
	if _, err := s.Get(ctx, id); err != nil {
		t.Fatalf("Get at TTL: %v", err)
	}

	clock.Advance(time.Nanosecond)
	if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after TTL err = %v, want ErrNotFound", err)
	}
	if n := s.size(); n != 0 {
		t.Fatalf("expired entry still stored, size = %d", n)
	}
}

func TestMemoryStoreExpiredWithoutEvict(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(time.Minute, WithClock(clock.Now))

	id, _ := s.Put(ctx, []byte("a"))
	clock.Advance(2 * time.Minute)

	if n, _ := s.Len(ctx); n != 0 {
		t.Fatalf("Len = %d, want 0 for expired entry", n)
	}
	if n := s.size(); n != 1 {
		t.Fatalf("size = %d, want 1 before eviction", n)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreEvict(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	evicted := 0
	s := NewMemoryStore(time.Minute, WithClock(clock.Now), WithEvictionHook(func(n int) { evicted += n }))

	for i := 0; i < 3; i++ {
		if _, err := s.Put(ctx, []byte{byte(i)}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	clock.Advance(45 * time.Second)
	fresh, _ := s.Put(ctx, []byte("fresh"))
	clock.Advance(30 * time.Second)

	n, err := s.Evict(ctx)
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if n != 3 || evicted != 3 {
		t.Fatalf("evicted %d (hook %d), want 3", n, evicted)
	}
	if size := s.size(); size != 1 {
		t.Fatalf("size = %d, want 1", size)
	}
	if _, err := s.Get(ctx, fresh); err != nil {
		t.Fatalf("fresh entry lost: %v", err)
	}

	// repeated eviction is a no-op
	for i := 0; i < 3; i++ {
		if n, _ := s.Evict(ctx); n != 0 {
			t.Fatalf("second Evict removed %d", n)
		}
	}
	if size := s.size(); size != 1 {
		t.Fatalf("size changed to %d", size)
	}
}

func TestMemoryStorePutEvictsFirst(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(time.Second, WithClock(clock.Now))

	_, _ = s.Put(ctx, []byte("old"))
	clock.Advance(2 * time.Second)
	_, _ = s.Put(ctx, []byte("new"))

	if size := s.size(); size != 1 {
		t.Fatalf("size = %d, want 1", size)
	}
}

func TestMemoryStoreCustomIDs(t *testing.T) {
	n := 0
	s := NewMemoryStore(time.Minute, WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))
	id, _ := s.Put(context.Background(), []byte("x"))
	if id != "id-1" {
		t.Fatalf("id = %q", id)
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	var wg sync.WaitGroup
	ids := make(chan string, 400)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				payload := []byte(fmt.Sprintf("%d-%d", w, i))
				id, err := s.Put(ctx, payload)
				if err != nil {
					t.Errorf("Put: %v", err)
					return
				}
				got, err := s.Get(ctx, id)
				if err != nil || !bytes.Equal(got, payload) {
					t.Errorf("Get(%s) = %q, %v", id, got, err)
					return
				}
				_, _ = s.Evict(ctx)
				ids <- id
			}
		}(w)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if n, _ := s.Len(ctx); n != 400 {
		t.Fatalf("Len = %d, want 400", n)
	}
}
