package cache

import (
	"testing"
	"time"
)

func TestLRUCache_Eviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a is now most recent
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
}

func TestLRUCache_TTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("other", "v")
	now = now.Add(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry should still be live")
	}

	now = now.Add(31 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should have expired")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("expected 1 expired entry swept, got %d", n)
	}
	if c.Size() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Size())
	}
}

func TestLRUCache_DeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("user:1:2024-05", 1)
	c.Set("user:1:2024-04", 2)
	c.Set("user:12:2024-05", 3)

	if n := c.DeletePrefix("user:1:"); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if _, ok := c.Get("user:12:2024-05"); !ok {
		t.Fatal("other user's entry must survive")
	}
}

func TestManager_StopIsIdempotent(t *testing.T) {
	m := NewManager(nil)
	m.Register(NewLRUCache[int](1, time.Millisecond))
	m.StartCleanup(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestLRUCache_Stats(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	got := c.Stats()
	want := Stats{Entries: 1, Hits: 2, Misses: 1}
	if got != want {
		t.Fatalf("stats = %+v, want %+v", got, want)
	}
}
