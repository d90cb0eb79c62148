package cache

import (
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := New[string](0)
	defer c.Close()

	c.Set("a", "één", time.Minute)
	v, ok := c.Get("a")
	if !ok || v != "één" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("missing key reported present")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New[int](0)
	defer c.Close()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", 42, time.Minute)
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expired item returned")
	}
	if c.Len() != 0 {
		t.Errorf("expired item not removed, Len = %d", c.Len())
	}
}

func TestCacheCleanup(t *testing.T) {
	c := New[int](0)
	defer c.Close()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.Set("old", 1, time.Second)
	c.Set("new", 2, time.Hour)
	now = now.Add(time.Minute)

	c.cleanup()
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestGenerateKey(t *testing.T) {
	if GenerateKey("nl", "tekst") == GenerateKey("nlt", "ekst") {
		t.Fatal("part boundaries must be part of the key")
	}
	if GenerateKey("a", "b") != GenerateKey("a", "b") {
		t.Fatal("key must be deterministic")
	}
}
