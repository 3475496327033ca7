package cache_test

import (
	"testing"
	"time"

	"github.com/bellcorp/eventboard/internal/cache"
)

func TestSetGet(t *testing.T) {
	c := cache.New(time.Minute)

	c.Set("k", 42)

	v, ok := c.Get("k")
	if !ok {
		t.Fatal("expected a hit")
	}
	if v.(int) != 42 {
		t.Fatalf("got %v, want 42", v)
	}
}

func TestGet_Miss(t *testing.T) {
	c := cache.New(time.Minute)

	if _, ok := c.Get("nope"); ok {
		t.Fatal("expected a miss")
	}
}

func TestGet_Expired(t *testing.T) {
	c := cache.New(5 * time.Millisecond)

	c.Set("k", "v")
	time.Sleep(10 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected the entry to expire")
	}
}

func TestDelete(t *testing.T) {
	c := cache.New(time.Minute)

	c.Set("k", "v")
	c.Delete("k")

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected the entry to be gone")
	}
}

func TestClear(t *testing.T) {
	c := cache.New(time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a to be cleared")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be cleared")
	}
}
