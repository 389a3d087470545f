package cache

import (
	"testing"
	"time"
)

func TestStoreGetSet(t *testing.T) {
	store := NewStore[string]()
	store.Set("key", "value", time.Minute)
	val, ok := store.Get("key")
	if !ok {
		t.Fatalf("expected key to be present")
	}
	if val != "value" {
		t.Fatalf("unexpected value: %v", val)
	}
}

func TestStoreExpiry(t *testing.T) {
	store := NewStore[string]()
	now := time.Unix(100, 0)
	store.now = func() time.Time { return now }
	store.Set("key", "value", time.Second)
	now = now.Add(2 * time.Second)
	if _, ok := store.Get("key"); ok {
		t.Fatalf("expected key to expire")
	}
}

func TestStoreNoTTLNeverExpires(t *testing.T) {
	store := NewStore[int]()
	now := time.Unix(100, 0)
	store.now = func() time.Time { return now }
	store.Set("key", 1, 0)
	now = now.Add(24 * time.Hour)
	if _, ok := store.Get("key"); !ok {
		t.Fatalf("expected key without ttl to stay")
	}
}

func TestStoreAdd(t *testing.T) {
	store := NewStore[bool]()
	now := time.Unix(100, 0)
	store.now = func() time.Time { return now }
	if !store.Add("evt", true, time.Minute) {
		t.Fatalf("expected first add to win")
	}
	if store.Add("evt", true, time.Minute) {
		t.Fatalf("expected duplicate add to be refused")
	}
	now = now.Add(2 * time.Minute)
	if !store.Add("evt", true, time.Minute) {
		t.Fatalf("expected add after expiry to win")
	}
}

func TestStoreDeleteAndPrune(t *testing.T) {
	store := NewStore[string]()
	now := time.Unix(100, 0)
	store.now = func() time.Time { return now }
	store.Set("key", "value", time.Minute)
	store.Set("short", "value", time.Second)
	store.Delete("key")
	if _, ok := store.Get("key"); ok {
		t.Fatalf("expected key to be deleted")
	}
	now = now.Add(time.Hour)
	store.Prune()
	if store.Len() != 0 {
		t.Fatalf("expected expired entries pruned, got %d", store.Len())
	}
}

func TestNilStore(t *testing.T) {
	var store *Store[string]
	store.Set("key", "value", 0)
	if _, ok := store.Get("key"); ok {
		t.Fatalf("expected nil store to be empty")
	}
	if store.Add("key", "value", 0) {
		t.Fatalf("expected nil store add to fail")
	}
}
