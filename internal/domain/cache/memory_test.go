package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	defer store.Close()

	if err := store.Put(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	payload, found, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !found || string(payload) != "v" {
		t.Fatalf("unexpected result: found=%v payload=%q", found, payload)
	}
}

func TestMemoryStoreLazyExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	store := NewMemoryWithClock(clock)
	defer store.Close()

	if err := store.Put(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	// Visible within [insertion, insertion+ttl).
	now = now.Add(59 * time.Second)
	if _, found, _ := store.Get(ctx, "k"); !found {
		t.Fatal("entry should still be visible before ttl elapses")
	}

	// Absent at insertion+ttl.
	now = now.Add(time.Second)
	if _, found, _ := store.Get(ctx, "k"); found {
		t.Fatal("entry should be absent once ttl has elapsed")
	}
}

func TestMemoryStoreMissNeverErrors(t *testing.T) {
	store := NewMemory()
	defer store.Close()

	payload, found, err := store.Get(context.Background(), "absent")
	if err != nil || found || payload != nil {
		t.Fatalf("miss should be (nil,false,nil), got (%v,%v,%v)", payload, found, err)
	}
}

func TestMemoryStoreCopiesPayload(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	defer store.Close()

	payload := []byte("original")
	if err := store.Put(ctx, "k", payload, time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	payload[0] = 'X'

	got, _, _ := store.Get(ctx, "k")
	if string(got) != "original" {
		t.Fatalf("stored payload was aliased: %q", got)
	}
}

func TestMemoryStoreLastWriteWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	defer store.Close()

	_ = store.Put(ctx, "k", []byte("first"), time.Minute)
	_ = store.Put(ctx, "k", []byte("second"), time.Minute)

	got, _, _ := store.Get(ctx, "k")
	if string(got) != "second" {
		t.Fatalf("expected last write to win, got %q", got)
	}
}
