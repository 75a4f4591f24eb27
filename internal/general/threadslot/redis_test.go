package threadslot

import (
	"context"
	"errors"
	"testing"
	"time"

	"guardline/internal/ports"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestSlot(t *testing.T) (*RedisSlot, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	slot := NewRedisSlotWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = slot.Close() })
	return slot, mr
}

func TestRedisSlotSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	slot, _ := newTestSlot(t)

	blob := []byte(`{"messages":[{"id":"m1"}]}`)
	if err := slot.Save(ctx, "bkg-1", blob); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := slot.Load(ctx, "bkg-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != string(blob) {
		t.Fatalf("blob = %q, want %q", got, blob)
	}
}

func TestRedisSlotLoadEmpty(t *testing.T) {
	ctx := context.Background()
	slot, _ := newTestSlot(t)

	_, err := slot.Load(ctx, "bkg-missing")
	if !errors.Is(err, ports.ErrSlotEmpty) {
		t.Fatalf("err = %v, want ErrSlotEmpty", err)
	}
}

func TestRedisSlotKeysAreIsolatedPerBooking(t *testing.T) {
	ctx := context.Background()
	slot, mr := newTestSlot(t)

	if err := slot.Save(ctx, "bkg-1", []byte("one")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := slot.Save(ctx, "bkg-2", []byte("two")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if !mr.Exists("thread:bkg-1") || !mr.Exists("thread:bkg-2") {
		t.Fatalf("expected prefixed keys, have %v", mr.Keys())
	}

	got, err := slot.Load(ctx, "bkg-2")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "two" {
		t.Fatalf("blob = %q, want %q", got, "two")
	}
}

func TestRedisSlotSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	slot, _ := newTestSlot(t)

	if err := slot.Save(ctx, "bkg-1", []byte("old")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := slot.Save(ctx, "bkg-1", []byte("new")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := slot.Load(ctx, "bkg-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "new" {
		t.Fatalf("blob = %q, want %q", got, "new")
	}
}

func TestRedisSlotSnapshotsExpire(t *testing.T) {
	ctx := context.Background()
	slot, mr := newTestSlot(t)

	if err := slot.Save(ctx, "bkg-1", []byte("blob")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL("thread:bkg-1"); ttl <= 0 {
		t.Fatalf("ttl = %v, want > 0", ttl)
	}

	mr.FastForward(slotTTL + time.Hour)
	if _, err := slot.Load(ctx, "bkg-1"); !errors.Is(err, ports.ErrSlotEmpty) {
		t.Fatalf("err = %v, want ErrSlotEmpty after expiry", err)
	}
}

func TestMemorySlotRoundTripAndEviction(t *testing.T) {
	ctx := context.Background()
	slot := NewMemorySlot(2)

	if err := slot.Save(ctx, "bkg-1", []byte("one")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := slot.Save(ctx, "bkg-2", []byte("two")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := slot.Save(ctx, "bkg-3", []byte("three")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// bound is 2: the oldest entry is gone, the newest two remain
	if _, err := slot.Load(ctx, "bkg-1"); !errors.Is(err, ports.ErrSlotEmpty) {
		t.Fatalf("err = %v, want ErrSlotEmpty for evicted slot", err)
	}
	got, err := slot.Load(ctx, "bkg-3")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "three" {
		t.Fatalf("blob = %q, want %q", got, "three")
	}
}

func TestMemorySlotCopiesBlobs(t *testing.T) {
	ctx := context.Background()
	slot := NewMemorySlot(8)

	blob := []byte("immutable")
	if err := slot.Save(ctx, "bkg-1", blob); err != nil {
		t.Fatalf("Save: %v", err)
	}
	blob[0] = 'X'

	got, err := slot.Load(ctx, "bkg-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "immutable" {
		t.Fatalf("stored blob aliased the caller's slice: %q", got)
	}
}
