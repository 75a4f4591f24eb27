package thread

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"guardline/internal/domain/message"
	"guardline/internal/general/threadslot"
)

func msgAt(id, body string, at time.Time) *message.Message {
	return &message.Message{
		ID:             id,
		BookingID:      "bkg-1",
		SenderType:     message.SenderClient,
		SenderID:       "client-1",
		Body:           body,
		Kind:           message.KindText,
		CreatedAt:      at,
		DeliveryStatus: message.DeliverySent,
	}
}

func ids(msgs []*message.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func assertOrder(t *testing.T, cache *Cache, want ...string) {
	t.Helper()
	got := ids(cache.Snapshot())
	if len(got) != len(want) {
		t.Fatalf("thread has %d messages %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v, want %v", i, got, want)
		}
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cache := NewCache("bkg-1", nil, nil)
	m := msgAt("m1", "hello", time.Now().UTC())

	if !cache.Apply(ctx, m) {
		t.Fatal("first apply reported no change")
	}
	if cache.Apply(ctx, m) {
		t.Fatal("duplicate apply reported a change")
	}
	if cache.Len() != 1 {
		t.Fatalf("len = %d, want 1", cache.Len())
	}

	// duplicate with a different body must not overwrite the original
	dup := msgAt("m1", "tampered", m.CreatedAt)
	cache.Apply(ctx, dup)
	if got := cache.Snapshot()[0].Body; got != "hello" {
		t.Fatalf("body = %q, duplicate apply overwrote content", got)
	}
}

func TestApplyTakesOverDeliveryStatusChange(t *testing.T) {
	ctx := context.Background()
	cache := NewCache("bkg-1", nil, nil)

	m := msgAt("m1", "hello", time.Now().UTC())
	m.DeliveryStatus = message.DeliverySending
	cache.Apply(ctx, m)

	upd := msgAt("m1", "hello", m.CreatedAt)
	upd.DeliveryStatus = message.DeliverySent
	if !cache.Apply(ctx, upd) {
		t.Fatal("status change reported no change")
	}
	if got := cache.Snapshot()[0].DeliveryStatus; got != message.DeliverySent {
		t.Fatalf("status = %s, want SENT", got)
	}
}

func TestOrderingByCreatedAtThenSeq(t *testing.T) {
	ctx := context.Background()
	cache := NewCache("bkg-1", nil, nil)
	base := time.Now().UTC()

	// arrival order differs from timestamp order
	cache.Apply(ctx, msgAt("late", "third", base.Add(2*time.Second)))
	cache.Apply(ctx, msgAt("early", "first", base))
	cache.Apply(ctx, msgAt("mid", "second", base.Add(time.Second)))

	assertOrder(t, cache, "early", "mid", "late")

	// equal timestamps: local arrival order wins, not the id strings
	cache2 := NewCache("bkg-1", nil, nil)
	cache2.Apply(ctx, msgAt("zzz", "arrived first", base))
	cache2.Apply(ctx, msgAt("aaa", "arrived second", base))
	assertOrder(t, cache2, "zzz", "aaa")
}

func TestReplaceOptimisticKeepsPosition(t *testing.T) {
	ctx := context.Background()
	cache := NewCache("bkg-1", nil, nil)
	base := time.Now().UTC()

	cache.Apply(ctx, msgAt("m1", "before", base))

	temp := msgAt("tmp_x", "optimistic", base)
	temp.DeliveryStatus = message.DeliverySending
	cache.Apply(ctx, temp)

	cache.Apply(ctx, msgAt("m2", "after", base))
	assertOrder(t, cache, "m1", "tmp_x", "m2")

	// server assigns the same timestamp; position must not move
	confirmed := msgAt("srv-9", "optimistic", base)
	cache.ReplaceOptimistic(ctx, "tmp_x", confirmed)

	assertOrder(t, cache, "m1", "srv-9", "m2")
	if got := cache.Snapshot()[1].DeliveryStatus; got != message.DeliverySent {
		t.Fatalf("status = %s, want SENT", got)
	}
}

func TestReplaceOptimisticWhenFeedWonTheRace(t *testing.T) {
	ctx := context.Background()
	cache := NewCache("bkg-1", nil, nil)
	base := time.Now().UTC()

	temp := msgAt("tmp_x", "hello", base)
	temp.DeliveryStatus = message.DeliverySending
	cache.Apply(ctx, temp)

	// the feed delivers the confirmed copy before the submit returns
	cache.Apply(ctx, msgAt("srv-1", "hello", base))

	cache.ReplaceOptimistic(ctx, "tmp_x", msgAt("srv-1", "hello", base))

	assertOrder(t, cache, "srv-1")
	if got := cache.Snapshot()[0].DeliveryStatus; got != message.DeliverySent {
		t.Fatalf("status = %s, want SENT", got)
	}
}

func TestReplaceOptimisticUnknownTempFallsBackToApply(t *testing.T) {
	ctx := context.Background()
	cache := NewCache("bkg-1", nil, nil)

	cache.ReplaceOptimistic(ctx, "tmp_gone", msgAt("srv-1", "hello", time.Now().UTC()))
	assertOrder(t, cache, "srv-1")
}

func TestMarkFailedKeepsEntryVisible(t *testing.T) {
	ctx := context.Background()
	cache := NewCache("bkg-1", nil, nil)

	temp := msgAt("tmp_x", "hello", time.Now().UTC())
	temp.DeliveryStatus = message.DeliverySending
	cache.Apply(ctx, temp)

	cache.MarkFailed(ctx, "tmp_x")

	snap := cache.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("failed entry was dropped")
	}
	if snap[0].DeliveryStatus != message.DeliveryFailed {
		t.Fatalf("status = %s, want FAILED", snap[0].DeliveryStatus)
	}
}

func TestReconcileNeverEvictsTempEntries(t *testing.T) {
	ctx := context.Background()
	cache := NewCache("bkg-1", nil, nil)
	base := time.Now().UTC()

	temp := msgAt("tmp_x", "pending", base.Add(time.Second))
	temp.DeliveryStatus = message.DeliverySending
	cache.Apply(ctx, temp)

	// authoritative set does not include the in-flight temp entry
	cache.Reconcile(ctx, []*message.Message{
		msgAt("m1", "one", base),
		msgAt("m2", "two", base.Add(2*time.Second)),
	})

	assertOrder(t, cache, "m1", "tmp_x", "m2")
}

func TestSnapshotRoundTripThroughSlot(t *testing.T) {
	ctx := context.Background()
	slot := threadslot.NewMemorySlot(8)
	base := time.Now().UTC().Truncate(time.Millisecond)

	cache := NewCache("bkg-1", slot, nil)
	cache.Apply(ctx, msgAt("m1", "one", base))
	cache.Apply(ctx, msgAt("m2", "two", base.Add(time.Second)))

	reloaded := NewCache("bkg-1", slot, nil)
	if err := reloaded.LoadFromSlot(ctx); err != nil {
		t.Fatalf("LoadFromSlot: %v", err)
	}
	assertOrder(t, reloaded, "m1", "m2")
	if got := reloaded.Snapshot()[0].Body; got != "one" {
		t.Fatalf("body = %q", got)
	}
}

func TestReloadRemarksStaleSendingAsFailed(t *testing.T) {
	ctx := context.Background()
	slot := threadslot.NewMemorySlot(8)
	base := time.Now().UTC()

	// craft a snapshot saved longer than AckTimeout ago with an in-flight entry
	snap := snapshot{
		BookingID: "bkg-1",
		SavedAt:   time.Now().UTC().Add(-AckTimeout - time.Second),
		Messages: []snapshotEntry{
			{ID: "m1", SenderType: "CLIENT", SenderID: "client-1", Body: "done", Kind: "TEXT", CreatedAt: base, DeliveryStatus: "SENT", Seq: 0},
			{ID: "tmp_x", SenderType: "CLIENT", SenderID: "client-1", Body: "stuck", Kind: "TEXT", CreatedAt: base.Add(time.Second), DeliveryStatus: "SENDING", Seq: 1},
		},
	}
	blob, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	if err := slot.Save(ctx, "bkg-1", blob); err != nil {
		t.Fatal(err)
	}

	cache := NewCache("bkg-1", slot, nil)
	if err := cache.LoadFromSlot(ctx); err != nil {
		t.Fatalf("LoadFromSlot: %v", err)
	}

	msgs := cache.Snapshot()
	if len(msgs) != 2 {
		t.Fatalf("len = %d", len(msgs))
	}
	if msgs[0].DeliveryStatus != message.DeliverySent {
		t.Fatalf("settled entry status = %s", msgs[0].DeliveryStatus)
	}
	if msgs[1].DeliveryStatus != message.DeliveryFailed {
		t.Fatalf("stale sending entry status = %s, want FAILED", msgs[1].DeliveryStatus)
	}
}

func TestReloadFailsInFlightSendingWhenAckWindowLapses(t *testing.T) {
	ctx := context.Background()
	slot := threadslot.NewMemorySlot(8)
	now := time.Now().UTC()

	// snapshot saved moments ago: the in-flight entry is still inside its
	// acknowledgment window at load time
	snap := snapshot{
		BookingID: "bkg-1",
		SavedAt:   now,
		Messages: []snapshotEntry{
			{ID: "m1", SenderType: "CLIENT", SenderID: "client-1", Body: "done", Kind: "TEXT", CreatedAt: now.Add(-time.Minute), DeliveryStatus: "SENT", Seq: 0},
			{ID: "tmp_x", SenderType: "CLIENT", SenderID: "client-1", Body: "in flight", Kind: "TEXT", CreatedAt: now, DeliveryStatus: "SENDING", Seq: 1, SentAt: now},
		},
	}
	blob, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	if err := slot.Save(ctx, "bkg-1", blob); err != nil {
		t.Fatal(err)
	}

	cache := NewCache("bkg-1", slot, nil)
	cache.ackTimeout = 40 * time.Millisecond
	if err := cache.LoadFromSlot(ctx); err != nil {
		t.Fatalf("LoadFromSlot: %v", err)
	}

	// fresh entry survives the load itself
	if got := cache.Snapshot()[1].DeliveryStatus; got != message.DeliverySending {
		t.Fatalf("status right after load = %s, want SENDING", got)
	}

	// no process is left to acknowledge it, so the window lapsing must fail it
	waitFor(t, time.Second, func() bool {
		return cache.Snapshot()[1].DeliveryStatus == message.DeliveryFailed
	})
	if got := cache.Snapshot()[0].DeliveryStatus; got != message.DeliverySent {
		t.Fatalf("settled entry status = %s, want SENT", got)
	}
}

func TestReloadKeepsEntryAckedBeforeWindowLapses(t *testing.T) {
	ctx := context.Background()
	slot := threadslot.NewMemorySlot(8)
	now := time.Now().UTC()

	snap := snapshot{
		BookingID: "bkg-1",
		SavedAt:   now,
		Messages: []snapshotEntry{
			{ID: "tmp_x", SenderType: "CLIENT", SenderID: "client-1", Body: "in flight", Kind: "TEXT", CreatedAt: now, DeliveryStatus: "SENDING", Seq: 0, SentAt: now},
		},
	}
	blob, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	if err := slot.Save(ctx, "bkg-1", blob); err != nil {
		t.Fatal(err)
	}

	cache := NewCache("bkg-1", slot, nil)
	cache.ackTimeout = 40 * time.Millisecond
	if err := cache.LoadFromSlot(ctx); err != nil {
		t.Fatalf("LoadFromSlot: %v", err)
	}

	// the entry settles before the window lapses; the expiry must not
	// fail it retroactively
	acked := msgAt("tmp_x", "in flight", now)
	acked.DeliveryStatus = message.DeliverySent
	cache.Apply(ctx, acked)

	time.Sleep(100 * time.Millisecond)
	if got := cache.Snapshot()[0].DeliveryStatus; got != message.DeliverySent {
		t.Fatalf("status = %s, want SENT after ack", got)
	}
}

func TestLoadFromSlotToleratesCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	slot := threadslot.NewMemorySlot(8)
	if err := slot.Save(ctx, "bkg-1", []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	cache := NewCache("bkg-1", slot, nil)
	if err := cache.LoadFromSlot(ctx); err != nil {
		t.Fatalf("LoadFromSlot: %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("len = %d, want 0", cache.Len())
	}
}
