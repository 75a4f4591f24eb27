package thread

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"guardline/internal/domain/message"
	"guardline/internal/general/logger"
	"guardline/internal/ports"
)

// fakeStore is an in-memory MessageStore with controllable failures.
type fakeStore struct {
	mu     sync.Mutex
	msgs   []*message.Message
	nextID int
	fail   bool
	block  chan struct{} // when set, InsertMessage waits on it
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (s *fakeStore) InsertMessage(ctx context.Context, m *message.Message) (*message.Message, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("store unavailable")
	}

	stored := m.Clone()
	s.nextID++
	stored.ID = "srv-" + time.Now().UTC().Format("150405") + "-" + string(rune('a'+s.nextID))
	stored.CreatedAt = time.Now().UTC()
	stored.DeliveryStatus = message.DeliverySent
	s.msgs = append(s.msgs, stored)
	return stored.Clone(), nil
}

func (s *fakeStore) ListMessages(ctx context.Context, bookingID string, since *time.Time) ([]*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("store unavailable")
	}

	out := make([]*message.Message, 0, len(s.msgs))
	for _, m := range s.msgs {
		if m.BookingID == bookingID {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func (s *fakeStore) setFail(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

// seed inserts a persisted message directly, as another writer would.
func (s *fakeStore) seed(bookingID, body string) *message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m := &message.Message{
		ID:             "seed-" + string(rune('a'+s.nextID)),
		BookingID:      bookingID,
		SenderType:     message.SenderSystem,
		SenderID:       "system",
		Body:           body,
		Kind:           message.KindText,
		IsSystem:       true,
		CreatedAt:      time.Now().UTC(),
		DeliveryStatus: message.DeliverySent,
	}
	s.msgs = append(s.msgs, m)
	return m
}

// fakeFeed is a ChangeFeed whose deliveries the test drives by hand.
type fakeFeed struct {
	mu      sync.Mutex
	subs    map[string][]*fakeSub
	failSub bool
}

type fakeSub struct {
	onInsert func(*message.Message)
	onDown   func(error)
	stopped  bool
}

func (f *fakeSub) Stop() { f.stopped = true }

func newFakeFeed() *fakeFeed {
	return &fakeFeed{subs: make(map[string][]*fakeSub)}
}

func (f *fakeFeed) Subscribe(ctx context.Context, bookingID string, onInsert func(*message.Message), onDown func(error)) (ports.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSub {
		return nil, errors.New("broker unreachable")
	}
	sub := &fakeSub{onInsert: onInsert, onDown: onDown}
	f.subs[bookingID] = append(f.subs[bookingID], sub)
	return sub, nil
}

func (f *fakeFeed) push(bookingID string, m *message.Message) {
	f.mu.Lock()
	subs := append([]*fakeSub(nil), f.subs[bookingID]...)
	f.mu.Unlock()
	for _, s := range subs {
		if !s.stopped {
			s.onInsert(m)
		}
	}
}

func (f *fakeFeed) drop(bookingID string, err error) {
	f.mu.Lock()
	subs := append([]*fakeSub(nil), f.subs[bookingID]...)
	f.mu.Unlock()
	for _, s := range subs {
		if !s.stopped {
			s.onDown(err)
		}
	}
}

func testLogger() *logger.Logger {
	return logger.New("thread-test")
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSendOptimisticThenConfirmed(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	cache := NewCache("bkg-1", nil, nil)
	sender := NewSender("bkg-1", store, cache, testLogger())

	store.block = make(chan struct{})

	if err := sender.Send(ctx, message.SenderClient, "client-1", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// visible immediately with a temp id and "sending" status
	snap := cache.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("len = %d, want 1", len(snap))
	}
	if !snap[0].IsTemp() {
		t.Fatalf("id = %q, want temp prefix", snap[0].ID)
	}
	if snap[0].DeliveryStatus != message.DeliverySending {
		t.Fatalf("status = %s, want SENDING", snap[0].DeliveryStatus)
	}

	// release the store; the temp entry resolves to exactly one sent entry
	close(store.block)
	waitFor(t, time.Second, func() bool {
		s := cache.Snapshot()
		return len(s) == 1 && s[0].DeliveryStatus == message.DeliverySent
	})

	snap = cache.Snapshot()
	if snap[0].IsTemp() {
		t.Fatalf("id still temp after confirm: %q", snap[0].ID)
	}
	if snap[0].Body != "hello" {
		t.Fatalf("body = %q", snap[0].Body)
	}
}

func TestSendFailureMarksEntryFailed(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.setFail(true)
	cache := NewCache("bkg-1", nil, nil)
	sender := NewSender("bkg-1", store, cache, testLogger())

	if err := sender.Send(ctx, message.SenderClient, "client-1", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		s := cache.Snapshot()
		return len(s) == 1 && s[0].DeliveryStatus == message.DeliveryFailed
	})

	// the failed entry keeps its temp id and stays visible
	if !cache.Snapshot()[0].IsTemp() {
		t.Fatal("failed entry lost its temp id")
	}
}

func TestSendValidationErrorCachesNothing(t *testing.T) {
	ctx := context.Background()
	cache := NewCache("bkg-1", nil, nil)
	sender := NewSender("bkg-1", newFakeStore(), cache, testLogger())

	if err := sender.Send(ctx, message.SenderClient, "client-1", "   "); err == nil {
		t.Fatal("empty body accepted")
	}
	if cache.Len() != 0 {
		t.Fatalf("len = %d, want 0", cache.Len())
	}
}

func TestReconcilerRecoversMissedMessages(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	cache := NewCache("bkg-1", nil, nil)
	rec := NewReconciler("bkg-1", store, cache, testLogger())

	store.seed("bkg-1", "missed while offline")
	store.seed("bkg-2", "another booking")

	rec.Start(ctx)
	defer rec.Stop()

	waitFor(t, time.Second, func() bool { return cache.Len() == 1 })

	snap := cache.Snapshot()
	if snap[0].Body != "missed while offline" {
		t.Fatalf("body = %q", snap[0].Body)
	}
	if snap[0].BookingID != "bkg-1" {
		t.Fatalf("cross-booking leak: %q", snap[0].BookingID)
	}
}

func TestReconcilerSurvivesStoreErrors(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.setFail(true)
	cache := NewCache("bkg-1", nil, nil)
	rec := NewReconciler("bkg-1", store, cache, testLogger())

	rec.Start(ctx)
	defer rec.Stop()

	time.Sleep(20 * time.Millisecond)
	if cache.Len() != 0 {
		t.Fatalf("len = %d", cache.Len())
	}

	// recovery: the next pass after the store heals converges the cache
	store.setFail(false)
	store.seed("bkg-1", "back online")
	rec.Tighten()
	waitFor(t, 3*time.Second, func() bool { return cache.Len() == 1 })
}

func TestSubscriberAppliesPushedMessages(t *testing.T) {
	ctx := context.Background()
	feed := newFakeFeed()
	cache := NewCache("bkg-1", nil, nil)

	var states []ConnectionState
	var mu sync.Mutex
	sub := NewSubscriber("bkg-1", feed, cache, testLogger(), func(s ConnectionState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	sub.Start(ctx)
	defer sub.Stop()

	if sub.State() != StateConnected {
		t.Fatalf("state = %s, want CONNECTED", sub.State())
	}

	m := msgAt("m1", "pushed", time.Now().UTC())
	feed.push("bkg-1", m)
	feed.push("bkg-1", m) // duplicate delivery is harmless
	if cache.Len() != 1 {
		t.Fatalf("len = %d, want 1", cache.Len())
	}

	feed.drop("bkg-1", errors.New("connection reset"))
	if sub.State() != StateDisconnected {
		t.Fatalf("state = %s, want DISCONNECTED", sub.State())
	}

	mu.Lock()
	defer mu.Unlock()
	joined := ""
	for _, s := range states {
		joined += s.String() + " "
	}
	if !strings.Contains(joined, "CONNECTED") || !strings.Contains(joined, "DISCONNECTED") {
		t.Fatalf("state transitions = %q", joined)
	}
}

func TestSubscriberDegradesWhenSubscribeFails(t *testing.T) {
	ctx := context.Background()
	feed := newFakeFeed()
	feed.failSub = true
	cache := NewCache("bkg-1", nil, nil)
	sub := NewSubscriber("bkg-1", feed, cache, testLogger(), nil)

	sub.Start(ctx)
	if sub.State() != StateDisconnected {
		t.Fatalf("state = %s, want DISCONNECTED (polling-only degradation)", sub.State())
	}
}

func TestRegistryOpenIsIdempotentAndCloseStops(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	feed := newFakeFeed()
	reg := NewRegistry(ctx, store, feed, nil, testLogger(), nil)
	defer reg.Shutdown()

	s1, err := reg.Open(ctx, "bkg-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s2, err := reg.Open(ctx, "bkg-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s1 != s2 {
		t.Fatal("second Open returned a different session")
	}

	if _, ok := reg.Get("bkg-1"); !ok {
		t.Fatal("Get missed the open session")
	}

	reg.Close("bkg-1")
	if _, ok := reg.Get("bkg-1"); ok {
		t.Fatal("session still registered after Close")
	}

	// a stale feed delivery after Close must not panic or write anywhere
	feed.push("bkg-1", msgAt("m9", "late", time.Now().UTC()))
}

func TestRegistryNotifiesOnUpdate(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	feed := newFakeFeed()

	var mu sync.Mutex
	notified := 0
	reg := NewRegistry(ctx, store, feed, nil, testLogger(), func(bookingID string) {
		mu.Lock()
		notified++
		mu.Unlock()
	})
	defer reg.Shutdown()

	store.seed("bkg-1", "history")
	if _, err := reg.Open(ctx, "bkg-1"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return notified > 0
	})
}
