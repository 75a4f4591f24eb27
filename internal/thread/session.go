package thread

import (
	"context"
	"sync"

	"guardline/internal/general/logger"
	"guardline/internal/ports"
)

// Session bundles everything one open thread owns: the cache, its change-feed
// subscriber, its reconciler, and its sender. Sessions are created and torn
// down only by the Registry.
type Session struct {
	BookingID  string
	Cache      *Cache
	Subscriber *Subscriber
	Reconciler *Reconciler
	Sender     *Sender
}

// Close stops the subscriber first and then the reconciler, waiting for both
// to fully exit. After Close no task of this session can write into the
// cache, so a successor session for another thread cannot receive
// cross-thread deliveries.
func (s *Session) Close() {
	s.Subscriber.Stop()
	s.Reconciler.Stop()
}

// Registry is the per-process coordinator owning all open thread sessions:
// a map from booking id to its session, torn down deterministically.
type Registry struct {
	store  ports.MessageStore
	feed   ports.ChangeFeed
	slot   ports.ThreadSlot
	logger *logger.Logger

	// onUpdate fires with the booking id whenever that thread's cache
	// content or connection state changes
	onUpdate func(bookingID string)

	mu       sync.Mutex
	sessions map[string]*Session
	baseCtx  context.Context
	cancel   context.CancelFunc
}

// NewRegistry constructs the session registry. slot and onUpdate may be nil.
func NewRegistry(ctx context.Context, store ports.MessageStore, feed ports.ChangeFeed, slot ports.ThreadSlot, log *logger.Logger, onUpdate func(bookingID string)) *Registry {
	baseCtx, cancel := context.WithCancel(ctx)
	return &Registry{
		store:    store,
		feed:     feed,
		slot:     slot,
		logger:   log,
		onUpdate: onUpdate,
		sessions: make(map[string]*Session),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
}

// Open returns the session for a booking, starting one when none is open.
// The startup order is: restore the durable snapshot, start the reconciler
// (immediate authoritative pass), then attach the push subscription.
func (r *Registry) Open(ctx context.Context, bookingID string) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[bookingID]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	s := r.build(bookingID)

	if err := s.Cache.LoadFromSlot(ctx); err != nil {
		r.logger.Error(ctx, "thread_snapshot_load_failed",
			"Could not restore thread snapshot; starting empty", err,
			map[string]any{"booking_id": bookingID})
	}

	r.mu.Lock()
	if existing, ok := r.sessions[bookingID]; ok {
		// lost the race; the winner's session is already running
		r.mu.Unlock()
		return existing, nil
	}
	r.sessions[bookingID] = s
	r.mu.Unlock()

	s.Reconciler.Start(r.baseCtx)
	s.Subscriber.Start(r.baseCtx)

	r.logger.Info(ctx, "thread_opened", "Thread session started", map[string]any{
		"booking_id": bookingID,
	})
	return s, nil
}

// build wires one session's components together.
func (r *Registry) build(bookingID string) *Session {
	notify := func() {
		if r.onUpdate != nil {
			r.onUpdate(bookingID)
		}
	}

	cache := NewCache(bookingID, r.slot, notify)
	reconciler := NewReconciler(bookingID, r.store, cache, r.logger)
	subscriber := NewSubscriber(bookingID, r.feed, cache, r.logger, func(state ConnectionState) {
		// push channel health drives polling aggressiveness
		switch state {
		case StateConnected:
			reconciler.Relax()
		case StateDisconnected:
			reconciler.Tighten()
		}
		notify()
	})
	sender := NewSender(bookingID, r.store, cache, r.logger)

	return &Session{
		BookingID:  bookingID,
		Cache:      cache,
		Subscriber: subscriber,
		Reconciler: reconciler,
		Sender:     sender,
	}
}

// Get returns the open session for a booking, if any.
func (r *Registry) Get(bookingID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[bookingID]
	return s, ok
}

// Close tears down the session of one booking. It blocks until the session's
// tasks have fully stopped, so a subsequent Open cannot race a stale feed.
func (r *Registry) Close(bookingID string) {
	r.mu.Lock()
	s, ok := r.sessions[bookingID]
	if ok {
		delete(r.sessions, bookingID)
	}
	r.mu.Unlock()

	if ok {
		s.Close()
		r.logger.Info(context.Background(), "thread_closed", "Thread session stopped", map[string]any{
			"booking_id": bookingID,
		})
	}
}

// Shutdown closes every open session and cancels the registry context.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	r.cancel()
}
