package thread

import (
	"context"
	"sync"

	"guardline/internal/domain/message"
	"guardline/internal/general/logger"
	"guardline/internal/ports"
)

// ConnectionState is the push-channel health of one open thread. It drives
// how aggressively the reconciler polls.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
	StateDisconnected ConnectionState = "DISCONNECTED"
)

// String returns the string representation of the ConnectionState.
func (cs ConnectionState) String() string {
	return string(cs)
}

// Subscriber owns the change-feed subscription of one thread and applies
// every pushed message to the cache. Duplicate deliveries are harmless: the
// cache apply is idempotent.
type Subscriber struct {
	bookingID string
	feed      ports.ChangeFeed
	cache     *Cache
	logger    *logger.Logger

	mu    sync.Mutex
	state ConnectionState
	sub   ports.Subscription

	// onStateChange fires on every transition, outside the lock
	onStateChange func(ConnectionState)
}

// NewSubscriber constructs a subscriber for one booking. onStateChange may
// be nil.
func NewSubscriber(bookingID string, feed ports.ChangeFeed, cache *Cache, log *logger.Logger, onStateChange func(ConnectionState)) *Subscriber {
	return &Subscriber{
		bookingID:     bookingID,
		feed:          feed,
		cache:         cache,
		logger:        log,
		state:         StateConnecting,
		onStateChange: onStateChange,
	}
}

// State returns the current connection state.
func (s *Subscriber) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start establishes the subscription. A transport failure is not fatal: the
// subscriber degrades to DISCONNECTED and the thread stays consistent through
// the reconciler alone.
func (s *Subscriber) Start(ctx context.Context) {
	s.setState(StateConnecting)

	sub, err := s.feed.Subscribe(ctx, s.bookingID,
		func(m *message.Message) {
			s.cache.Apply(ctx, m)
		},
		func(err error) {
			s.logger.Error(ctx, "thread_feed_down", "Change feed subscription dropped", err,
				map[string]any{"booking_id": s.bookingID})
			s.setState(StateDisconnected)
		},
	)
	if err != nil {
		s.logger.Error(ctx, "thread_subscribe_failed",
			"Failed to open change feed subscription; degrading to polling only", err,
			map[string]any{"booking_id": s.bookingID})
		s.setState(StateDisconnected)
		return
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	s.setState(StateConnected)
}

// setState transitions the connection state and notifies.
func (s *Subscriber) setState(next ConnectionState) {
	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	if s.onStateChange != nil {
		s.onStateChange(next)
	}
}

// Stop tears the subscription down and waits for its goroutine to exit.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
}
