package thread

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"guardline/internal/domain/message"
	"guardline/internal/general/logger"
	"guardline/internal/ports"
)

// SendTimeout bounds a store submit; past it the optimistic entry transitions
// to failed rather than hanging in "sending".
const SendTimeout = 12 * time.Second

// Sender runs the optimistic send pipeline of one thread. Each send owns its
// own temp id so any number may be in flight concurrently without a global
// lock; interleavings cannot corrupt the cache.
type Sender struct {
	bookingID string
	store     ports.MessageStore
	cache     *Cache
	logger    *logger.Logger
}

// NewSender constructs a sender for one booking.
func NewSender(bookingID string, store ports.MessageStore, cache *Cache, log *logger.Logger) *Sender {
	return &Sender{bookingID: bookingID, store: store, cache: cache, logger: log}
}

// Send synthesizes an optimistic entry, makes it visible immediately, and
// submits asynchronously. Validation errors are returned right away and
// nothing is cached; transport outcomes surface via the entry's delivery
// status, never as an error here.
func (s *Sender) Send(ctx context.Context, sender message.SenderType, senderID, body string) error {
	m, err := message.New(s.bookingID, sender, senderID, body)
	if err != nil {
		return err
	}

	m.ID = newTempID()
	m.DeliveryStatus = message.DeliverySending
	s.cache.Apply(ctx, m)

	go s.submit(context.WithoutCancel(ctx), m)
	return nil
}

// SendInvoiceMessage runs the same pipeline for an operator invoice message.
func (s *Sender) SendInvoiceMessage(ctx context.Context, m *message.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	m = m.Clone()
	m.ID = newTempID()
	m.DeliveryStatus = message.DeliverySending
	s.cache.Apply(ctx, m)

	go s.submit(context.WithoutCancel(ctx), m)
	return nil
}

// submit persists one optimistic entry and resolves it to sent or failed.
func (s *Sender) submit(ctx context.Context, m *message.Message) {
	tempID := m.ID

	sendCtx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	stored, err := s.store.InsertMessage(sendCtx, m)
	if err != nil {
		s.logger.Error(ctx, "thread_send_failed",
			"Message submit failed; entry marked failed and retryable", err,
			map[string]any{"booking_id": s.bookingID, "temp_id": tempID})
		s.cache.MarkFailed(ctx, tempID)
		return
	}

	s.cache.ReplaceOptimistic(ctx, tempID, stored)
}

// newTempID returns a locally unique id like tmp_20251028T184523_a1b2c3d4.
func newTempID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	ts := time.Now().UTC().Format("20060102T150405")
	return message.TempIDPrefix + ts + "_" + hex.EncodeToString(b[:])
}
