package postgres

import (
	"context"
	"time"

	"guardline/internal/domain/message"
	"guardline/internal/ports"
)

// messageStore adapts the transactional repositories into the MessageStore
// boundary the thread engine consumes. Inserts run in their own transaction;
// once committed the message is announced on the change feed so open
// subscribers see it without waiting for their next poll.
type messageStore struct {
	uow  ports.UnitOfWork
	repo ports.MessageRepository
	feed ports.ChangeFeedPublisher // optional
}

// NewMessageStore constructs a MessageStore over the given unit of work.
// feed may be nil when no change-feed transport is wired (tests).
func NewMessageStore(uow ports.UnitOfWork, repo ports.MessageRepository, feed ports.ChangeFeedPublisher) ports.MessageStore {
	return &messageStore{uow: uow, repo: repo, feed: feed}
}

// InsertMessage persists m and returns the stored message carrying its server
// id and timestamp. The caller's temp id is not written anywhere.
func (s *messageStore) InsertMessage(ctx context.Context, m *message.Message) (*message.Message, error) {
	stored := m.Clone()
	stored.ID = "" // server assigns the uuid

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		return s.repo.Insert(ctx, stored)
	})
	if err != nil {
		return nil, err
	}

	// best-effort: the reconciler closes the gap if the announce is lost
	if s.feed != nil {
		_ = s.feed.PublishMessage(ctx, stored)
	}

	return stored, nil
}

// ListMessages returns the authoritative ordered message set for a booking.
func (s *messageStore) ListMessages(ctx context.Context, bookingID string, since *time.Time) ([]*message.Message, error) {
	var out []*message.Message
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		msgs, err := s.repo.ListByBooking(ctx, bookingID, since)
		if err != nil {
			return err
		}
		out = msgs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
