package ports

import (
	"context"
	"errors"
	"time"

	"guardline/internal/domain/booking"
	"guardline/internal/domain/message"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrMessageNotFound = errors.New("message not found")
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// BookingRepository defines the methods for managing booking data.
type BookingRepository interface {
	Create(ctx context.Context, b *booking.Booking) error
	GetByID(ctx context.Context, id string) (*booking.Booking, error)
	UpdateStatus(ctx context.Context, id string, status booking.Status, ts time.Time) error
	SetOperator(ctx context.Context, id, operatorID string) error
	SetPaymentApproved(ctx context.Context, id string) (changed bool, err error)
	Cancel(ctx context.Context, id, reason string, fee, refund *float64, cancelledAt time.Time) error
}

// BookingMetricsRepository serves the aggregate queries behind the admin
// dashboard. All methods must run inside a UnitOfWork transaction.
type BookingMetricsRepository interface {
	CountActive(ctx context.Context) (int, error)
	CountCreatedBetween(ctx context.Context, start, end time.Time) (int, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
	CountPaymentApproved(ctx context.Context) (int, error)
	CancellationRateBetween(ctx context.Context, start, end time.Time) (float64, error)
	SumCancellationFeesBetween(ctx context.Context, start, end time.Time) (float64, error)
	AvgAcceptMinutesBetween(ctx context.Context, start, end time.Time) (float64, error)
	HydrateActiveRows(ctx context.Context, offset, limit int) ([]*booking.Booking, error)
}

// MessageRepository defines the methods for managing thread message data.
// All methods must run inside a UnitOfWork transaction.
type MessageRepository interface {
	Insert(ctx context.Context, m *message.Message) error
	ListByBooking(ctx context.Context, bookingID string, since *time.Time) ([]*message.Message, error)
	GetByID(ctx context.Context, id string) (*message.Message, error)
}

// MessageStore is the transactional persistence boundary the thread engine
// consumes: submits from the send pipeline and authoritative re-fetches from
// the reconciler. Implementations own their transactions.
type MessageStore interface {
	InsertMessage(ctx context.Context, m *message.Message) (*message.Message, error)
	ListMessages(ctx context.Context, bookingID string, since *time.Time) ([]*message.Message, error)
}

// Subscription is a handle on one live change-feed subscription.
type Subscription interface {
	// Stop tears the subscription down and returns once its delivery
	// goroutine has exited. Safe to call more than once.
	Stop()
}

// ChangeFeed delivers newly persisted messages for one booking with
// at-least-once semantics. onInsert may be called with duplicates; the
// consumer's apply must be idempotent.
type ChangeFeed interface {
	Subscribe(ctx context.Context, bookingID string, onInsert func(*message.Message), onDown func(error)) (Subscription, error)
}

// ChangeFeedPublisher is the write side of the change feed: called after a
// message row commits so every open subscriber for the booking sees it.
type ChangeFeedPublisher interface {
	PublishMessage(ctx context.Context, m *message.Message) error
}

// ThreadSlot is the durable per-booking cache slot: a key-value blob store
// that lets a reloaded session recover its thread history.
type ThreadSlot interface {
	Save(ctx context.Context, bookingID string, blob []byte) error
	Load(ctx context.Context, bookingID string) ([]byte, error)
}

// ErrSlotEmpty is returned by ThreadSlot.Load when no snapshot exists yet.
var ErrSlotEmpty = errors.New("no thread snapshot for booking")
