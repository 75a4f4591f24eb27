package service

import (
	"context"

	"guardline/internal/domain/message"
	"guardline/internal/general/logger"
	"guardline/internal/ports"
	"guardline/internal/thread"
)

// threadService exposes the thread engine to the transport layer. It owns no
// state of its own: per-booking sessions live in the registry, and a session
// is opened lazily on first access to a booking's thread.
type threadService struct {
	logger      *logger.Logger
	registry    *thread.Registry
	uow         ports.UnitOfWork
	bookingRepo ports.BookingRepository
}

// NewThreadService creates a ThreadService over the given session registry.
func NewThreadService(
	logger *logger.Logger,
	registry *thread.Registry,
	uow ports.UnitOfWork,
	bookingRepo ports.BookingRepository,
) ports.ThreadService {
	return &threadService{
		logger:      logger,
		registry:    registry,
		uow:         uow,
		bookingRepo: bookingRepo,
	}
}

// GetThread returns the booking's thread in display order. Opening the
// session (when not already open) restores the durable snapshot and kicks an
// immediate authoritative fetch, so even a cold call returns history quickly.
func (service *threadService) GetThread(ctx context.Context, bookingID string) ([]*message.Message, error) {
	s, err := service.open(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return s.Cache.Snapshot(), nil
}

// Send submits a message through the optimistic pipeline. A nil return means
// the message was accepted locally, not that it was persisted; the delivery
// status on subsequent thread reads reports the outcome.
func (service *threadService) Send(ctx context.Context, bookingID string, sender message.SenderType, senderID, body string) error {
	s, err := service.open(ctx, bookingID)
	if err != nil {
		return err
	}
	return s.Sender.Send(ctx, sender, senderID, body)
}

// CloseThread tears down the booking's session, blocking until its tasks stop.
func (service *threadService) CloseThread(bookingID string) {
	service.registry.Close(bookingID)
}

// Shutdown closes all open sessions.
func (service *threadService) Shutdown() {
	service.registry.Shutdown()
}

// open resolves the booking's session, verifying the booking exists before
// the first session for it is created. Unknown bookings never get a session.
func (service *threadService) open(ctx context.Context, bookingID string) (*thread.Session, error) {
	if s, ok := service.registry.Get(bookingID); ok {
		return s, nil
	}

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		_, err := service.bookingRepo.GetByID(txCtx, bookingID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return service.registry.Open(ctx, bookingID)
}
