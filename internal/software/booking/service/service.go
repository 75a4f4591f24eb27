package service

import (
	"context"
	"errors"

	"guardline/internal/general/contracts"
	"guardline/internal/general/logger"
	"guardline/internal/ports"
)

var (
	ErrNotInvoiceMessage      = errors.New("message does not carry an invoice")
	ErrInvoiceBookingMismatch = errors.New("invoice message belongs to another booking")
)

// statusPublisher is the outbound booking-topic publisher. It matches the
// rabbitmq.MQPublisher surface so the transport can be swapped in tests.
type statusPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// statusNotifier pushes a lifecycle change to connected WebSocket watchers.
// It matches the websocket.WebSocket surface.
type statusNotifier interface {
	PushBookingStatus(ctx context.Context, update contracts.WSBookingStatus)
}

// bookingService encapsulates the booking lifecycle, the payment gate, and
// the system messages they fold into the thread.
type bookingService struct {
	logger      *logger.Logger
	uow         ports.UnitOfWork
	bookingRepo ports.BookingRepository
	messageRepo ports.MessageRepository
	feed        ports.ChangeFeedPublisher // nil-able: tests and degraded mode
	pub         statusPublisher           // nil-able likewise
	watchers    statusNotifier            // nil-able likewise
}

// NewBookingService creates a BookingService with the provided dependencies.
func NewBookingService(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	bookingRepo ports.BookingRepository,
	messageRepo ports.MessageRepository,
	feed ports.ChangeFeedPublisher,
	pub statusPublisher,
	watchers statusNotifier,
) ports.BookingService {
	return &bookingService{
		logger:      logger,
		uow:         uow,
		bookingRepo: bookingRepo,
		messageRepo: messageRepo,
		feed:        feed,
		pub:         pub,
		watchers:    watchers,
	}
}
