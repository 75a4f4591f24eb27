package service

import (
	"context"

	"guardline/internal/domain/booking"
	"guardline/internal/domain/message"
	"guardline/internal/ports"
)

// CreateBooking validates the request, persists the booking and its opening
// system message in one transaction, and returns the assigned identifiers.
func (service *bookingService) CreateBooking(ctx context.Context, in ports.CreateBookingInput) (ports.CreateBookingResult, error) {
	b, err := booking.NewBooking(
		generateBookingNumber(),
		in.ClientID,
		in.ServiceType,
		in.VehicleType,
		in.ProtectorCount,
		in.Duration,
		in.PickupAddress,
	)
	if err != nil {
		return ports.CreateBookingResult{}, err
	}

	var sysMsg *message.Message
	err = service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		if err := service.bookingRepo.Create(txCtx, b); err != nil {
			return err
		}

		sysMsg, err = message.NewSystem(b.ID, "Booking request received")
		if err != nil {
			return err
		}
		return service.messageRepo.Insert(txCtx, sysMsg)
	})
	if err != nil {
		service.logger.Error(ctx, "booking_create_failed", "Failed to create booking", err, nil)
		return ports.CreateBookingResult{}, err
	}

	ctx = service.logger.WithBookingID(ctx, b.ID)
	service.logger.Info(ctx, "booking_created", "Booking created", map[string]any{
		"booking_number":  b.BookingNumber,
		"service_type":    b.ServiceType,
		"protector_count": b.ProtectorCount,
	})

	service.announceMessage(ctx, sysMsg)
	service.publishBookingStatus(ctx, b)

	return ports.CreateBookingResult{
		BookingID:     b.ID,
		BookingNumber: b.BookingNumber,
		Status:        b.Status.String(),
	}, nil
}
