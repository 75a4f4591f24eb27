package service

import (
	"context"

	"guardline/internal/domain/booking"
	"guardline/internal/domain/invoice"
	"guardline/internal/domain/message"
	"guardline/internal/ports"
)

// Transition applies one lifecycle action to the booking. The status write
// and the system message recording it commit in the same transaction, so the
// thread never shows an event the booking does not reflect (or vice versa).
// When the action is rejected (bad state, unapproved payment) nothing is
// written and the booking row is untouched.
func (service *bookingService) Transition(ctx context.Context, bookingID string, action booking.Action, actorID, reason string) (ports.TransitionResult, error) {
	if !action.Valid() {
		return ports.TransitionResult{}, booking.ErrInvalidAction
	}

	ctx = service.logger.WithBookingID(ctx, bookingID)

	var (
		b      *booking.Booking
		sysMsg *message.Message
	)
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		b, err = service.bookingRepo.GetByID(txCtx, bookingID)
		if err != nil {
			return err
		}

		if err := service.applyAction(b, action, actorID, reason); err != nil {
			return err
		}

		if err := service.persistTransition(txCtx, b, action, actorID, reason); err != nil {
			return err
		}

		sysMsg, err = message.NewSystem(b.ID, systemText(action, b))
		if err != nil {
			return err
		}
		return service.messageRepo.Insert(txCtx, sysMsg)
	})
	if err != nil {
		service.logger.Error(ctx, "booking_transition_failed", "Booking transition rejected", err, map[string]any{
			"action": action.String(),
		})
		return ports.TransitionResult{}, err
	}

	service.logger.Info(ctx, "booking_transitioned", "Booking transitioned", map[string]any{
		"action": action.String(),
		"status": b.Status.String(),
	})

	service.announceMessage(ctx, sysMsg)
	service.publishBookingStatus(ctx, b)

	return ports.TransitionResult{
		BookingID: b.ID,
		Status:    b.Status.String(),
		Message:   sysMsg.Body,
	}, nil
}

// applyAction runs the domain transition in memory. The entity methods own
// the state machine and the payment gate; a rejection surfaces before any
// repository write happens.
func (service *bookingService) applyAction(b *booking.Booking, action booking.Action, actorID, reason string) error {
	switch action {
	case booking.ActionConfirm:
		return b.Accept(actorID)
	case booking.ActionDispatch:
		return b.Dispatch()
	case booking.ActionMarkArrived:
		return b.MarkArrived()
	case booking.ActionStartService:
		return b.StartService()
	case booking.ActionComplete:
		return b.Complete()
	case booking.ActionCancel:
		fee, refund := service.cancellationSplit(b)
		return b.Cancel(reason, fee, refund)
	default:
		return booking.ErrInvalidAction
	}
}

// persistTransition writes the already-mutated entity back.
func (service *bookingService) persistTransition(ctx context.Context, b *booking.Booking, action booking.Action, actorID, reason string) error {
	switch action {
	case booking.ActionConfirm:
		if err := service.bookingRepo.SetOperator(ctx, b.ID, actorID); err != nil {
			return err
		}
		return service.bookingRepo.UpdateStatus(ctx, b.ID, b.Status, *b.AcceptedAt)
	case booking.ActionDispatch:
		return service.bookingRepo.UpdateStatus(ctx, b.ID, b.Status, *b.EnRouteAt)
	case booking.ActionMarkArrived:
		return service.bookingRepo.UpdateStatus(ctx, b.ID, b.Status, *b.ArrivedAt)
	case booking.ActionStartService:
		return service.bookingRepo.UpdateStatus(ctx, b.ID, b.Status, *b.StartedAt)
	case booking.ActionComplete:
		return service.bookingRepo.UpdateStatus(ctx, b.ID, b.Status, *b.CompletedAt)
	case booking.ActionCancel:
		return service.bookingRepo.Cancel(ctx, b.ID, reason, b.CancellationFee, b.RefundAmount, *b.CancelledAt)
	default:
		return booking.ErrInvalidAction
	}
}

// cancellationSplit prices the booking in NGN and applies the stage-dependent
// deduction. Unpriceable bookings cancel with a zero split rather than fail.
func (service *bookingService) cancellationSplit(b *booking.Booking) (fee, refund float64) {
	if !b.PaymentApproved {
		return 0, 0
	}

	inv, err := invoice.ComputeInvoice(invoice.Request{
		ServiceType:    b.ServiceType,
		VehicleType:    b.VehicleType,
		ProtectorCount: b.ProtectorCount,
		Duration:       b.Duration,
	}, "NGN")
	if err != nil {
		return 0, 0
	}
	return b.CancellationSplit(inv.TotalAmount)
}
