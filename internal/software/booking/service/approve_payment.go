package service

import (
	"context"

	"guardline/internal/domain/booking"
	"guardline/internal/domain/message"
	"guardline/internal/ports"
)

// ApprovePayment records a successful payment against an invoice message.
// The flip is idempotent: replays of the same webhook (or a double-tapped
// confirm) return AlreadyApproved without writing a second system message.
// Approving a still-pending booking implicitly accepts it.
func (service *bookingService) ApprovePayment(ctx context.Context, bookingID, invoiceMessageID string) (ports.ApprovePaymentResult, error) {
	ctx = service.logger.WithBookingID(ctx, bookingID)

	var (
		b       *booking.Booking
		sysMsg  *message.Message
		already bool
	)
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		b, err = service.bookingRepo.GetByID(txCtx, bookingID)
		if err != nil {
			return err
		}

		invMsg, err := service.messageRepo.GetByID(txCtx, invoiceMessageID)
		if err != nil {
			return err
		}
		if invMsg.BookingID != b.ID {
			return ErrInvoiceBookingMismatch
		}
		if invMsg.Kind != message.KindInvoice {
			return ErrNotInvoiceMessage
		}

		if b.PaymentApproved {
			already = true
			return nil
		}

		if err := b.ApprovePayment(); err != nil {
			return err
		}

		changed, err := service.bookingRepo.SetPaymentApproved(txCtx, b.ID)
		if err != nil {
			return err
		}
		if !changed {
			// raced another approval between the read and the write
			already = true
			return nil
		}

		if b.Status == booking.StatusAccepted && b.AcceptedAt != nil {
			if err := service.bookingRepo.UpdateStatus(txCtx, b.ID, b.Status, *b.AcceptedAt); err != nil {
				return err
			}
		}

		sysMsg, err = message.NewSystem(b.ID, "Payment approved")
		if err != nil {
			return err
		}
		return service.messageRepo.Insert(txCtx, sysMsg)
	})
	if err != nil {
		service.logger.Error(ctx, "payment_approve_failed", "Failed to approve payment", err, map[string]any{
			"invoice_message_id": invoiceMessageID,
		})
		return ports.ApprovePaymentResult{}, err
	}

	if already {
		service.logger.Info(ctx, "payment_already_approved", "Payment approval replayed", nil)
		return ports.ApprovePaymentResult{
			BookingID:       b.ID,
			Status:          b.Status.String(),
			PaymentApproved: true,
			AlreadyApproved: true,
		}, nil
	}

	service.logger.Info(ctx, "payment_approved", "Payment approved", map[string]any{
		"status": b.Status.String(),
	})

	service.announceMessage(ctx, sysMsg)
	service.publishBookingStatus(ctx, b)

	return ports.ApprovePaymentResult{
		BookingID:       b.ID,
		Status:          b.Status.String(),
		PaymentApproved: true,
	}, nil
}
