package service

import (
	"context"

	"guardline/internal/domain/booking"
	"guardline/internal/domain/invoice"
	"guardline/internal/ports"
)

// PreviewCancellation computes the fee/refund split a cancellation would
// apply right now, without mutating anything. Terminal bookings cannot be
// cancelled, so previewing one is a state error.
func (service *bookingService) PreviewCancellation(ctx context.Context, bookingID string) (ports.CancelPreviewResult, error) {
	var b *booking.Booking
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		b, err = service.bookingRepo.GetByID(txCtx, bookingID)
		return err
	})
	if err != nil {
		return ports.CancelPreviewResult{}, err
	}
	if b.Status.Terminal() {
		return ports.CancelPreviewResult{}, booking.ErrInvalidStatusTransition
	}

	out := ports.CancelPreviewResult{BookingID: b.ID, Currency: "NGN"}
	if !b.PaymentApproved {
		return out, nil
	}

	inv, err := invoice.ComputeInvoice(invoice.Request{
		ServiceType:    b.ServiceType,
		VehicleType:    b.VehicleType,
		ProtectorCount: b.ProtectorCount,
		Duration:       b.Duration,
	}, "NGN")
	if err != nil {
		return ports.CancelPreviewResult{}, err
	}

	out.CancellationFee, out.RefundAmount = b.CancellationSplit(inv.TotalAmount)
	return out, nil
}
