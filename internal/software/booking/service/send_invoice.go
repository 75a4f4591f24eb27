package service

import (
	"context"
	"errors"
	"fmt"

	"guardline/internal/domain/booking"
	"guardline/internal/domain/invoice"
	"guardline/internal/domain/message"
	"guardline/internal/ports"
)

var ErrInvoiceNotAllowed = errors.New("invoice can only be sent for a pending or accepted booking")

// SendInvoice prices the booking and attaches the invoice to the thread as
// an operator message. The payment URL is deterministic so a re-sent invoice
// points the client at the same checkout.
func (service *bookingService) SendInvoice(ctx context.Context, in ports.SendInvoiceInput) (ports.SendInvoiceResult, error) {
	ctx = service.logger.WithBookingID(ctx, in.BookingID)

	var (
		inv *invoice.Invoice
		msg *message.Message
	)
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		b, err := service.bookingRepo.GetByID(txCtx, in.BookingID)
		if err != nil {
			return err
		}
		if b.Status != booking.StatusPending && b.Status != booking.StatusAccepted {
			return ErrInvoiceNotAllowed
		}

		inv, err = invoice.ComputeInvoice(invoice.Request{
			ServiceType:    b.ServiceType,
			VehicleType:    b.VehicleType,
			ProtectorCount: b.ProtectorCount,
			Duration:       b.Duration,
		}, in.Currency)
		if err != nil {
			return err
		}

		msg, err = message.NewInvoice(b.ID, in.OperatorID, inv.Breakdown(), inv)
		if err != nil {
			return err
		}
		return service.messageRepo.Insert(txCtx, msg)
	})
	if err != nil {
		service.logger.Error(ctx, "invoice_send_failed", "Failed to send invoice", err, nil)
		return ports.SendInvoiceResult{}, err
	}

	service.logger.Info(ctx, "invoice_sent", "Invoice attached to thread", map[string]any{
		"message_id":   msg.ID,
		"total_amount": inv.TotalAmount,
		"currency":     inv.Currency,
	})

	service.announceMessage(ctx, msg)

	return ports.SendInvoiceResult{
		MessageID:   msg.ID,
		TotalAmount: inv.TotalAmount,
		Currency:    inv.Currency,
		PaymentURL:  paymentURL(msg.ID),
	}, nil
}

// paymentURL builds the checkout link embedded in the invoice response.
func paymentURL(invoiceMessageID string) string {
	return fmt.Sprintf("https://pay.guardline.app/checkout/%s", invoiceMessageID)
}
