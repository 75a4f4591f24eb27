package ports

import (
	"context"
	"time"

	"guardline/internal/domain/booking"
	"guardline/internal/domain/message"
)

// ----- DTOs for Booking Service -----

// CreateBookingInput is the validated input required to create a booking.
type CreateBookingInput struct {
	ClientID       string
	ServiceType    string
	VehicleType    string
	ProtectorCount int
	Duration       string
	PickupAddress  string
}

// CreateBookingResult is returned by BookingService.CreateBooking().
type CreateBookingResult struct {
	BookingID     string `json:"booking_id"`
	BookingNumber string `json:"booking_number"`
	Status        string `json:"status"`
}

// TransitionResult is returned by BookingService.Transition().
type TransitionResult struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// SendInvoiceInput is the operator action attaching a priced invoice message.
type SendInvoiceInput struct {
	BookingID  string
	OperatorID string
	Currency   string
}

// SendInvoiceResult is returned by BookingService.SendInvoice().
type SendInvoiceResult struct {
	MessageID   string  `json:"message_id"`
	TotalAmount float64 `json:"total_amount"`
	Currency    string  `json:"currency"`
	PaymentURL  string  `json:"payment_url"`
}

// ApprovePaymentResult is returned by BookingService.ApprovePayment().
type ApprovePaymentResult struct {
	BookingID       string `json:"booking_id"`
	Status          string `json:"status"`
	PaymentApproved bool   `json:"payment_approved"`
	AlreadyApproved bool   `json:"already_approved"`
}

// CancelPreviewResult shows the deduction/refund split before a cancellation
// against a paid invoice is confirmed.
type CancelPreviewResult struct {
	BookingID       string  `json:"booking_id"`
	CancellationFee float64 `json:"cancellation_fee"`
	RefundAmount    float64 `json:"refund_amount"`
	Currency        string  `json:"currency"`
}

// ----- Booking Service Interface -----

// BookingService exposes the booking lifecycle and the payment gate.
type BookingService interface {
	CreateBooking(ctx context.Context, in CreateBookingInput) (CreateBookingResult, error)
	Transition(ctx context.Context, bookingID string, action booking.Action, actorID, reason string) (TransitionResult, error)
	SendInvoice(ctx context.Context, in SendInvoiceInput) (SendInvoiceResult, error)
	ApprovePayment(ctx context.Context, bookingID, invoiceMessageID string) (ApprovePaymentResult, error)
	PreviewCancellation(ctx context.Context, bookingID string) (CancelPreviewResult, error)
}

// ----- DTOs for Admin Service -----

// SystemOverviewResult aggregates the live booking metrics shown on the
// admin dashboard.
type SystemOverviewResult struct {
	Timestamp time.Time `json:"timestamp"`
	Metrics   struct {
		ActiveBookings          int     `json:"active_bookings"`
		TotalBookingsToday      int     `json:"total_bookings_today"`
		CancellationRate        float64 `json:"cancellation_rate"`
		CancellationFeesToday   float64 `json:"cancellation_fees_today"`
		AverageAcceptMinutes    float64 `json:"average_accept_minutes"`
		PaymentApprovedBookings int     `json:"payment_approved_bookings"`
	} `json:"metrics"`
	StatusDistribution map[string]int `json:"status_distribution"`
}

// ActiveBookingRow is one row of the paginated active bookings listing.
type ActiveBookingRow struct {
	BookingID       string    `json:"booking_id"`
	BookingNumber   string    `json:"booking_number"`
	Status          string    `json:"status"`
	ClientID        string    `json:"client_id"`
	OperatorID      *string   `json:"operator_id,omitempty"`
	ServiceType     string    `json:"service_type"`
	ProtectorCount  int       `json:"protector_count"`
	PickupAddress   string    `json:"pickup_address"`
	PaymentApproved bool      `json:"payment_approved"`
	RequestedAt     time.Time `json:"requested_at"`
}

// ActiveBookingsResult is the paginated active bookings listing.
type ActiveBookingsResult struct {
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	TotalCount int                `json:"total_count"`
	Bookings   []ActiveBookingRow `json:"bookings"`
}

// ----- Admin Service Interface -----

// AdminService exposes read-only aggregate views for the dashboard.
type AdminService interface {
	GetSystemOverview(ctx context.Context) (SystemOverviewResult, error)
	GetActiveBookings(ctx context.Context, page, pageSize string) (ActiveBookingsResult, error)
}

// ----- Thread Service Interface -----

// ThreadService exposes the per-booking thread: the ordered message list and
// the fire-and-forget optimistic send. Consumers observe send outcomes via
// thread updates, not via the Send return.
type ThreadService interface {
	GetThread(ctx context.Context, bookingID string) ([]*message.Message, error)
	Send(ctx context.Context, bookingID string, sender message.SenderType, senderID, body string) error
	CloseThread(bookingID string)
	Shutdown()
}
