package booking

import (
	"errors"
	"strings"
	"time"
)

// Booking is the domain entity corresponding to the `bookings` table.
type Booking struct {
	// Identity & audit
	ID            string
	BookingNumber string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Actors
	ClientID   string
	OperatorID *string // nil until an operator takes the request

	// Core state
	Status          Status
	PaymentApproved bool

	// Request details
	ServiceType    string
	VehicleType    string
	ProtectorCount int
	Duration       string // free text, e.g. "2 days", "4 hours"
	PickupAddress  string

	// Lifecycle timestamps
	RequestedAt time.Time
	AcceptedAt  *time.Time
	EnRouteAt   *time.Time
	ArrivedAt   *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	// Cancellation outcome
	CancellationReason *string
	CancellationFee    *float64
	RefundAmount       *float64
}

var (
	ErrClientRequired          = errors.New("client id is required")
	ErrBookingNumberRequired   = errors.New("booking number is required")
	ErrServiceTypeRequired     = errors.New("service type is required")
	ErrProtectorCountInvalid   = errors.New("protector count must be at least 1")
	ErrPickupAddressRequired   = errors.New("pickup address is required")
	ErrInvalidStatusTransition = errors.New("invalid booking status transition")
	ErrPaymentNotApproved      = errors.New("payment has not been approved for this booking")
	ErrPaymentAlreadyApproved  = errors.New("payment is already approved")
	ErrNoOperatorAssigned      = errors.New("no operator assigned")
	ErrOperatorRequired        = errors.New("operator id is required")
)

// NewBooking creates a new booking in PENDING state.
func NewBooking(bookingNumber, clientID, serviceType, vehicleType string, protectorCount int, duration, pickupAddress string) (*Booking, error) {
	if bookingNumber = strings.TrimSpace(bookingNumber); bookingNumber == "" {
		return nil, ErrBookingNumberRequired
	}
	if clientID = strings.TrimSpace(clientID); clientID == "" {
		return nil, ErrClientRequired
	}
	if serviceType = strings.TrimSpace(serviceType); serviceType == "" {
		return nil, ErrServiceTypeRequired
	}
	if protectorCount < 1 {
		return nil, ErrProtectorCountInvalid
	}
	if strings.TrimSpace(pickupAddress) == "" {
		return nil, ErrPickupAddressRequired
	}

	now := time.Now().UTC()
	return &Booking{
		BookingNumber:  bookingNumber,
		CreatedAt:      now,
		UpdatedAt:      now,
		ClientID:       clientID,
		Status:         StatusPending,
		ServiceType:    serviceType,
		VehicleType:    strings.TrimSpace(vehicleType),
		ProtectorCount: protectorCount,
		Duration:       strings.TrimSpace(duration),
		PickupAddress:  strings.TrimSpace(pickupAddress),
		RequestedAt:    now,
	}, nil
}

// Accept moves PENDING -> ACCEPTED and records the operator taking the request.
func (b *Booking) Accept(operatorID string) error {
	if operatorID = strings.TrimSpace(operatorID); operatorID == "" {
		return ErrOperatorRequired
	}
	if b.Status != StatusPending {
		return ErrInvalidStatusTransition
	}

	b.OperatorID = &operatorID
	now := time.Now().UTC()
	b.AcceptedAt = &now
	b.setStatus(StatusAccepted)
	return nil
}

// ApprovePayment flips the payment gate exactly once. When the booking is
// still PENDING the approval implicitly accepts it, so the operator can
// dispatch without a separate confirm step.
func (b *Booking) ApprovePayment() error {
	if b.PaymentApproved {
		return ErrPaymentAlreadyApproved
	}
	if b.Status.Terminal() {
		return ErrInvalidStatusTransition
	}

	b.PaymentApproved = true
	if b.Status == StatusPending {
		now := time.Now().UTC()
		b.AcceptedAt = &now
		b.setStatus(StatusAccepted)
		return nil
	}
	b.touch()
	return nil
}

// Dispatch transitions ACCEPTED -> EN_ROUTE. The transition is gated on an
// approved payment; when the gate fails nothing on the booking changes.
func (b *Booking) Dispatch() error {
	if b.Status != StatusAccepted {
		return ErrInvalidStatusTransition
	}
	if !b.PaymentApproved {
		return ErrPaymentNotApproved
	}
	now := time.Now().UTC()
	b.EnRouteAt = &now
	b.setStatus(StatusEnRoute)
	return nil
}

// MarkArrived transitions EN_ROUTE -> ARRIVED.
func (b *Booking) MarkArrived() error {
	if b.Status != StatusEnRoute {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	b.ArrivedAt = &now
	b.setStatus(StatusArrived)
	return nil
}

// StartService transitions ARRIVED -> IN_SERVICE.
func (b *Booking) StartService() error {
	if b.Status != StatusArrived {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	b.StartedAt = &now
	b.setStatus(StatusInService)
	return nil
}

// Complete transitions IN_SERVICE -> COMPLETED.
func (b *Booking) Complete() error {
	if b.Status != StatusInService {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	b.CompletedAt = &now
	b.setStatus(StatusCompleted)
	return nil
}

// Cancel transitions to CANCELLED (if not terminal). When a payment exists,
// fee and refund carry the split computed by CancellationSplit.
func (b *Booking) Cancel(reason string, fee, refund float64) error {
	if b.Status.Terminal() {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	b.CancelledAt = &now
	if rs := strings.TrimSpace(reason); rs != "" {
		b.CancellationReason = &rs
	}
	if b.PaymentApproved {
		b.CancellationFee = &fee
		b.RefundAmount = &refund
	}
	b.setStatus(StatusCancelled)
	return nil
}

// CancellationSplit returns the (fee, refund) deduction for cancelling this
// booking against a paid invoice total. Before the team is dispatched the
// deduction is 30%; from EN_ROUTE onward it is 50%. Without an approved payment
// both parts are zero.
func (b *Booking) CancellationSplit(invoiceTotal float64) (fee, refund float64) {
	if !b.PaymentApproved || invoiceTotal <= 0 {
		return 0, 0
	}

	rate := 0.30
	switch b.Status {
	case StatusEnRoute, StatusArrived, StatusInService:
		rate = 0.50
	}

	fee = invoiceTotal * rate
	return fee, invoiceTotal - fee
}

// ----- internal helpers -----

func (b *Booking) setStatus(status Status) {
	b.Status = status
	b.touch()
}

func (b *Booking) touch() {
	b.UpdatedAt = time.Now().UTC()
}
