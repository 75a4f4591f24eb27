package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guardline/internal/domain/booking"
	"guardline/internal/ports"

	"github.com/jackc/pgx/v5"
)

// BookingRepo persists bookings using pgx and plain SQL.
type BookingRepo struct{}

// NewBookingRepo constructs a new BookingRepo.
func NewBookingRepo() ports.BookingRepository {
	return &BookingRepo{}
}

// Create inserts a new booking row.
func (repo *BookingRepo) Create(ctx context.Context, b *booking.Booking) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	// insert only the columns we actually have values for at creation time
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (
			booking_number, client_id, status, payment_approved,
			service_type, vehicle_type, protector_count, duration, pickup_address
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at, requested_at
	`,
		b.BookingNumber,
		b.ClientID,
		b.Status.String(), // typically "PENDING"
		b.PaymentApproved,
		b.ServiceType,
		b.VehicleType,
		b.ProtectorCount,
		b.Duration,
		b.PickupAddress,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt, &b.RequestedAt)
	if err != nil {
		return err
	}

	return nil
}

// GetByID fetches a booking by primary key (uuid).
func (repo *BookingRepo) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var out booking.Booking
	var status string

	err = tx.QueryRow(ctx, `
		SELECT
			id, created_at, updated_at, booking_number, client_id, operator_id,
			status, payment_approved, service_type, vehicle_type, protector_count,
			duration, pickup_address, requested_at, accepted_at, en_route_at,
			arrived_at, started_at, completed_at, cancelled_at,
			cancellation_reason, cancellation_fee, refund_amount
		FROM bookings
		WHERE id = $1
	`, id).Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt, &out.BookingNumber, &out.ClientID, &out.OperatorID,
		&status, &out.PaymentApproved, &out.ServiceType, &out.VehicleType, &out.ProtectorCount,
		&out.Duration, &out.PickupAddress, &out.RequestedAt, &out.AcceptedAt, &out.EnRouteAt,
		&out.ArrivedAt, &out.StartedAt, &out.CompletedAt, &out.CancelledAt,
		&out.CancellationReason, &out.CancellationFee, &out.RefundAmount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking by id: %w", err)
	}
	out.Status = booking.Status(status)

	return &out, nil
}

// UpdateStatus persists a status change together with its lifecycle timestamp.
func (repo *BookingRepo) UpdateStatus(ctx context.Context, id string, status booking.Status, ts time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	// each visible status owns one timestamp column
	col := ""
	switch status {
	case booking.StatusAccepted:
		col = "accepted_at"
	case booking.StatusEnRoute:
		col = "en_route_at"
	case booking.StatusArrived:
		col = "arrived_at"
	case booking.StatusInService:
		col = "started_at"
	case booking.StatusCompleted:
		col = "completed_at"
	case booking.StatusCancelled:
		col = "cancelled_at"
	}

	query := `UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3`
	if col != "" {
		query = fmt.Sprintf(`UPDATE bookings SET status = $1, updated_at = $2, %s = $2 WHERE id = $3`, col)
	}

	ct, err := tx.Exec(ctx, query, status.String(), ts, id)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ports.ErrBookingNotFound
	}
	return nil
}

// SetOperator records the operator taking the request.
func (repo *BookingRepo) SetOperator(ctx context.Context, id, operatorID string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	ct, err := tx.Exec(ctx, `
		UPDATE bookings SET operator_id = $1, updated_at = now() WHERE id = $2
	`, operatorID, id)
	if err != nil {
		return fmt.Errorf("set booking operator: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ports.ErrBookingNotFound
	}
	return nil
}

// SetPaymentApproved flips the payment gate. The WHERE clause keeps the write
// idempotent: a second call matches no row and reports zero rows changed.
func (repo *BookingRepo) SetPaymentApproved(ctx context.Context, id string) (changed bool, err error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	ct, err := tx.Exec(ctx, `
		UPDATE bookings
		SET payment_approved = TRUE, updated_at = now()
		WHERE id = $1 AND payment_approved = FALSE
	`, id)
	if err != nil {
		return false, fmt.Errorf("set payment approved: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// Cancel records the cancellation outcome (reason plus fee/refund split).
func (repo *BookingRepo) Cancel(ctx context.Context, id, reason string, fee, refund *float64, cancelledAt time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	ct, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = $1, cancellation_reason = $2, cancellation_fee = $3,
		    refund_amount = $4, cancelled_at = $5, updated_at = $5
		WHERE id = $6
	`, booking.StatusCancelled.String(), reason, fee, refund, cancelledAt, id)
	if err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ports.ErrBookingNotFound
	}
	return nil
}
