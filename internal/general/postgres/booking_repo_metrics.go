package postgres

import (
	"context"
	"time"

	"guardline/internal/domain/booking"
	"guardline/internal/ports"
)

// activeStatuses are the non-terminal booking states.
const activeStatuses = `('PENDING', 'ACCEPTED', 'EN_ROUTE', 'ARRIVED', 'IN_SERVICE')`

// NewBookingMetricsRepo exposes the aggregate-query side of BookingRepo.
func NewBookingMetricsRepo() ports.BookingMetricsRepository {
	return &BookingRepo{}
}

// CountActive returns the number of bookings in non-terminal states.
func (repo *BookingRepo) CountActive(ctx context.Context) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var n int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM bookings
		WHERE status IN `+activeStatuses+`
	`).Scan(&n)
	if err != nil {
		return 0, err
	}

	return n, nil
}

// CountCreatedBetween returns the number of bookings requested within [start, end).
func (repo *BookingRepo) CountCreatedBetween(ctx context.Context, start, end time.Time) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var n int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM bookings
		WHERE requested_at >= $1 AND requested_at < $2
	`, start, end).Scan(&n)
	if err != nil {
		return 0, err
	}

	return n, nil
}

// CountByStatus returns the number of bookings per status.
func (repo *BookingRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT status, COUNT(*)
		FROM bookings
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// CountPaymentApproved returns the number of active bookings with an approved payment.
func (repo *BookingRepo) CountPaymentApproved(ctx context.Context) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var n int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM bookings
		WHERE payment_approved = TRUE AND status IN `+activeStatuses+`
	`).Scan(&n)
	if err != nil {
		return 0, err
	}

	return n, nil
}

// CancellationRateBetween returns the cancellation rate for bookings whose
// request time falls within [start, end).
func (repo *BookingRepo) CancellationRateBetween(ctx context.Context, start, end time.Time) (float64, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var total, cancelled int64
	err = tx.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE requested_at >= $1 AND requested_at < $2) AS total_cnt,
			COUNT(*) FILTER (WHERE requested_at >= $1 AND requested_at < $2 AND status = 'CANCELLED') AS cancelled_cnt
		FROM bookings
	`, start, end).Scan(&total, &cancelled)
	if err != nil {
		return 0, err
	}

	if total == 0 {
		return 0, nil
	}
	return float64(cancelled) / float64(total), nil
}

// SumCancellationFeesBetween sums the cancellation fees collected within [start, end).
func (repo *BookingRepo) SumCancellationFeesBetween(ctx context.Context, start, end time.Time) (float64, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var sum float64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(cancellation_fee), 0)
		FROM bookings
		WHERE cancelled_at >= $1 AND cancelled_at < $2
	`, start, end).Scan(&sum)
	if err != nil {
		return 0, err
	}

	return sum, nil
}

// AvgAcceptMinutesBetween returns the average request-to-accept latency in
// minutes for bookings requested within [start, end).
func (repo *BookingRepo) AvgAcceptMinutesBetween(ctx context.Context, start, end time.Time) (float64, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var avg float64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (accepted_at - requested_at)) / 60), 0)
		FROM bookings
		WHERE requested_at >= $1 AND requested_at < $2 AND accepted_at IS NOT NULL
	`, start, end).Scan(&avg)
	if err != nil {
		return 0, err
	}

	return avg, nil
}

// HydrateActiveRows returns one page of active bookings, oldest first.
func (repo *BookingRepo) HydrateActiveRows(ctx context.Context, offset, limit int) ([]*booking.Booking, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT
			id, booking_number, client_id, operator_id, status, payment_approved,
			service_type, protector_count, pickup_address, requested_at
		FROM bookings
		WHERE status IN `+activeStatuses+`
		ORDER BY requested_at ASC
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*booking.Booking
	for rows.Next() {
		var b booking.Booking
		var status string
		err := rows.Scan(
			&b.ID, &b.BookingNumber, &b.ClientID, &b.OperatorID, &status, &b.PaymentApproved,
			&b.ServiceType, &b.ProtectorCount, &b.PickupAddress, &b.RequestedAt,
		)
		if err != nil {
			return nil, err
		}
		b.Status = booking.Status(status)
		out = append(out, &b)
	}
	return out, rows.Err()
}
