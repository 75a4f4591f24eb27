package service

import (
	"context"
	"strconv"

	"guardline/internal/ports"
)

// GetActiveBookings returns a paginated list of active bookings.
func (service *adminService) GetActiveBookings(ctx context.Context, page, pageSize string) (ports.ActiveBookingsResult, error) {
	// convert page and pageSize to integers with fallback defaults
	pageInt, err := strconv.Atoi(page)
	if err != nil || pageInt < 1 {
		pageInt = 1
	}
	sizeInt, err := strconv.Atoi(pageSize)
	if err != nil || sizeInt < 1 {
		sizeInt = 10
	}

	var res ports.ActiveBookingsResult
	res.Page = pageInt
	res.PageSize = sizeInt

	err = service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		// count the active bookings
		nActive, err := service.metrics.CountActive(txCtx)
		if err != nil {
			return err
		}
		res.TotalCount = nActive

		// page slice
		offset := (pageInt - 1) * sizeInt
		rows, err := service.metrics.HydrateActiveRows(txCtx, offset, sizeInt)
		if err != nil {
			return err
		}

		// map to API DTO
		res.Bookings = res.Bookings[:0]
		for _, b := range rows {
			res.Bookings = append(res.Bookings, ports.ActiveBookingRow{
				BookingID:       b.ID,
				BookingNumber:   b.BookingNumber,
				Status:          b.Status.String(),
				ClientID:        b.ClientID,
				OperatorID:      b.OperatorID,
				ServiceType:     b.ServiceType,
				ProtectorCount:  b.ProtectorCount,
				PickupAddress:   b.PickupAddress,
				PaymentApproved: b.PaymentApproved,
				RequestedAt:     b.RequestedAt.UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return ports.ActiveBookingsResult{}, err
	}

	return res, nil
}
