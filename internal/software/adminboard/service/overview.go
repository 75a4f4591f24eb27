package service

import (
	"context"
	"time"

	"guardline/internal/ports"
)

// GetSystemOverview collects a set of aggregate metrics about the current state of the system.
func (service *adminService) GetSystemOverview(ctx context.Context) (ports.SystemOverviewResult, error) {
	// create a new system overview result struct
	var res ports.SystemOverviewResult
	now := time.Now().UTC()
	res.Timestamp = now

	// define the start and end of the day
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	endOfDay := startOfDay.Add(24 * time.Hour)

	// collect the metrics within a transaction
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		// count the active bookings
		nActive, err := service.metrics.CountActive(txCtx)
		if err != nil {
			return err
		}
		res.Metrics.ActiveBookings = nActive

		// count the total bookings today
		totalToday, err := service.metrics.CountCreatedBetween(txCtx, startOfDay, endOfDay)
		if err != nil {
			return err
		}
		res.Metrics.TotalBookingsToday = totalToday

		// calculate the cancellation rate today
		cancelRate, err := service.metrics.CancellationRateBetween(txCtx, startOfDay, endOfDay)
		if err != nil {
			return err
		}
		res.Metrics.CancellationRate = cancelRate

		// sum the cancellation fees collected today
		feesToday, err := service.metrics.SumCancellationFeesBetween(txCtx, startOfDay, endOfDay)
		if err != nil {
			return err
		}
		res.Metrics.CancellationFeesToday = feesToday

		// calculate the average request-to-accept latency today
		avgAccept, err := service.metrics.AvgAcceptMinutesBetween(txCtx, startOfDay, endOfDay)
		if err != nil {
			return err
		}
		res.Metrics.AverageAcceptMinutes = avgAccept

		// count the active bookings already paid for
		nPaid, err := service.metrics.CountPaymentApproved(txCtx)
		if err != nil {
			return err
		}
		res.Metrics.PaymentApprovedBookings = nPaid

		// break the population down by status
		dist, err := service.metrics.CountByStatus(txCtx)
		if err != nil {
			return err
		}
		res.StatusDistribution = dist

		return nil
	})
	if err != nil {
		return ports.SystemOverviewResult{}, err
	}

	return res, nil
}
