package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"guardline/internal/domain/booking"
	"guardline/internal/domain/message"
	"guardline/internal/general/contracts"
)

// generateBookingNumber returns an ID like: BKG_YYYYMMDD_HHMMSS_XXX
// where XXX is a millisecond fragment to reduce collisions.
func generateBookingNumber() string {
	now := time.Now().UTC()
	return fmt.Sprintf("BKG_%04d%02d%02d_%02d%02d%02d_%03d",
		now.Year(), int(now.Month()), now.Day(),
		now.Hour(), now.Minute(), now.Second(),
		now.Nanosecond()/1e6, // ms
	)
}

// generateCorrelationID creates a simple correlation ID for tracing requests.
func generateCorrelationID() string {
	var b [3]byte // 6 hex chars
	_, _ = rand.Read(b[:])
	ts := time.Now().UTC().Format("20060102T150405")
	return "req_" + ts + "_" + hex.EncodeToString(b[:])
}

// announceMessage publishes a committed message on the change feed so open
// thread sessions see it without waiting for their next poll. Best-effort:
// the reconciler closes the gap when the announce is lost.
func (service *bookingService) announceMessage(ctx context.Context, m *message.Message) {
	if service.feed == nil || m == nil {
		return
	}
	if err := service.feed.PublishMessage(ctx, m); err != nil {
		service.logger.Error(ctx, "thread_announce_failed",
			"Failed to announce system message on change feed", err,
			map[string]any{"booking_id": m.BookingID, "message_id": m.ID})
	}
}

// publishBookingStatus announces a lifecycle change on the booking topic
// exchange (routing key booking.status.{status}, e.g. booking.status.accepted)
// and pushes it to any WebSocket watchers of the booking.
func (service *bookingService) publishBookingStatus(ctx context.Context, b *booking.Booking) {
	if service.watchers != nil {
		service.watchers.PushBookingStatus(ctx, contracts.WSBookingStatus{
			Type:          "booking_status",
			BookingID:     b.ID,
			BookingNumber: b.BookingNumber,
			Status:        b.Status.String(),
			SentAt:        time.Now().UTC(),
		})
	}

	if service.pub == nil {
		return
	}

	msg := contracts.BookingStatusMessage{
		BookingID:     b.ID,
		BookingNumber: b.BookingNumber,
		Status:        b.Status.String(),
		Timestamp:     time.Now().UTC(),
		Envelope: contracts.Envelope{
			CorrelationID: generateCorrelationID(),
			Producer:      "booking-service",
			SentAt:        time.Now().UTC(),
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		service.logger.Error(ctx, "booking_status_encode_failed", "Failed to marshal booking status", err, nil)
		return
	}

	routingKey := contracts.RouteBookingStatusPrefix + strings.ToLower(b.Status.String())
	if err := service.pub.Publish(contracts.ExchangeBookingTopic, routingKey, body); err != nil {
		service.logger.Error(ctx, "booking_status_publish_failed",
			"Failed to publish booking status", err,
			map[string]any{"booking_id": b.ID, "routing_key": routingKey})
		return
	}

	service.logger.Info(ctx, "booking_status_published", "Published booking status update", map[string]any{
		"booking_id":  b.ID,
		"status":      b.Status.String(),
		"routing_key": routingKey,
	})
}

// systemText returns the system-message body recorded for a transition.
func systemText(action booking.Action, b *booking.Booking) string {
	switch action {
	case booking.ActionConfirm:
		return "Booking accepted"
	case booking.ActionDispatch:
		return "Protection team deployed"
	case booking.ActionMarkArrived:
		return "Protection team has arrived"
	case booking.ActionStartService:
		return "Protection service started"
	case booking.ActionComplete:
		return "Protection service completed"
	case booking.ActionCancel:
		if b.CancellationFee != nil && b.RefundAmount != nil {
			return fmt.Sprintf("Booking cancelled. Cancellation fee: NGN %.2f, refund: NGN %.2f",
				*b.CancellationFee, *b.RefundAmount)
		}
		return "Booking cancelled"
	default:
		return "Booking updated"
	}
}
