package contracts

import (
	"time"

	"guardline/internal/domain/invoice"
	"guardline/internal/domain/message"
)

// ThreadMessageEvent is published on ExchangeThreadTopic with routing key
// "thread.message.{booking_id}" after a message row commits. It is the wire
// form of one persisted thread message.
type ThreadMessageEvent struct {
	MessageID  string           `json:"message_id"`
	BookingID  string           `json:"booking_id"`
	SenderType string           `json:"sender_type"` // CLIENT|OPERATOR|SYSTEM
	SenderID   string           `json:"sender_id"`
	Body       string           `json:"body"`
	Kind       string           `json:"message_kind"` // TEXT|INVOICE
	IsSystem   bool             `json:"is_system"`
	Invoice    *invoice.Invoice `json:"invoice_data,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	Envelope
}

// FromMessage builds the wire event for a persisted message.
func FromMessage(m *message.Message) ThreadMessageEvent {
	return ThreadMessageEvent{
		MessageID:  m.ID,
		BookingID:  m.BookingID,
		SenderType: m.SenderType.String(),
		SenderID:   m.SenderID,
		Body:       m.Body,
		Kind:       m.Kind.String(),
		IsSystem:   m.IsSystem,
		Invoice:    m.Invoice,
		CreatedAt:  m.CreatedAt,
	}
}

// ToMessage converts the wire event back into the domain message. Messages
// arriving over the feed are by definition already persisted, so the
// delivery status is SENT.
func (e ThreadMessageEvent) ToMessage() *message.Message {
	return &message.Message{
		ID:             e.MessageID,
		BookingID:      e.BookingID,
		SenderType:     message.SenderType(e.SenderType),
		SenderID:       e.SenderID,
		Body:           e.Body,
		Kind:           message.Kind(e.Kind),
		IsSystem:       e.IsSystem,
		Invoice:        e.Invoice,
		CreatedAt:      e.CreatedAt,
		DeliveryStatus: message.DeliverySent,
	}
}

// BookingStatusMessage is published by the booking service on
// ExchangeBookingTopic with routing key "booking.status.{status}".
type BookingStatusMessage struct {
	BookingID     string    `json:"booking_id"`
	BookingNumber string    `json:"booking_number"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Envelope
}
