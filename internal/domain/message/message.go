package message

import (
	"errors"
	"strings"
	"time"

	"guardline/internal/domain/invoice"
)

// Message is the domain entity corresponding to the `messages` table.
// Before the store acknowledges a send the ID holds a client temp id
// (see IsTemp); once persisted it holds the server uuid.
type Message struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time

	// Foreign keys
	BookingID string

	// Core payload
	SenderType SenderType
	SenderID   string
	Body       string
	Kind       Kind
	IsSystem   bool
	Invoice    *invoice.Invoice // set only for KindInvoice

	// Local delivery bookkeeping. Never written to the store as-is; it only
	// lives in thread caches and their durable snapshots.
	DeliveryStatus DeliveryStatus
}

var (
	ErrBookingIDRequired = errors.New("booking id is required")
	ErrSenderIDRequired  = errors.New("sender id is required")
	ErrEmptyBody         = errors.New("message body must not be empty")
	ErrInvoiceDataNil    = errors.New("invoice message requires invoice data")
)

// TempIDPrefix marks locally synthesized ids of not-yet-acknowledged sends.
const TempIDPrefix = "tmp_"

// New constructs a chat message authored by a client or operator.
func New(bookingID string, senderType SenderType, senderID, body string) (*Message, error) {
	if bookingID = strings.TrimSpace(bookingID); bookingID == "" {
		return nil, ErrBookingIDRequired
	}
	if !senderType.Valid() {
		return nil, ErrInvalidSenderType
	}
	if senderID = strings.TrimSpace(senderID); senderID == "" {
		return nil, ErrSenderIDRequired
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}

	return &Message{
		BookingID:      bookingID,
		SenderType:     senderType,
		SenderID:       senderID,
		Body:           body,
		Kind:           KindText,
		CreatedAt:      time.Now().UTC(),
		DeliveryStatus: DeliverySent,
	}, nil
}

// NewInvoice constructs an operator-authored message carrying an invoice.
func NewInvoice(bookingID, operatorID, body string, inv *invoice.Invoice) (*Message, error) {
	msg, err := New(bookingID, SenderOperator, operatorID, body)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvoiceDataNil
	}
	msg.Kind = KindInvoice
	msg.Invoice = inv
	return msg, nil
}

// NewSystem constructs a system message recording a lifecycle event.
func NewSystem(bookingID, body string) (*Message, error) {
	if bookingID = strings.TrimSpace(bookingID); bookingID == "" {
		return nil, ErrBookingIDRequired
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}

	return &Message{
		BookingID:      bookingID,
		SenderType:     SenderSystem,
		SenderID:       "system",
		Body:           body,
		Kind:           KindText,
		IsSystem:       true,
		CreatedAt:      time.Now().UTC(),
		DeliveryStatus: DeliverySent,
	}, nil
}

// Validate performs basic invariant checks mirroring DB constraints.
func (m *Message) Validate() error {
	if m.BookingID == "" {
		return ErrBookingIDRequired
	}
	if !m.SenderType.Valid() {
		return ErrInvalidSenderType
	}
	if strings.TrimSpace(m.Body) == "" {
		return ErrEmptyBody
	}
	if m.Kind == KindInvoice && m.Invoice == nil {
		return ErrInvoiceDataNil
	}
	return nil
}

// IsTemp reports whether the message still carries a client temp id.
func (m *Message) IsTemp() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// Clone returns a shallow copy so cache snapshots cannot alias callers.
func (m *Message) Clone() *Message {
	cp := *m
	if m.Invoice != nil {
		inv := *m.Invoice
		cp.Invoice = &inv
	}
	return &cp
}
