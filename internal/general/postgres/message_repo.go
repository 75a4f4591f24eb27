package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"guardline/internal/domain/invoice"
	"guardline/internal/domain/message"
	"guardline/internal/ports"
)

// MessageRepo persists thread messages using pgx and plain SQL.
type MessageRepo struct{}

// NewMessageRepo constructs a new MessageRepo.
func NewMessageRepo() ports.MessageRepository {
	return &MessageRepo{}
}

// Insert appends a messages row and fills in the server id and timestamp.
// The local delivery status is deliberately not a column.
func (repo *MessageRepo) Insert(ctx context.Context, m *message.Message) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if err := m.Validate(); err != nil {
		return err
	}

	var invoiceJSON *string
	if m.Invoice != nil {
		raw, err := json.Marshal(m.Invoice)
		if err != nil {
			return fmt.Errorf("marshal invoice data: %w", err)
		}
		s := string(raw)
		invoiceJSON = &s
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (booking_id, sender_type, sender_id, body, message_kind, is_system, invoice_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		RETURNING id, created_at
	`,
		m.BookingID,
		m.SenderType.String(),
		m.SenderID,
		m.Body,
		m.Kind.String(),
		m.IsSystem,
		invoiceJSON,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	m.DeliveryStatus = message.DeliverySent
	return nil
}

// ListByBooking returns the authoritative ordered message set for a thread.
// A nil since fetches the full history; otherwise only rows created after it.
// Ordering is created_at ascending with the server id as tie-break.
func (repo *MessageRepo) ListByBooking(ctx context.Context, bookingID string, since *time.Time) ([]*message.Message, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, booking_id, sender_type, sender_id, body, message_kind, is_system, invoice_data, created_at
		FROM messages
		WHERE booking_id = $1
		ORDER BY created_at ASC, id ASC`
	args := []any{bookingID}
	if since != nil {
		query = `
		SELECT id, booking_id, sender_type, sender_id, body, message_kind, is_system, invoice_data, created_at
		FROM messages
		WHERE booking_id = $1 AND created_at > $2
		ORDER BY created_at ASC, id ASC`
		args = append(args, *since)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*message.Message
	for rows.Next() {
		var m message.Message
		var senderType, kind string
		var invoiceJSON []byte
		if err := rows.Scan(
			&m.ID, &m.BookingID, &senderType, &m.SenderID, &m.Body,
			&kind, &m.IsSystem, &invoiceJSON, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SenderType = message.SenderType(senderType)
		m.Kind = message.Kind(kind)
		m.DeliveryStatus = message.DeliverySent
		if len(invoiceJSON) > 0 {
			var inv invoice.Invoice
			if err := json.Unmarshal(invoiceJSON, &inv); err != nil {
				return nil, fmt.Errorf("unmarshal invoice data: %w", err)
			}
			m.Invoice = &inv
		}
		out = append(out, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}

// GetByID fetches a single message (used by the payment approval flow to
// verify the invoice message exists and belongs to the booking).
func (repo *MessageRepo) GetByID(ctx context.Context, id string) (*message.Message, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var m message.Message
	var senderType, kind string
	var invoiceJSON []byte
	err = tx.QueryRow(ctx, `
		SELECT id, booking_id, sender_type, sender_id, body, message_kind, is_system, invoice_data, created_at
		FROM messages
		WHERE id = $1
	`, id).Scan(
		&m.ID, &m.BookingID, &senderType, &m.SenderID, &m.Body,
		&kind, &m.IsSystem, &invoiceJSON, &m.CreatedAt,
	)
	if err != nil {
		return nil, ports.ErrMessageNotFound
	}
	m.SenderType = message.SenderType(senderType)
	m.Kind = message.Kind(kind)
	m.DeliveryStatus = message.DeliverySent
	if len(invoiceJSON) > 0 {
		var inv invoice.Invoice
		if err := json.Unmarshal(invoiceJSON, &inv); err != nil {
			return nil, fmt.Errorf("unmarshal invoice data: %w", err)
		}
		m.Invoice = &inv
	}

	return &m, nil
}
