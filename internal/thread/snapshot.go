package thread

import (
	"encoding/json"

	"guardline/internal/domain/invoice"
	"guardline/internal/domain/message"
)

// fromMessage converts a cached message into its persisted wire form.
func fromMessage(m *message.Message, seq uint64) (snapshotEntry, error) {
	se := snapshotEntry{
		ID:             m.ID,
		SenderType:     m.SenderType.String(),
		SenderID:       m.SenderID,
		Body:           m.Body,
		Kind:           m.Kind.String(),
		IsSystem:       m.IsSystem,
		CreatedAt:      m.CreatedAt,
		DeliveryStatus: m.DeliveryStatus.String(),
		Seq:            seq,
	}
	if m.Invoice != nil {
		raw, err := json.Marshal(m.Invoice)
		if err != nil {
			return snapshotEntry{}, err
		}
		se.InvoiceJSON = raw
	}
	return se, nil
}

// toMessage converts a persisted snapshot entry back into a domain message.
func (se snapshotEntry) toMessage(bookingID string) (*message.Message, error) {
	m := &message.Message{
		ID:             se.ID,
		BookingID:      bookingID,
		SenderType:     message.SenderType(se.SenderType),
		SenderID:       se.SenderID,
		Body:           se.Body,
		Kind:           message.Kind(se.Kind),
		IsSystem:       se.IsSystem,
		CreatedAt:      se.CreatedAt,
		DeliveryStatus: message.DeliveryStatus(se.DeliveryStatus),
	}
	if len(se.InvoiceJSON) > 0 {
		var inv invoice.Invoice
		if err := json.Unmarshal(se.InvoiceJSON, &inv); err != nil {
			return nil, err
		}
		m.Invoice = &inv
	}
	if !m.DeliveryStatus.Valid() {
		m.DeliveryStatus = message.DeliverySent
	}
	return m, nil
}
