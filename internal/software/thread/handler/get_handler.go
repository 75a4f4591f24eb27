package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"guardline/internal/domain/invoice"
	"guardline/internal/domain/message"
)

// threadMessageView is the wire form of one thread entry. Delivery status is
// included so a client can render pending/failed markers on its own sends.
type threadMessageView struct {
	ID             string           `json:"id"`
	BookingID      string           `json:"booking_id"`
	SenderType     string           `json:"sender_type"`
	SenderID       string           `json:"sender_id"`
	Body           string           `json:"body"`
	Kind           string           `json:"message_kind"`
	IsSystem       bool             `json:"is_system"`
	Invoice        *invoice.Invoice `json:"invoice_data,omitempty"`
	DeliveryStatus string           `json:"delivery_status"`
	CreatedAt      time.Time        `json:"created_at"`
}

type threadResponse struct {
	BookingID string              `json:"booking_id"`
	Messages  []threadMessageView `json:"messages"`
	Count     int                 `json:"count"`
}

func viewOf(m *message.Message) threadMessageView {
	return threadMessageView{
		ID:             m.ID,
		BookingID:      m.BookingID,
		SenderType:     m.SenderType.String(),
		SenderID:       m.SenderID,
		Body:           m.Body,
		Kind:           m.Kind.String(),
		IsSystem:       m.IsSystem,
		Invoice:        m.Invoice,
		DeliveryStatus: m.DeliveryStatus.String(),
		CreatedAt:      m.CreatedAt,
	}
}

// ----- Handler: GET /threads/{booking_id}/messages -----

func (handler *ThreadHTTPHandler) handleGetThread(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID := strings.TrimSpace(r.PathValue("booking_id"))
	if bookingID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "booking_id is required", nil)
		return
	}
	ctx = handler.logger.WithBookingID(ctx, bookingID)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	msgs, err := handler.svc.GetThread(ctxWithTimeout, bookingID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	views := make([]threadMessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, viewOf(m))
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, threadResponse{
		BookingID: bookingID,
		Messages:  views,
		Count:     len(views),
	})
}

// ----- Handler: DELETE /threads/{booking_id} -----

func (handler *ThreadHTTPHandler) handleCloseThread(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID := strings.TrimSpace(r.PathValue("booking_id"))
	if bookingID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "booking_id is required", nil)
		return
	}

	handler.svc.CloseThread(bookingID)
	handler.jsonResponse(ctx, w, http.StatusOK, map[string]string{"booking_id": bookingID, "status": "closed"})
}
