package handler

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// ----- Handler: GET /bookings/{booking_id}/cancel-preview -----

func (handler *BookingHTTPHandler) handleCancelPreview(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID := strings.TrimSpace(r.PathValue("booking_id"))
	if bookingID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "booking_id is required", nil)
		return
	}
	ctx = handler.logger.WithBookingID(ctx, bookingID)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.PreviewCancellation(ctxWithTimeout, bookingID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
