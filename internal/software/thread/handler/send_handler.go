package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"guardline/internal/domain/message"
	"guardline/internal/general/jwt"
)

type sendMessageRequest struct {
	Body string `json:"body"`
}

// ----- Handler: POST /threads/{booking_id}/messages -----

// The send is optimistic: 202 means the message was accepted into the local
// thread, not that it reached the store. Delivery status on subsequent reads
// (or the websocket push) reports the outcome.
func (handler *ThreadHTTPHandler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID := strings.TrimSpace(r.PathValue("booking_id"))
	if bookingID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "booking_id is required", nil)
		return
	}
	ctx = handler.logger.WithBookingID(ctx, bookingID)

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10) // 64 KiB per chat message
	defer r.Body.Close()

	var req sendMessageRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	senderType := message.SenderClient
	if claims.Role.IsOperator() {
		senderType = message.SenderOperator
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := handler.svc.Send(ctxWithTimeout, bookingID, senderType, strings.TrimSpace(claims.Subject), req.Body); err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusAccepted, map[string]string{
		"booking_id": bookingID,
		"status":     "accepted",
	})
}
