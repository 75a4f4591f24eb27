package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"guardline/internal/general/jwt"
	"guardline/internal/ports"
)

type sendInvoiceRequest struct {
	Currency string `json:"currency"` // NGN | USD | EUR | GBP
}

type approvePaymentRequest struct {
	InvoiceMessageID string `json:"invoice_message_id"`
}

// ----- Handler: POST /bookings/{booking_id}/invoice -----

func (handler *BookingHTTPHandler) handleSendInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID := strings.TrimSpace(r.PathValue("booking_id"))
	if bookingID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "booking_id is required", nil)
		return
	}
	ctx = handler.logger.WithBookingID(ctx, bookingID)

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	var req sendInvoiceRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}
	if strings.TrimSpace(req.Currency) == "" {
		req.Currency = "NGN"
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.SendInvoice(ctxWithTimeout, ports.SendInvoiceInput{
		BookingID:  bookingID,
		OperatorID: strings.TrimSpace(claims.Subject),
		Currency:   req.Currency,
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusCreated, res)
}

// ----- Handler: POST /bookings/{booking_id}/payment/approve -----

func (handler *BookingHTTPHandler) handleApprovePayment(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID := strings.TrimSpace(r.PathValue("booking_id"))
	if bookingID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "booking_id is required", nil)
		return
	}
	ctx = handler.logger.WithBookingID(ctx, bookingID)

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	var req approvePaymentRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}
	if strings.TrimSpace(req.InvoiceMessageID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "invoice_message_id is required", nil)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.ApprovePayment(ctxWithTimeout, bookingID, strings.TrimSpace(req.InvoiceMessageID))
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
