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

// --- Request DTO (HTTP boundary) ---

type createBookingRequest struct {
	ClientID       string `json:"client_id"`
	ServiceType    string `json:"service_type"` // armed_protection | unarmed_protection
	VehicleType    string `json:"vehicle_type"` // free text, e.g. "Mercedes S-Class"
	ProtectorCount int    `json:"protector_count"`
	Duration       string `json:"duration"` // free text, e.g. "2 days"
	PickupAddress  string `json:"pickup_address"`
}

// ----- Handler: POST /bookings -----

func (handler *BookingHTTPHandler) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	defer r.Body.Close()

	var req createBookingRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return
		}
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	// fill or verify client_id against the token subject
	sub := strings.TrimSpace(claims.Subject)
	if strings.TrimSpace(req.ClientID) == "" {
		req.ClientID = sub
	} else if req.ClientID != sub {
		handler.httpError(ctx, w, http.StatusForbidden, "client_id does not match token subject", errors.New("client/token mismatch"))
		return
	}

	in := ports.CreateBookingInput{
		ClientID:       strings.TrimSpace(req.ClientID),
		ServiceType:    strings.TrimSpace(req.ServiceType),
		VehicleType:    strings.TrimSpace(req.VehicleType),
		ProtectorCount: req.ProtectorCount,
		Duration:       strings.TrimSpace(req.Duration),
		PickupAddress:  strings.TrimSpace(req.PickupAddress),
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.CreateBooking(ctxWithTimeout, in)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	ctxWithTimeout = handler.logger.WithBookingID(ctxWithTimeout, res.BookingID)

	handler.jsonResponse(ctxWithTimeout, w, http.StatusCreated, res)
}
