package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"guardline/internal/domain/booking"
	"guardline/internal/domain/user"
	"guardline/internal/general/jwt"
)

type actionRequest struct {
	Action string `json:"action"` // CONFIRM | DISPATCH | MARK_ARRIVED | START_SERVICE | COMPLETE | CANCEL
	Reason string `json:"reason,omitempty"`
}

// operatorActions lists the lifecycle commands only an operator may issue.
// CANCEL is open to both sides.
var operatorActions = map[booking.Action]bool{
	booking.ActionConfirm:      true,
	booking.ActionDispatch:     true,
	booking.ActionMarkArrived:  true,
	booking.ActionStartService: true,
	booking.ActionComplete:     true,
}

// ----- Handler: POST /bookings/{booking_id}/actions -----

func (handler *BookingHTTPHandler) handleAction(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID := strings.TrimSpace(r.PathValue("booking_id"))
	if bookingID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "booking_id is required", nil)
		return
	}
	ctx = handler.logger.WithBookingID(ctx, bookingID)

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	var req actionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}

	action, err := booking.ParseAction(req.Action)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "action must be one of: CONFIRM, DISPATCH, MARK_ARRIVED, START_SERVICE, COMPLETE, CANCEL", err)
		return
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}
	if operatorActions[action] && claims.Role != user.RoleOperator {
		handler.httpError(ctx, w, http.StatusForbidden, "action requires the operator role", jwt.ErrRoleForbidden)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.Transition(ctxWithTimeout, bookingID, action, strings.TrimSpace(claims.Subject), strings.TrimSpace(req.Reason))
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
