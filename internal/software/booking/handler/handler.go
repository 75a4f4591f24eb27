package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"guardline/internal/domain/booking"
	"guardline/internal/domain/invoice"
	"guardline/internal/domain/message"
	"guardline/internal/domain/user"
	"guardline/internal/general/jwt"
	"guardline/internal/general/logger"
	"guardline/internal/ports"
	"guardline/internal/software/booking/service"

	"github.com/jackc/pgx/v5/pgconn"
)

// BookingHTTPHandler adapts HTTP requests to the BookingService.
type BookingHTTPHandler struct {
	svc    ports.BookingService
	logger *logger.Logger
	auth   *jwt.Manager
}

// NewBookingHTTPHandler wires an HTTP handler around the BookingService.
func NewBookingHTTPHandler(
	svc ports.BookingService,
	logger *logger.Logger,
	auth *jwt.Manager,
) *BookingHTTPHandler {
	return &BookingHTTPHandler{svc: svc, logger: logger, auth: auth}
}

// RegisterRoutes mounts booking endpoints on the provided mux.
func (handler *BookingHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /bookings",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleClient)(handler.handleCreateBooking),
	)
	mux.HandleFunc("POST /bookings/{booking_id}/actions",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleClient, user.RoleOperator)(handler.handleAction),
	)
	mux.HandleFunc("POST /bookings/{booking_id}/invoice",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleOperator)(handler.handleSendInvoice),
	)
	mux.HandleFunc("POST /bookings/{booking_id}/payment/approve",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleClient)(handler.handleApprovePayment),
	)
	mux.HandleFunc("GET /bookings/{booking_id}/cancel-preview",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleClient, user.RoleOperator)(handler.handleCancelPreview),
	)

	mux.HandleFunc("GET /bookings/health", handler.handleHealth)
	mux.HandleFunc("POST /tokens", handler.handleCreateToken)
}

func (handler *BookingHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// ----- token issuing (dev/test convenience) -----

type TokenRequest struct {
	UserID string    `json:"user_id"`
	Role   user.Role `json:"role"`
}

// TokenResponse represents the response for token generation
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      user.Role `json:"role"`
}

func (handler *BookingHTTPHandler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if strings.TrimSpace(req.UserID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	if !req.Role.Valid() {
		handler.httpError(ctx, w, http.StatusBadRequest, "role must be one of: CLIENT, OPERATOR, ADMIN", nil)
		return
	}

	tokenString, claims, err := handler.auth.IssueUserToken(req.UserID, req.Role)
	if err != nil {
		handler.httpError(ctx, w, http.StatusInternalServerError, "Failed to generate token", err)
		return
	}

	response := TokenResponse{
		Token:     tokenString,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    req.UserID,
		Role:      req.Role,
	}

	handler.logger.Info(ctx, "token_generated", "JWT token generated successfully",
		map[string]any{"user_id": req.UserID, "role": req.Role.String()})

	handler.jsonResponse(ctx, w, http.StatusCreated, response)
}

// ----- general helpers -----

func (handler *BookingHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *BookingHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	} else if status == http.StatusConflict {
		action = "state_conflict"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// serviceError maps a BookingService error onto an HTTP status: validation
// errors are 400, missing resources 404, state-machine rejections 409,
// storage/transport failures 503 and everything else 500.
func (handler *BookingHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ports.ErrBookingNotFound),
		errors.Is(err, ports.ErrMessageNotFound):
		handler.httpError(ctx, w, http.StatusNotFound, err.Error(), err)
	case errors.Is(err, booking.ErrInvalidStatusTransition),
		errors.Is(err, booking.ErrPaymentNotApproved),
		errors.Is(err, booking.ErrPaymentAlreadyApproved),
		errors.Is(err, service.ErrInvoiceNotAllowed):
		handler.httpError(ctx, w, http.StatusConflict, err.Error(), err)
	case errors.Is(err, booking.ErrInvalidAction),
		errors.Is(err, booking.ErrClientRequired),
		errors.Is(err, booking.ErrServiceTypeRequired),
		errors.Is(err, booking.ErrProtectorCountInvalid),
		errors.Is(err, booking.ErrPickupAddressRequired),
		errors.Is(err, booking.ErrOperatorRequired),
		errors.Is(err, invoice.ErrUnknownCurrency),
		errors.Is(err, message.ErrEmptyBody),
		errors.Is(err, service.ErrNotInvoiceMessage),
		errors.Is(err, service.ErrInvoiceBookingMismatch):
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) || pgconn.Timeout(err) {
			handler.httpError(ctx, w, http.StatusServiceUnavailable, "storage unavailable", err)
			return
		}
		handler.httpError(ctx, w, http.StatusInternalServerError, err.Error(), err)
	}
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *BookingHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
