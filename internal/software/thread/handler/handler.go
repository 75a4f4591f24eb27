package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"guardline/internal/domain/message"
	"guardline/internal/domain/user"
	"guardline/internal/general/jwt"
	"guardline/internal/general/logger"
	"guardline/internal/general/websocket"
	"guardline/internal/ports"

	"github.com/jackc/pgx/v5/pgconn"
)

// ThreadHTTPHandler adapts HTTP requests to the ThreadService.
type ThreadHTTPHandler struct {
	svc       ports.ThreadService
	logger    *logger.Logger
	auth      *jwt.Manager
	websocket *websocket.WebSocket
}

// NewThreadHTTPHandler wires an HTTP handler around the ThreadService.
func NewThreadHTTPHandler(
	svc ports.ThreadService,
	logger *logger.Logger,
	auth *jwt.Manager,
	ws *websocket.WebSocket,
) *ThreadHTTPHandler {
	return &ThreadHTTPHandler{svc: svc, logger: logger, auth: auth, websocket: ws}
}

// RegisterRoutes mounts thread endpoints on the provided mux.
func (handler *ThreadHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /threads/{booking_id}/messages",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleClient, user.RoleOperator)(handler.handleGetThread),
	)
	mux.HandleFunc("POST /threads/{booking_id}/messages",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleClient, user.RoleOperator)(handler.handleSendMessage),
	)
	mux.HandleFunc("DELETE /threads/{booking_id}",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleClient, user.RoleOperator)(handler.handleCloseThread),
	)

	// WebSocket handles its own first-frame authentication
	mux.HandleFunc("GET /ws/threads/{booking_id}", handler.websocket.ConnectThread)
}

// ----- general helpers -----

func (handler *ThreadHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
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
func (handler *ThreadHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// serviceError maps a ThreadService error onto an HTTP status.
func (handler *ThreadHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ports.ErrBookingNotFound):
		handler.httpError(ctx, w, http.StatusNotFound, err.Error(), err)
	case errors.Is(err, message.ErrEmptyBody),
		errors.Is(err, message.ErrSenderIDRequired),
		errors.Is(err, message.ErrInvalidSenderType):
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			handler.httpError(ctx, w, http.StatusInternalServerError, "database error", err)
			return
		}
		handler.httpError(ctx, w, http.StatusInternalServerError, err.Error(), err)
	}
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *ThreadHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
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
