package websocket

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"guardline/internal/domain/user"
	"guardline/internal/general/jwt"
	"guardline/internal/general/logger"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 5 * time.Second
	ctrlTimeout    = 5 * time.Second
	readWindow     = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocket pushes thread and booking updates to connected clients and
// operators with JWT auth on the first frame.
type WebSocket struct {
	logger *logger.Logger
	jwtMgr *jwt.Manager

	writeLocks sync.Map // key: *websocket.Conn -> *sync.Mutex

	mu       sync.Mutex
	watchers map[string]map[*websocket.Conn]string // bookingID -> conn -> userID
}

// NewWebSocket creates the WebSocket push surface.
func NewWebSocket(logger *logger.Logger, jwtMgr *jwt.Manager) *WebSocket {
	return &WebSocket{
		logger:   logger,
		jwtMgr:   jwtMgr,
		watchers: make(map[string]map[*websocket.Conn]string),
	}
}

// ConnectThread handles GET /ws/threads/{booking_id}: upgrades, authenticates
// the first frame, then keeps the connection registered as a watcher of the
// booking's thread until it closes.
func (ws *WebSocket) ConnectThread(w http.ResponseWriter, r *http.Request) {
	bookingID := strings.TrimSpace(r.PathValue("booking_id"))
	if bookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer conn.Close()
	defer ws.writeLocks.Delete(conn)

	conn.SetReadLimit(1 << 20) // 1 MiB
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		ws.sendAuthError(conn, "internal server error")
		return
	}

	// first frame must be {"type":"auth","token":"Bearer <jwt>"}
	msgType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		ws.logger.Error(r.Context(), "ws_auth_read_failed", "Failed to read auth message", err, nil)
		ws.sendAuthError(conn, "authentication timeout: please send auth message within 5 seconds")
		return
	}
	if msgType != websocket.TextMessage {
		ws.sendAuthError(conn, "auth message must be in text format")
		return
	}

	res, err := jwt.ValidateWSAuth(firstFrame, ws.jwtMgr, user.RoleClient, user.RoleOperator)
	if err != nil {
		ws.logger.Error(r.Context(), "ws_auth_failed", "Invalid auth message or token", err, nil)
		ws.sendAuthError(conn, "authentication failed: invalid token")
		return
	}
	userID := res.Claims.Subject

	if err := ws.sendAuthSuccess(conn, userID); err != nil {
		return
	}

	ws.logger.Info(r.Context(), "ws_connected", "Thread watcher connected",
		map[string]any{"user_id": userID, "booking_id": bookingID})

	// reset read deadline after auth and keep it alive via pongs
	_ = conn.SetReadDeadline(time.Now().Add(readWindow))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readWindow))
	})

	// ping loop using the per-connection writer lock
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			mu := ws.lockOf(conn)
			mu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(ctrlTimeout))
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
			mu.Unlock()
			if err != nil {
				_ = conn.Close() // unblock the reader; goroutine exits
				return
			}
		}
	}()

	ws.register(bookingID, conn, userID)
	defer ws.unregister(bookingID, conn)

	// read loop: this surface is push-only, incoming frames are drained so
	// pings/pongs and close frames are processed
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWindow))
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Error(r.Context(), "ws_unexpected_close", "Watcher connection closed unexpectedly", err,
					map[string]any{"user_id": userID, "booking_id": bookingID})
			}
			return
		}
	}
}

func (ws *WebSocket) register(bookingID string, conn *websocket.Conn, userID string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.watchers[bookingID] == nil {
		ws.watchers[bookingID] = make(map[*websocket.Conn]string)
	}
	ws.watchers[bookingID][conn] = userID
}

func (ws *WebSocket) unregister(bookingID string, conn *websocket.Conn) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	delete(ws.watchers[bookingID], conn)
	if len(ws.watchers[bookingID]) == 0 {
		delete(ws.watchers, bookingID)
	}
}
