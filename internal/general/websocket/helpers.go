package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// lockOf returns the per-connection write mutex, creating it on first use.
// gorilla/websocket allows only one concurrent writer per connection.
func (ws *WebSocket) lockOf(conn *websocket.Conn) *sync.Mutex {
	mu, _ := ws.writeLocks.LoadOrStore(conn, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// wsWriteMessage writes one frame under the connection's writer lock.
func (ws *WebSocket) wsWriteMessage(conn *websocket.Conn, messageType int, payload []byte) error {
	mu := ws.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(messageType, payload)
}

// wsWriteJSON marshals v and writes it as a text frame.
func (ws *WebSocket) wsWriteJSON(conn *websocket.Conn, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.wsWriteMessage(conn, websocket.TextMessage, body)
}

// sendAuthError sends a best-effort auth failure frame before closing.
func (ws *WebSocket) sendAuthError(conn *websocket.Conn, msg string) {
	_ = ws.wsWriteJSON(conn, map[string]string{
		"type":  "auth_error",
		"error": msg,
	})
}

// sendAuthSuccess confirms authentication to the client.
func (ws *WebSocket) sendAuthSuccess(conn *websocket.Conn, userID string) error {
	return ws.wsWriteJSON(conn, map[string]string{
		"type":    "auth_success",
		"user_id": userID,
	})
}
