package websocket

import (
	"context"

	"guardline/internal/general/contracts"

	"github.com/gorilla/websocket"
)

// PushThreadUpdate fans a thread update out to every watcher of the booking.
// Failed writes close the offending connection; its read loop unregisters it.
func (ws *WebSocket) PushThreadUpdate(ctx context.Context, bookingID string, update contracts.WSThreadUpdate) {
	for _, conn := range ws.watchersOf(bookingID) {
		if err := ws.wsWriteJSON(conn, update); err != nil {
			ws.logger.Error(ctx, "ws_push_failed", "Failed to push thread update", err,
				map[string]any{"booking_id": bookingID})
			_ = conn.Close()
		}
	}
}

// PushBookingStatus fans a lifecycle transition out to the booking's watchers.
func (ws *WebSocket) PushBookingStatus(ctx context.Context, update contracts.WSBookingStatus) {
	for _, conn := range ws.watchersOf(update.BookingID) {
		if err := ws.wsWriteJSON(conn, update); err != nil {
			ws.logger.Error(ctx, "ws_push_failed", "Failed to push booking status", err,
				map[string]any{"booking_id": update.BookingID})
			_ = conn.Close()
		}
	}
}

// watchersOf snapshots the current watcher connections of a booking.
func (ws *WebSocket) watchersOf(bookingID string) []*websocket.Conn {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	conns := make([]*websocket.Conn, 0, len(ws.watchers[bookingID]))
	for conn := range ws.watchers[bookingID] {
		conns = append(conns, conn)
	}
	return conns
}
