package contracts

import "time"

// WSThreadUpdate is pushed to a connected client or operator whenever the
// thread they watch gains a message or changes connection state.
type WSThreadUpdate struct {
	Type      string             `json:"type"` // "thread_message" | "thread_state"
	BookingID string             `json:"booking_id"`
	Message   *ThreadMessageEvent `json:"message,omitempty"`
	State     string             `json:"state,omitempty"` // CONNECTING|CONNECTED|DISCONNECTED
	SentAt    time.Time          `json:"sent_at"`
}

// WSBookingStatus is pushed when a booking transitions.
type WSBookingStatus struct {
	Type          string    `json:"type"` // "booking_status"
	BookingID     string    `json:"booking_id"`
	BookingNumber string    `json:"booking_number"`
	Status        string    `json:"status"`
	SentAt        time.Time `json:"sent_at"`
}
