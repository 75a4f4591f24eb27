package contracts

// Exchanges
const (
	ExchangeThreadTopic  = "thread_topic"
	ExchangeBookingTopic = "booking_topic"
)

// Queues
const (
	QueueBookingEvents = "booking_events"
)

// Routing patterns
const (
	RouteThreadMessagePrefix = "thread.message."  // {booking_id}
	RouteBookingStatusPrefix = "booking.status."  // {status}
)
