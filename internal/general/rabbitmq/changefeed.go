package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"guardline/internal/domain/message"
	"guardline/internal/general/contracts"
	"guardline/internal/general/logger"
	"guardline/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ChangeFeed implements the per-booking push channel on top of the resilient
// RabbitMQ client. Each subscription owns an exclusive auto-delete queue
// bound to "thread.message.{booking_id}" on the thread topic exchange, so a
// message published once fans out to every open session of that thread.
type ChangeFeed struct {
	client *Client
	logger *logger.Logger
}

// NewChangeFeed constructs a ChangeFeed over an established client.
func NewChangeFeed(client *Client, logger *logger.Logger) *ChangeFeed {
	return &ChangeFeed{client: client, logger: logger}
}

// PublishMessage announces a persisted message on the thread topic.
func (feed *ChangeFeed) PublishMessage(ctx context.Context, m *message.Message) error {
	event := contracts.FromMessage(m)
	event.Producer = "booking-service"
	event.SentAt = time.Now().UTC()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal thread message event: %w", err)
	}

	routingKey := contracts.RouteThreadMessagePrefix + m.BookingID
	if err := feed.client.PublishMessage(contracts.ExchangeThreadTopic, routingKey, body); err != nil {
		return fmt.Errorf("publish thread message: %w", err)
	}

	feed.logger.Debug(ctx, "thread_message_published", "Announced message on change feed", map[string]any{
		"routing_key": routingKey,
		"message_id":  m.ID,
	})
	return nil
}

// subscriberChannel opens a fresh channel for one subscription. Each
// subscription gets its own so a dropped consumer never disturbs the shared
// publishing channel.
func (feed *ChangeFeed) subscriberChannel() (*amqp.Channel, error) {
	feed.client.mu.RLock()
	conn := feed.client.conn
	feed.client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, errors.New("rabbitmq: connection is not ready")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open subscriber channel: %w", err)
	}
	return ch, nil
}

// subscription is one live per-booking consumer.
type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop tears the consumer down and waits for its goroutine to exit.
func (s *subscription) Stop() {
	s.once.Do(s.cancel)
	<-s.done
}

// Subscribe opens the push channel for one booking. Every delivery decodes
// into a domain message handed to onInsert; deliveries are at-least-once so
// the receiver must absorb duplicates. onDown fires when the transport drops
// and the subscription will produce no further messages.
func (feed *ChangeFeed) Subscribe(
	ctx context.Context,
	bookingID string,
	onInsert func(*message.Message),
	onDown func(error),
) (ports.Subscription, error) {
	ch, err := feed.subscriberChannel()
	if err != nil {
		return nil, err
	}

	// exclusive auto-delete queue: the broker names it and removes it when
	// this channel closes
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare subscriber queue: %w", err)
	}

	routingKey := contracts.RouteThreadMessagePrefix + bookingID
	if err := ch.QueueBind(q.Name, routingKey, contracts.ExchangeThreadTopic, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind subscriber queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true /* autoAck */, true /* exclusive */, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume subscriber queue: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	go func() {
		defer close(sub.done)
		defer ch.Close()

		for {
			select {
			case <-subCtx.Done():
				return

			case cerr := <-chClosed:
				if cerr != nil && onDown != nil {
					onDown(fmt.Errorf("change feed channel closed: %w", cerr))
				}
				return

			case d, ok := <-deliveries:
				if !ok {
					if onDown != nil {
						onDown(fmt.Errorf("change feed delivery stream ended"))
					}
					return
				}

				var event contracts.ThreadMessageEvent
				if err := json.Unmarshal(d.Body, &event); err != nil {
					feed.logger.Error(subCtx, "thread_event_decode_failed",
						"Failed to decode thread message event", err,
						map[string]any{"booking_id": bookingID, "size": len(d.Body)})
					continue
				}
				if event.BookingID != bookingID {
					// routing key mismatch; ignore rather than cross-deliver
					continue
				}
				onInsert(event.ToMessage())
			}
		}
	}()

	feed.logger.Info(ctx, "thread_subscribed", "Opened change feed subscription", map[string]any{
		"booking_id": bookingID,
		"queue":      q.Name,
	})

	return sub, nil
}
