package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// publishTimeout bounds one publish including its broker confirm.
const publishTimeout = 5 * time.Second

// MQPublisher exposes the confirmed-publish path of the Client behind the
// small interface the booking service consumes.
type MQPublisher struct {
	Client *Client
}

// NewMQPublisher wraps an established client.
func NewMQPublisher(client *Client) *MQPublisher {
	return &MQPublisher{Client: client}
}

// Publish sends one message to an exchange with the given routing key.
func (publisher *MQPublisher) Publish(exchange, routingKey string, body []byte) error {
	return publisher.Client.PublishMessage(exchange, routingKey, body)
}

// PublishMessage publishes a persistent JSON message and waits for the
// broker's confirm. Confirms are serialized: the channel delivers them in
// publish order, so one in-flight publish per confirm keeps them aligned.
func (client *Client) PublishMessage(exchange, routingKey string, body []byte) error {
	client.mu.RLock()
	ch := client.pubCh
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq: connection is not open")
	}
	if ch == nil || ch.IsClosed() {
		return errors.New("rabbitmq: publish channel is not open")
	}

	client.confirmMu.Lock()
	defer client.confirmMu.Unlock()
	confirms := client.confirms

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err := ch.PublishWithContext(ctx, exchange, routingKey, true /* mandatory */, false, /* immediate */
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		})
	if err != nil {
		return err
	}

	return awaitConfirm(ctx, confirms)
}

// awaitConfirm blocks for the broker ack of the publish just issued. On
// timeout it still tries to drain exactly one confirm so the stream stays
// aligned with later publishes.
func awaitConfirm(ctx context.Context, confirms chan amqp.Confirmation) error {
	select {
	case c := <-confirms:
		if !c.Ack {
			return fmt.Errorf("rabbitmq: publish not acknowledged")
		}
		return nil

	case <-ctx.Done():
		select {
		case c := <-confirms:
			if !c.Ack {
				return fmt.Errorf("rabbitmq: publish not acknowledged after timeout")
			}
		case <-time.After(2 * time.Second):
		}
		return ctx.Err()
	}
}
