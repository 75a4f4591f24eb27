package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"guardline/internal/general/config"
	"guardline/internal/general/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dialTimeout    = 30 * time.Second
	heartbeat      = 10 * time.Second
	maxBackoff     = 30 * time.Second
	initialBackoff = time.Second
)

// Client owns the broker connection shared by the booking topic publisher
// and the per-thread change feed. It reconnects in the background and
// re-declares the topology after every reconnect, so publishers and
// subscribers never see a half-configured broker.
type Client struct {
	url    string
	logger *logger.Logger
	logCtx context.Context // survives the caller's cancel; reconnect logging outlives requests

	mu    sync.RWMutex
	conn  *amqp.Connection
	pubCh *amqp.Channel

	confirmMu sync.Mutex
	confirms  chan amqp.Confirmation

	closed    chan struct{}
	reconnect chan struct{}
}

// ConnectRabbitMQ dials the broker once and starts the reconnect watcher.
// A failed first dial is fatal; later drops are retried with backoff.
func ConnectRabbitMQ(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Client, error) {
	client := &Client{
		url: fmt.Sprintf("amqp://%s:%s@%s:%d/",
			cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.Host, cfg.RabbitMQ.Port),
		logger:    logger,
		logCtx:    context.WithoutCancel(ctx),
		closed:    make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}

	if err := client.establish(); err != nil {
		return nil, err
	}

	go client.runReconnects()
	return client, nil
}

// Close stops the watcher and tears the connection down.
func (client *Client) Close() {
	select {
	case <-client.closed:
	default:
		close(client.closed)
	}

	client.mu.Lock()
	if client.pubCh != nil {
		_ = client.pubCh.Close()
		client.pubCh = nil
	}
	if client.conn != nil {
		_ = client.conn.Close()
		client.conn = nil
	}
	client.mu.Unlock()

	client.confirmMu.Lock()
	if client.confirms != nil {
		close(client.confirms)
		client.confirms = nil
	}
	client.confirmMu.Unlock()
}

// establish dials, declares the topology, and installs a fresh publishing
// channel with confirms enabled.
func (client *Client) establish() error {
	conn, err := amqp.DialConfig(client.url, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_dial_failed", "Failed to dial RabbitMQ", err, nil)
		return fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		client.logger.Error(client.logCtx, "rabbitmq_open_channel_failed", "Failed to open publishing channel", err, nil)
		return fmt.Errorf("rabbitmq open channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		client.logger.Error(client.logCtx, "rabbitmq_declare_topology_failed", "Failed to declare topology", err, nil)
		return fmt.Errorf("rabbitmq declare topology: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		client.logger.Error(client.logCtx, "rabbitmq_enable_confirms_failed", "Failed to enable publisher confirms", err, nil)
		return fmt.Errorf("rabbitmq enable confirms: %w", err)
	}

	client.confirmMu.Lock()
	stale := client.confirms
	client.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	client.confirmMu.Unlock()
	if stale != nil {
		close(stale)
	}

	// mandatory publishes that match no queue come back here
	returns := ch.NotifyReturn(make(chan amqp.Return, 1))
	go client.drainReturns(returns)

	client.mu.Lock()
	if client.pubCh != nil && !client.pubCh.IsClosed() {
		_ = client.pubCh.Close()
	}
	client.conn = conn
	client.pubCh = ch
	client.mu.Unlock()

	go client.watchClose(conn, ch)

	client.logger.Info(client.logCtx, "rabbitmq_connected", "RabbitMQ connection established", nil)
	return nil
}

// drainReturns logs unroutable publishes until the channel goes away.
func (client *Client) drainReturns(returns chan amqp.Return) {
	for r := range returns {
		client.logger.Error(client.logCtx, "rabbitmq_returned", "Message was returned (unroutable)",
			fmt.Errorf("code=%d text=%s", r.ReplyCode, r.ReplyText),
			map[string]any{
				"exchange":    r.Exchange,
				"routing_key": r.RoutingKey,
				"size":        len(r.Body),
			})
	}
}

// watchClose signals the reconnect loop when either the connection or the
// publishing channel drops.
func (client *Client) watchClose(conn *amqp.Connection, ch *amqp.Channel) {
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-client.closed:
		return
	case <-connClosed:
	case <-chClosed:
	}

	select {
	case client.reconnect <- struct{}{}:
	default:
	}
}

// runReconnects re-establishes the connection with capped exponential
// backoff until Close.
func (client *Client) runReconnects() {
	backoff := initialBackoff

	for {
		select {
		case <-client.closed:
			return
		case <-client.reconnect:
		}

		for {
			select {
			case <-client.closed:
				return
			default:
			}

			if err := client.establish(); err == nil {
				backoff = initialBackoff
				client.logger.Info(client.logCtx, "rabbitmq_reconnected", "Reconnected and re-ensured topology", nil)
				break
			} else {
				client.logger.Error(client.logCtx, "rabbitmq_reconnect_failed", "Reconnect attempt failed", err, nil)
			}

			time.Sleep(backoff)
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}
