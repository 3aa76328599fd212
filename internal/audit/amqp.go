// amqp.go implements the AMQP shipper. Records are published as JSON to a
// durable exchange; a configured queue is declared durable and bound to it.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultExchange = "transitions"

// AMQPShipper publishes records to an AMQP broker
type AMQPShipper struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQPShipper connects to the broker and declares the exchange and queue
func NewAMQPShipper(cfg *AMQPConfig) (*AMQPShipper, error) {
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = defaultExchange
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	if cfg.Queue != "" {
		if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("failed to declare queue: %w", err)
		}
		if err := ch.QueueBind(cfg.Queue, "", exchange, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("failed to bind queue: %w", err)
		}
	}

	return &AMQPShipper{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
	}, nil
}

// Ship publishes a record to the exchange
func (as *AMQPShipper) Ship(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal transition record: %w", err)
	}

	err = as.channel.PublishWithContext(ctx, as.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        data,
		Timestamp:   time.Now(),
		MessageId:   rec.ID,
		Type:        rec.Type,
	})
	if err != nil {
		return fmt.Errorf("failed to publish transition record: %w", err)
	}

	return nil
}

// Close closes the channel and the connection
func (as *AMQPShipper) Close() error {
	if as.channel != nil {
		_ = as.channel.Close()
	}
	if as.conn != nil {
		return as.conn.Close()
	}
	return nil
}
