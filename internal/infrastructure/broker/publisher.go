package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	portfolio "github.com/quanttradingfs/QuantFSA/internal/domain/entity/portfolio"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher fans executed-order results out to a RabbitMQ fanout exchange
// so downstream consumers (audit, fills tracking) see every submission.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *logrus.Logger
	mu       sync.Mutex
}

func NewPublisher(url, exchange string, logger *logrus.Logger) (*Publisher, error) {
	if exchange == "" {
		return nil, errors.New("exchange name cannot be empty")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if err := p.channel.Close(); err != nil {
		p.logger.Errorf("close rabbitmq channel: %v", err)
	}
	if err := p.conn.Close(); err != nil {
		p.logger.Errorf("close rabbitmq connection: %v", err)
	}
}

// PublishOrder emits one order result as a persistent JSON message.
func (p *Publisher) PublishOrder(ctx context.Context, result *portfolio.OrderResult) error {
	if result == nil {
		return errors.New("order result is nil")
	}
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal order result: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}
