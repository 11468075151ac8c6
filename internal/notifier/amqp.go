package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/karimadel/giu-portal-monitor/internal/config"
	"github.com/karimadel/giu-portal-monitor/internal/models"
)

// AMQPNotifier publishes the structured change events of a run as one JSON
// message, for downstream consumers that want more than the email surface.
type AMQPNotifier struct {
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	exchange   string
	routingKey string
	logger     zerolog.Logger
}

type changesMessage struct {
	RunID     string               `json:"run_id"`
	CheckedAt time.Time            `json:"checked_at"`
	Changes   []models.ChangeEvent `json:"changes"`
}

func NewAMQPNotifier(cfg config.RabbitMQConfig, logger zerolog.Logger) (*AMQPNotifier, error) {
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		cfg.Exchange, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(
		cfg.QueueName, // name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = channel.QueueBind(
		queue.Name,     // queue name
		cfg.RoutingKey, // routing key
		cfg.Exchange,   // exchange
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	logger.Info().
		Str("exchange", cfg.Exchange).
		Str("queue", queue.Name).
		Str("routing_key", cfg.RoutingKey).
		Msg("Connected to RabbitMQ")

	return &AMQPNotifier{
		conn:       conn,
		channel:    channel,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, run models.RunInfo, changes []models.ChangeEvent) error {
	if len(changes) == 0 {
		return nil
	}

	body, err := json.Marshal(changesMessage{
		RunID:     run.ID,
		CheckedAt: run.CheckedAt,
		Changes:   changes,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal changes message: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = n.channel.PublishWithContext(
		publishCtx,
		n.exchange,   // exchange
		n.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	n.logger.Info().
		Str("run_id", run.ID).
		Int("changes", len(changes)).
		Msg("Change events published")

	return nil
}

func (n *AMQPNotifier) Close() error {
	if n.channel != nil {
		if err := n.channel.Close(); err != nil {
			n.logger.Error().Err(err).Msg("Failed to close RabbitMQ channel")
		}
	}

	if n.conn != nil {
		if err := n.conn.Close(); err != nil {
			n.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	return nil
}
