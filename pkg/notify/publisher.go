package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"maatje/pkg/domain"
)

const (
	// RoutingKey is the topic key for freshly opened silent alerts.
	RoutingKey = "alerts.open"

	defaultExchange = "maatje.alerts"
	maxDialDelay    = 60 * time.Second
)

// Envelope is the wire shape of a caretaker notification.
type Envelope struct {
	ID             string    `json:"id"`
	CorrelationID  string    `json:"correlation_id"`
	OccurredAt     time.Time `json:"occurred_at"`
	UserID         string    `json:"user_id"`
	UserMessage    string    `json:"user_message"`
	AIResponse     string    `json:"ai_response"`
	Status         string    `json:"status"`
	CaretakerEmail string    `json:"caretaker_email"`
}

// NewEnvelope wraps an alert record for publishing.
func NewEnvelope(alert domain.AlertRecord) Envelope {
	occurred := alert.CreatedAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return Envelope{
		ID:             uuid.NewString(),
		CorrelationID:  uuid.NewString(),
		OccurredAt:     occurred,
		UserID:         alert.UserID,
		UserMessage:    alert.UserMessage,
		AIResponse:     alert.AIResponse,
		Status:         string(alert.Status),
		CaretakerEmail: alert.CaretakerEmail,
	}
}

// Publisher sends caretaker notifications to a RabbitMQ topic exchange.
type Publisher struct {
	conn     *amqp091.Connection
	exchange string
	logger   *slog.Logger
}

// DialOptions configures the broker connection.
type DialOptions struct {
	URL           string
	Exchange      string
	RetryAttempts int
	Delay         time.Duration
	Logger        *slog.Logger
}

// Dial connects to the broker with exponential backoff and declares the
// alerts exchange. It respects context cancellation for startup shutdown.
func Dial(ctx context.Context, opts DialOptions) (*Publisher, error) {
	if opts.URL == "" {
		return nil, errors.New("broker url required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exchange := opts.Exchange
	if exchange == "" {
		exchange = defaultExchange
	}
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp091.Dial(opts.URL)
		if err == nil {
			if i > 1 {
				logger.Info("broker connected", "attempt", i)
			}
			return newPublisher(conn, exchange, logger)
		}
		lastErr = err

		sleep := delay * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > maxDialDelay {
			sleep = maxDialDelay
		}
		logger.Warn("broker dial failed", "attempt", i, "sleep", sleep, "err", err)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("connect to broker after %d attempts: %w", attempts, lastErr)
}

func newPublisher(conn *amqp091.Connection, exchange string, logger *slog.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, exchange: exchange, logger: logger}, nil
}

// NotifyAlert publishes one notification for a new alert record.
func (p *Publisher) NotifyAlert(ctx context.Context, alert domain.AlertRecord) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	env := NewEnvelope(alert)
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(
		ctx, p.exchange, RoutingKey, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     env.ID,
			CorrelationId: env.CorrelationID,
			Timestamp:     time.Now(),
			Body:          body,
		},
	)
	if err == nil {
		p.logger.Info("alert notification published",
			"key", RoutingKey, "exchange", p.exchange, "recipient", alert.CaretakerEmail)
	}
	return err
}

// Close tears down the broker connection.
func (p *Publisher) Close() error {
	return p.conn.Close()
}
