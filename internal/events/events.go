// Package events emits the "application funded" fact consumed by the capital
// stack ledger.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/david/recovery-match/internal/models"
)

const FundedQueue = "capital_stack.funded"

// FundedEvent is published once a match reaches the funded status.
type FundedEvent struct {
	MatchID       uuid.UUID `json:"match_id"`
	OpportunityID uuid.UUID `json:"opportunity_id"`
	SurvivorID    uuid.UUID `json:"survivor_id"`
	AwardAmount   float64   `json:"award_amount"`
	FundedByID    uuid.UUID `json:"funded_by_id"`
	FundedAt      time.Time `json:"funded_at"`
}

// FundedFromMatch builds the event from a match that was just funded.
func FundedFromMatch(m models.OpportunityMatch) FundedEvent {
	ev := FundedEvent{
		MatchID:       m.ID,
		OpportunityID: m.OpportunityID,
		SurvivorID:    m.SurvivorID,
	}
	if m.AwardAmount != nil {
		ev.AwardAmount = *m.AwardAmount
	}
	if m.FundedByID != nil {
		ev.FundedByID = *m.FundedByID
	}
	if m.FundedAt != nil {
		ev.FundedAt = *m.FundedAt
	}
	return ev
}

type Publisher interface {
	PublishFunded(ctx context.Context, ev FundedEvent) error
}

// RabbitMQ publishes funded events to a durable queue.
type RabbitMQ struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	timeout time.Duration
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		FundedQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &RabbitMQ{conn: conn, channel: ch, queue: q, timeout: 5 * time.Second}, nil
}

func (r *RabbitMQ) PublishFunded(ctx context.Context, ev FundedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channel.PublishWithContext(
		ctx,
		"",           // default exchange
		r.queue.Name, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.MatchID.String(),
			Timestamp:    ev.FundedAt,
			Body:         body,
		},
	)
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		r.conn.Close()
		return err
	}
	return r.conn.Close()
}

// LogPublisher only logs the event. Used when no broker is configured.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) PublishFunded(_ context.Context, ev FundedEvent) error {
	p.Logger.Info("application funded",
		zap.String("match_id", ev.MatchID.String()),
		zap.String("opportunity_id", ev.OpportunityID.String()),
		zap.String("survivor_id", ev.SurvivorID.String()),
		zap.Float64("award_amount", ev.AwardAmount),
	)
	return nil
}
