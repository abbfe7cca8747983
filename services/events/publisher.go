package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"wellnest/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// BookingEvent is the message body published for every committed booking
// write. Consumers are analytics and admin tooling outside this service.
type BookingEvent struct {
	Event           string               `json:"event"`
	BookingID       string               `json:"bookingId"`
	ProviderID      string               `json:"providerId"`
	CustomerID      string               `json:"customerId"`
	ServiceType     models.ServiceType   `json:"serviceType"`
	Status          models.BookingStatus `json:"status"`
	Date            string               `json:"date"`
	Time            string               `json:"time"`
	DurationMinutes int                  `json:"durationMinutes"`
	OccurredAt      time.Time            `json:"occurredAt"`
}

func NewBookingEvent(key string, b models.Booking, at time.Time) BookingEvent {
	return BookingEvent{
		Event:           key,
		BookingID:       b.ID,
		ProviderID:      b.ProviderID,
		CustomerID:      b.CustomerID,
		ServiceType:     b.ServiceType,
		Status:          b.Status,
		Date:            b.Date,
		Time:            b.Time,
		DurationMinutes: b.DurationMinutes,
		OccurredAt:      at,
	}
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends booking events to a RabbitMQ topic exchange.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	now      func() time.Time
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange, now: time.Now}, nil
}

// Publish sends b under routing key key, e.g. "booking.confirmed".
func (p *Publisher) Publish(ctx context.Context, key string, b models.Booking) error {
	body, err := json.Marshal(NewBookingEvent(key, b, p.now()))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    b.ID + ":" + key,
		Timestamp:    p.now(),
		Body:         body,
	})
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, models.Booking) error { return nil }

func (NoopPublisher) Close() error { return nil }
