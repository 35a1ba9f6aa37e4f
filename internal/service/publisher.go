package service

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "github.com/google/uuid"
    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/matvey1347srgtjh/uchebnaia-practika/internal/queue"
)

// AMQPPublisher publishes ticket events to RabbitMQ.  Each publish dials
// its own connection; events are rare compared to seat map reads, and a
// broker outage then only costs the failed publish.
type AMQPPublisher struct {
    URL     string
    Timeout time.Duration
}

// NewAMQPPublisher returns a publisher for the broker at url.
func NewAMQPPublisher(url string) *AMQPPublisher {
    return &AMQPPublisher{URL: url, Timeout: 5 * time.Second}
}

// PublishTicketSold publishes ev to the ticket.sold queue.
func (p *AMQPPublisher) PublishTicketSold(ctx context.Context, ev queue.TicketSoldEvent) error {
    return p.publish(ctx, queue.TicketSoldQueue, ev)
}

// PublishHoldsReleased publishes ev to the holds.released queue.
func (p *AMQPPublisher) PublishHoldsReleased(ctx context.Context, ev queue.HoldsReleasedEvent) error {
    return p.publish(ctx, queue.HoldsReleasedQueue, ev)
}

func (p *AMQPPublisher) publish(ctx context.Context, queueName string, event any) error {
    body, err := json.Marshal(event)
    if err != nil {
        return fmt.Errorf("marshal %s event: %w", queueName, err)
    }

    cfg := amqp.Config{Dial: amqp.DefaultDial(p.timeout())}
    conn, err := amqp.DialConfig(p.URL, cfg)
    if err != nil {
        return fmt.Errorf("rabbitmq dial: %w", err)
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("rabbitmq channel: %w", err)
    }
    defer func() { _ = ch.Close() }()

    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
        return fmt.Errorf("rabbitmq queue declare %s: %w", queueName, err)
    }

    ctx, cancel := context.WithTimeout(ctx, p.timeout())
    defer cancel()

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    uuid.NewString(),
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
        return fmt.Errorf("rabbitmq publish %s: %w", queueName, err)
    }
    return nil
}

func (p *AMQPPublisher) timeout() time.Duration {
    if p.Timeout <= 0 {
        return 5 * time.Second
    }
    return p.Timeout
}
