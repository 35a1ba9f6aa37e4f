package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// TicketLogFile is the file, inside the consumer's log directory, that
// receives one line per consumed event.
const TicketLogFile = "tickets.log"

// Consumer listens to the ticket.sold and holds.released queues and
// appends a single-line record for every event to <LogDir>/tickets.log.
type Consumer struct {
    URL    string
    LogDir string
}

// NewConsumer returns a consumer for the broker at url writing to logDir.
func NewConsumer(url, logDir string) *Consumer {
    if logDir == "" {
        logDir = "logs"
    }
    return &Consumer{URL: url, LogDir: logDir}
}

// Run connects to RabbitMQ, declares both queues (durable) and consumes
// until ctx is cancelled.  Broker failures are logged and retried with
// exponential backoff so the server keeps operating without a broker.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            log.Printf("ticket-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            if !sleepCtx(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Printf("ticket-consumer: consume loop ended: %v; reconnecting", err)
        if !sleepCtx(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Printf("ticket-consumer: set QoS failed: %v", err)
    }

    sold, err := c.subscribe(ch, TicketSoldQueue)
    if err != nil {
        return err
    }
    released, err := c.subscribe(ch, HoldsReleasedQueue)
    if err != nil {
        return err
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-sold:
            if !ok {
                return errors.New("ticket.sold deliveries channel closed")
            }
            c.settle(d, TicketSoldQueue)
        case d, ok := <-released:
            if !ok {
                return errors.New("holds.released deliveries channel closed")
            }
            c.settle(d, HoldsReleasedQueue)
        }
    }
}

func (c *Consumer) subscribe(ch *amqp.Channel, queueName string) (<-chan amqp.Delivery, error) {
    if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
        return nil, fmt.Errorf("queue declare %s: %w", queueName, err)
    }
    msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
    if err != nil {
        return nil, fmt.Errorf("queue consume %s: %w", queueName, err)
    }
    return msgs, nil
}

func (c *Consumer) settle(d amqp.Delivery, queueName string) {
    if err := c.HandleMessage(queueName, d.Body); err != nil {
        log.Printf("ticket-consumer: handle %s message failed: %v", queueName, err)
        _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
        return
    }
    _ = d.Ack(false)
}

// HandleMessage decodes one message body from queueName and appends its
// log line.
func (c *Consumer) HandleMessage(queueName string, body []byte) error {
    line, err := FormatEvent(queueName, body)
    if err != nil {
        return err
    }
    if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", c.LogDir, err)
    }
    f, err := os.OpenFile(filepath.Join(c.LogDir, TicketLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatEvent renders a message body as a newline-terminated log line.
func FormatEvent(queueName string, body []byte) (string, error) {
    switch queueName {
    case TicketSoldQueue:
        var ev TicketSoldEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return "", fmt.Errorf("unmarshal %s: %w", queueName, err)
        }
        return fmt.Sprintf("[%s] Ticket sold | ticket_id=%d | code=%s | session_id=%d | owner_id=%d | seat=%d/%d | price=%d cents\n",
            ev.SoldAt, ev.TicketID, ev.Code, ev.SessionID, ev.OwnerID, ev.Row, ev.SeatNumber, ev.PriceCents), nil
    case HoldsReleasedQueue:
        var ev HoldsReleasedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return "", fmt.Errorf("unmarshal %s: %w", queueName, err)
        }
        return fmt.Sprintf("[%s] Holds released | count=%d\n", ev.ReleasedAt, ev.Count), nil
    }
    return "", fmt.Errorf("unknown queue %q", queueName)
}
