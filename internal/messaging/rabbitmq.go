package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
)

var (
	queues = []string{FinetuneQueue}

	errPublisherClosed = errors.New("rabbitmq publisher is closed")
)

func dial(url string) (*amqp.Connection, error) {
	var conn *amqp.Connection

	attempt := 0
	backoff := retry.WithMaxRetries(MaxConnectRetry-1, retry.NewConstant(RetryDelay))
	err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		attempt++
		var err error
		if conn, err = amqp.Dial(url); err != nil {
			slog.Warn("rabbitmq dial failed", "attempt", attempt, "max_attempts", MaxConnectRetry, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to reach rabbitmq after %d attempts: %w", attempt, err)
	}

	slog.Info("connected to rabbitmq")
	return conn, nil
}

// openChannel dials the broker and returns a channel on which every task queue
// has been declared durable. A positive prefetch limits unacknowledged
// deliveries on the channel.
func openChannel(url string, prefetch int) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := dial(url)
	if err != nil {
		return nil, nil, err
	}

	fail := func(err error) (*amqp.Connection, *amqp.Channel, error) {
		conn.Close()
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return fail(fmt.Errorf("error opening rabbitmq channel: %w", err))
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return fail(fmt.Errorf("error setting prefetch on rabbitmq channel: %w", err))
		}
	}

	for _, queue := range queues {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fail(fmt.Errorf("error declaring queue %s: %w", queue, err))
		}
	}

	return conn, ch, nil
}

// redial keeps calling open until it succeeds or ctx is done.
func redial(ctx context.Context, open func() error) error {
	return retry.Do(ctx, retry.NewConstant(10*RetryDelay), func(ctx context.Context) error {
		if err := open(); err != nil {
			slog.Warn("rabbitmq reconnect failed", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

type RabbitMQPublisher struct {
	url string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	// held for writing while the connection is being replaced, so publishes
	// wait for the new channel instead of failing
	mu   sync.RWMutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewRabbitMQPublisher(rabbitMQURL string) (*RabbitMQPublisher, error) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &RabbitMQPublisher{url: rabbitMQURL, ctx: ctx, cancel: cancel}

	if err := p.open(); err != nil {
		cancel()
		return nil, err
	}
	return p, nil
}

func (p *RabbitMQPublisher) open() error {
	conn, ch, err := openChannel(p.url, 0)
	if err != nil {
		return err
	}
	p.conn, p.ch = conn, ch

	go p.watch(ch.NotifyClose(make(chan *amqp.Error, 1)))
	return nil
}

func (p *RabbitMQPublisher) watch(closed <-chan *amqp.Error) {
	amqpErr, ok := <-closed
	if !ok || p.ctx.Err() != nil {
		return
	}

	slog.Warn("rabbitmq publisher channel closed, reconnecting", "error", amqpErr)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.conn, p.ch = nil, nil
	if err := redial(p.ctx, p.open); err != nil {
		slog.Info("rabbitmq publisher stopped reconnecting", "error", err)
		return
	}
	slog.Info("rabbitmq publisher reconnected")
}

func (p *RabbitMQPublisher) publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding %s payload: %w", queue, err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.ctx.Err() != nil {
		return errPublisherClosed
	}
	if p.ch == nil || p.ch.IsClosed() {
		return fmt.Errorf("rabbitmq channel unavailable for %s", queue)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		slog.Error("error publishing task", "queue", queue, "error", err)
		return fmt.Errorf("error publishing to %s: %w", queue, err)
	}
	return nil
}

func (p *RabbitMQPublisher) PublishFinetuneTask(ctx context.Context, payload FinetuneTaskPayload) error {
	return p.publish(ctx, FinetuneQueue, payload)
}

func (p *RabbitMQPublisher) Close() {
	p.closeOnce.Do(func() {
		p.cancel()

		p.mu.RLock()
		defer p.mu.RUnlock()
		if p.conn != nil {
			if err := p.conn.Close(); err != nil {
				slog.Error("error closing rabbitmq publisher", "error", err)
			}
		}
	})
}

type RabbitMQTask struct {
	delivery amqp.Delivery
}

func (t *RabbitMQTask) Type() string    { return t.delivery.RoutingKey }
func (t *RabbitMQTask) Payload() []byte { return t.delivery.Body }

func (t *RabbitMQTask) Ack() error {
	return t.delivery.Ack(false)
}

// Nack requeues a first delivery. A task that fails again after redelivery is
// dropped.
func (t *RabbitMQTask) Nack() error {
	return t.delivery.Nack(false, !t.delivery.Redelivered)
}

func (t *RabbitMQTask) Reject() error {
	return t.delivery.Reject(false)
}

type RabbitMQReceiver struct {
	url   string
	tasks chan Task

	ctx    context.Context
	cancel context.CancelFunc
}

func NewRabbitMQReceiver(rabbitMQURL string) (*RabbitMQReceiver, error) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &RabbitMQReceiver{
		url:    rabbitMQURL,
		tasks:  make(chan Task),
		ctx:    ctx,
		cancel: cancel,
	}

	if err := r.subscribe(); err != nil {
		cancel()
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQReceiver) subscribe() error {
	// one unacknowledged submission per worker
	conn, ch, err := openChannel(r.url, 1)
	if err != nil {
		return err
	}

	for _, queue := range queues {
		deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			conn.Close()
			return fmt.Errorf("error consuming from queue %s: %w", queue, err)
		}
		go r.forward(deliveries)
	}

	go r.watch(conn, ch.NotifyClose(make(chan *amqp.Error, 1)))
	return nil
}

func (r *RabbitMQReceiver) forward(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		select {
		case r.tasks <- &RabbitMQTask{delivery: d}:
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *RabbitMQReceiver) watch(conn *amqp.Connection, closed <-chan *amqp.Error) {
	select {
	case <-r.ctx.Done():
		slog.Info("stopping rabbitmq receiver")
		if err := conn.Close(); err != nil {
			slog.Error("error closing rabbitmq receiver", "error", err)
		}

	case amqpErr, ok := <-closed:
		if !ok {
			return
		}
		slog.Warn("rabbitmq receiver channel closed, reconnecting", "error", amqpErr)

		if err := redial(r.ctx, r.subscribe); err != nil {
			slog.Info("rabbitmq receiver stopped reconnecting", "error", err)
			return
		}
		slog.Info("rabbitmq receiver reconnected")
	}
}

func (r *RabbitMQReceiver) Tasks() <-chan Task {
	return r.tasks
}

func (r *RabbitMQReceiver) Close() {
	r.cancel()
}
