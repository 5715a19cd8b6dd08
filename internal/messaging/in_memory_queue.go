package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("queue is closed")

type inMemoryTask struct {
	name        string
	payload     []byte
	redelivered bool
	owner       *InMemoryQueue
}

func (t *inMemoryTask) Type() string {
	return t.name
}

func (t *inMemoryTask) Payload() []byte {
	return t.payload
}

func (t *inMemoryTask) Ack() error {
	return nil
}

// Nack puts a first delivery back on the queue, mirroring the RabbitMQ
// requeue-once rule. The push happens in the background so the consumer that
// nacks cannot block on a full buffer.
func (t *inMemoryTask) Nack() error {
	if t.redelivered || t.owner == nil {
		return nil
	}
	retry := &inMemoryTask{name: t.name, payload: t.payload, redelivered: true, owner: t.owner}
	go t.owner.push(context.Background(), retry)
	return nil
}

func (t *inMemoryTask) Reject() error {
	return nil
}

// InMemoryQueue is both the Publisher and the Reciever for a single process
// deployment. Tasks are lost on restart, so callers re-publish pending work on
// startup.
type InMemoryQueue struct {
	mu     sync.RWMutex
	tasks  chan Task
	closed bool

	// closed before mu is taken for writing, so pushes blocked on a full
	// buffer give up their read lock
	done     chan struct{}
	doneOnce sync.Once
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tasks: make(chan Task, 100),
		done:  make(chan struct{}),
	}
}

func (q *InMemoryQueue) push(ctx context.Context, task *inMemoryTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) publishTaskInternal(ctx context.Context, queue string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return q.push(ctx, &inMemoryTask{name: queue, payload: data, owner: q})
}

func (q *InMemoryQueue) PublishFinetuneTask(ctx context.Context, payload FinetuneTaskPayload) error {
	return q.publishTaskInternal(ctx, FinetuneQueue, payload)
}

func (q *InMemoryQueue) Tasks() <-chan Task {
	return q.tasks
}

func (q *InMemoryQueue) Close() {
	q.doneOnce.Do(func() { close(q.done) })

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
}
