// Package queue delivers reconciliation jobs, one per payment id, to a pool
// of workers. Delivery is at least once: a job is redelivered until a
// handler succeeds or it runs out of attempts.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)

// Message is one delivery of a job. Attempts counts deliveries, including
// this one.
type Message struct {
	PaymentID int64
	Attempts  int

	id      string
	receipt string
}

type Queue interface {
	Enqueue(ctx context.Context, paymentID int64) error
	// Dequeue blocks until a message is available or ctx is done. A message
	// that cannot be decoded comes back together with the error so it can
	// be acked away.
	Dequeue(ctx context.Context) (*Message, error)
	// Ack removes a handled message.
	Ack(ctx context.Context, m *Message) error
	// Nack returns a message for redelivery. It reports false when the
	// message used its last attempt and was dropped instead.
	Nack(ctx context.Context, m *Message) (bool, error)
}

var (
	_ Queue = (*Memory)(nil)
	_ Queue = (*Azure)(nil)
)

// Memory is a process-local queue. Jobs are lost on restart. New jobs are
// bounded by size; a job already accepted is always redelivered after a
// delay that grows with its attempts.
type Memory struct {
	size        int
	maxAttempts int
	wake        chan struct{}

	mu      sync.Mutex
	ready   []Message
	delayed int
	closed  bool

	// RetryDelay is the redelivery delay per attempt made. Tests may
	// lower it.
	RetryDelay time.Duration
}

func NewMemory(size, maxAttempts int) *Memory {
	if size < 1 {
		size = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Memory{
		size:        size,
		maxAttempts: maxAttempts,
		wake:        make(chan struct{}, 1),
		RetryDelay:  time.Second,
	}
}

// Enqueue never blocks; it fails with ErrFull when size jobs are waiting.
func (q *Memory) Enqueue(_ context.Context, paymentID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if len(q.ready) >= q.size {
		return ErrFull
	}
	q.push(Message{PaymentID: paymentID})
	return nil
}

// push appends m and wakes one waiting consumer. Callers hold mu.
func (q *Memory) push(m Message) {
	q.ready = append(q.ready, m)
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Memory) Dequeue(ctx context.Context) (*Message, error) {
	for {
		q.mu.Lock()
		if len(q.ready) > 0 {
			m := q.ready[0]
			q.ready = q.ready[1:]
			if len(q.ready) > 0 {
				select {
				case q.wake <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			m.Attempts++
			return &m, nil
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *Memory) Ack(context.Context, *Message) error { return nil }

// Nack schedules redelivery after RetryDelay times the attempts made. It
// does not block and ignores the size bound.
func (q *Memory) Nack(_ context.Context, m *Message) (bool, error) {
	if m.Attempts >= q.maxAttempts {
		return false, nil
	}
	retry := *m
	q.mu.Lock()
	q.delayed++
	q.mu.Unlock()
	time.AfterFunc(q.RetryDelay*time.Duration(m.Attempts), func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.delayed--
		q.push(retry)
	})
	return true, nil
}

// Len is the number of messages ready for delivery.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// Pending is the number of messages waiting out a retry delay.
func (q *Memory) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.delayed
}

// Close rejects further enqueues. Waiting and delayed messages are still
// delivered.
func (q *Memory) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
