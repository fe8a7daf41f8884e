package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var jobsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fund_queue_jobs_total",
		Help: "Reconciliation jobs by result",
	},
	[]string{"result"},
)

// Handler processes one job. Returning an error asks for redelivery.
type Handler func(ctx context.Context, paymentID int64) error

// Pool runs a fixed number of workers against one queue.
type Pool struct {
	queue   Queue
	handle  Handler
	workers int
	log     *slog.Logger

	// backoff after a failed dequeue
	backoff time.Duration
}

func NewPool(q Queue, h Handler, workers int, log *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{queue: q, handle: h, workers: workers, log: log, backoff: time.Second}
}

// Run blocks until ctx is done and every worker has returned. A job in
// flight when ctx ends is not acked and will be redelivered.
func (p *Pool) Run(ctx context.Context) {
	p.log.Info("worker pool started", "workers", p.workers)
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id)
		}(i)
	}
	wg.Wait()
	p.log.Info("worker pool stopped")
}

func (p *Pool) work(ctx context.Context, id int) {
	log := p.log.With("worker", id)
	for {
		m, err := p.queue.Dequeue(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if m != nil {
				log.Error("dropping unreadable message", "error", err)
				jobsTotal.WithLabelValues("dropped").Inc()
				if err := p.queue.Ack(ctx, m); err != nil {
					log.Error("ack failed", "error", err)
				}
				continue
			}
			log.Error("dequeue failed", "error", err)
			select {
			case <-time.After(p.backoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		p.process(ctx, log, m)
	}
}

func (p *Pool) process(ctx context.Context, log *slog.Logger, m *Message) {
	log = log.With("payment_id", m.PaymentID, "attempt", m.Attempts)

	err := p.handle(ctx, m.PaymentID)
	if err == nil {
		jobsTotal.WithLabelValues("done").Inc()
		if err := p.queue.Ack(ctx, m); err != nil {
			log.Error("ack failed", "error", err)
		}
		return
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return
	}

	log.Warn("job failed", "error", err)
	retried, nerr := p.queue.Nack(ctx, m)
	switch {
	case nerr != nil:
		log.Error("requeue failed", "error", nerr)
		jobsTotal.WithLabelValues("dropped").Inc()
	case retried:
		jobsTotal.WithLabelValues("retry").Inc()
	default:
		log.Error("job dropped after max attempts")
		jobsTotal.WithLabelValues("dropped").Inc()
	}
}
