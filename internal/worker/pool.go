package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pool is an in-process Submitter backed by a fixed set of goroutines and a
// bounded queue. Work is lost if the process exits; the read path repairs
// any job left processing.
type Pool struct {
	runner      Runner
	concurrency int
	tasks       chan Task

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewPool creates a pool. Call Start before submitting.
func NewPool(runner Runner, concurrency, queueSize int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		runner:      runner,
		concurrency: concurrency,
		tasks:       make(chan Task, queueSize),
	}
}

// Start launches the pool goroutines. Tasks run under ctx.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.loop(ctx)
	}
	zap.L().Info("worker: pool started",
		zap.Int("concurrency", p.concurrency),
		zap.Int("queue_size", cap(p.tasks)),
	)
}

// Submit enqueues t without blocking.
func (p *Pool) Submit(_ context.Context, t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for queued and running tasks.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()
	for t := range p.tasks {
		p.run(ctx, t)
	}
}

func (p *Pool) run(ctx context.Context, t Task) {
	log := zap.L().With(
		zap.String("job_id", t.JobID),
		zap.String("kind", string(t.Kind)),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker: task panicked", zap.Any("panic", r))
		}
	}()

	start := time.Now()
	outcome, err := Execute(ctx, p.runner, t)
	if err != nil {
		log.Error("worker: task failed", zap.Error(err))
		return
	}
	log.Info("worker: task finished",
		zap.String("outcome", string(outcome)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}
