package convert

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"repack/internal/logging"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("conversion pool closed")

// Runner converts one job. *Converter satisfies it.
type Runner interface {
	Convert(ctx context.Context, job Job) Result
}

type request struct {
	ctx  context.Context
	job  Job
	done chan Result
}

// Pool runs conversions on a fixed set of workers fed by a bounded queue, so
// request handlers never execute the blocking pipeline themselves.
type Pool struct {
	runner  Runner
	jobs    chan request
	workers int
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	active atomic.Int64
}

// NewPool starts workers goroutines (runtime.NumCPU when <= 0) reading from a
// queue of queueSize pending jobs.
func NewPool(runner Runner, workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		runner:  runner,
		jobs:    make(chan request, queueSize),
		workers: workers,
		logger:  logging.NewComponentLogger(logger, "pool"),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	p.logger.Debug("conversion pool started",
		logging.Int("workers", workers),
		logging.Int("queue_size", queueSize),
	)
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for req := range p.jobs {
		p.active.Add(1)
		// The job outlives an abandoned request so staging is always cleaned up.
		res := p.runner.Convert(context.WithoutCancel(req.ctx), req.job)
		p.active.Add(-1)
		req.done <- res
	}
}

// Submit queues job and waits for its result. The error is ctx.Err() when the
// caller gives up waiting, or ErrPoolClosed; conversion failures arrive as a
// failed Result.
func (p *Pool) Submit(ctx context.Context, job Job) (Result, error) {
	req := request{ctx: ctx, job: job, done: make(chan Result, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return Result{}, ErrPoolClosed
	}
	select {
	case p.jobs <- req:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return Result{}, ctx.Err()
	}

	select {
	case res := <-req.done:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Close stops intake, lets queued jobs finish, and waits for the workers.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Stats is a point-in-time view of pool load.
type Stats struct {
	Workers int `json:"workers"`
	Queued  int `json:"queued"`
	Active  int `json:"active"`
}

// Stats reports worker count, queued jobs and jobs in flight.
func (p *Pool) Stats() Stats {
	return Stats{Workers: p.workers, Queued: len(p.jobs), Active: int(p.active.Load())}
}
