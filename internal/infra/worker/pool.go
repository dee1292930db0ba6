package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrQueueFull   = errors.New("worker queue full")
	ErrPoolStopped = errors.New("worker pool stopped")
)

type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines. Stop drains the
// queue before returning.
type Pool struct {
	wg      sync.WaitGroup
	mu      sync.RWMutex
	jobs    chan Task
	n       int
	stopped bool
	log     *zerolog.Logger
}

func NewPool(workers, queue int, logger *zerolog.Logger) *Pool {
	l := logger.With().Str("component", "WorkerPool").Logger()
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue <= 0 {
		queue = workers * 4
	}
	return &Pool{jobs: make(chan Task, queue), n: workers, log: &l}
}

// Start launches the workers. Tasks receive ctx detached from cancellation so
// queued work still completes during shutdown.
func (p *Pool) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for task := range p.jobs {
				p.run(base, id, task)
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error().Int("worker", id).Interface("panic", rec).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Error().Err(err).Int("worker", id).Msg("task failed")
	}
}

// Stop refuses new tasks and waits for queued ones to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

// Submit enqueues task without blocking.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		return ErrQueueFull
	}
}
