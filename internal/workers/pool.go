// Package workers provides a bounded goroutine pool for running independent
// simulation runs in parallel.
package workers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Task represents a unit of work to be processed
type Task interface {
	Execute() error
}

// TaskFunc is a function that can be used as a Task
type TaskFunc func() error

func (f TaskFunc) Execute() error { return f() }

// Pool manages a pool of worker goroutines
type Pool struct {
	logger *zap.Logger
	config *PoolConfig

	taskQueue chan *job
	wg        sync.WaitGroup

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	metrics *PoolMetrics
}

// PoolConfig configures the worker pool
type PoolConfig struct {
	Name          string // Pool name for logging
	NumWorkers    int    // Number of worker goroutines
	QueueSize     int    // Size of the task queue
	PanicRecovery bool   // Turn panics into task errors
}

// DefaultPoolConfig returns sensible defaults
func DefaultPoolConfig(name string) *PoolConfig {
	return &PoolConfig{
		Name:          name,
		NumWorkers:    runtime.NumCPU(),
		QueueSize:     1024,
		PanicRecovery: true,
	}
}

// PoolMetrics tracks task counts
type PoolMetrics struct {
	TasksSubmitted atomic.Int64
	TasksCompleted atomic.Int64
	TasksFailed    atomic.Int64
	PanicRecovered atomic.Int64
}

// PoolStats is a snapshot of PoolMetrics
type PoolStats struct {
	TasksSubmitted int64 `json:"tasks_submitted"`
	TasksCompleted int64 `json:"tasks_completed"`
	TasksFailed    int64 `json:"tasks_failed"`
	PanicRecovered int64 `json:"panic_recovered"`
}

type job struct {
	task Task
	done func(error)
}

// NewPool creates a new worker pool
func NewPool(logger *zap.Logger, config *PoolConfig) *Pool {
	if config == nil {
		config = DefaultPoolConfig("default")
	}
	if config.NumWorkers < 1 {
		config.NumWorkers = 1
	}
	if config.QueueSize < 1 {
		config.QueueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		logger:    logger,
		config:    config,
		taskQueue: make(chan *job, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		metrics:   &PoolMetrics{},
	}
}

// Start launches the workers
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}

	p.logger.Debug("starting worker pool",
		zap.String("name", p.config.Name),
		zap.Int("workers", p.config.NumWorkers),
		zap.Int("queue_size", p.config.QueueSize),
	)

	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case j := <-p.taskQueue:
			err := p.execute(id, j.task)
			if j.done != nil {
				j.done(err)
			}
		}
	}
}

// execute runs a single task with panic recovery
func (p *Pool) execute(workerID int, task Task) (err error) {
	if p.config.PanicRecovery {
		defer func() {
			if r := recover(); r != nil {
				p.metrics.PanicRecovered.Add(1)
				p.logger.Error("worker recovered from panic",
					zap.Int("worker_id", workerID),
					zap.Any("panic", r),
				)
				err = &PanicError{Recovered: r}
			}
			p.record(err)
		}()
		return task.Execute()
	}

	err = task.Execute()
	p.record(err)
	return err
}

func (p *Pool) record(err error) {
	if err != nil {
		p.metrics.TasksFailed.Add(1)
		return
	}
	p.metrics.TasksCompleted.Add(1)
}

func (p *Pool) submit(j *job) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}

	select {
	case p.taskQueue <- j:
	case <-p.ctx.Done():
		return ErrPoolStopped
	}

	p.metrics.TasksSubmitted.Add(1)
	return nil
}

// RunAll executes every task and waits for all of them. Task errors are
// combined. Tasks not yet queued when ctx is cancelled are skipped and the
// context error is included.
func (p *Pool) RunAll(ctx context.Context, tasks []Task) error {
	var (
		mu   sync.Mutex
		errs error
		wg   sync.WaitGroup
	)

	done := func(err error) {
		if err != nil {
			mu.Lock()
			errs = multierr.Append(errs, err)
			mu.Unlock()
		}
		wg.Done()
	}

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return multierr.Append(errs, fmt.Errorf("cancelled after %d of %d tasks: %w", i, len(tasks), err))
		}

		wg.Add(1)
		if err := p.submit(&job{task: task, done: done}); err != nil {
			wg.Done()
			wg.Wait()
			return multierr.Append(errs, err)
		}
	}

	wg.Wait()
	return errs
}

// Stop shuts down the workers after the tasks they are running finish
func (p *Pool) Stop() {
	if !p.running.Swap(false) {
		return
	}

	p.cancel()
	p.wg.Wait()

	p.logger.Debug("worker pool stopped", zap.String("name", p.config.Name))
}

// Stats returns current pool statistics
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		TasksSubmitted: p.metrics.TasksSubmitted.Load(),
		TasksCompleted: p.metrics.TasksCompleted.Load(),
		TasksFailed:    p.metrics.TasksFailed.Load(),
		PanicRecovered: p.metrics.PanicRecovered.Load(),
	}
}

// Errors
var (
	ErrPoolStopped = &PoolError{Message: "pool is stopped"}
)

// PoolError represents a pool error
type PoolError struct {
	Message string
}

func (e *PoolError) Error() string { return e.Message }

// PanicError represents a recovered panic
type PanicError struct {
	Recovered interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.Recovered)
}
