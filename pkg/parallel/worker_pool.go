// Package parallel runs independent analysis tasks on a fixed set of goroutines.
package parallel

import (
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/dd0wney/cluso-attackgraph/pkg/logging"
)

// WorkerPool manages a pool of worker goroutines
type WorkerPool struct {
	workers   int
	taskQueue chan func()
	wg        sync.WaitGroup
	once      sync.Once
	mu        sync.RWMutex // Protects taskQueue from concurrent close during send
	closed    bool         // Protected by mu
	logger    logging.Logger
}

// ErrTooManyWorkers is returned when the worker count exceeds the maximum allowed.
var ErrTooManyWorkers = errors.New("worker count exceeds maximum")

// ErrPoolClosed is returned when work is submitted after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

// MaxWorkers is the maximum number of workers allowed in a pool.
const MaxWorkers = math.MaxInt / 2

// NewWorkerPool creates a new worker pool with specified number of workers.
// Returns an error if the worker count exceeds MaxWorkers.
func NewWorkerPool(workers int, logger logging.Logger) (*WorkerPool, error) {
	if workers <= 0 {
		workers = 1
	}

	// Prevent overflow in buffer size calculation
	if workers > MaxWorkers {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrTooManyWorkers, workers, MaxWorkers)
	}

	pool := &WorkerPool{
		workers:   workers,
		taskQueue: make(chan func(), workers*2),
		logger:    logging.OrDefault(logger).With(logging.Component("worker_pool")),
	}

	pool.start()
	return pool, nil
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

func (wp *WorkerPool) start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for task := range wp.taskQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					wp.logger.Error("worker panic recovered", logging.Any("panic", r))
				}
			}()
			task()
		}()
	}
}

// Submit adds a task to the worker pool
// Returns false if the pool is closed, true if task was submitted
func (wp *WorkerPool) Submit(task func()) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return false
	}

	wp.taskQueue <- task
	return true
}

// Close stops accepting work and waits for queued tasks to finish.
func (wp *WorkerPool) Close() {
	wp.once.Do(func() {
		wp.mu.Lock()
		wp.closed = true
		close(wp.taskQueue)
		wp.mu.Unlock()
	})
	wp.wg.Wait()
}

// Batch groups tasks so a caller can block until exactly those tasks have
// finished. A pool can serve any number of consecutive batches.
type Batch struct {
	pool *WorkerPool
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs *multierror.Error
}

// NewBatch starts an empty batch on the pool.
func (wp *WorkerPool) NewBatch() *Batch {
	return &Batch{pool: wp}
}

// Go schedules task. A returned error or a panic inside task is recorded and
// reported by Wait.
func (b *Batch) Go(name string, task func() error) error {
	b.wg.Add(1)
	ok := b.pool.Submit(func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.record(fmt.Errorf("task %s panicked: %v\n%s", name, r, debug.Stack()))
			}
		}()
		if err := task(); err != nil {
			b.record(fmt.Errorf("task %s: %w", name, err))
		}
	})
	if !ok {
		b.wg.Done()
		return ErrPoolClosed
	}
	return nil
}

func (b *Batch) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = multierror.Append(b.errs, err)
}

// Wait blocks until every task of the batch has finished and returns all
// recorded failures, or nil.
func (b *Batch) Wait() error {
	b.wg.Wait()
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errs.ErrorOrNil()
}
