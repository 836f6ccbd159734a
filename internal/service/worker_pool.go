package service

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"go-skintone-inspector/internal/logger"
)

// ErrPoolClosed is returned by Submit after Close
var ErrPoolClosed = errors.New("worker pool closed")

// WorkerPool runs analysis jobs on a fixed set of goroutines
type WorkerPool struct {
	workers  int
	jobQueue chan func()
	quit     chan struct{}

	mu     sync.RWMutex
	closed bool

	startOnce sync.Once
	closeOnce sync.Once
	workerWG  sync.WaitGroup
	jobsWG    sync.WaitGroup

	totalJobs     atomic.Int64
	completedJobs atomic.Int64
	activeWorkers atomic.Int64
}

// PoolStats is a point-in-time view of the pool
type PoolStats struct {
	Workers       int   `json:"workers"`
	TotalJobs     int64 `json:"total_jobs"`
	CompletedJobs int64 `json:"completed_jobs"`
	ActiveWorkers int64 `json:"active_workers"`
	QueueDepth    int   `json:"queue_depth"`
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &WorkerPool{
		workers:  workers,
		jobQueue: make(chan func(), workers*2),
		quit:     make(chan struct{}),
	}
}

// Start initializes and starts all workers in the pool
func (wp *WorkerPool) Start() {
	wp.startOnce.Do(func() {
		wp.workerWG.Add(wp.workers)
		for i := 0; i < wp.workers; i++ {
			go wp.worker()
		}
	})
}

// worker processes jobs from the job queue until it is closed
func (wp *WorkerPool) worker() {
	defer wp.workerWG.Done()
	for job := range wp.jobQueue {
		wp.run(job)
	}
}

func (wp *WorkerPool) run(job func()) {
	wp.activeWorkers.Add(1)
	defer func() {
		if r := recover(); r != nil {
			logger.Component("worker_pool").WithField("panic", r).Error("Job panicked")
		}
		wp.activeWorkers.Add(-1)
		wp.completedJobs.Add(1)
		wp.jobsWG.Done()
	}()
	job()
}

// Submit queues a job, blocking while the queue is full. It fails when the
// context ends first or the pool is closed.
func (wp *WorkerPool) Submit(ctx context.Context, job func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrPoolClosed
	}

	wp.jobsWG.Add(1)
	select {
	case wp.jobQueue <- job:
		wp.totalJobs.Add(1)
		return nil
	case <-ctx.Done():
		wp.jobsWG.Done()
		return ctx.Err()
	case <-wp.quit:
		wp.jobsWG.Done()
		return ErrPoolClosed
	}
}

// Wait waits for all submitted jobs to complete
func (wp *WorkerPool) Wait() {
	wp.jobsWG.Wait()
}

// Close stops accepting jobs, drains the queue and waits for the workers to exit
func (wp *WorkerPool) Close() {
	wp.closeOnce.Do(func() {
		close(wp.quit)

		wp.mu.Lock()
		wp.closed = true
		close(wp.jobQueue)
		wp.mu.Unlock()

		// Workers never started: run what was queued so Wait cannot hang
		wp.startOnce.Do(func() {
			for job := range wp.jobQueue {
				wp.run(job)
			}
		})
		wp.workerWG.Wait()
	})
}

// GetStats returns the current counters
func (wp *WorkerPool) GetStats() PoolStats {
	return PoolStats{
		Workers:       wp.workers,
		TotalJobs:     wp.totalJobs.Load(),
		CompletedJobs: wp.completedJobs.Load(),
		ActiveWorkers: wp.activeWorkers.Load(),
		QueueDepth:    len(wp.jobQueue),
	}
}
