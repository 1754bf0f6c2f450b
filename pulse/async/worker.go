package async

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/arcline/adsync/config"
	"github.com/arcline/adsync/errors"
)

const (
	// MaxOrphanedJobsToRecover limits how many orphaned jobs are re-queued
	// on startup after a crash
	MaxOrphanedJobsToRecover = 1000

	// MaxRetries is the maximum number of retry attempts for a job that
	// failed on a transient error
	MaxRetries = 2
)

// WorkerPool manages a pool of workers that drain the sync job queue.
// Each worker polls on a ticker, dequeues at most one job per tick, and
// runs it through the handler registry. An optional pool-level rate
// limiter gates job starts across all workers.
type WorkerPool struct {
	queue      *Queue
	limiter    *rate.Limiter
	poolConfig WorkerPoolConfig
	workers    int

	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	executor JobExecutor
	log      *zap.SugaredLogger

	mu            sync.Mutex
	activeWorkers int
}

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers           int           `json:"workers"`
	PollInterval      time.Duration `json:"poll_interval"`
	RequestsPerMinute int           `json:"requests_per_minute"` // 0 disables the pool-level gate
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      1,
		PollInterval: 5 * time.Second,
	}
}

// PoolConfigFromPulse builds a worker pool configuration from the pulse
// section of the application config
func PoolConfigFromPulse(cfg config.PulseConfig) WorkerPoolConfig {
	poolCfg := DefaultWorkerPoolConfig()
	if cfg.Workers > 0 {
		poolCfg.Workers = cfg.Workers
	}
	if cfg.TickerIntervalSeconds > 0 {
		poolCfg.PollInterval = time.Duration(cfg.TickerIntervalSeconds) * time.Second
	}
	poolCfg.RequestsPerMinute = cfg.RequestsPerMinute
	return poolCfg
}

// NewWorkerPool creates a worker pool with an empty handler registry.
// Callers must register handlers through Registry() before calling Start.
func NewWorkerPool(ctx context.Context, db *sql.DB, poolCfg WorkerPoolConfig, logger *zap.SugaredLogger) *WorkerPool {
	return NewWorkerPoolWithRegistry(ctx, db, poolCfg, logger, NewHandlerRegistry())
}

// NewWorkerPoolWithRegistry creates a worker pool with a custom handler
// registry. The pool derives its own context from ctx so shutdown can be
// driven either by Stop or by cancelling the parent.
func NewWorkerPoolWithRegistry(ctx context.Context, db *sql.DB, poolCfg WorkerPoolConfig, logger *zap.SugaredLogger, registry *HandlerRegistry) *WorkerPool {
	workerCtx, cancel := context.WithCancel(ctx)

	if poolCfg.Workers <= 0 {
		poolCfg.Workers = DefaultWorkerPoolConfig().Workers
	}
	if poolCfg.PollInterval <= 0 {
		poolCfg.PollInterval = DefaultWorkerPoolConfig().PollInterval
	}

	var limiter *rate.Limiter
	if poolCfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(poolCfg.RequestsPerMinute)/60.0), poolCfg.RequestsPerMinute)
	}

	return &WorkerPool{
		queue:      NewQueue(db),
		limiter:    limiter,
		poolConfig: poolCfg,
		workers:    poolCfg.Workers,
		parentCtx:  ctx,
		ctx:        workerCtx,
		cancel:     cancel,
		executor:   NewRegistryExecutor(registry),
		log:        logger.Named("pulse"),
	}
}

// Start recovers orphaned jobs and begins processing with the configured
// number of workers
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	select {
	case <-wp.ctx.Done():
		// Restarting after a previous Stop
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
	default:
	}
	wp.mu.Unlock()

	if err := wp.recoverOrphanedJobs(); err != nil {
		wp.log.Warnw("Failed to recover orphaned jobs", "error", err)
	}

	wp.log.Infow("Worker pool starting",
		"workers", wp.workers,
		"poll_interval", wp.poolConfig.PollInterval)

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// recoverOrphanedJobs re-queues jobs stuck in running state from an
// ungraceful shutdown so their work is not lost
func (wp *WorkerPool) recoverOrphanedJobs() error {
	runningStatus := JobStatusRunning
	orphaned, err := wp.queue.store.ListJobs(&runningStatus, MaxOrphanedJobsToRecover)
	if err != nil {
		return errors.Wrap(err, "failed to list running jobs")
	}
	if len(orphaned) == 0 {
		return nil
	}

	wp.log.Warnw("Recovering orphaned jobs from previous shutdown", "count", len(orphaned))

	for _, job := range orphaned {
		job.Status = JobStatusQueued
		job.Error = ""
		if err := wp.queue.UpdateJob(job); err != nil {
			wp.log.Warnw("Failed to recover orphaned job", "job_id", job.ID, "error", err)
			continue
		}
		wp.log.Infow("Recovered orphaned job", "job_id", job.ID, "handler", job.HandlerName)
	}

	return nil
}

// Stop gracefully stops the worker pool, waiting up to 30 seconds for
// in-flight jobs to observe cancellation and exit
func (wp *WorkerPool) Stop() {
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	timeout := 30 * time.Second
	select {
	case <-done:
		wp.log.Infow("Worker pool stopped")
	case <-time.After(timeout):
		wp.log.Warnw("Worker pool stop timeout, workers may still be finishing", "timeout", timeout)
	}
}

// worker polls the queue until the pool context is cancelled
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.poolConfig.PollInterval)
	defer ticker.Stop()

	errorCount := 0
	const maxConsecutiveErrors = 5
	backoffDuration := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			if err := wp.processNextJob(); err != nil {
				select {
				case <-wp.ctx.Done():
					return
				default:
				}
				if errors.Is(err, sql.ErrConnDone) {
					// Database closed during shutdown
					return
				}

				errorCount++
				wp.log.Errorw("Worker error processing job",
					"worker_id", id,
					"error", err,
					"consecutive_errors", errorCount)

				if errorCount >= maxConsecutiveErrors {
					wp.log.Warnw("Worker backing off after consecutive errors",
						"worker_id", id,
						"backoff", backoffDuration)
					time.Sleep(backoffDuration)
					backoffDuration = min(backoffDuration*2, maxBackoff)
				}
			} else {
				if errorCount > 0 {
					wp.log.Infow("Worker recovered from errors",
						"worker_id", id,
						"previous_error_count", errorCount)
				}
				errorCount = 0
				backoffDuration = time.Second
			}
		}
	}
}

// processNextJob dequeues and runs at most one job
func (wp *WorkerPool) processNextJob() error {
	select {
	case <-wp.ctx.Done():
		return nil
	default:
	}

	job, err := wp.queue.Dequeue()
	if err != nil {
		return errors.Wrap(err, "failed to dequeue job")
	}
	if job == nil {
		return nil
	}

	// Pool-level rate gate; blocks rather than failing the job
	if wp.limiter != nil {
		if err := wp.limiter.Wait(wp.ctx); err != nil {
			// Shutdown while waiting; put the job back
			job.Status = JobStatusQueued
			return wp.queue.UpdateJob(job)
		}
	}

	// A child whose parent is gone or dead must not run
	if job.ParentJobID != "" {
		parent, err := wp.queue.GetJob(job.ParentJobID)
		if err != nil {
			job.Cancel("parent job deleted")
			return wp.queue.UpdateJob(job)
		}
		if parent.Status == JobStatusFailed || parent.Status == JobStatusCancelled {
			job.Cancel("parent job " + string(parent.Status))
			return wp.queue.UpdateJob(job)
		}
	}

	wp.mu.Lock()
	wp.activeWorkers++
	wp.mu.Unlock()
	defer func() {
		wp.mu.Lock()
		wp.activeWorkers--
		wp.mu.Unlock()
	}()

	if err := wp.executor.Execute(wp.ctx, job); err != nil {
		select {
		case <-wp.ctx.Done():
			// Cancelled mid-run; requeue with progress intact rather than failing
			wp.log.Infow("Job cancelled during execution, re-queuing", "job_id", job.ID)
			job.Status = JobStatusQueued
			if updateErr := wp.queue.UpdateJob(job); updateErr != nil {
				wp.log.Errorw("Failed to re-queue cancelled job", "job_id", job.ID, "error", updateErr)
			}
			return nil
		default:
		}

		if errors.Is(err, errors.ErrTransientAPI) && job.RetryCount < MaxRetries {
			wp.log.Warnw("Job failed on transient error, scheduling retry",
				"job_id", job.ID,
				"retry_count", job.RetryCount+1,
				"max_retries", MaxRetries,
				"error", err)
			job.Requeue()
			job.Error = err.Error()
			return wp.queue.UpdateJob(job)
		}

		return wp.queue.FailJob(job.ID, err)
	}

	return wp.queue.CompleteJob(job.ID)
}

// GetQueue returns the job queue (useful for enqueuing jobs)
func (wp *WorkerPool) GetQueue() *Queue {
	return wp.queue
}

// Workers returns the number of concurrent workers configured for this pool
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// ActiveWorkers returns how many workers are currently executing a job
func (wp *WorkerPool) ActiveWorkers() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.activeWorkers
}

// Registry returns the handler registry for registering job handlers
// before Start
func (wp *WorkerPool) Registry() *HandlerRegistry {
	if registryExec, ok := wp.executor.(*RegistryExecutor); ok {
		return registryExec.registry
	}
	return nil
}
