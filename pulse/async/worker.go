package async

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/AMS/am"
	"github.com/teranos/AMS/db"
	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/logger"
)

// MaxOrphanedJobsToRecover limits how many jobs left running by a crashed
// process are re-queued on start
const MaxOrphanedJobsToRecover = 1000

// pulseLogger separates lifecycle lines from per-job lines by level:
// Starting logs at DEBUG, Closing at WARN, Pulse at INFO.
type pulseLogger struct {
	*zap.SugaredLogger
}

func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, keysAndValues...)
}

func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw(msg, keysAndValues...)
}

func (l pulseLogger) Pulse(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, keysAndValues...)
}

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers       int           `json:"workers"`
	PollInterval  time.Duration `json:"poll_interval"`
	JobsPerSecond float64       `json:"jobs_per_second"` // 0 disables rate limiting
	StopTimeout   time.Duration `json:"stop_timeout"`
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      1,
		PollInterval: 500 * time.Millisecond,
		StopTimeout:  30 * time.Second,
	}
}

// PoolConfigFromAm reads the pulse section of the AMS configuration
func PoolConfigFromAm(cfg *am.Config) WorkerPoolConfig {
	poolCfg := DefaultWorkerPoolConfig()
	if cfg == nil {
		return poolCfg
	}
	if cfg.Pulse.Workers > 0 {
		poolCfg.Workers = cfg.Pulse.Workers
	}
	if cfg.Pulse.PollIntervalMS > 0 {
		poolCfg.PollInterval = time.Duration(cfg.Pulse.PollIntervalMS) * time.Millisecond
	}
	poolCfg.JobsPerSecond = cfg.Pulse.JobsPerSecond
	return poolCfg
}

// WorkerPool runs queued jobs through the handlers of its registry
type WorkerPool struct {
	queue         *Queue
	registry      *HandlerRegistry
	limiter       *rate.Limiter
	poolConfig    WorkerPoolConfig
	workers       int
	parentCtx     context.Context
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	jobsProcessed int
	activeWorkers int
	logger        pulseLogger
	mu            sync.Mutex
}

// NewWorkerPool creates a worker pool with an empty handler registry.
// Register handlers through Registry() before calling Start or RunOnce.
// Cancelling ctx stops the workers.
func NewWorkerPool(ctx context.Context, db *sql.DB, poolCfg WorkerPoolConfig, log *zap.SugaredLogger) *WorkerPool {
	return NewWorkerPoolWithRegistry(ctx, db, poolCfg, log, NewHandlerRegistry())
}

// NewWorkerPoolWithRegistry creates a worker pool around an existing registry.
func NewWorkerPoolWithRegistry(ctx context.Context, db *sql.DB, poolCfg WorkerPoolConfig, log *zap.SugaredLogger, registry *HandlerRegistry) *WorkerPool {
	workerCtx, cancel := context.WithCancel(ctx)

	if poolCfg.Workers < 1 {
		poolCfg.Workers = 1
	}
	if poolCfg.PollInterval <= 0 {
		poolCfg.PollInterval = DefaultWorkerPoolConfig().PollInterval
	}
	if poolCfg.StopTimeout <= 0 {
		poolCfg.StopTimeout = DefaultWorkerPoolConfig().StopTimeout
	}

	var limiter *rate.Limiter
	if poolCfg.JobsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(poolCfg.JobsPerSecond), 1)
	}

	return &WorkerPool{
		queue:      NewQueue(db),
		registry:   registry,
		limiter:    limiter,
		poolConfig: poolCfg,
		workers:    poolCfg.Workers,
		parentCtx:  ctx,
		ctx:        workerCtx,
		cancel:     cancel,
		logger:     pulseLogger{logger.OrNop(log).Named("pulse")},
	}
}

// Start recovers orphaned jobs and spawns the workers
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
		wp.logger.Starting("Recreated worker context after previous shutdown")
	default:
	}
	wp.jobsProcessed = 0
	ctx := wp.ctx
	wp.mu.Unlock()

	if n, err := wp.RecoverOrphanedJobs(ctx); err != nil {
		wp.logger.Warnw("Failed to recover orphaned jobs", logger.FieldError, err)
	} else if n > 0 {
		wp.logger.Starting("Recovered orphaned jobs from previous run", logger.FieldCount, n)
	}

	if warning := wp.checkMemoryPressure(); warning != "" {
		wp.logger.Warnw("Memory pressure warning", "warning", warning, "workers", wp.workers)
	}

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
	wp.logger.Pulse("Worker pool started",
		"workers", wp.workers,
		"handlers", wp.registry.Names(),
	)
}

// RecoverOrphanedJobs re-queues jobs still marked running, which can only
// happen when a previous process died mid-job
func (wp *WorkerPool) RecoverOrphanedJobs(ctx context.Context) (int, error) {
	orphaned, err := wp.queue.ListJobs(ctx, JobFilter{Status: JobStatusRunning, Limit: MaxOrphanedJobsToRecover})
	if err != nil {
		return 0, errors.Wrap(err, "failed to list running jobs")
	}

	recovered := 0
	for _, job := range orphaned {
		job.Requeue()
		if err := wp.queue.UpdateJob(ctx, job); err != nil {
			wp.logger.Warnw("Failed to recover orphaned job",
				logger.FieldJobID, job.ID,
				logger.FieldError, err,
			)
			continue
		}
		recovered++
	}
	return recovered, nil
}

// Stop cancels the workers and waits for them to exit, up to StopTimeout
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	wp.cancel()
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Pulse("Worker pool stopped, all workers exited cleanly")
	case <-time.After(wp.poolConfig.StopTimeout):
		wp.logger.Closing("Worker pool stop timed out, workers may still be running", "timeout", wp.poolConfig.StopTimeout)
	}
}

// RunOnce processes queued jobs on the calling goroutine until the queue is
// empty, including jobs enqueued by the jobs it runs. Returns how many jobs
// were executed.
func (wp *WorkerPool) RunOnce(ctx context.Context) (int, error) {
	n := 0
	for {
		ran, err := wp.processNextJob(ctx)
		if err != nil {
			return n, err
		}
		if !ran {
			return n, nil
		}
		n++
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.poolConfig.PollInterval)
	defer ticker.Stop()

	errorCount := 0
	const maxConsecutiveErrors = 5
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain whatever is queued before waiting for the next tick
		for {
			ran, err := wp.processNextJob(ctx)
			if err != nil {
				if ctx.Err() != nil || db.IsDatabaseClosed(err) {
					return
				}
				errorCount++
				wp.logger.Errorw("Worker error processing job",
					"worker_id", id,
					logger.FieldError, err,
					"consecutive_errors", errorCount,
				)
				if errorCount >= maxConsecutiveErrors {
					wp.logger.Warnw("Worker backing off due to consecutive errors",
						"worker_id", id,
						"backoff", backoff,
					)
					select {
					case <-ctx.Done():
						return
					case <-time.After(backoff):
					}
					backoff = min(backoff*2, maxBackoff)
				}
				break
			}
			if errorCount > 0 {
				wp.logger.Infow("Worker recovered from errors",
					"worker_id", id,
					"previous_error_count", errorCount,
				)
				errorCount = 0
				backoff = time.Second
			}
			if !ran {
				break
			}
		}
	}
}

// processNextJob runs at most one job. ran is false when nothing was queued.
// A failing handler fails its job but is not an error of the pool.
func (wp *WorkerPool) processNextJob(ctx context.Context) (ran bool, err error) {
	if ctx.Err() != nil {
		return false, nil
	}

	if wp.limiter != nil {
		if err := wp.limiter.Wait(ctx); err != nil {
			return false, nil
		}
	}

	job, err := wp.queue.Dequeue(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to dequeue job")
	}
	if job == nil {
		return false, nil
	}

	wp.mu.Lock()
	wp.jobsProcessed++
	wp.activeWorkers++
	wp.mu.Unlock()
	defer func() {
		wp.mu.Lock()
		wp.activeWorkers--
		wp.mu.Unlock()
	}()

	// Job bookkeeping must land even when shutdown races the handler
	persistCtx := context.WithoutCancel(ctx)
	jobCtx := logger.WithJobID(ctx, job.ID)
	log := logger.FromContext(jobCtx, wp.logger.SugaredLogger).With(logger.FieldHandler, job.HandlerName)
	start := time.Now()

	if execErr := wp.registry.Dispatch(jobCtx, job); execErr != nil {
		if ctx.Err() != nil {
			// Shutdown interrupted the job, leave it for the next run
			wp.logger.Closing("Job interrupted by shutdown, re-queuing", logger.FieldJobID, job.ID)
			job.Requeue()
			if updateErr := wp.queue.UpdateJob(persistCtx, job); updateErr != nil {
				log.Errorw("Failed to re-queue interrupted job", logger.FieldError, updateErr)
			}
			return true, nil
		}

		log.Warnw("Job failed",
			logger.FieldError, execErr,
			logger.FieldErrorClass, errors.ClassName(execErr),
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
		return true, wp.queue.FailJob(persistCtx, job.ID, execErr)
	}

	log.Debugw("Job completed", logger.FieldDurationMS, time.Since(start).Milliseconds())
	return true, wp.queue.CompleteJob(persistCtx, job.ID)
}

// GetQueue returns the job queue
func (wp *WorkerPool) GetQueue() *Queue {
	return wp.queue
}

// Workers returns the number of concurrent workers configured for this pool
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// JobsProcessed returns how many jobs this pool has executed since Start
func (wp *WorkerPool) JobsProcessed() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.jobsProcessed
}

// Registry returns the handler registry.
//
//	pool := async.NewWorkerPool(ctx, db, poolCfg, log)
//	ingest.RegisterHandlers(pool.Registry(), deps)
//	pool.Start()
func (wp *WorkerPool) Registry() *HandlerRegistry {
	return wp.registry
}

func (wp *WorkerPool) String() string {
	return fmt.Sprintf("WorkerPool{workers: %d, handlers: %d}", wp.workers, len(wp.registry.Names()))
}
