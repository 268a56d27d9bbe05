package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	jobTracer          = otel.Tracer("famledger/scheduler")
	jobMeter           = otel.Meter("famledger/scheduler")
	jobDuration, _     = jobMeter.Float64Histogram("scheduler.job.duration", metric.WithDescription("Job execution duration in seconds"), metric.WithUnit("s"))
	jobTotal, _        = jobMeter.Int64Counter("scheduler.job.total", metric.WithDescription("Total jobs executed by status"))
	jobQueueDropped, _ = jobMeter.Int64Counter("scheduler.job.queue_dropped", metric.WithDescription("Jobs dropped due to full queue"))
	itemTotal, _       = jobMeter.Int64Counter("scheduler.item.total", metric.WithDescription("Batch items processed by job and outcome"))
)

var (
	// ErrQueueFull is returned by Submit when the job queue has no free slot.
	ErrQueueFull = errors.New("job queue full")
	// ErrPoolStopped is returned by Submit after Shutdown.
	ErrPoolStopped = errors.New("worker pool stopped")
)

// DefaultJobTimeout bounds a single job execution.
const DefaultJobTimeout = 10 * time.Minute

// WorkerPool runs submitted jobs on a fixed number of goroutines.
type WorkerPool struct {
	workerCount int
	jobDelay    time.Duration
	jobTimeout  time.Duration
	jobs        chan Job
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	log         logrus.FieldLogger

	mu      sync.RWMutex
	stopped bool
	done    func(Job)
}

// NewWorkerPool creates a pool with workerCount goroutines and a queue of
// queueSize pending jobs. jobDelay is slept between jobs on each worker.
func NewWorkerPool(workerCount int, jobDelay time.Duration, queueSize int, log logrus.FieldLogger) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workerCount: workerCount,
		jobDelay:    jobDelay,
		jobTimeout:  DefaultJobTimeout,
		jobs:        make(chan Job, queueSize),
		ctx:         ctx,
		cancel:      cancel,
		log:         log,
	}
}

// SetJobTimeout overrides DefaultJobTimeout. Must be called before Start.
func (wp *WorkerPool) SetJobTimeout(d time.Duration) {
	if d > 0 {
		wp.jobTimeout = d
	}
}

// onDone registers a callback invoked after every job, whatever its outcome.
func (wp *WorkerPool) onDone(fn func(Job)) {
	wp.done = fn
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	wp.log.WithField("workers", wp.workerCount).Info("Starting worker pool")

	for i := 1; i <= wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	log := wp.log.WithField("worker", id)
	log.Debug("Worker started")

	for {
		select {
		case <-wp.ctx.Done():
			log.Debug("Worker shutting down")
			return

		case job, ok := <-wp.jobs:
			if !ok {
				log.Debug("Job channel closed")
				return
			}

			wp.processJob(id, job)

			if wp.jobDelay > 0 {
				select {
				case <-time.After(wp.jobDelay):
				case <-wp.ctx.Done():
					return
				}
			}
		}
	}
}

// processJob executes a single job with logging and telemetry.
func (wp *WorkerPool) processJob(workerID int, job Job) {
	if wp.done != nil {
		defer wp.done(job)
	}

	log := wp.log.WithFields(logrus.Fields{"worker": workerID, "job": job.Name()})
	log.Info("Processing job")

	ctx, cancel := context.WithTimeout(wp.ctx, wp.jobTimeout)
	defer cancel()

	ctx, span := jobTracer.Start(ctx, "job.execute",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("job.name", job.Name()),
		),
	)
	defer span.End()

	start := time.Now()
	err := job.Execute(ctx)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	attrs := metric.WithAttributes(attribute.String("job", job.Name()), attribute.String("status", status))
	jobTotal.Add(ctx, 1, attrs)
	jobDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("job", job.Name())))

	if err != nil {
		log.WithError(err).WithField("elapsed", elapsed).Error("Job failed")
		return
	}
	log.WithField("elapsed", elapsed).Info("Job completed")
}

// Submit queues a job without blocking. It returns ErrQueueFull when the
// queue is saturated and ErrPoolStopped after Shutdown.
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrPoolStopped
	}

	select {
	case <-wp.ctx.Done():
		return ErrPoolStopped
	case wp.jobs <- job:
		return nil
	default:
		jobQueueDropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("job", job.Name())))
		wp.log.WithField("job", job.Name()).Warn("Job queue full, dropping job")
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits up to timeout for queued and
// running jobs to finish. After the timeout running jobs see their context
// cancelled.
func (wp *WorkerPool) Shutdown(timeout time.Duration) {
	wp.log.WithField("timeout", timeout).Info("Worker pool: initiating graceful shutdown")

	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobs)
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.log.Info("Worker pool: all workers finished gracefully")
	case <-time.After(timeout):
		wp.log.Warn("Worker pool: timeout reached, cancelling running jobs")
		wp.cancel()
		<-done
	}
	wp.cancel()

	wp.log.Info("Worker pool: shutdown complete")
}
