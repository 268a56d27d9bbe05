package scheduler

import "context"

// Job is a unit of work run by the worker pool. Name identifies the job for
// triggering, logging and metrics and must be unique within a Scheduler.
type Job interface {
	Execute(ctx context.Context) error
	Name() string
	Description() string
}
