package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"famledger/internal/shared/batch"
	"famledger/internal/shared/dateutil"
)

// Job names as used by configuration and the admin CLI.
const (
	RecurringJobName  = "recurring"
	AutoPayoffJobName = "autopayoff"
	RemindersJobName  = "reminders"
)

// RecurringRunner executes due recurring rules.
type RecurringRunner interface {
	RunDue(ctx context.Context, today time.Time, concurrency int, observers ...batch.Observer) (*batch.Result, error)
}

// PayoffRunner pays off credit cards on their billing day.
type PayoffRunner interface {
	Run(ctx context.Context, today time.Time, concurrency int, observers ...batch.Observer) (*batch.Result, error)
}

// ReminderSender sweeps overdue payments and notifies about upcoming ones.
type ReminderSender interface {
	SendReminders(ctx context.Context, today time.Time, days, concurrency int, observers ...batch.Observer) (*batch.Result, error)
}

type batchFunc func(ctx context.Context, today time.Time, observers ...batch.Observer) (*batch.Result, error)

// BatchJob enumerates a due batch as of the clock's today and processes it
// item by item. Item failures are reported in the result; only a failure to
// enumerate the batch fails the job.
type BatchJob struct {
	name        string
	description string
	clock       dateutil.Clock
	run         batchFunc
	log         logrus.FieldLogger
}

// NewRecurringJob runs every due recurring rule once.
func NewRecurringJob(runner RecurringRunner, clock dateutil.Clock, concurrency int, log logrus.FieldLogger) *BatchJob {
	return &BatchJob{
		name:        RecurringJobName,
		description: "Execute due recurring transactions",
		clock:       clock,
		log:         log,
		run: func(ctx context.Context, today time.Time, observers ...batch.Observer) (*batch.Result, error) {
			return runner.RunDue(ctx, today, concurrency, observers...)
		},
	}
}

// NewAutoPayoffJob pays off every active card billing today.
func NewAutoPayoffJob(runner PayoffRunner, clock dateutil.Clock, concurrency int, log logrus.FieldLogger) *BatchJob {
	return &BatchJob{
		name:        AutoPayoffJobName,
		description: "Pay off credit cards on their billing day",
		clock:       clock,
		log:         log,
		run: func(ctx context.Context, today time.Time, observers ...batch.Observer) (*batch.Result, error) {
			return runner.Run(ctx, today, concurrency, observers...)
		},
	}
}

// NewRemindersJob marks overdue plan payments and sends due-soon reminders
// for payments due within days.
func NewRemindersJob(sender ReminderSender, clock dateutil.Clock, days, concurrency int, log logrus.FieldLogger) *BatchJob {
	return &BatchJob{
		name:        RemindersJobName,
		description: fmt.Sprintf("Mark overdue payments and remind %d days ahead", days),
		clock:       clock,
		log:         log,
		run: func(ctx context.Context, today time.Time, observers ...batch.Observer) (*batch.Result, error) {
			return sender.SendReminders(ctx, today, days, concurrency, observers...)
		},
	}
}

func (j *BatchJob) Name() string        { return j.name }
func (j *BatchJob) Description() string { return j.description }

// Execute implements Job.
func (j *BatchJob) Execute(ctx context.Context) error {
	_, err := j.Run(ctx)
	return err
}

// Run processes the batch and returns its aggregate result.
func (j *BatchJob) Run(ctx context.Context) (*batch.Result, error) {
	today := j.clock.Today()
	log := j.log.WithFields(logrus.Fields{"job": j.name, "today": today.Format(dateutil.Layout)})

	result, err := j.run(ctx, today, j.observe(ctx, log))
	if err != nil {
		log.WithError(err).Error("Failed to enumerate batch")
		return nil, fmt.Errorf("%s: %w", j.name, err)
	}

	entry := log.WithFields(logrus.Fields{
		"processed": result.Processed,
		"succeeded": result.Succeeded,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	})
	if result.Failed > 0 {
		entry.WithField("errors", result.Errors).Warn("Batch completed with failures")
	} else {
		entry.Info("Batch completed")
	}
	return result, nil
}

func (j *BatchJob) observe(ctx context.Context, log logrus.FieldLogger) batch.Observer {
	return func(key string, err error) {
		outcome := "success"
		switch {
		case err == nil:
		case batch.IsSkip(err):
			outcome = "skipped"
			log.WithField("item", key).WithField("reason", err.Error()).Debug("Item skipped")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			outcome = "cancelled"
		default:
			outcome = "failed"
			log.WithField("item", key).WithError(err).Warn("Item failed")
		}
		itemTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("job", j.name),
			attribute.String("outcome", outcome),
		))
	}
}
