// Package batch runs a due-item batch with bounded concurrency, isolating
// per-item failures and aggregating the outcome counts.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is used when a non-positive concurrency is requested.
const DefaultConcurrency = 4

// SkipError marks an item that was intentionally not processed.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "skipped: " + e.Reason
}

// Skip returns an error that counts the item as skipped instead of failed.
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// Skipf is the formatted variant of Skip.
func Skipf(format string, args ...any) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

// IsSkip reports whether err marks a skipped item.
func IsSkip(err error) bool {
	var s *SkipError
	return errors.As(err, &s)
}

// Result contains the aggregate outcome of a batch run.
type Result struct {
	Processed int
	Succeeded int
	Skipped   int
	Failed    int
	Errors    []string
}

func (r *Result) record(key string, err error) {
	r.Processed++
	switch {
	case err == nil:
		r.Succeeded++
	case IsSkip(err):
		r.Skipped++
	default:
		r.Failed++
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", key, err))
	}
}

// Merge adds the counts of other into r.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Processed += other.Processed
	r.Succeeded += other.Succeeded
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}

// Observer is notified of every item outcome. Used for metrics and logging.
type Observer func(key string, err error)

// Run processes every item with at most concurrency goroutines. Each call to fn
// is expected to be its own unit of work; an error returned by fn is recorded
// against that item only and never cancels the remaining items. Items not
// started before ctx is cancelled are counted as failed.
func Run[T any](ctx context.Context, items []T, concurrency int, key func(T) string, fn func(context.Context, T) error, observers ...Observer) *Result {
	result := &Result{Errors: []string{}}
	if len(items) == 0 {
		return result
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var mu sync.Mutex
	g := &errgroup.Group{}
	g.SetLimit(concurrency)

	for _, item := range items {
		g.Go(func() error {
			k := key(item)
			var err error
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			} else {
				err = fn(ctx, item)
			}

			mu.Lock()
			result.record(k, err)
			mu.Unlock()

			for _, observe := range observers {
				observe(k, err)
			}
			return nil
		})
	}

	// fn errors are recorded above, never returned to the group.
	_ = g.Wait()

	return result
}
