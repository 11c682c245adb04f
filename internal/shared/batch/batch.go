// Package batch runs automation work items over a bounded worker pool and
// tallies their outcomes.
package batch

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Outcome is what happened to a single item.
type Outcome int

const (
	// Processed means this worker claimed the item and completed its effect.
	Processed Outcome = iota
	// Skipped means another worker or run claimed the item first.
	Skipped
	// Failed means the item errored; the error was logged by the handler.
	Failed
)

// Result is the per-pass tally reported by an automation run.
type Result struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Add merges another tally into r.
func (r *Result) Add(other Result) {
	r.Processed += other.Processed
	r.Skipped += other.Skipped
	r.Errors += other.Errors
}

// Total is the number of items seen.
func (r Result) Total() int {
	return r.Processed + r.Skipped + r.Errors
}

// Run calls fn for every item with at most workers in flight. Items never
// abort each other; a cancelled context stops scheduling new items.
func Run[T any](ctx context.Context, items []T, workers int, fn func(ctx context.Context, item T) Outcome) Result {
	if workers < 1 {
		workers = 1
	}

	var processed, skipped, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(workers)

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			switch fn(ctx, item) {
			case Processed:
				processed.Add(1)
			case Skipped:
				skipped.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return Result{
		Processed: int(processed.Load()),
		Skipped:   int(skipped.Load()),
		Errors:    int(failed.Load()),
	}
}
