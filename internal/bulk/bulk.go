package bulk

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Operation represents a bulk operation configuration
type Operation struct {
	// Jobs bounds how many items are processed at once. 0 means NumCPU.
	Jobs int
}

// ItemFunc processes item i. Per-item failures are recorded by the function
// itself; a returned error is run-level and cancels the remaining items.
type ItemFunc func(ctx context.Context, i int) error

// Execute runs fn for items 0..n-1 with at most Jobs in flight. It returns
// the first run-level error, after every started item has returned. Items
// not yet started when the error occurs are never started.
func (op *Operation) Execute(ctx context.Context, n int, fn ItemFunc) error {
	if n == 0 {
		return nil
	}

	jobs := op.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	sem := semaphore.NewWeighted(int64(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			return fn(gctx, i)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Result represents the result of a bulk operation
type Result struct {
	TotalItems int
	Succeeded  int
	Failed     int
	Errors     []ItemError

	mu sync.Mutex
}

// ItemError represents an error for a specific item
type ItemError struct {
	Item  string
	Error error
}

// Record adds the outcome of one item. Safe for concurrent use.
func (r *Result) Record(item string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.Failed++
		r.Errors = append(r.Errors, ItemError{Item: item, Error: err})
		return
	}
	r.Succeeded++
}

// ExitCode returns the appropriate exit code for the result
func (r *Result) ExitCode() int {
	if r.Failed == 0 {
		return 0 // All succeeded
	}
	if r.Succeeded > 0 {
		return 5 // Partial success
	}
	return 1 // All failed
}

// PrintSummary prints a human-readable summary of the result
func (r *Result) PrintSummary(w io.Writer) {
	if r.Failed == 0 {
		fmt.Fprintf(w, "\n✓ All %d operations succeeded\n", r.TotalItems)
	} else if r.Succeeded == 0 {
		fmt.Fprintf(w, "\n✗ All %d operations failed\n", r.TotalItems)
	} else {
		fmt.Fprintf(w, "\n⚠ Partial success: %d succeeded, %d failed (out of %d)\n",
			r.Succeeded, r.Failed, r.TotalItems)
	}

	if len(r.Errors) > 0 && len(r.Errors) <= 10 {
		fmt.Fprintf(w, "\nErrors:\n")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s: %v\n", e.Item, e.Error)
		}
	} else if len(r.Errors) > 10 {
		fmt.Fprintf(w, "\nShowing first 10 errors (of %d):\n", len(r.Errors))
		for _, e := range r.Errors[:10] {
			fmt.Fprintf(w, "  %s: %v\n", e.Item, e.Error)
		}
	}
}
