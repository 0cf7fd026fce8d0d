// Package async runs the independent store calls of a single report request
// concurrently and joins them before enrichment proceeds.
package async

import (
	"context"
	"sync"
)

// Task is one named unit of work within a request.
type Task struct {
	Name    string
	Execute func(ctx context.Context) (any, error)
}

// Result is the outcome of one task.
type Result struct {
	Name string
	Data any
	Err  error
}

// Run executes all tasks concurrently and returns their results keyed by
// name. It always waits for every task; callers inspect errors afterwards so
// a report either has all of its inputs or fails as a whole.
func Run(ctx context.Context, tasks []Task) map[string]Result {
	results := make(map[string]Result, len(tasks))
	out := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			data, err := task.Execute(ctx)
			out <- Result{Name: task.Name, Data: data, Err: err}
		}(task)
	}

	wg.Wait()
	close(out)

	for r := range out {
		results[r.Name] = r
	}
	return results
}

// FirstError returns the first failure among the results, if any. Iteration
// order is unspecified; callers only need to know the report failed.
func FirstError(results map[string]Result) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// Value returns a typed task result. A missing or failed task yields the zero
// value.
func Value[T any](results map[string]Result, name string) T {
	var zero T
	r, ok := results[name]
	if !ok || r.Err != nil || r.Data == nil {
		return zero
	}
	if v, ok := r.Data.(T); ok {
		return v
	}
	return zero
}
