package llm

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPool bounds concurrent gateway calls. The unit tester uses it
// to fan out evaluator calls without sharing mutable state across
// workers: each worker writes only to the results channel and the
// coordinator reduces.
type WorkerPool struct {
	maxConcurrent int
	logger        *zap.Logger
}

// NewWorkerPool creates a pool with the given concurrency bound.
func NewWorkerPool(maxConcurrent int, logger *zap.Logger) *WorkerPool {
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	return &WorkerPool{
		maxConcurrent: maxConcurrent,
		logger:        logger.Named("llm-worker-pool"),
	}
}

// Task is one unit of work.
type Task[T any] struct {
	ID  string
	Run func(ctx context.Context) (T, error)
}

// TaskResult pairs a task ID with its outcome.
type TaskResult[T any] struct {
	ID     string
	Result T
	Err    error
}

// RunAll executes all tasks with bounded parallelism and returns
// results in completion order. A cancelled context short-circuits
// tasks that have not yet acquired a slot.
func RunAll[T any](ctx context.Context, pool *WorkerPool, tasks []Task[T]) []TaskResult[T] {
	if len(tasks) == 0 {
		return nil
	}

	results := make([]TaskResult[T], 0, len(tasks))
	resultsChan := make(chan TaskResult[T], len(tasks))
	sem := make(chan struct{}, pool.maxConcurrent)

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task Task[T]) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				var zero T
				resultsChan <- TaskResult[T]{ID: task.ID, Result: zero, Err: ctx.Err()}
				return
			}

			result, err := task.Run(ctx)
			resultsChan <- TaskResult[T]{ID: task.ID, Result: result, Err: err}
		}(task)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for result := range resultsChan {
		results = append(results, result)
	}

	return results
}
