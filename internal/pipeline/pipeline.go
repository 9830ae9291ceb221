// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"sync"
	"time"
)

// Task is one unit of work, typically a single external tool invocation.
type Task struct {
	ID  string
	Run func(ctx context.Context) error
}

// Result reports the fate of one Task.
type Result struct {
	ID      string
	Index   int // position of the task in the submitted slice
	Err     error
	Elapsed time.Duration
}

// Config controls the pool.
type Config struct {
	Workers int          // number of worker goroutines (>=1)
	OnDone  func(Result) // optional; called from the collector goroutine
}

// RunAll executes tasks on cfg.Workers goroutines and blocks until every
// dispatched task finished. Tasks not dispatched because ctx was cancelled
// report ctx.Err(). Results are returned in submission order.
func RunAll(ctx context.Context, cfg Config, tasks []Task) []Result {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Workers > len(tasks) && len(tasks) > 0 {
		cfg.Workers = len(tasks)
	}

	out := make([]Result, len(tasks))
	for i, t := range tasks {
		out[i] = Result{ID: t.ID, Index: i}
	}

	jobs := make(chan int, cfg.Workers*2)
	results := make(chan Result, cfg.Workers*2)

	// Workers
	var wg sync.WaitGroup
	wg.Add(cfg.Workers)
	for w := 0; w < cfg.Workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				t := tasks[i]
				start := time.Now()
				var err error
				if cerr := ctx.Err(); cerr != nil {
					err = cerr
				} else {
					err = t.Run(ctx)
				}
				results <- Result{ID: t.ID, Index: i, Err: err, Elapsed: time.Since(start)}
			}
		}()
	}

	// Collector
	var cwg sync.WaitGroup
	cwg.Add(1)
	go func() {
		defer cwg.Done()
		for r := range results {
			out[r.Index] = r
			if cfg.OnDone != nil {
				cfg.OnDone(r)
			}
		}
	}()

	// Feed work
	dispatched := 0
feed:
	for i := range tasks {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
			dispatched++
		}
	}
	close(jobs)
	wg.Wait()
	close(results)
	cwg.Wait()

	for i := dispatched; i < len(tasks); i++ {
		out[i].Err = ctx.Err()
	}
	return out
}

// Failed returns the results that carry an error.
func Failed(rs []Result) []Result {
	var bad []Result
	for _, r := range rs {
		if r.Err != nil {
			bad = append(bad, r)
		}
	}
	return bad
}
