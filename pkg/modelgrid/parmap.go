package modelgrid

import(
	"context"
	"sync"
)

// ParallelMap runs fn for each index in [0,n) on a pool of workers, and
// returns the results in index order. The first error cancels the
// remaining work and is returned.
func ParallelMap[T any](ctx context.Context, n, workers int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]T, n)
	jobs := make(chan int, n)
	for i:=0; i<n; i++ {
		jobs <- i
	}
	close(jobs)

	var once sync.Once
	var firstErr error
	var wg sync.WaitGroup

	wg.Add(workers)
	for w:=0; w<workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				res, err := fn(ctx, i)
				if err != nil {
					once.Do(func() { firstErr = err; cancel() })
					return
				}
				results[i] = res
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
