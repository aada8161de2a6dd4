package client

import (
	"context"
	"sync"

	"github.com/pagewire/pagewire/internal/core"
)

// DefaultWorkers bounds RetrieveMany when no worker count is given.
const DefaultWorkers = 4

// PageResult is the outcome of one retrieval in a batch.
type PageResult struct {
	ID   string
	Page *core.Page
	Err  error
}

type batchJob struct {
	index int
	id    string
}

// RetrieveMany retrieves pages concurrently with at most workers requests in
// flight. Results keep the order of ids. A failed retrieval is reported in its
// result and does not stop the others; each retrieval retries on its own.
func (c *Client) RetrieveMany(ctx context.Context, ids []string, workers int) []PageResult {
	results := make([]PageResult, len(ids))
	if len(ids) == 0 {
		return results
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(ids) {
		workers = len(ids)
	}

	jobs := make(chan batchJob)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for job := range jobs {
			page, err := c.Pages.Retrieve(ctx, job.id)
			results[job.index] = PageResult{ID: job.id, Page: page, Err: err}
		}
	}

	for range workers {
		wg.Add(1)
		go worker()
	}

sendLoop:
	for i, id := range ids {
		select {
		case <-ctx.Done():
			for j := i; j < len(ids); j++ {
				results[j] = PageResult{ID: ids[j], Err: ctx.Err()}
			}
			break sendLoop
		case jobs <- batchJob{index: i, id: id}:
		}
	}
	close(jobs)
	wg.Wait()

	return results
}
