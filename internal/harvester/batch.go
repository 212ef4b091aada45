package harvester

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/domharvest/domharvest/internal/schema"
)

// DefaultConcurrency bounds batch dispatch when no limit is configured.
const DefaultConcurrency = 5

// BatchItem is one harvest request inside a batch run.
type BatchItem struct {
	Target       string
	RootSelector string
	Node         *schema.Node
	Options      Options
}

// BatchOptions tune one batch run.
type BatchOptions struct {
	// Concurrency bounds how many items are dispatched simultaneously;
	// zero falls back to the engine default. Dispatch concurrency composes
	// with rate-limiter admission, it does not replace it.
	Concurrency int
	// OnProgress fires after each item reaches a terminal state, in
	// completion order, with a monotonically non-decreasing completed
	// count. Panics inside the callback are swallowed.
	OnProgress func(completed, total int)
}

// BatchResult is the terminal record for one batch item. Every input item
// yields exactly one result, index-aligned with the input slice.
type BatchResult struct {
	Target    string        `json:"target"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Data      []interface{} `json:"data,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
}

// HarvestBatch runs every item under bounded concurrency. One item's failure
// never aborts the others; per-item errors land in the result records. The
// returned error is non-nil only for batch misconfiguration.
func (e *Engine) HarvestBatch(ctx context.Context, items []BatchItem, opts BatchOptions) ([]BatchResult, error) {
	if opts.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency must be non-negative, got %d", opts.Concurrency)
	}
	concurrency := opts.Concurrency
	if concurrency == 0 {
		concurrency = e.concurrency
	}

	results := make([]BatchResult, len(items))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	var progressMu sync.Mutex
	completed := 0
	reportProgress := func() {
		progressMu.Lock()
		defer progressMu.Unlock()
		completed++
		if opts.OnProgress == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				e.logger.Warnf("progress callback panicked: %v", r)
			}
		}()
		opts.OnProgress(completed, len(items))
	}

	for i := range items {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			item := items[idx]
			start := time.Now()
			data, err := e.Harvest(ctx, item.Target, item.RootSelector, item.Node, item.Options)
			record := BatchResult{
				Target:   item.Target,
				Duration: time.Since(start),
			}
			if err != nil {
				record.Error = err.Error()
				if k, ok := err.(interface{ ErrorKind() string }); ok {
					record.ErrorKind = k.ErrorKind()
				}
				if e.metrics != nil {
					e.metrics.BatchItem("failure")
				}
			} else {
				record.Success = true
				record.Data = data
				if e.metrics != nil {
					e.metrics.BatchItem("success")
				}
			}
			results[idx] = record
			reportProgress()
		}(i)
	}

	wg.Wait()
	return results, nil
}
