// internal/harvester/batch_test.go
package harvester

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/domharvest/domharvest/internal/schema"
)

func TestHarvestBatchIsolatesFailures(t *testing.T) {
	failing := map[string]bool{
		"https://example.com/2": true,
		"https://example.com/5": true,
		"https://example.com/8": true,
	}
	d := &fakeDriver{
		evalJSON: `["ok"]`,
		navErr: func(target string, call int) error {
			if failing[target] {
				return fmt.Errorf("unreachable")
			}
			return nil
		},
	}
	e := newTestEngine(t, d, nil)

	items := make([]BatchItem, 10)
	for i := range items {
		items[i] = BatchItem{
			Target:       fmt.Sprintf("https://example.com/%d", i),
			RootSelector: "div",
			Node:         schema.Text("p"),
		}
	}

	var mu sync.Mutex
	var progress []int
	results, err := e.HarvestBatch(context.Background(), items, BatchOptions{
		Concurrency: 3,
		OnProgress: func(completed, total int) {
			mu.Lock()
			defer mu.Unlock()
			if total != 10 {
				t.Errorf("total = %d, want 10", total)
			}
			progress = append(progress, completed)
		},
	})
	if err != nil {
		t.Fatalf("HarvestBatch failed: %v", err)
	}
	if len(results) != 10 {
		t.Fatalf("got %d results, want 10", len(results))
	}

	succeeded, failed := 0, 0
	for i, r := range results {
		wantTarget := fmt.Sprintf("https://example.com/%d", i)
		if r.Target != wantTarget {
			t.Errorf("result %d target = %s, want %s (input alignment)", i, r.Target, wantTarget)
		}
		if r.Success {
			succeeded++
			if len(r.Data) != 1 || r.Data[0] != "ok" {
				t.Errorf("result %d data = %v, want [ok]", i, r.Data)
			}
		} else {
			failed++
			if !failing[r.Target] {
				t.Errorf("unexpected failure for %s", r.Target)
			}
			if r.ErrorKind != string(KindNavigation) {
				t.Errorf("result %d error kind = %s, want %s", i, r.ErrorKind, KindNavigation)
			}
			if !strings.Contains(r.Error, "unreachable") {
				t.Errorf("result %d error = %q, want cause preserved", i, r.Error)
			}
		}
	}
	if succeeded != 7 || failed != 3 {
		t.Errorf("succeeded/failed = %d/%d, want 7/3", succeeded, failed)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(progress) != 10 {
		t.Fatalf("progress fired %d times, want 10", len(progress))
	}
	for i, c := range progress {
		if c != i+1 {
			t.Errorf("progress[%d] = %d, want strictly increasing completed counts", i, c)
		}
	}
	if progress[len(progress)-1] != 10 {
		t.Errorf("final completed = %d, want 10", progress[len(progress)-1])
	}
}

func TestHarvestBatchNegativeConcurrency(t *testing.T) {
	d := &fakeDriver{}
	e := newTestEngine(t, d, nil)

	_, err := e.HarvestBatch(context.Background(), nil, BatchOptions{Concurrency: -1})
	if err == nil {
		t.Error("expected error for negative concurrency")
	}
}

func TestHarvestBatchEmpty(t *testing.T) {
	d := &fakeDriver{}
	e := newTestEngine(t, d, nil)

	results, err := e.HarvestBatch(context.Background(), nil, BatchOptions{})
	if err != nil {
		t.Fatalf("HarvestBatch failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestHarvestBatchProgressPanicSwallowed(t *testing.T) {
	d := &fakeDriver{evalJSON: `[]`}
	e := newTestEngine(t, d, nil)

	items := []BatchItem{
		{Target: "https://example.com/a", RootSelector: "div", Node: schema.Text("p")},
		{Target: "https://example.com/b", RootSelector: "div", Node: schema.Text("p")},
	}
	results, err := e.HarvestBatch(context.Background(), items, BatchOptions{
		OnProgress: func(completed, total int) {
			panic("progress bug")
		},
	})
	if err != nil {
		t.Fatalf("HarvestBatch failed despite panicking callback: %v", err)
	}
	for i, r := range results {
		if !r.Success {
			t.Errorf("result %d failed: %s", i, r.Error)
		}
	}
}

func TestHarvestBatchBoundsConcurrency(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0
	release := make(chan struct{})

	d := &fakeDriver{evalJSON: `[]`}
	d.navErr = func(string, int) error {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		<-release
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}

	e := newTestEngine(t, d, nil)

	items := make([]BatchItem, 6)
	for i := range items {
		items[i] = BatchItem{
			Target:       fmt.Sprintf("https://example.com/%d", i),
			RootSelector: "div",
			Node:         schema.Text("p"),
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := e.HarvestBatch(context.Background(), items, BatchOptions{Concurrency: 2}); err != nil {
			t.Errorf("HarvestBatch failed: %v", err)
		}
	}()

	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", peak)
	}
}
