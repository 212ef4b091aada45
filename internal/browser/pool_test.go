// internal/browser/pool_test.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type stubPage struct {
	mu     sync.Mutex
	closed bool
}

func (s *stubPage) Navigate(ctx context.Context, url string, opts NavigateOptions) error { return nil }
func (s *stubPage) Evaluate(ctx context.Context, expr string, out interface{}) error     { return nil }
func (s *stubPage) WaitForSelector(ctx context.Context, sel string, opts WaitOptions) error {
	return nil
}
func (s *stubPage) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	return nil, nil
}
func (s *stubPage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func countingFactory(created *int) Factory {
	var mu sync.Mutex
	return func() (Page, error) {
		mu.Lock()
		defer mu.Unlock()
		*created++
		return &stubPage{}, nil
	}
}

func TestPoolLazyCreation(t *testing.T) {
	created := 0
	pool := NewPool(countingFactory(&created), 3)
	defer pool.Close()

	if created != 0 {
		t.Errorf("pool created %d pages before first Get", created)
	}

	page, err := pool.Get(context.Background())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
	pool.Put(page)

	// A returned page is reused instead of growing the pool.
	again, err := pool.Get(context.Background())
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if again != page {
		t.Error("expected the returned page to be reused")
	}
	if created != 1 {
		t.Errorf("created = %d after reuse, want 1", created)
	}
	pool.Put(again)
}

func TestPoolBlocksAtCapacity(t *testing.T) {
	created := 0
	pool := NewPool(countingFactory(&created), 1)
	defer pool.Close()

	page, err := pool.Get(context.Background())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := pool.Get(ctx); err == nil {
		t.Error("Get must block when the pool is exhausted")
	}

	pool.Put(page)
	got, err := pool.Get(context.Background())
	if err != nil {
		t.Fatalf("Get after Put failed: %v", err)
	}
	pool.Put(got)
}

func TestPoolDiscardMakesRoom(t *testing.T) {
	created := 0
	pool := NewPool(countingFactory(&created), 1)
	defer pool.Close()

	page, err := pool.Get(context.Background())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	pool.Discard(page)

	if page.(*stubPage).closed != true {
		t.Error("discarded page was not closed")
	}

	replacement, err := pool.Get(context.Background())
	if err != nil {
		t.Fatalf("Get after Discard failed: %v", err)
	}
	if created != 2 {
		t.Errorf("created = %d, want 2", created)
	}
	pool.Put(replacement)
}

func TestPoolFactoryError(t *testing.T) {
	pool := NewPool(func() (Page, error) {
		return nil, fmt.Errorf("browser crashed")
	}, 2)
	defer pool.Close()

	if _, err := pool.Get(context.Background()); err == nil {
		t.Error("expected factory error to surface")
	}
	// A failed creation must not leak capacity.
	if pool.TotalSize() != 0 {
		t.Errorf("TotalSize = %d after failed creation, want 0", pool.TotalSize())
	}
}

func TestPoolClose(t *testing.T) {
	created := 0
	pool := NewPool(countingFactory(&created), 2)

	page, err := pool.Get(context.Background())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	pool.Put(page)

	if err := pool.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !page.(*stubPage).closed {
		t.Error("idle page not closed on pool close")
	}
	if _, err := pool.Get(context.Background()); err == nil {
		t.Error("Get on closed pool must fail")
	}
	if err := pool.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

// Put must never send on the channel Close has already closed, no matter how
// the two interleave.
func TestPoolPutCloseRace(t *testing.T) {
	for i := 0; i < 1000; i++ {
		created := 0
		pool := NewPool(countingFactory(&created), 2)

		page, err := pool.Get(context.Background())
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			pool.Put(page)
		}()
		go func() {
			defer wg.Done()
			<-start
			pool.Close()
		}()
		close(start)
		wg.Wait()

		if !page.(*stubPage).closed {
			t.Fatal("page neither pooled-and-closed nor closed directly")
		}
	}
}
