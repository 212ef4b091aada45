// internal/ratelimit/limiter_test.go
package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"nil config", nil, false},
		{"empty config", &Config{}, false},
		{"valid global", &Config{Global: &Rate{Requests: 5, Per: time.Second}}, false},
		{"valid both", &Config{
			Global:    &Rate{Requests: 5, Per: time.Second},
			PerDomain: &Rate{Requests: 1, Per: time.Second},
		}, false},
		{"zero requests", &Config{Global: &Rate{Requests: 0, Per: time.Second}}, true},
		{"negative requests", &Config{Global: &Rate{Requests: -1, Per: time.Second}}, true},
		{"zero period", &Config{PerDomain: &Rate{Requests: 5, Per: 0}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAcquireUnlimitedNeverBlocks(t *testing.T) {
	l, err := New(nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 1000; i++ {
		if err := l.Acquire(ctx, "example.com"); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}
}

func TestAcquireBurstThenSuspend(t *testing.T) {
	// 3 tokens per 300ms: the first 3 acquires are immediate, the 4th must
	// wait roughly one refill interval (100ms per token).
	l, err := New(&Config{Global: &Rate{Requests: 3, Per: 300 * time.Millisecond}})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx, "example.com"); err != nil {
			t.Fatalf("burst acquire %d failed: %v", i, err)
		}
	}
	if burst := time.Since(start); burst > 50*time.Millisecond {
		t.Errorf("burst acquires took %v, expected immediate", burst)
	}

	beforeWait := time.Now()
	if err := l.Acquire(ctx, "example.com"); err != nil {
		t.Fatalf("post-burst acquire failed: %v", err)
	}
	if waited := time.Since(beforeWait); waited < 50*time.Millisecond {
		t.Errorf("post-burst acquire waited only %v, expected a refill delay", waited)
	}
}

func TestAcquireCancellation(t *testing.T) {
	l, err := New(&Config{Global: &Rate{Requests: 1, Per: time.Hour}})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	// Drain the only token.
	if err := l.Acquire(context.Background(), "example.com"); err != nil {
		t.Fatalf("initial acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx, "example.com"); err == nil {
		t.Error("expected context error on exhausted bucket")
	}
}

func TestPerDomainIsolation(t *testing.T) {
	l, err := New(&Config{PerDomain: &Rate{Requests: 1, Per: time.Hour}})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := context.Background()
	if err := l.Acquire(ctx, "a.example.com"); err != nil {
		t.Fatalf("first domain acquire failed: %v", err)
	}

	// A different domain has its own fresh bucket.
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		done <- l.Acquire(ctx, "b.example.com")
	}()
	if err := <-done; err != nil {
		t.Errorf("second domain acquire blocked on first domain's bucket: %v", err)
	}

	if got := l.Domains(); got != 2 {
		t.Errorf("Domains() = %d, want 2", got)
	}
}

func TestAcquireWaitReportsDelay(t *testing.T) {
	l, err := New(&Config{Global: &Rate{Requests: 1, Per: 200 * time.Millisecond}})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := context.Background()
	if _, err := l.AcquireWait(ctx, "example.com"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	waited, err := l.AcquireWait(ctx, "example.com")
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}
	if waited < 100*time.Millisecond {
		t.Errorf("AcquireWait reported %v, expected a measurable suspension", waited)
	}
}
