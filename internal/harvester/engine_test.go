// internal/harvester/engine_test.go
package harvester

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/domharvest/domharvest/internal/browser"
	"github.com/domharvest/domharvest/internal/schema"
)

// fakeDriver backs fake pages with shared scripted behavior; harvester tests
// never touch a real browser.
type fakeDriver struct {
	mu       sync.Mutex
	created  int
	navCalls int
	closed   int

	navErr   func(target string, call int) error
	waitErr  error
	evalJSON string
	evalErr  error
	shotErr  error
	shots    int
}

func (d *fakeDriver) newPage() (browser.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.created++
	return &fakePage{d: d}, nil
}

func (d *fakeDriver) stats() (created, navCalls, closed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created, d.navCalls, d.closed
}

type fakePage struct {
	d *fakeDriver
}

func (p *fakePage) Navigate(ctx context.Context, target string, opts browser.NavigateOptions) error {
	p.d.mu.Lock()
	p.d.navCalls++
	call := p.d.navCalls
	fn := p.d.navErr
	p.d.mu.Unlock()
	if fn != nil {
		return fn(target, call)
	}
	return nil
}

func (p *fakePage) Evaluate(ctx context.Context, expr string, out interface{}) error {
	p.d.mu.Lock()
	evalErr, evalJSON := p.d.evalErr, p.d.evalJSON
	p.d.mu.Unlock()
	if evalErr != nil {
		return evalErr
	}
	if evalJSON == "" {
		evalJSON = `[]`
	}
	return json.Unmarshal([]byte(evalJSON), out)
}

func (p *fakePage) WaitForSelector(ctx context.Context, selector string, opts browser.WaitOptions) error {
	return p.d.waitErr
}

func (p *fakePage) Screenshot(ctx context.Context, opts browser.ScreenshotOptions) ([]byte, error) {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	if p.d.shotErr != nil {
		return nil, p.d.shotErr
	}
	p.d.shots++
	return []byte("image"), nil
}

func (p *fakePage) Close() error {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	p.d.closed++
	return nil
}

// reportedError captures one OnError invocation.
type reportedError struct {
	kind      ErrorKind
	operation string
	attempt   int
}

type errorRecorder struct {
	mu     sync.Mutex
	errors []reportedError
}

func (r *errorRecorder) callback() func(err *Error, ectx ErrorContext) {
	return func(err *Error, ectx ErrorContext) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.errors = append(r.errors, reportedError{err.Kind, ectx.Operation, ectx.Attempt})
	}
}

func (r *errorRecorder) all() []reportedError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]reportedError, len(r.errors))
	copy(out, r.errors)
	return out
}

func newTestEngine(t *testing.T, d *fakeDriver, rec *errorRecorder) *Engine {
	t.Helper()
	cfg := Config{
		PageFactory: d.newPage,
		Defaults: Options{
			BackoffBase: time.Millisecond,
			MaxBackoff:  2 * time.Millisecond,
		},
	}
	if rec != nil {
		cfg.OnError = rec.callback()
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestHarvestSuccess(t *testing.T) {
	d := &fakeDriver{evalJSON: `[{"title":"Hello"}]`}
	e := newTestEngine(t, d, nil)

	node := schema.Object(schema.Field{Name: "title", Node: schema.Text("h1")})
	results, err := e.Harvest(context.Background(), "https://example.com/page", ".item", node, Options{})
	if err != nil {
		t.Fatalf("Harvest failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	rec, ok := results[0].(*schema.Record)
	if !ok {
		t.Fatalf("result is %T, want *schema.Record", results[0])
	}
	if v, _ := rec.Get("title"); v != "Hello" {
		t.Errorf("title = %v, want Hello", v)
	}

	if _, navCalls, _ := d.stats(); navCalls != 1 {
		t.Errorf("navigate called %d times, want 1", navCalls)
	}
}

func TestHarvestRetriesUntilSuccess(t *testing.T) {
	d := &fakeDriver{
		evalJSON: `["ok"]`,
		navErr: func(target string, call int) error {
			if call <= 2 {
				return fmt.Errorf("connection refused")
			}
			return nil
		},
	}
	rec := &errorRecorder{}
	e := newTestEngine(t, d, rec)

	results, err := e.Harvest(context.Background(), "https://example.com", "div", schema.Text("p"), Options{Retries: 3})
	if err != nil {
		t.Fatalf("Harvest failed after transient errors: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
	if _, navCalls, _ := d.stats(); navCalls != 3 {
		t.Errorf("navigate called %d times, want 3", navCalls)
	}

	reported := rec.all()
	if len(reported) != 2 {
		t.Fatalf("got %d error reports, want one per failed attempt (2)", len(reported))
	}
	for i, r := range reported {
		if r.kind != KindNavigation || r.operation != "navigate" {
			t.Errorf("report %d = %+v, want navigation error", i, r)
		}
		if r.attempt != i+1 {
			t.Errorf("report %d attempt = %d, want %d", i, r.attempt, i+1)
		}
	}
}

func TestHarvestExhaustionReturnsFinalError(t *testing.T) {
	d := &fakeDriver{
		navErr: func(target string, call int) error {
			return fmt.Errorf("refused (call %d)", call)
		},
	}
	rec := &errorRecorder{}
	e := newTestEngine(t, d, rec)

	_, err := e.Harvest(context.Background(), "https://example.com", "div", schema.Text("p"), Options{Retries: 1})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}

	var hErr *Error
	if !errors.As(err, &hErr) {
		t.Fatalf("error is %T, want *Error", err)
	}
	if hErr.Kind != KindNavigation {
		t.Errorf("kind = %s, want %s", hErr.Kind, KindNavigation)
	}
	// The final attempt's error comes back verbatim, never wrapped.
	if want := "refused (call 2)"; hErr.Cause.Error() != want {
		t.Errorf("cause = %q, want %q", hErr.Cause, want)
	}
	if _, navCalls, _ := d.stats(); navCalls != 2 {
		t.Errorf("navigate called %d times, want 2", navCalls)
	}
	if reports := rec.all(); len(reports) != 2 {
		t.Errorf("got %d error reports, want 2", len(reports))
	}
}

func TestHarvestRetryOnFilter(t *testing.T) {
	d := &fakeDriver{evalErr: fmt.Errorf("evaluation blew up")}
	e := newTestEngine(t, d, nil)

	_, err := e.Harvest(context.Background(), "https://example.com", "div", schema.Text("p"), Options{
		Retries: 3,
		RetryOn: []string{string(KindNavigation)},
	})
	if err == nil {
		t.Fatal("expected extraction error")
	}
	var hErr *Error
	if !errors.As(err, &hErr) || hErr.Kind != KindExtraction {
		t.Fatalf("error = %v, want extraction kind", err)
	}
	// Extraction errors are outside the filter, so exactly one attempt ran.
	if _, navCalls, _ := d.stats(); navCalls != 1 {
		t.Errorf("navigate called %d times, want 1", navCalls)
	}
}

func TestHarvestInvalidTarget(t *testing.T) {
	d := &fakeDriver{}
	rec := &errorRecorder{}
	e := newTestEngine(t, d, rec)

	_, err := e.Harvest(context.Background(), "not a url", "div", schema.Text("p"), Options{})
	if err == nil {
		t.Fatal("expected error for target without host")
	}
	var hErr *Error
	if !errors.As(err, &hErr) || hErr.Kind != KindNavigation {
		t.Fatalf("error = %v, want navigation kind", err)
	}
	if _, navCalls, _ := d.stats(); navCalls != 0 {
		t.Error("invalid target must fail before any navigation")
	}
	if reports := rec.all(); len(reports) != 1 {
		t.Errorf("got %d error reports, want 1", len(reports))
	}
}

func TestHarvestCompileErrorIsExtraction(t *testing.T) {
	d := &fakeDriver{}
	rec := &errorRecorder{}
	e := newTestEngine(t, d, rec)

	bad := schema.Object() // no fields
	_, err := e.Harvest(context.Background(), "https://example.com", "div", bad, Options{})
	var hErr *Error
	if !errors.As(err, &hErr) || hErr.Kind != KindExtraction {
		t.Fatalf("error = %v, want extraction kind for compile failure", err)
	}

	reports := rec.all()
	if len(reports) != 1 {
		t.Fatalf("got %d error reports, want 1", len(reports))
	}
	if reports[0].operation != "compile" || reports[0].kind != KindExtraction {
		t.Errorf("report = %+v, want compile/%s", reports[0], KindExtraction)
	}
}

func TestHarvestTimeoutPromotion(t *testing.T) {
	d := &fakeDriver{
		navErr: func(string, int) error { return context.DeadlineExceeded },
	}
	e := newTestEngine(t, d, nil)

	_, err := e.Harvest(context.Background(), "https://example.com", "div", schema.Text("p"), Options{})
	var hErr *Error
	if !errors.As(err, &hErr) {
		t.Fatalf("error is %T, want *Error", err)
	}
	if hErr.Kind != KindTimeout {
		t.Errorf("kind = %s, want %s (deadline errors promote to timeout)", hErr.Kind, KindTimeout)
	}
}

func TestHarvestWaitForSelectorTimeout(t *testing.T) {
	d := &fakeDriver{waitErr: context.DeadlineExceeded}
	rec := &errorRecorder{}
	e := newTestEngine(t, d, rec)

	_, err := e.Harvest(context.Background(), "https://example.com", "div", schema.Text("p"), Options{
		WaitForSelector: &WaitForSelector{Selector: ".ready", Timeout: time.Millisecond},
	})
	var hErr *Error
	if !errors.As(err, &hErr) || hErr.Kind != KindTimeout {
		t.Fatalf("error = %v, want timeout kind", err)
	}
	if hErr.Selector != ".ready" {
		t.Errorf("selector = %q, want .ready", hErr.Selector)
	}
	reports := rec.all()
	if len(reports) != 1 || reports[0].operation != "wait-for-selector" {
		t.Errorf("reports = %+v, want single wait-for-selector report", reports)
	}
}

func TestPageReusedAfterSuccessDiscardedAfterFailure(t *testing.T) {
	failNext := false
	var mu sync.Mutex
	d := &fakeDriver{evalJSON: `[]`}
	d.navErr = func(string, int) error {
		mu.Lock()
		defer mu.Unlock()
		if failNext {
			failNext = false
			return fmt.Errorf("wedged tab")
		}
		return nil
	}
	e := newTestEngine(t, d, nil)
	ctx := context.Background()
	node := schema.Text("p")

	for i := 0; i < 2; i++ {
		if _, err := e.Harvest(ctx, "https://example.com", "div", node, Options{}); err != nil {
			t.Fatalf("harvest %d failed: %v", i, err)
		}
	}
	if created, _, _ := d.stats(); created != 1 {
		t.Errorf("created %d pages across successful harvests, want 1 (page reuse)", created)
	}

	mu.Lock()
	failNext = true
	mu.Unlock()
	if _, err := e.Harvest(ctx, "https://example.com", "div", node, Options{}); err == nil {
		t.Fatal("expected navigation failure")
	}
	if _, err := e.Harvest(ctx, "https://example.com", "div", node, Options{}); err != nil {
		t.Fatalf("harvest after discard failed: %v", err)
	}

	created, _, closed := d.stats()
	if created != 2 {
		t.Errorf("created %d pages, want 2 (failed page replaced)", created)
	}
	if closed != 1 {
		t.Errorf("closed %d pages, want 1 (the discarded page)", closed)
	}
}

func TestErrorCallbackPanicIsSwallowed(t *testing.T) {
	d := &fakeDriver{navErr: func(string, int) error { return fmt.Errorf("boom") }}
	cfg := Config{
		PageFactory: d.newPage,
		OnError: func(err *Error, ectx ErrorContext) {
			panic("callback bug")
		},
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer e.Close()

	if _, err := e.Harvest(context.Background(), "https://example.com", "div", schema.Text("p"), Options{}); err == nil {
		t.Fatal("expected navigation error")
	}
}

func TestClassifyPromotesOnlyTimeouts(t *testing.T) {
	tests := []struct {
		name  string
		kind  ErrorKind
		cause error
		want  ErrorKind
	}{
		{"plain navigation", KindNavigation, errors.New("refused"), KindNavigation},
		{"deadline promotes", KindNavigation, context.DeadlineExceeded, KindTimeout},
		{"wrapped deadline promotes", KindExtraction, fmt.Errorf("x: %w", context.DeadlineExceeded), KindTimeout},
		{"cancellation stays", KindNavigation, context.Canceled, KindNavigation},
		{"timeout stays timeout", KindTimeout, errors.New("slow"), KindTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.kind, "https://example.com", "", "op", tt.cause)
			if got.Kind != tt.want {
				t.Errorf("classify kind = %s, want %s", got.Kind, tt.want)
			}
		})
	}
}
