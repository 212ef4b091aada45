package harvester

import (
	"context"
	"os"

	"github.com/domharvest/domharvest/internal/browser"
	"github.com/domharvest/domharvest/internal/schema"
)

// attempt runs one navigate → wait → extract pass on an exclusively owned
// page. Every failure is classified at its origin and reported to the error
// callback before being returned for the retry decision.
func (e *Engine) attempt(ctx context.Context, plan *schema.Plan, target, rootSelector string, opts Options, attempt int) ([]interface{}, error) {
	page, err := e.pool.Get(ctx)
	if err != nil {
		cErr := classify(KindNavigation, target, "", "acquire-page", err)
		e.reportError(cErr, ErrorContext{Target: target, Operation: "acquire-page", Attempt: attempt})
		return nil, cErr
	}
	if e.metrics != nil {
		e.metrics.PageCheckedOut()
		defer e.metrics.PageReturned()
	}

	// Navigation failures may leave the tab wedged; replace it instead of
	// returning it to the pool.
	healthy := false
	defer func() {
		if healthy {
			e.pool.Put(page)
		} else {
			e.pool.Discard(page)
		}
	}()

	if err := page.Navigate(ctx, target, browser.NavigateOptions{
		Timeout:   opts.NavigationTimeout,
		WaitUntil: opts.WaitForLoadState,
	}); err != nil {
		cErr := classify(KindNavigation, target, "", "navigate", err)
		e.reportError(cErr, ErrorContext{Target: target, Operation: "navigate", Attempt: attempt})
		return nil, cErr
	}

	if w := opts.WaitForSelector; w != nil && w.Selector != "" {
		if err := page.WaitForSelector(ctx, w.Selector, browser.WaitOptions{
			State:   w.State,
			Timeout: w.Timeout,
		}); err != nil {
			cErr := classify(KindTimeout, target, w.Selector, "wait-for-selector", err)
			e.reportError(cErr, ErrorContext{Target: target, Operation: "wait-for-selector", Attempt: attempt})
			return nil, cErr
		}
	}

	if s := opts.Screenshot; s != nil && s.BeforeExtract {
		e.captureScreenshot(ctx, page, target, s, attempt)
	}

	results, err := plan.Execute(ctx, page, rootSelector, opts.Mode)
	if err != nil {
		cErr := classify(KindExtraction, target, rootSelector, "extract", err)
		e.reportError(cErr, ErrorContext{Target: target, Operation: "extract", Attempt: attempt})
		return nil, cErr
	}

	if s := opts.Screenshot; s != nil && !s.BeforeExtract {
		e.captureScreenshot(ctx, page, target, s, attempt)
	}

	healthy = true
	return results, nil
}

// captureScreenshot is best-effort: failures are classified and reported but
// never fail the harvest.
func (e *Engine) captureScreenshot(ctx context.Context, page browser.Page, target string, s *Screenshot, attempt int) {
	quality := 100
	if s.Type == "jpeg" || s.Type == "jpg" {
		quality = 90
	}
	data, err := page.Screenshot(ctx, browser.ScreenshotOptions{
		FullPage: s.FullPage,
		Quality:  quality,
	})
	if err == nil && s.Path != "" {
		err = os.WriteFile(s.Path, data, 0o644)
	}
	if err != nil {
		cErr := classify(KindNavigation, target, "", "screenshot", err)
		e.reportError(cErr, ErrorContext{Target: target, Operation: "screenshot", Attempt: attempt})
		e.logger.Warnf("screenshot of %s failed: %v", target, err)
	}
}
