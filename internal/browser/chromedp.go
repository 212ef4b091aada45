package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Driver owns one Chrome process (the exec allocator) and opens tabs from it.
type Driver struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	config      *Config
}

// NewDriver launches the browser allocator with the given configuration.
func NewDriver(config *Config) (*Driver, error) {
	if config == nil {
		config = DefaultConfig()
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox, // Required for Docker environments
	}
	if config.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if config.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(config.UserDataDir))
	}
	if config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(config.UserAgent))
	}
	if config.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Driver{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		config:      config,
	}, nil
}

// NewPage opens a fresh tab. The caller owns it until Close.
func (d *Driver) NewPage() (Page, error) {
	ctx, cancel := chromedp.NewContext(d.allocCtx)

	page := &chromePage{
		ctx:    ctx,
		cancel: cancel,
		config: d.config,
	}
	if err := chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(d.config.ViewportWidth), int64(d.config.ViewportHeight)),
	); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize page: %w", err)
	}
	return page, nil
}

// Close shuts down the browser process and every tab opened from it.
func (d *Driver) Close() error {
	if d.allocCancel != nil {
		d.allocCancel()
	}
	return nil
}

// chromePage implements Page on a chromedp tab context.
type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *Config
}

func (p *chromePage) Navigate(ctx context.Context, url string, opts NavigateOptions) error {
	tasks := []chromedp.Action{
		chromedp.Navigate(url),
	}
	switch opts.WaitUntil {
	case WaitLoad:
		tasks = append(tasks, chromedp.WaitVisible("body", chromedp.ByQuery))
	case WaitNetworkIdle:
		// chromedp's Navigate already waits for the load event; a settle
		// delay approximates network idle without CDP event plumbing.
		settle := p.config.NetworkIdleWait
		if settle <= 0 {
			settle = 500 * time.Millisecond
		}
		tasks = append(tasks,
			chromedp.WaitVisible("body", chromedp.ByQuery),
			chromedp.Sleep(settle),
		)
	default: // domcontentloaded
		tasks = append(tasks, chromedp.WaitReady("body", chromedp.ByQuery))
	}

	runCtx, cancel := p.deadline(ctx, opts.Timeout)
	defer cancel()
	if err := chromedp.Run(runCtx, tasks...); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *chromePage) Evaluate(ctx context.Context, expr string, out interface{}) error {
	runCtx, cancel := p.deadline(ctx, 0)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	return nil
}

func (p *chromePage) WaitForSelector(ctx context.Context, selector string, opts WaitOptions) error {
	var action chromedp.Action
	switch opts.State {
	case StateAttached:
		action = chromedp.WaitReady(selector, chromedp.ByQuery)
	case StateHidden:
		action = chromedp.WaitNotVisible(selector, chromedp.ByQuery)
	default: // visible
		action = chromedp.WaitVisible(selector, chromedp.ByQuery)
	}

	runCtx, cancel := p.deadline(ctx, opts.Timeout)
	defer cancel()
	if err := chromedp.Run(runCtx, action); err != nil {
		return fmt.Errorf("wait for selector %q failed: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	quality := opts.Quality
	if quality <= 0 {
		quality = 90
	}

	var buf []byte
	var action chromedp.Action
	if opts.FullPage {
		action = chromedp.FullScreenshot(&buf, quality)
	} else {
		action = chromedp.CaptureScreenshot(&buf)
	}

	runCtx, cancel := p.deadline(ctx, 0)
	defer cancel()
	if err := chromedp.Run(runCtx, action); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

func (p *chromePage) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// deadline derives the tab's run context, bounded by the caller's context
// and the per-operation (or configured) timeout.
func (p *chromePage) deadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = p.config.Timeout
	}

	runCtx := p.ctx
	stop := func() {}
	if ctx != nil && ctx != context.Background() {
		// Propagate caller cancellation into the tab context.
		var cancel context.CancelFunc
		runCtx, cancel = context.WithCancel(runCtx)
		stop = cancel
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-runCtx.Done():
			}
		}()
	}

	if timeout > 0 {
		timeoutCtx, cancel := context.WithTimeout(runCtx, timeout)
		prev := stop
		return timeoutCtx, func() { cancel(); prev() }
	}
	return runCtx, stop
}
