// Package harvester is the orchestration root of the engine: it schedules
// harvest requests through rate limiting, retry, and browser sessions, and
// classifies every failure.
package harvester

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/domharvest/domharvest/internal/browser"
	"github.com/domharvest/domharvest/internal/monitoring"
	"github.com/domharvest/domharvest/internal/ratelimit"
	"github.com/domharvest/domharvest/internal/retry"
	"github.com/domharvest/domharvest/internal/schema"
	"github.com/domharvest/domharvest/internal/utils"
)

// WaitForSelector configures an explicit element wait after navigation.
type WaitForSelector struct {
	Selector string        `yaml:"selector" json:"selector"`
	State    string        `yaml:"state,omitempty" json:"state,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Screenshot configures an optional, best-effort capture around extraction.
type Screenshot struct {
	Path          string `yaml:"path" json:"path"`
	Type          string `yaml:"type,omitempty" json:"type,omitempty"` // png (default) or jpeg
	FullPage      bool   `yaml:"full_page,omitempty" json:"full_page,omitempty"`
	BeforeExtract bool   `yaml:"before_extract,omitempty" json:"before_extract,omitempty"`
}

// Options tune one harvest request. Zero values fall back to the engine's
// configured defaults.
type Options struct {
	Retries           int               `yaml:"retries,omitempty" json:"retries,omitempty"`
	Backoff           retry.BackoffKind `yaml:"backoff,omitempty" json:"backoff,omitempty"`
	BackoffBase       time.Duration     `yaml:"backoff_base,omitempty" json:"backoff_base,omitempty"`
	MaxBackoff        time.Duration     `yaml:"max_backoff,omitempty" json:"max_backoff,omitempty"`
	RetryOn           []string          `yaml:"retry_on,omitempty" json:"retry_on,omitempty"`
	WaitForLoadState  string            `yaml:"wait_for_load_state,omitempty" json:"wait_for_load_state,omitempty"`
	NavigationTimeout time.Duration     `yaml:"navigation_timeout,omitempty" json:"navigation_timeout,omitempty"`
	WaitForSelector   *WaitForSelector  `yaml:"wait_for_selector,omitempty" json:"wait_for_selector,omitempty"`
	Screenshot        *Screenshot       `yaml:"screenshot,omitempty" json:"screenshot,omitempty"`
	Mode              schema.Mode       `yaml:"mode,omitempty" json:"mode,omitempty"`
}

// Config assembles the engine. All engine-wide state (rate-limit buckets,
// page pool, callbacks, logging) lives here; nothing is ambient.
type Config struct {
	RateLimit *ratelimit.Config
	Browser   *browser.Config
	// PageFactory overrides the chromedp driver; tests inject fakes here.
	PageFactory browser.Factory
	// Concurrency is the default batch concurrency.
	Concurrency int
	// Defaults apply to every request whose options leave a field zero.
	Defaults Options
	OnError  func(err *Error, ectx ErrorContext)
	Logger   utils.Logger
	Metrics  *monitoring.Metrics
}

// Engine coordinates harvest requests end to end. Create with New, release
// with Close.
type Engine struct {
	limiter     *ratelimit.Limiter
	pool        *browser.Pool
	driver      *browser.Driver
	concurrency int
	defaults    Options
	onError     func(err *Error, ectx ErrorContext)
	logger      utils.Logger
	metrics     *monitoring.Metrics
}

// New builds an engine from config.
func New(cfg Config) (*Engine, error) {
	limiter, err := ratelimit.New(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit configuration: %w", err)
	}

	browserCfg := cfg.Browser
	if browserCfg == nil {
		browserCfg = browser.DefaultConfig()
	}

	e := &Engine{
		limiter:     limiter,
		concurrency: cfg.Concurrency,
		defaults:    cfg.Defaults,
		onError:     cfg.OnError,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
	if e.concurrency <= 0 {
		e.concurrency = DefaultConcurrency
	}
	if e.logger == nil {
		e.logger = utils.NopLogger{}
	}

	factory := cfg.PageFactory
	if factory == nil {
		driver, err := browser.NewDriver(browserCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to start browser driver: %w", err)
		}
		e.driver = driver
		factory = driver.NewPage
	}
	e.pool = browser.NewPool(factory, browserCfg.PoolSize)

	return e, nil
}

// Harvest navigates to target, waits per options, and executes the schema
// against every element matching rootSelector. After retries are exhausted
// the final classified error is returned unchanged.
func (e *Engine) Harvest(ctx context.Context, target, rootSelector string, node *schema.Node, opts Options) ([]interface{}, error) {
	opts = e.mergeDefaults(opts)

	plan, err := node.Plan()
	if err != nil {
		compileErr := classify(KindExtraction, target, rootSelector, "compile", err)
		e.reportError(compileErr, ErrorContext{Target: target, Operation: "compile", Attempt: 1})
		return nil, compileErr
	}

	host, err := hostOf(target)
	if err != nil {
		navErr := classify(KindNavigation, target, "", "navigate", err)
		e.reportError(navErr, ErrorContext{Target: target, Operation: "navigate", Attempt: 1})
		return nil, navErr
	}

	// Admission control happens once per logical request; the retry loop
	// runs inside the admitted slot.
	waited, err := e.limiter.AcquireWait(ctx, host)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.ObserveRateLimitWait(waited)
	}
	if waited > 0 {
		e.logger.Debugf("rate limiter held %s for %v", target, waited)
	}

	policy := retry.Policy{
		MaxRetries: opts.Retries,
		Backoff:    opts.Backoff,
		Base:       opts.BackoffBase,
		MaxBackoff: opts.MaxBackoff,
		RetryOn:    opts.RetryOn,
	}

	attempt := 1
	var results []interface{}
	start := time.Now()
	err = retry.Do(ctx, policy, func(next int, cause error) {
		e.logger.Warnf("retrying %s (attempt %d): %v", target, next, cause)
		if e.metrics != nil {
			e.metrics.IncRetries()
		}
		attempt = next
	}, func() error {
		var attemptErr error
		results, attemptErr = e.attempt(ctx, plan, target, rootSelector, opts, attempt)
		return attemptErr
	})

	if e.metrics != nil {
		status := "success"
		if err != nil {
			status = "failure"
		}
		e.metrics.ObserveHarvest(status, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Close tears down the page pool and the browser driver.
func (e *Engine) Close() error {
	err := e.pool.Close()
	if e.driver != nil {
		if dErr := e.driver.Close(); err == nil {
			err = dErr
		}
	}
	return err
}

// mergeDefaults overlays engine defaults onto zero option fields.
func (e *Engine) mergeDefaults(opts Options) Options {
	d := e.defaults
	if opts.Retries == 0 {
		opts.Retries = d.Retries
	}
	if opts.Backoff == "" {
		opts.Backoff = d.Backoff
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = d.BackoffBase
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = d.MaxBackoff
	}
	if opts.RetryOn == nil {
		opts.RetryOn = d.RetryOn
	}
	if opts.WaitForLoadState == "" {
		opts.WaitForLoadState = d.WaitForLoadState
	}
	if opts.WaitForLoadState == "" {
		opts.WaitForLoadState = browser.WaitDOMContentLoaded
	}
	if opts.NavigationTimeout == 0 {
		opts.NavigationTimeout = d.NavigationTimeout
	}
	if opts.WaitForSelector == nil {
		opts.WaitForSelector = d.WaitForSelector
	}
	if opts.Screenshot == nil {
		opts.Screenshot = d.Screenshot
	}
	if opts.Mode == "" {
		opts.Mode = d.Mode
	}
	return opts
}

func hostOf(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("target %q has no host", target)
	}
	return u.Hostname(), nil
}
