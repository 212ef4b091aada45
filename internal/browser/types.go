// Package browser wraps the browser-automation driver behind a small Page
// interface: navigate, evaluate, wait-for-selector, screenshot. Pages are
// exclusively owned by one in-flight harvest attempt at a time.
package browser

import (
	"context"
	"time"
)

// Load-state keywords accepted by NavigateOptions.WaitUntil.
const (
	WaitLoad             = "load"
	WaitDOMContentLoaded = "domcontentloaded"
	WaitNetworkIdle      = "networkidle"
)

// Selector states accepted by WaitOptions.State.
const (
	StateVisible  = "visible"
	StateAttached = "attached"
	StateHidden   = "hidden"
)

// Config defines browser driver configuration.
type Config struct {
	Headless        bool          `yaml:"headless" json:"headless"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	ViewportWidth   int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight  int           `yaml:"viewport_height" json:"viewport_height"`
	UserAgent       string        `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	UserDataDir     string        `yaml:"user_data_dir,omitempty" json:"user_data_dir,omitempty"`
	DisableImages   bool          `yaml:"disable_images" json:"disable_images"`
	PoolSize        int           `yaml:"pool_size" json:"pool_size"`
	NetworkIdleWait time.Duration `yaml:"network_idle_wait,omitempty" json:"network_idle_wait,omitempty"`
}

// DefaultConfig returns the default browser configuration.
func DefaultConfig() *Config {
	return &Config{
		Headless:        true,
		Timeout:         30 * time.Second,
		ViewportWidth:   1920,
		ViewportHeight:  1080,
		DisableImages:   true,
		PoolSize:        5,
		NetworkIdleWait: 500 * time.Millisecond,
	}
}

// NavigateOptions configures one navigation.
type NavigateOptions struct {
	// Timeout bounds the whole navigation; zero falls back to the driver's
	// configured timeout.
	Timeout time.Duration
	// WaitUntil is the load-state to wait for: load, domcontentloaded
	// (default) or networkidle.
	WaitUntil string
}

// WaitOptions configures an explicit selector wait.
type WaitOptions struct {
	// State is the target element state: visible (default), attached or
	// hidden.
	State string
	// Timeout bounds the wait; zero falls back to the driver timeout.
	Timeout time.Duration
}

// ScreenshotOptions configures a capture.
type ScreenshotOptions struct {
	FullPage bool
	// Quality applies to JPEG captures; zero selects PNG.
	Quality int
}

// Page is one browser tab. Implementations must be safe for sequential use
// by a single owner; exclusivity across requests is the pool's job.
type Page interface {
	// Navigate loads the target URL and waits for the configured load state.
	Navigate(ctx context.Context, url string, opts NavigateOptions) error

	// Evaluate runs a JavaScript expression and JSON-decodes the result
	// into out.
	Evaluate(ctx context.Context, expr string, out interface{}) error

	// WaitForSelector suspends until the selector reaches the target state.
	WaitForSelector(ctx context.Context, selector string, opts WaitOptions) error

	// Screenshot captures the page.
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)

	// Close releases the tab.
	Close() error
}
