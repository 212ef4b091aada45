// internal/config/types.go
package config

import (
	"fmt"
	"time"

	"github.com/domharvest/domharvest/internal/schema"
)

// HarvestConfig is the root of a YAML configuration file.
type HarvestConfig struct {
	Name        string           `yaml:"name" json:"name"`
	Targets     []TargetConfig   `yaml:"targets" json:"targets"`
	RateLimit   *RateLimitConfig `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	Concurrency int              `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	Browser     *BrowserConfig   `yaml:"browser,omitempty" json:"browser,omitempty"`
	Defaults    *RequestDefaults `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Logging     LoggingConfig    `yaml:"logging,omitempty" json:"logging,omitempty"`
	Outputs     []OutputConfig   `yaml:"outputs,omitempty" json:"outputs,omitempty"`
}

// TargetConfig is one harvest request in a configuration file.
type TargetConfig struct {
	URL      string           `yaml:"url" json:"url"`
	Selector string           `yaml:"selector" json:"selector"`
	Schema   schema.NodeSpec  `yaml:"schema" json:"schema"`
	Options  *RequestDefaults `yaml:"options,omitempty" json:"options,omitempty"`
}

// RateSpec is one token-bucket gate expressed in configuration form.
type RateSpec struct {
	Requests int    `yaml:"requests" json:"requests"`
	Per      string `yaml:"per" json:"per"`
}

// RateLimitConfig accepts either a flat {requests, per} global limit or a
// compound {global, per_domain} pair.
type RateLimitConfig struct {
	Requests  int       `yaml:"requests,omitempty" json:"requests,omitempty"`
	Per       string    `yaml:"per,omitempty" json:"per,omitempty"`
	Global    *RateSpec `yaml:"global,omitempty" json:"global,omitempty"`
	PerDomain *RateSpec `yaml:"per_domain,omitempty" json:"per_domain,omitempty"`
}

// BrowserConfig mirrors browser.Config with string durations for YAML.
type BrowserConfig struct {
	Headless       *bool  `yaml:"headless,omitempty" json:"headless,omitempty"`
	Timeout        string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	ViewportWidth  int    `yaml:"viewport_width,omitempty" json:"viewport_width,omitempty"`
	ViewportHeight int    `yaml:"viewport_height,omitempty" json:"viewport_height,omitempty"`
	UserAgent      string `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	UserDataDir    string `yaml:"user_data_dir,omitempty" json:"user_data_dir,omitempty"`
	DisableImages  *bool  `yaml:"disable_images,omitempty" json:"disable_images,omitempty"`
	PoolSize       int    `yaml:"pool_size,omitempty" json:"pool_size,omitempty"`
}

func (b *BrowserConfig) validate() error {
	if b.Timeout != "" {
		if _, err := time.ParseDuration(b.Timeout); err != nil {
			return fmt.Errorf("browser: invalid timeout %q", b.Timeout)
		}
	}
	if b.ViewportWidth < 0 {
		return fmt.Errorf("browser: viewport_width must be non-negative, got %d", b.ViewportWidth)
	}
	if b.ViewportHeight < 0 {
		return fmt.Errorf("browser: viewport_height must be non-negative, got %d", b.ViewportHeight)
	}
	if b.PoolSize < 0 {
		return fmt.Errorf("browser: pool_size must be non-negative, got %d", b.PoolSize)
	}
	return nil
}

// RequestDefaults carries per-request option defaults in file form.
type RequestDefaults struct {
	Retries           int                 `yaml:"retries,omitempty" json:"retries,omitempty"`
	Backoff           string              `yaml:"backoff,omitempty" json:"backoff,omitempty"`
	BackoffBase       string              `yaml:"backoff_base,omitempty" json:"backoff_base,omitempty"`
	MaxBackoff        string              `yaml:"max_backoff,omitempty" json:"max_backoff,omitempty"`
	RetryOn           []string            `yaml:"retry_on,omitempty" json:"retry_on,omitempty"`
	WaitForLoadState  string              `yaml:"wait_for_load_state,omitempty" json:"wait_for_load_state,omitempty"`
	NavigationTimeout string              `yaml:"navigation_timeout,omitempty" json:"navigation_timeout,omitempty"`
	WaitForSelector   *WaitSelectorConfig `yaml:"wait_for_selector,omitempty" json:"wait_for_selector,omitempty"`
	Screenshot        *ScreenshotConfig   `yaml:"screenshot,omitempty" json:"screenshot,omitempty"`
	Mode              string              `yaml:"mode,omitempty" json:"mode,omitempty"`
}

// WaitSelectorConfig configures an explicit selector wait in file form.
type WaitSelectorConfig struct {
	Selector string `yaml:"selector" json:"selector"`
	State    string `yaml:"state,omitempty" json:"state,omitempty"`
	Timeout  string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ScreenshotConfig configures captures in file form.
type ScreenshotConfig struct {
	Path          string `yaml:"path" json:"path"`
	Type          string `yaml:"type,omitempty" json:"type,omitempty"`
	FullPage      bool   `yaml:"full_page,omitempty" json:"full_page,omitempty"`
	BeforeExtract bool   `yaml:"before_extract,omitempty" json:"before_extract,omitempty"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty" json:"level,omitempty"`
}

// OutputConfig selects one result sink for batch runs.
type OutputConfig struct {
	Type       string `yaml:"type" json:"type"`
	File       string `yaml:"file,omitempty" json:"file,omitempty"`
	DSN        string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Table      string `yaml:"table,omitempty" json:"table,omitempty"`
	Database   string `yaml:"database,omitempty" json:"database,omitempty"`
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`
	Sheet      string `yaml:"sheet,omitempty" json:"sheet,omitempty"`
}

// Validate checks the configuration for structural problems.
func (c *HarvestConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}
	for i, t := range c.Targets {
		if t.URL == "" {
			return fmt.Errorf("target %d: url is required", i)
		}
		if t.Selector == "" {
			return fmt.Errorf("target %d: selector is required", i)
		}
		if _, err := t.Schema.Build(); err != nil {
			return fmt.Errorf("target %d: invalid schema: %w", i, err)
		}
		if t.Options != nil {
			if err := t.Options.Validate(); err != nil {
				return fmt.Errorf("target %d: %w", i, err)
			}
		}
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be non-negative, got %d", c.Concurrency)
	}
	if c.Browser != nil {
		if err := c.Browser.validate(); err != nil {
			return err
		}
	}
	if c.RateLimit != nil {
		if err := c.RateLimit.validate(); err != nil {
			return err
		}
	}
	if c.Defaults != nil {
		if err := c.Defaults.Validate(); err != nil {
			return err
		}
	}
	for i, out := range c.Outputs {
		if err := out.validate(); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	return nil
}

func (r *RateLimitConfig) validate() error {
	flat := r.Requests != 0 || r.Per != ""
	if flat && (r.Global != nil || r.PerDomain != nil) {
		return fmt.Errorf("rate_limit: flat {requests, per} and {global, per_domain} forms are mutually exclusive")
	}
	check := func(name string, s *RateSpec) error {
		if s == nil {
			return nil
		}
		if s.Requests <= 0 {
			return fmt.Errorf("rate_limit.%s: requests must be positive", name)
		}
		if _, err := time.ParseDuration(s.Per); err != nil {
			return fmt.Errorf("rate_limit.%s: invalid per duration %q", name, s.Per)
		}
		return nil
	}
	if flat {
		return check("global", &RateSpec{Requests: r.Requests, Per: r.Per})
	}
	if err := check("global", r.Global); err != nil {
		return err
	}
	return check("per_domain", r.PerDomain)
}

func (d *RequestDefaults) Validate() error {
	if d.Retries < 0 {
		return fmt.Errorf("retries must be non-negative, got %d", d.Retries)
	}
	switch d.Backoff {
	case "", "exponential", "linear":
	default:
		return fmt.Errorf("invalid backoff %q", d.Backoff)
	}
	switch d.Mode {
	case "", "auto", "browser", "snapshot":
	default:
		return fmt.Errorf("invalid execution mode %q", d.Mode)
	}
	for _, field := range []struct{ name, value string }{
		{"backoff_base", d.BackoffBase},
		{"max_backoff", d.MaxBackoff},
		{"navigation_timeout", d.NavigationTimeout},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("invalid %s duration %q", field.name, field.value)
		}
	}
	if d.WaitForSelector != nil {
		if d.WaitForSelector.Selector == "" {
			return fmt.Errorf("wait_for_selector requires a selector")
		}
		if d.WaitForSelector.Timeout != "" {
			if _, err := time.ParseDuration(d.WaitForSelector.Timeout); err != nil {
				return fmt.Errorf("invalid wait_for_selector timeout %q", d.WaitForSelector.Timeout)
			}
		}
	}
	return nil
}

func (o *OutputConfig) validate() error {
	switch o.Type {
	case "json", "csv":
		if o.File == "" {
			return fmt.Errorf("%s output requires a file", o.Type)
		}
	case "excel":
		if o.File == "" {
			return fmt.Errorf("excel output requires a file")
		}
	case "sqlite":
		if o.File == "" || o.Table == "" {
			return fmt.Errorf("sqlite output requires file and table")
		}
	case "mysql", "postgres":
		if o.DSN == "" || o.Table == "" {
			return fmt.Errorf("%s output requires dsn and table", o.Type)
		}
	case "mongodb":
		if o.DSN == "" || o.Database == "" || o.Collection == "" {
			return fmt.Errorf("mongodb output requires dsn, database and collection")
		}
	case "":
		return fmt.Errorf("output type is required")
	default:
		return fmt.Errorf("unknown output type %q", o.Type)
	}
	return nil
}
