// internal/config/config.go
package config

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/domharvest/domharvest/internal/browser"
	"github.com/domharvest/domharvest/internal/harvester"
	"github.com/domharvest/domharvest/internal/ratelimit"
	"github.com/domharvest/domharvest/internal/retry"
	"github.com/domharvest/domharvest/internal/schema"
)

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(filename string) (*HarvestConfig, error) {
	if filename == "" {
		return nil, fmt.Errorf("configuration filename cannot be empty")
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", filename)
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %v", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes, expanding ${ENV}
// references before parsing.
func LoadFromBytes(data []byte) (*HarvestConfig, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("configuration data cannot be empty")
	}

	expanded := expandEnvironmentVariables(string(data))

	var cfg HarvestConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %v", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}
	return &cfg, nil
}

// LoadFromReader loads configuration from an io.Reader.
func LoadFromReader(reader io.Reader) (*HarvestConfig, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read from reader: %v", err)
	}
	return LoadFromBytes(data)
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvironmentVariables substitutes ${NAME} with the environment value;
// unset variables expand to the empty string.
func expandEnvironmentVariables(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// applyDefaults fills missing values with production-safe defaults.
func applyDefaults(cfg *HarvestConfig) {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = harvester.DefaultConcurrency
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// EngineConfig converts the file form into a harvester.Config. Logger and
// callbacks are left for the caller to attach.
func (c *HarvestConfig) EngineConfig() (harvester.Config, error) {
	engineCfg := harvester.Config{
		Concurrency: c.Concurrency,
	}

	if c.RateLimit != nil {
		rl, err := c.RateLimit.toLimits()
		if err != nil {
			return engineCfg, err
		}
		engineCfg.RateLimit = rl
	}

	engineCfg.Browser = c.browserConfig()

	if c.Defaults != nil {
		opts, err := c.Defaults.HarvestOptions()
		if err != nil {
			return engineCfg, err
		}
		engineCfg.Defaults = opts
	}

	return engineCfg, nil
}

// BatchItems converts the configured targets into batch items.
func (c *HarvestConfig) BatchItems() ([]harvester.BatchItem, error) {
	items := make([]harvester.BatchItem, 0, len(c.Targets))
	for i, t := range c.Targets {
		node, err := t.Schema.Build()
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		item := harvester.BatchItem{
			Target:       t.URL,
			RootSelector: t.Selector,
			Node:         node,
		}
		if t.Options != nil {
			opts, err := t.Options.HarvestOptions()
			if err != nil {
				return nil, fmt.Errorf("target %d: %w", i, err)
			}
			item.Options = opts
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *HarvestConfig) browserConfig() *browser.Config {
	out := browser.DefaultConfig()
	b := c.Browser
	if b == nil {
		return out
	}
	if b.Headless != nil {
		out.Headless = *b.Headless
	}
	if b.Timeout != "" {
		if d, err := time.ParseDuration(b.Timeout); err == nil {
			out.Timeout = d
		}
	}
	if b.ViewportWidth > 0 {
		out.ViewportWidth = b.ViewportWidth
	}
	if b.ViewportHeight > 0 {
		out.ViewportHeight = b.ViewportHeight
	}
	if b.UserAgent != "" {
		out.UserAgent = b.UserAgent
	}
	if b.UserDataDir != "" {
		out.UserDataDir = b.UserDataDir
	}
	if b.DisableImages != nil {
		out.DisableImages = *b.DisableImages
	}
	if b.PoolSize > 0 {
		out.PoolSize = b.PoolSize
	}
	return out
}

func (r *RateLimitConfig) toLimits() (*ratelimit.Config, error) {
	parse := func(s *RateSpec) (*ratelimit.Rate, error) {
		if s == nil {
			return nil, nil
		}
		per, err := time.ParseDuration(s.Per)
		if err != nil {
			return nil, fmt.Errorf("invalid rate duration %q: %w", s.Per, err)
		}
		return &ratelimit.Rate{Requests: s.Requests, Per: per}, nil
	}

	if r.Requests != 0 || r.Per != "" {
		global, err := parse(&RateSpec{Requests: r.Requests, Per: r.Per})
		if err != nil {
			return nil, err
		}
		return &ratelimit.Config{Global: global}, nil
	}

	global, err := parse(r.Global)
	if err != nil {
		return nil, err
	}
	perDomain, err := parse(r.PerDomain)
	if err != nil {
		return nil, err
	}
	return &ratelimit.Config{Global: global, PerDomain: perDomain}, nil
}

func (d *RequestDefaults) HarvestOptions() (harvester.Options, error) {
	opts := harvester.Options{
		Retries:          d.Retries,
		Backoff:          retry.BackoffKind(d.Backoff),
		RetryOn:          d.RetryOn,
		WaitForLoadState: d.WaitForLoadState,
		Mode:             schema.Mode(d.Mode),
	}

	parse := func(name, value string) (time.Duration, error) {
		if value == "" {
			return 0, nil
		}
		dur, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s duration %q: %w", name, value, err)
		}
		return dur, nil
	}

	var err error
	if opts.BackoffBase, err = parse("backoff_base", d.BackoffBase); err != nil {
		return opts, err
	}
	if opts.MaxBackoff, err = parse("max_backoff", d.MaxBackoff); err != nil {
		return opts, err
	}
	if opts.NavigationTimeout, err = parse("navigation_timeout", d.NavigationTimeout); err != nil {
		return opts, err
	}

	if d.WaitForSelector != nil {
		timeout, err := parse("wait_for_selector timeout", d.WaitForSelector.Timeout)
		if err != nil {
			return opts, err
		}
		opts.WaitForSelector = &harvester.WaitForSelector{
			Selector: d.WaitForSelector.Selector,
			State:    d.WaitForSelector.State,
			Timeout:  timeout,
		}
	}
	if d.Screenshot != nil {
		opts.Screenshot = &harvester.Screenshot{
			Path:          d.Screenshot.Path,
			Type:          d.Screenshot.Type,
			FullPage:      d.Screenshot.FullPage,
			BeforeExtract: d.Screenshot.BeforeExtract,
		}
	}
	return opts, nil
}

// GenerateTemplate returns a starter configuration of the given flavor.
func GenerateTemplate(kind string) *HarvestConfig {
	cfg := &HarvestConfig{
		Name:        "example-harvest",
		Concurrency: harvester.DefaultConcurrency,
		RateLimit: &RateLimitConfig{
			Global:    &RateSpec{Requests: 5, Per: "1s"},
			PerDomain: &RateSpec{Requests: 1, Per: "2s"},
		},
		Logging: LoggingConfig{Level: "info"},
		Outputs: []OutputConfig{{Type: "json", File: "results.json"}},
	}

	switch kind {
	case "news":
		cfg.Targets = []TargetConfig{{
			URL:      "https://news.example.com",
			Selector: "article",
			Schema: schema.NodeSpec{
				Type: "object",
				Fields: []schema.FieldSpec{
					{Name: "headline", NodeSpec: schema.NodeSpec{Type: "text", Selector: "h2"}},
					{Name: "link", NodeSpec: schema.NodeSpec{Type: "attr", Selector: "a", Attribute: "href"}},
					{Name: "tags", NodeSpec: schema.NodeSpec{Type: "array", Selector: ".tag", Item: &schema.NodeSpec{Type: "text"}}},
				},
			},
		}}
	default:
		cfg.Targets = []TargetConfig{{
			URL:      "https://example.com",
			Selector: "body",
			Schema: schema.NodeSpec{
				Type: "object",
				Fields: []schema.FieldSpec{
					{Name: "title", NodeSpec: schema.NodeSpec{Type: "text", Selector: "h1"}},
				},
			},
		}}
	}
	return cfg
}
