// pkg/api/api.go
package api

import (
	"context"

	"github.com/domharvest/domharvest/internal/browser"
	"github.com/domharvest/domharvest/internal/config"
	"github.com/domharvest/domharvest/internal/harvester"
	"github.com/domharvest/domharvest/internal/ratelimit"
	"github.com/domharvest/domharvest/internal/schema"
)

// Re-export types from internal packages for the public API
type Node = schema.Node
type Field = schema.Field
type Record = schema.Record
type CustomFunc = schema.CustomFunc
type LeafOption = schema.LeafOption
type Mode = schema.Mode

type EngineConfig = harvester.Config
type Options = harvester.Options
type WaitForSelector = harvester.WaitForSelector
type Screenshot = harvester.Screenshot
type BatchItem = harvester.BatchItem
type BatchOptions = harvester.BatchOptions
type BatchResult = harvester.BatchResult
type HarvestError = harvester.Error
type ErrorContext = harvester.ErrorContext

type Rate = ratelimit.Rate
type RateLimits = ratelimit.Config
type BrowserConfig = browser.Config
type HarvestConfig = config.HarvestConfig

// Execution modes for Options.Mode.
const (
	ModeAuto     = schema.ModeAuto
	ModeBrowser  = schema.ModeBrowser
	ModeSnapshot = schema.ModeSnapshot
)

// Error kinds reported by HarvestError.Kind.
const (
	KindTimeout    = harvester.KindTimeout
	KindNavigation = harvester.KindNavigation
	KindExtraction = harvester.KindExtraction
)

// Schema builders.
var (
	Text    = schema.Text
	Attr    = schema.Attr
	HTML    = schema.HTML
	Exists  = schema.Exists
	Count   = schema.Count
	Array   = schema.Array
	Object  = schema.Object
	Custom  = schema.Custom
	Default = schema.Default
	NoTrim  = schema.NoTrim
)

// Client is the high-level harvesting interface. Create with NewClient,
// release with Close.
type Client struct {
	engine *harvester.Engine
}

// NewClient builds a client around a fully configured engine.
func NewClient(cfg EngineConfig) (*Client, error) {
	engine, err := harvester.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{engine: engine}, nil
}

// Harvest extracts structured data from every element matching rootSelector
// on the target page.
func (c *Client) Harvest(ctx context.Context, target, rootSelector string, node *Node, opts Options) ([]interface{}, error) {
	return c.engine.Harvest(ctx, target, rootSelector, node, opts)
}

// HarvestBatch harvests many targets concurrently.
func (c *Client) HarvestBatch(ctx context.Context, items []BatchItem, opts BatchOptions) ([]BatchResult, error) {
	return c.engine.HarvestBatch(ctx, items, opts)
}

// Close releases browser resources.
func (c *Client) Close() error {
	return c.engine.Close()
}

// LoadConfig loads a harvest configuration from a YAML file.
func LoadConfig(path string) (*HarvestConfig, error) {
	return config.LoadFromFile(path)
}
