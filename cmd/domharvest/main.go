// cmd/domharvest/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/domharvest/domharvest/internal/config"
	"github.com/domharvest/domharvest/internal/harvester"
	"github.com/domharvest/domharvest/internal/output"
	"github.com/domharvest/domharvest/internal/utils"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// main handles CLI arguments and routes to the appropriate command.
func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "run":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Error: config file required\n")
			fmt.Fprintf(os.Stderr, "Usage: domharvest run <config.yaml>\n")
			os.Exit(1)
		}
		if err := runHarvest(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "validate":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Error: config file required\n")
			fmt.Fprintf(os.Stderr, "Usage: domharvest validate <config.yaml>\n")
			os.Exit(1)
		}
		if _, err := config.LoadFromFile(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration file '%s' is valid\n", os.Args[2])

	case "template":
		template, err := generateTemplate(os.Args[2:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(template)

	case "version", "--version":
		printVersion()

	case "help", "--help", "-h":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", command)
		printUsage()
		os.Exit(1)
	}
}

// runHarvest loads the configuration, harvests every target, and writes the
// results to the configured outputs.
func runHarvest(configFile string) error {
	verbose := hasFlag("-v") || hasFlag("--verbose")

	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger := utils.NewLoggerWithLevel(utils.ParseLevel(level))

	if verbose {
		fmt.Printf("Configuration loaded: %s\n", cfg.Name)
		fmt.Printf("Targets: %d\n", len(cfg.Targets))
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return fmt.Errorf("invalid engine configuration: %w", err)
	}
	engineCfg.Logger = logger
	engineCfg.OnError = func(hErr *harvester.Error, ectx harvester.ErrorContext) {
		logger.Warnf("%s during %s on %s (attempt %d): %v", hErr.Kind, ectx.Operation, ectx.Target, ectx.Attempt, hErr)
	}

	engine, err := harvester.New(engineCfg)
	if err != nil {
		return fmt.Errorf("failed to create harvest engine: %w", err)
	}
	defer engine.Close()

	items, err := cfg.BatchItems()
	if err != nil {
		return fmt.Errorf("invalid targets: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := engine.HarvestBatch(ctx, items, harvester.BatchOptions{
		Concurrency: cfg.Concurrency,
		OnProgress: func(completed, total int) {
			logger.Infof("progress: %d/%d targets complete", completed, total)
		},
	})
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}

	if len(cfg.Outputs) > 0 {
		manager, err := output.NewManager(cfg.Outputs)
		if err != nil {
			return fmt.Errorf("failed to open outputs: %w", err)
		}
		defer manager.Close()
		if err := manager.WriteResults(results); err != nil {
			return fmt.Errorf("failed to write results: %w", err)
		}
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	fmt.Printf("Harvested %d/%d targets\n", succeeded, len(results))
	if succeeded < len(results) {
		os.Exit(2)
	}
	return nil
}

// generateTemplate renders a starter configuration as YAML.
func generateTemplate(args []string) (string, error) {
	templateType := "basic"
	if len(args) > 0 && args[0] == "--type" && len(args) > 1 {
		templateType = args[1]
	}

	template := config.GenerateTemplate(templateType)

	yamlData, err := yaml.Marshal(template)
	if err != nil {
		return "", fmt.Errorf("failed to marshal template to YAML: %w", err)
	}
	return string(yamlData), nil
}

func hasFlag(flag string) bool {
	for _, arg := range os.Args {
		if arg == flag {
			return true
		}
	}
	return false
}

// printUsage displays help information.
func printUsage() {
	fmt.Println("DOMHarvest - Browser-Driven Data Harvesting")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  domharvest run <config.yaml>        Harvest all targets in a configuration file")
	fmt.Println("  domharvest validate <config.yaml>   Validate configuration file")
	fmt.Println("  domharvest template [--type <type>] Generate configuration template")
	fmt.Println("  domharvest version                  Show version information")
	fmt.Println("  domharvest help                     Show this help message")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -v, --verbose                       Enable verbose output")
	fmt.Println()
	fmt.Println("Template types:")
	fmt.Println("  basic       Single-target template (default)")
	fmt.Println("  news        News article harvesting template")
}

// printVersion displays version information.
func printVersion() {
	fmt.Printf("domharvest %s\n", version)
	fmt.Printf("Build time: %s\n", buildTime)
	fmt.Printf("Git commit: %s\n", gitCommit)
}
