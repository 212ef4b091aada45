// cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/domharvest/domharvest/internal/config"
	"github.com/domharvest/domharvest/internal/harvester"
	"github.com/domharvest/domharvest/internal/monitoring"
	"github.com/domharvest/domharvest/internal/schema"
	"github.com/domharvest/domharvest/internal/utils"
)

// server exposes the harvest engine over HTTP.
type server struct {
	engine  *harvester.Engine
	metrics *monitoring.Metrics
	logger  utils.Logger
}

// harvestRequest is the JSON body of POST /api/v1/harvest.
type harvestRequest struct {
	Target   string                  `json:"target"`
	Selector string                  `json:"selector"`
	Schema   schema.NodeSpec         `json:"schema"`
	Options  *config.RequestDefaults `json:"options,omitempty"`
}

// batchRequest is the JSON body of POST /api/v1/batch.
type batchRequest struct {
	Items       []harvestRequest `json:"items"`
	Concurrency int              `json:"concurrency,omitempty"`
}

func main() {
	addr := flag.String("addr", ":8089", "listen address")
	configFile := flag.String("config", "", "optional configuration file for engine defaults")
	requestsPerSecond := flag.Float64("rps", 10, "per-client API rate limit")
	flag.Parse()

	logger := utils.NewLogger()
	metrics := monitoring.NewMetrics()

	engineCfg := harvester.Config{Logger: logger, Metrics: metrics}
	if *configFile != "" {
		cfg, err := config.LoadFromFile(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		engineCfg, err = cfg.EngineConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		engineCfg.Logger = logger
		engineCfg.Metrics = metrics
	}

	engine, err := harvester.New(engineCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	s := &server{engine: engine, metrics: metrics, logger: logger}

	httpServer := &http.Server{
		Addr:         *addr,
		Handler:      rateLimitMiddleware(s.routes(), *requestsPerSecond),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Infof("listening on %s", *addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/harvest", s.harvestHandler).Methods("POST")
	api.HandleFunc("/batch", s.batchHandler).Methods("POST")

	return r
}

func (s *server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *server) harvestHandler(w http.ResponseWriter, r *http.Request) {
	var req harvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	node, opts, err := req.build()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	data, err := s.engine.Harvest(r.Context(), req.Target, req.Selector, node, opts)
	if err != nil {
		kind := ""
		var hErr *harvester.Error
		if errors.As(err, &hErr) {
			kind = string(hErr.Kind)
		}
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"success":    false,
			"target":     req.Target,
			"error":      err.Error(),
			"error_kind": kind,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"target":  req.Target,
		"data":    data,
	})
}

func (s *server) batchHandler(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("items must not be empty"))
		return
	}

	items := make([]harvester.BatchItem, 0, len(req.Items))
	for i, item := range req.Items {
		node, opts, err := item.build()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("item %d: %w", i, err))
			return
		}
		items = append(items, harvester.BatchItem{
			Target:       item.Target,
			RootSelector: item.Selector,
			Node:         node,
			Options:      opts,
		})
	}

	results, err := s.engine.HarvestBatch(r.Context(), items, harvester.BatchOptions{
		Concurrency: req.Concurrency,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":   len(results),
		"results": results,
	})
}

func (h *harvestRequest) build() (*schema.Node, harvester.Options, error) {
	var opts harvester.Options
	if h.Target == "" {
		return nil, opts, fmt.Errorf("target is required")
	}
	if h.Selector == "" {
		return nil, opts, fmt.Errorf("selector is required")
	}
	node, err := h.Schema.Build()
	if err != nil {
		return nil, opts, fmt.Errorf("invalid schema: %w", err)
	}
	if h.Options != nil {
		if err := h.Options.Validate(); err != nil {
			return nil, opts, err
		}
		opts, err = h.Options.HarvestOptions()
		if err != nil {
			return nil, opts, err
		}
	}
	return node, opts, nil
}

func rateLimitMiddleware(next http.Handler, rps float64) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), int(rps)*2)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}
