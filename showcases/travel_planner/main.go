// Command travel_planner serves the multi-agent travel planner over HTTP.
//
//	POST   /plan         start planning, returns the task id
//	GET    /status/{id}  task progress and, once completed, the plan
//	GET    /tasks        every task of this process, newest first
//	DELETE /tasks/{id}   forget a finished task
//	GET    /health       liveness
//
// Example:
//
//	curl -X POST localhost:8090/plan -d '{"destination":"Lisbon","start_date":"2025-06-01","end_date":"2025-06-04","interests":["food"]}'
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/smallnest/researchgraph/adapter/natsevents"
	"github.com/smallnest/researchgraph/graph"
	"github.com/smallnest/researchgraph/llm"
	"github.com/smallnest/researchgraph/log"
	"github.com/smallnest/researchgraph/prebuilt/travel"
	"github.com/smallnest/researchgraph/store/backend"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("load .env: %v", err)
	}
	cfg := LoadConfig()

	level, err := log.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
	logger := log.NewGologLoggerWithOutput(os.Stderr, level)
	log.SetDefaultLogger(logger)

	if err := serve(cfg, logger); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func serve(cfg Config, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model, err := llm.NewFromConfig(cfg.LLM)
	if err != nil {
		return err
	}
	search, err := cfg.Search()
	if err != nil {
		return err
	}
	st, closeStore, err := backend.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	listeners := []graph.Listener{graph.LogListener(logger)}
	if cfg.NATSURL != "" {
		nc, err := natsevents.Connect(cfg.NATSURL, "travel_planner")
		if err != nil {
			return err
		}
		defer nc.Drain()
		listeners = append(listeners, natsevents.NewListener(nc,
			natsevents.WithPrefix(cfg.NATSPrefix),
			natsevents.WithLogger(logger),
		))
		logger.Info("publishing run events to %s on %s", cfg.NATSPrefix, cfg.NATSURL)
	}

	srv, err := NewServer(travel.Config{
		Model:         model,
		Search:        search,
		MaxIterations: cfg.MaxIterations,
		Logger:        logger,
	}, st, cfg.TaskTimeout, listeners...)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 3 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("travel planner listening on %s", cfg.Addr)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down, waiting for running tasks")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	srv.Wait()
	return nil
}
