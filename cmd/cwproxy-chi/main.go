// Command cwproxy-chi serves the same Anthropic Messages-compatible
// surface as cmd/cwproxy, over chi instead of gin.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cwbridge/proxy/pkg/bootstrap"
	"github.com/cwbridge/proxy/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.EnableVerboseLogging {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	orch, exporter, err := bootstrap.Build(context.Background(), cfg)
	if err != nil {
		log.Fatalf("bootstrap orchestrator: %v", err)
	}
	if exporter != nil {
		defer exporter.Shutdown(context.Background())
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "x-api-key"},
	}))

	r.Get("/health", orch.HandleHealth)
	r.Get("/stats", orch.HandleStats)
	r.Get("/usage", orch.HandleUsage)
	r.Post("/v1/messages", orch.HandleMessages)

	addr := cfg.Host + ":" + cfg.ServerPort
	log.Printf("cwproxy-chi listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
