// Command cwproxy-fiber serves the same Anthropic Messages-compatible
// surface as cmd/cwproxy, over fiber instead of gin. fiber runs on
// fasthttp rather than net/http, so handlers are bridged through
// adaptor.HTTPHandlerFunc.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

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

	app := fiber.New(fiber.Config{
		ReadTimeout: 10 * time.Second,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type, Authorization, x-api-key",
	}))

	app.Get("/health", adaptor.HTTPHandlerFunc(http.HandlerFunc(orch.HandleHealth)))
	app.Get("/stats", adaptor.HTTPHandlerFunc(http.HandlerFunc(orch.HandleStats)))
	app.Get("/usage", adaptor.HTTPHandlerFunc(http.HandlerFunc(orch.HandleUsage)))
	app.Post("/v1/messages", adaptor.HTTPHandlerFunc(http.HandlerFunc(orch.HandleMessages)))

	addr := cfg.Host + ":" + cfg.ServerPort
	log.Printf("cwproxy-fiber listening on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
}
