// Command cwproxy-echo serves the same Anthropic Messages-compatible
// surface as cmd/cwproxy, over echo instead of gin.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

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

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Authorization", "x-api-key"},
	}))

	e.GET("/health", echo.WrapHandler(http.HandlerFunc(orch.HandleHealth)))
	e.GET("/stats", echo.WrapHandler(http.HandlerFunc(orch.HandleStats)))
	e.GET("/usage", echo.WrapHandler(http.HandlerFunc(orch.HandleUsage)))
	e.POST("/v1/messages", echo.WrapHandler(http.HandlerFunc(orch.HandleMessages)))

	addr := cfg.Host + ":" + cfg.ServerPort
	e.Server.ReadHeaderTimeout = 10 * time.Second
	log.Printf("cwproxy-echo listening on %s", addr)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
