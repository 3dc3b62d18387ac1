// Command cwproxy serves the Anthropic Messages-compatible surface over
// gin, backed by the CodeWhisperer orchestrator pipeline.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

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

	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.Use(corsMiddleware())

	r.GET("/health", gin.WrapF(orch.HandleHealth))
	r.GET("/stats", gin.WrapF(orch.HandleStats))
	r.GET("/usage", gin.WrapF(orch.HandleUsage))
	r.POST("/v1/messages", gin.WrapF(orch.HandleMessages))

	addr := cfg.Host + ":" + cfg.ServerPort
	log.Printf("cwproxy (gin) listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, x-api-key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
