package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mkorchagin/docqa/internal/adapters/mcpserver"
	"github.com/mkorchagin/docqa/internal/bootstrap"
	"github.com/mkorchagin/docqa/internal/config"
	"github.com/mkorchagin/docqa/internal/observability/logging"
)

const version = "1.0.0"

// Stdout carries the MCP protocol, so logging goes to stderr.
func main() {
	cfg := config.Load()
	logging.SetupStderr("mcp", cfg.LogLevel)

	app, err := bootstrap.New(context.Background(), cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := mcpserver.New(app.SearchUC, app.ChatUC, version)
	slog.Info("mcp_serving_stdio", "version", version)
	if err := srv.ServeStdio(); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
