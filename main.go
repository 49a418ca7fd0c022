// go_vidqa: video transcript and question answering server.
//
// Exposes three MCP tools (video_transcript, video_ask,
// video_transcript_status) and an HTTP API that streams pipeline progress
// as Server-Sent Events.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/httpapi"
	"github.com/anatolykoptev/go_vidqa/internal/pipeline"
	"github.com/anatolykoptev/go_vidqa/internal/qa"
	"github.com/anatolykoptev/go_vidqa/internal/transcript"
	"github.com/anatolykoptev/go_vidqa/internal/vidserver"
)

var version = "dev"

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	mcpPort := env.Str("MCP_PORT", "8893")
	httpPort := env.Str("HTTP_PORT", "8080")

	c := engine.LoadConfig()
	engine.Init(c)
	c = *engine.Cfg

	store, closer, err := transcript.Open(context.Background(), c)
	if err != nil {
		slog.Error("transcript store init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer closer.Close()

	p, err := pipeline.FromConfig(c, store)
	if err != nil {
		slog.Error("pipeline init failed", slog.Any("error", err))
		os.Exit(1)
	}

	var asker *qa.Answerer
	if a, err := qa.FromConfig(c); err != nil {
		slog.Warn("question answering disabled", slog.Any("error", err))
	} else {
		asker = a
	}

	tools := &vidserver.Tools{Runner: p, Store: store}
	api := &httpapi.Server{Runner: p, Store: store}
	if asker != nil {
		tools.Asker = asker
		api.Asker = asker
	}

	slog.Info("starting go_vidqa",
		slog.String("mcp_port", mcpPort),
		slog.String("http_port", httpPort),
		slog.String("cache_backend", c.CacheBackend),
		slog.String("transcriber", c.Transcriber),
		slog.Bool("offline", c.Offline),
	)

	app := httpapi.New(api)
	var g errgroup.Group
	g.Go(func() error {
		return app.Listen(":" + httpPort)
	})

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_vidqa",
		Version: version,
	}, nil)
	vidserver.RegisterTools(server, tools)
	slog.Info("tools registered", slog.Int("count", 3))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_vidqa",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 30 * time.Minute,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Warn("http shutdown", slog.Any("error", err))
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("http server stopped", slog.Any("error", err))
	}
	// Let in-flight stages finish so no partial artifacts or writes are left.
	p.Wait()
}
