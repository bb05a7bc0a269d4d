package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blissful-agent/internal/agent"
	"blissful-agent/internal/blissful"
	"blissful-agent/internal/browser"
	"blissful-agent/internal/config"
	mcpserver "blissful-agent/internal/mcp"
	"blissful-agent/internal/trace"

	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the Blissful agent config file")
	ssePort := flag.Int("sse-port", 0, "Optional SSE port override (falls back to config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Before we can redirect logs, write to stderr as last resort
		log.Fatalf("failed to load config: %v", err)
	}
	if *ssePort != 0 {
		cfg.MCP.SSEPort = *ssePort
	}

	// Redirect logging to file for stdio mode (stderr interferes with MCP protocol)
	if cfg.MCP.Stdio && cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			// If we can't open log file, disable logging to avoid stderr pollution
			log.SetOutput(io.Discard)
		}
	}

	var rec *trace.Recorder
	if cfg.Trace.Enable {
		rec, err = trace.NewRecorder(cfg.Trace.Dir, cfg.Trace.KeepTraces())
		if err != nil {
			log.Fatalf("failed to initialize trace recorder: %v", err)
		}
		runID := uuid.NewString()[:8]
		if err := rec.Start(runID); err != nil {
			log.Fatalf("failed to start trace: %v", err)
		}
		defer rec.Close()
	}

	client := blissful.NewClient(cfg.Service.BaseURL, cfg.Service.RequestTimeout())

	if !cfg.Service.SkipStartupProbe {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		health, err := client.GetHealth(probeCtx)
		cancel()
		switch {
		case err != nil:
			log.Printf("warning: service health probe failed: %v", err)
		default:
			log.Printf("service health: %s", health.Status)
			if !health.FFmpegAvailable {
				log.Printf("warning: service reports ffmpeg unavailable; downloads may fail")
			}
			if !health.YtdlpAvailable {
				log.Printf("warning: service reports yt-dlp unavailable; downloads may fail")
			}
		}
	}

	// The service's persisted settings win over the local file for the
	// library location and the notification toggle.
	settingsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if settings, err := client.GetSettings(settingsCtx); err != nil {
		log.Printf("warning: could not read service settings: %v", err)
	} else if applied := cfg.ApplyRemoteSettings(settings); len(applied) > 0 {
		log.Printf("applied remote settings: %v", applied)
	}
	cancel()

	session := browser.NewSession(cfg.Browser, cfg.Library)
	if err := session.Start(ctx); err != nil {
		log.Fatalf("failed to start browser session: %v", err)
	}
	defer session.Shutdown(context.Background())

	page, err := session.AttachLibrary(ctx)
	if err != nil {
		log.Fatalf("failed to attach to library tab: %v", err)
	}

	a := agent.New(cfg.Agent, page, client, rec)

	events, err := page.EventStream(ctx)
	if err != nil {
		log.Fatalf("failed to start page event stream: %v", err)
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- a.Run(ctx, events)
	}()

	server := mcpserver.NewServer(cfg, a, client)

	var startErr error
	switch {
	case cfg.MCP.Stdio:
		log.Printf("starting agent control surface over stdio")
		startErr = server.Start(ctx)
	case cfg.MCP.SSEPort > 0:
		log.Printf("starting agent control surface on SSE port %d", cfg.MCP.SSEPort)
		startErr = server.StartSSE(ctx, cfg.MCP.SSEPort)
	default:
		log.Printf("agent running without a control surface")
		startErr = <-runErr
	}

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		log.Fatalf("agent exited with error: %v", startErr)
	}
}
