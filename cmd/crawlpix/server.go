package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/crawlpix/crawlpix/internal/api"
	"github.com/crawlpix/crawlpix/internal/cache"
	"github.com/crawlpix/crawlpix/internal/config"
	"github.com/crawlpix/crawlpix/internal/crawler"
	"github.com/crawlpix/crawlpix/internal/embedding"
	"github.com/crawlpix/crawlpix/internal/extract"
	"github.com/crawlpix/crawlpix/internal/intent"
	"github.com/crawlpix/crawlpix/internal/metrics"
	"github.com/crawlpix/crawlpix/internal/openai"
	"github.com/crawlpix/crawlpix/internal/search"
	"github.com/crawlpix/crawlpix/internal/session"
	"github.com/crawlpix/crawlpix/internal/vectorstore"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the crawlpix server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running crawlpix server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show crawlpix system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath() string {
	return filepath.Join(os.TempDir(), "crawlpix.pid")
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "crawlpix version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.LogLevel, "debug") {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath()
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.ServerPort)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("crawlpix is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("crawlpix is already running on port %d", cfg.ServerPort)
		return fmt.Errorf("server already running on port %d", cfg.ServerPort)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics registry.
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// Cache over Redis. The server still starts if Redis is down; every
	// cache layer degrades to a miss.
	kv := cache.NewRedisKV(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	gateway := cache.NewGateway(kv, m, nil)
	if !gateway.Available(ctx) {
		slog.Warn("redis unavailable, caching disabled", "addr", cfg.RedisAddr)
	}

	// Vector store.
	store, err := vectorstore.NewQdrantStore(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantKey, cfg.EmbedDim)
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("qdrant not reachable at %s:%d: %w", cfg.QdrantHost, cfg.QdrantPort, err)
	}

	// LLM provider, embedder, parser, search.
	client := openai.New(cfg.OpenAIBaseURL, cfg.OpenAIKey)
	embedder := embedding.New(client, gateway, cfg.EmbedModel)
	parser := intent.NewParser(client, gateway, cfg.ChatModel)
	engine := search.NewEngine(embedder, store, gateway, m, cfg.DefaultSearchResults, cfg.SimilarityThreshold)

	// Crawl pipeline.
	registry := session.NewRegistry(cfg.MaxConcurrentCrawls, nil)
	provider := crawler.NewChromedpProvider(cfg.CrawlTimeout())
	orchestrator := crawler.NewOrchestrator(
		provider, extract.New(), embedder, store, gateway, registry, m,
		cfg.SettleWait(), cfg.IndexBatchSize,
	)

	apiHandler := api.NewHandler(api.Deps{
		Registry:          registry,
		Orchestrator:      orchestrator,
		Parser:            parser,
		Engine:            engine,
		Cache:             gateway,
		Store:             store,
		Gatherer:          reg,
		DefaultCrawlLimit: cfg.DefaultCrawlLimit,
		CleanupAge:        time.Duration(cfg.CleanupHours) * time.Hour,
		WatchTimeout:      cfg.WatchTimeout(),
	})

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{
		Addr:    addr,
		Handler: apiHandler,
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "crawlpix listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	pidPath := pidFilePath()
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("crawlpix is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop crawlpix (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to crawlpix (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.ServerPort)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.ServerPort)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Redis", "%s", cfg.RedisAddr)
	printStatus("Qdrant", "%s:%d", cfg.QdrantHost, cfg.QdrantPort)
	printStatus("Chat model", "%s", cfg.ChatModel)
	printStatus("Embed model", "%s", cfg.EmbedModel)
	return nil
}
