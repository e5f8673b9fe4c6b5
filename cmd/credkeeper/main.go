// Command credkeeper is the credential detection daemon: it watches pages in
// a Chrome instance, fills recognised login forms from the vault, and offers
// to save submitted credentials.
//
// Usage:
//
//	credkeeper -config credkeeper.yaml      # watch pages from YAML config
//	credkeeper -url https://example.com     # quick single-page watch
//	credkeeper -config credkeeper.yaml -mcp # also serve MCP tools on stdio
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/credkeeper/bridge"
	"github.com/hazyhaar/credkeeper/broker"
	"github.com/hazyhaar/credkeeper/pagewatch"
)

func main() {
	configPath := flag.String("config", "", "path to credkeeper.yaml config file")
	singleURL := flag.String("url", "", "watch a single URL")
	serveMCP := flag.Bool("mcp", false, "serve MCP tools on stdio")
	logLevel := flag.String("log-level", env("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *serveMCP); err != nil {
		logger.Error("credkeeper: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL string, serveMCP bool) error {
	cfg, err := resolveConfig(configPath, singleURL)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	br := bridge.New(logger)

	bk, err := broker.New(broker.Config{
		DBPath:               cfg.Broker.DBPath,
		SettingsPollInterval: cfg.Broker.PollInterval,
		TokenExpiryMargin:    cfg.Broker.TokenMargin,
	}, logger)
	if err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	defer bk.Close()
	bk.Attach(br)
	bk.Start(ctx)

	w := pagewatch.New(pagewatch.Config{
		RemoteURL:       cfg.Browser.Remote,
		Headless:        *cfg.Browser.Headless,
		MemoryLimit:     cfg.Browser.MemoryLimit,
		RecycleInterval: cfg.Browser.RecycleInterval,
		DebounceWindow:  cfg.Debounce.Window,
		DebounceMax:     cfg.Debounce.MaxBuffer,
		Logger:          logger,
	}, br)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("browser start: %w", err)
	}
	defer w.Close()

	for _, pc := range cfg.Pages {
		pageID, err := w.Watch(ctx, pc.URL)
		if err != nil {
			logger.Error("credkeeper: watch page", "url", pc.URL, "error", err)
			continue
		}
		logger.Info("credkeeper: watching", "url", pc.URL, "page_id", pageID)
	}

	if serveMCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "credkeeper",
			Version: "1.0.0",
		}, nil)
		bk.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("credkeeper: mcp server", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newRouter(br, bk, w),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	logger.Info("credkeeper: http surface listening", "addr", cfg.HTTP.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func resolveConfig(configPath, singleURL string) (*pagewatch.DaemonConfig, error) {
	if configPath != "" {
		cfg, err := pagewatch.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if singleURL != "" {
			cfg.Pages = append(cfg.Pages, pagewatch.PageConfig{URL: singleURL})
		}
		return cfg, nil
	}

	cfg := &pagewatch.DaemonConfig{}
	if singleURL != "" {
		cfg.Pages = []pagewatch.PageConfig{{URL: singleURL}}
	}
	cfg.Broker.DBPath = env("CREDKEEPER_DB", "")
	cfg.HTTP.Addr = env("CREDKEEPER_HTTP_ADDR", "")
	cfg.Browser.Remote = env("CREDKEEPER_BROWSER_URL", "")
	cfg.ApplyDefaults()
	return cfg, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
