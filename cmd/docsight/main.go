// CLAUDE:SUMMARY Entry point for the docsight OCR service: YAML/env config, engine registry, SQLite observability, chi router, MCP over streamable HTTP.
// Command docsight serves text recognition over HTTP and MCP.
//
// Usage:
//
//	docsight                          # env-only configuration
//	docsight -config docsight.yaml    # YAML file, env vars override
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/net/netutil"

	"github.com/hazyhaar/docsight/dbopen"
	"github.com/hazyhaar/docsight/docpipe"
	"github.com/hazyhaar/docsight/observability"
	"github.com/hazyhaar/docsight/recognize"
	"github.com/hazyhaar/docsight/recognize/tesseract"
	"github.com/hazyhaar/docsight/shield"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to docsight.yaml")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("docsight: fatal", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *Config) error {
	reg, closeEngines, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}
	defer closeEngines()

	pcfg := docpipe.Config{
		MaxFileSize: cfg.MaxFileSize,
		MaxPixels:   cfg.MaxPixels,
		Preset:      cfg.Preset,
		Languages:   cfg.Languages,
		Workers:     cfg.Workers,
		FileRoot:    cfg.FileRoot,
		Logger:      logger,
	}

	var runs *observability.RunLog
	if cfg.ObsDB != "" {
		db, err := dbopen.Open(cfg.ObsDB, dbopen.WithMkdirAll(), dbopen.WithInit(observability.Init))
		if err != nil {
			return fmt.Errorf("observability db: %w", err)
		}
		defer db.Close()

		metrics := observability.NewMetrics(db, 0)
		defer metrics.Close()
		runs = observability.NewRunLog(db, 0)
		defer runs.Close()

		pcfg.Metrics = metrics
		pcfg.Runs = runs
		go retain(ctx, logger, metrics, runs, cfg.RetentionDays)
	}

	pipe, err := docpipe.New(pcfg, reg)
	if err != nil {
		return err
	}
	defer pipe.Close()

	stack, err := shield.DefaultStack(shield.StackConfig{
		MaxBody:    cfg.MaxFileSize,
		APIKeyHash: cfg.APIKeyHash,
		Public:     []string{"/health", "/info"},
		RateLimit:  cfg.RateLimit,
		Logger:     logger,
	}, ctx.Done())
	if err != nil {
		return fmt.Errorf("middleware: %w", err)
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "docsight", Version: version}, nil)
	pipe.RegisterMCP(mcpSrv)
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)

	s := &server{pipe: pipe, runs: runs, version: version, logger: logger}
	srv := &http.Server{
		Handler:           s.routes(stack, mcpHandler),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return err
	}
	ln = netutil.LimitListener(ln, cfg.MaxConns)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("docsight listening", "addr", cfg.Addr(), "engines", reg.List(),
			"default_engine", reg.DefaultName(), "preset", cfg.Preset, "workers", cfg.Workers)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

// buildRegistry registers tesseract (when compiled in) and the configured
// remote engines. An empty registry is not fatal: /ocr then answers INIT_ERROR.
func buildRegistry(cfg *Config, logger *slog.Logger) (*recognize.Registry, func(), error) {
	reg := recognize.NewRegistry()
	var remotes []*recognize.Remote

	tess, err := tesseract.New(tesseract.Config{
		Languages:      cfg.Languages,
		TessdataPrefix: cfg.TessdataPrefix,
		MaxClients:     cfg.Workers,
	})
	switch {
	case err == nil:
		reg.Register(tess)
	case errors.Is(err, recognize.ErrNotEnabled):
		logger.Warn("tesseract not compiled in, rebuild with -tags ocr")
	default:
		logger.Error("tesseract init", "error", err)
	}

	for _, rc := range cfg.RemoteEngines {
		rc.Logger = logger
		r, err := recognize.NewRemote(rc)
		if err != nil {
			return nil, nil, err
		}
		reg.Register(r)
		remotes = append(remotes, r)
	}

	if cfg.DefaultEngine != "" {
		if err := reg.SetDefault(cfg.DefaultEngine); err != nil {
			return nil, nil, err
		}
	}
	if len(reg.List()) == 0 {
		logger.Warn("no recognition engines available")
	}

	closeAll := func() {
		for _, r := range remotes {
			r.Close()
		}
		if tess != nil {
			if err := tess.Close(); err != nil {
				logger.Warn("tesseract close", "error", err)
			}
		}
	}
	return reg, closeAll, nil
}

// retain prunes observability rows older than days, once a day.
func retain(ctx context.Context, logger *slog.Logger, metrics *observability.Metrics, runs *observability.RunLog, days int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if n, err := metrics.Cleanup(ctx, days); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("metrics cleanup", "error", err)
		} else if n > 0 {
			logger.Info("metrics cleanup", "deleted", n)
		}
		if n, err := runs.Cleanup(ctx, days); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("runs cleanup", "error", err)
		} else if n > 0 {
			logger.Info("runs cleanup", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
