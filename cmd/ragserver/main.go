package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vkk1710/RAG-With-Citations/internal/app"
	"github.com/vkk1710/RAG-With-Citations/internal/config"
	"github.com/vkk1710/RAG-With-Citations/internal/httpapi"
	"github.com/vkk1710/RAG-With-Citations/internal/logging"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, addr string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to assemble components", zap.Error(err))
	}
	defer a.Close()

	if inputs := flag.Args(); len(inputs) > 0 {
		rep, err := a.Service.Ingest(ctx, inputs)
		if err != nil {
			logger.Fatal("initial ingest failed", zap.Error(err))
		}
		logger.Info("initial ingest", zap.Int("documents", rep.Documents), zap.Int("passages", rep.Indexed))
	}

	handler := httpapi.NewHandler(a.Service, logger.Named("http"), httpapi.Options{
		RatePerSecond: cfg.Server.RateLimit,
		Burst:         cfg.Server.Burst,
		DocumentsDir:  cfg.Server.DocumentsDir,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}
