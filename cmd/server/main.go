package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/content-model/pkg/contentmodel"
	"github.com/tendant/content-model/pkg/contentmodel/config"
)

// Settings are the process level settings; the content-model configuration
// itself is read by config.WithEnv using EnvPrefix.
type Settings struct {
	EnvPrefix    string `env:"CONTENT_MODEL_ENV_PREFIX" env-default:"CONTENT_MODEL_"`
	LogLevel     string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat    string `env:"LOG_FORMAT" env-default:"text"`
	ApiKeySHA256 string `env:"API_KEY_SHA256"`
	Demo         bool   `env:"CONTENT_MODEL_DEMO" env-default:"true"`
}

func newLogger(settings Settings) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(settings.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	options := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(settings.LogFormat) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, options)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stdout, options)), nil
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT: %s", settings.LogFormat)
	}
}

func main() {
	var settings Settings
	if err := cleanenv.ReadEnv(&settings); err != nil {
		slog.Error("Failed to read settings", "err", err)
		os.Exit(1)
	}
	logger, err := newLogger(settings)
	if err != nil {
		slog.Error("Failed to create logger", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	serverConfig, err := config.Load(config.WithEnv(settings.EnvPrefix))
	if err != nil {
		logger.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := serverConfig.BuildSnapshotStore(ctx)
	if err != nil {
		logger.Error("Failed to build snapshot store", "err", err)
		os.Exit(1)
	}
	content, err := serverConfig.BuildContent(ctx, store, logger)
	if err != nil {
		logger.Error("Failed to build content tree", "err", err)
		os.Exit(1)
	}
	defer content.Close()

	recorder := serverConfig.BuildMetrics()
	svc, err := serverConfig.BuildService(logger, recorder,
		contentmodel.WithPlaceholderResolver(contentmodel.PlaceholderResolverFunc(demoPlaceholders)))
	if err != nil {
		logger.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	go svc.ChangeListener().Run(ctx)
	content.Watch(ctx, svc.ChangeListener())

	if settings.Demo {
		if err := registerDemoModels(svc); err != nil {
			logger.Error("Failed to register demo models", "err", err)
			os.Exit(1)
		}
		if content.Memory != nil {
			if err := seedDemoContent(ctx, content.Memory); err != nil {
				logger.Error("Failed to seed demo content", "err", err)
				os.Exit(1)
			}
		}
	}

	handler, err := newRouter(serverDeps{
		config:       serverConfig,
		service:      svc,
		content:      content,
		snapshots:    store,
		recorder:     recorder,
		apiKeySHA256: settings.ApiKeySHA256,
		logger:       logger,
	})
	if err != nil {
		logger.Error("Failed to set up routes", "err", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: handler,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Content model server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"tree", serverConfig.TreeType,
			"snapshots", serverConfig.Snapshot.Type,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "err", err)
	}
	cancel()

	logger.Info("Server exiting")
}
