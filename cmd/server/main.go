package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/radar-monitor/internal/config"
	"github.com/afroash/radar-monitor/internal/ingest"
	"github.com/afroash/radar-monitor/internal/server"
	"github.com/afroash/radar-monitor/internal/storage"
)

const version = "v0.1.0"

func main() {
	configPath := flag.String("config", "configs/server.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Logging)

	logger.Info().
		Str("version", version).
		Str("broker", cfg.Broker.URL()).
		Str("topic", cfg.Broker.Topic).
		Int("port", cfg.Server.Port).
		Msg("Starting Radar Monitor")

	// Ensure data directory exists
	dataDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	store, err := storage.NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		log.Fatalf("Failed to create SQLite store: %v", err)
	}

	// Start the MQTT subscription in the background. It reconnects on its
	// own; the only way it stops is cancellation of this context.
	subscriber := ingest.NewSubscriber(ingest.SubscriberConfig{
		BrokerURL:            cfg.Broker.URL(),
		ClientID:             cfg.Broker.ClientID,
		Topic:                cfg.Broker.Topic,
		KeepAlive:            cfg.Broker.KeepAlive,
		ConnectTimeout:       cfg.Broker.ConnectTimeout,
		ReconnectInterval:    cfg.Broker.ReconnectInterval,
		MaxReconnectInterval: cfg.Broker.MaxReconnectInterval,
	}, store, logger)

	ingestCtx, cancelIngest := context.WithCancel(context.Background())
	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		if err := subscriber.Run(ingestCtx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("Subscriber stopped unexpectedly")
		}
	}()

	apiHandler := server.NewAPIHandler(store, logger)

	mux := http.NewServeMux()

	// Serve the radar view
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" && r.URL.Path != "/index.html" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, "web/templates/radar.html")
	})

	// API endpoints
	mux.HandleFunc("/api/sensor/latest", apiHandler.HandleLatest)
	mux.HandleFunc("/api/sensor/stats", apiHandler.HandleStats)
	mux.HandleFunc("/api/sensor/clear", apiHandler.HandleClear)

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","version":"%s"}`, version)
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}

	// Stop ingesting before closing the store so no in-flight insert loses
	// its connection.
	cancelIngest()
	select {
	case <-ingestDone:
	case <-ctx.Done():
		logger.Warn().Msg("Timed out waiting for subscriber to stop")
	}
	logger.Info().Msg("Subscriber stopped")

	if err := store.Close(); err != nil {
		logger.Error().Err(err).Msg("Store close error")
	}

	logger.Info().Msg("Server stopped")
}

// newLogger builds the process logger from the logging config
func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.With().Timestamp().Logger().Level(level)
}
