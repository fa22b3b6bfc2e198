package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kereru-dev/markovgen/pkg/store"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Server wires the persistence store and the API handlers onto a mux.
type Server struct {
	config   *Config
	db       *sql.DB
	logger   *slog.Logger
	store    *store.Store
	modelAPI *ModelAPI
	apiMux   *http.ServeMux
}

// NewServer builds the application object and registers all routes.
func NewServer(config *Config, logger *slog.Logger, db *sql.DB) (*Server, error) {
	st, err := store.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("error creating model store: %w", err)
	}
	st.SetLogger(logger)

	modelAPI := NewModelAPI(st, logger)

	server := &Server{
		config:   config,
		db:       db,
		logger:   logger,
		store:    st,
		modelAPI: modelAPI,
		apiMux:   http.NewServeMux(),
	}

	server.modelAPI.RegisterRoutes(server.apiMux)
	server.apiMux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_date": BuildDate,
		})
	})

	return server, nil
}

func main() {
	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := run(baseLogger); err != nil {
		baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
		os.Exit(1)
	}

	baseLogger.Info("markovgen has shut down.")
}

// run hosts the API server and returns once a shutdown signal is received.
func run(baseLogger *slog.Logger) error {
	config, err := LoadConfig("./config.json")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var logLevel slog.Level
	switch strings.ToLower(config.Server.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	logger.Info("Starting markovgen", "version", Version)

	if err = os.MkdirAll(config.Server.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := initDB(config.Server.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		logger.Info("Closing database connection.")
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	if err = store.SetupSchema(db); err != nil {
		return fmt.Errorf("failed to setup store schema: %w", err)
	}

	server, err := NewServer(config, logger, db)
	if err != nil {
		return fmt.Errorf("failed to create server object: %w", err)
	}
	defer server.store.Close()

	apiHttpServer := &http.Server{
		Addr:    config.Server.ApiAddr,
		Handler: server.apiMux,
	}

	go func() {
		logger.Info("Starting api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Api server failed", "error", err)
		}
	}()

	osSignalChan := make(chan os.Signal, 1)
	signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
	<-osSignalChan
	logger.Info("OS signal received, initiating shutdown.")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = apiHttpServer.Shutdown(ctx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped.")

	return nil
}
