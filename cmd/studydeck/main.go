package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/conorfennell/studydeck/internal/config"
	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/library"
	"github.com/conorfennell/studydeck/internal/storage"
	deckSync "github.com/conorfennell/studydeck/internal/sync"
	"github.com/conorfennell/studydeck/internal/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		logger.Error("Failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("Database opened", "path", cfg.DBPath)

	sets, err := db.LoadSets()
	if err != nil {
		logger.Error("Failed to load card sets", "error", err)
		os.Exit(1)
	}
	lib := library.New(sets)
	logger.Info("Library loaded", "sets", len(sets))

	if cfg.AddSource != "" {
		if err := addNewSource(db, cfg.AddSource); err != nil {
			logger.Error("Failed to add source", "path", cfg.AddSource, "error", err)
			os.Exit(1)
		}
	}
	if cfg.AddSource != "" || cfg.SyncOnStart {
		deckSync.RunSync(db, lib, cfg.ReposDir)
	}

	writer := storage.NewWriter(db, logger)
	defer writer.Close()

	defaults := domain.Settings{
		StrictSpelling:  cfg.StrictSpelling,
		RetypeOnMistake: cfg.RetypeOnMistake,
		Mode:            domain.ModeStandard,
	}
	server := web.NewServer(lib, db, writer, logger, defaults, cfg.ReposDir)

	httpServer := &http.Server{Addr: cfg.Listen, Handler: server}
	go func() {
		logger.Info("Listening", "addr", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	httpServer.Close()
}

// addNewSource registers a source, inferring its type from the path.
func addNewSource(db *storage.DB, path string) error {
	existing, err := db.FindSourceByPath(path)
	if err != nil {
		return err
	}
	if existing != nil {
		slog.Info("Source already registered", "path", path)
		return nil
	}

	sourceType := "local"
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") || strings.HasPrefix(path, "https://") {
		sourceType = "git"
	}
	id, err := db.InsertSource(path, sourceType)
	if err != nil {
		return err
	}
	slog.Info("Source added", "id", id, "type", sourceType, "path", path)
	return nil
}

// newLogger builds the process logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
