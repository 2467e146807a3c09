package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/felo/msg-viewer/internal/config"
	"github.com/felo/msg-viewer/internal/db"
	"github.com/felo/msg-viewer/internal/export"
	"github.com/felo/msg-viewer/internal/handlers"
	"github.com/felo/msg-viewer/internal/indexer"
	"github.com/felo/msg-viewer/internal/parser"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "msg-viewer",
		Short: "Index, search and serve a folder of Outlook .msg files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, runServe)
		},
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Index the emails folder and serve the JSON API (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withConfig(cmd, runServe)
			},
		},
		&cobra.Command{
			Use:   "index",
			Short: "Index new .msg files into the database and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withConfig(cmd, runIndex)
			},
		},
		dumpCommand(),
		exportCommand(),
	)

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// withConfig loads the configuration and logger shared by every subcommand
func withConfig(cmd *cobra.Command, run func(config.Config, *slog.Logger) error) error {
	cfg, err := config.LoadConfig(cmd)
	if err != nil {
		return err
	}

	logger, cleanup, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = cleanup()
	}()

	slog.SetDefault(logger)
	return run(cfg, logger)
}

func dumpCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "dump <file.msg>",
		Short: "Decode one .msg file and print it as JSON or as an .eml message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, func(cfg config.Config, logger *slog.Logger) error {
				opts := append([]parser.Option{parser.WithLogger(logger)}, cfg.ParserOptions()...)
				email, err := parser.ParseMSGFile(args[0], opts...)
				if err != nil {
					return err
				}
				for _, is := range email.Issues {
					logger.Warn("dropped while decoding", "file", args[0], "issue", is.Error())
				}
				return dump(cmd.OutOrStdout(), email, format)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or eml")
	return cmd
}

func dump(w io.Writer, email *parser.Email, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(email)
	case "eml":
		return export.WriteEML(w, email)
	}
	return fmt.Errorf("invalid --format: %s", format)
}

func exportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export <out.mbox>",
		Short: "Write every indexed email to an mbox archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, func(cfg config.Config, logger *slog.Logger) error {
				return runExport(cfg, logger, args[0])
			})
		},
	}
}

func openDatabase(cfg config.Config, logger *slog.Logger) (*db.DB, error) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	// Relative .msg paths in the index are resolved against the emails folder
	database.SetEmailsPath(cfg.EmailsPath)
	logger.Info("database opened", "path", cfg.DBPath, "emails", cfg.EmailsPath)
	return database, nil
}

func newIndexer(database *db.DB, cfg config.Config, logger *slog.Logger) *indexer.Indexer {
	return indexer.NewIndexer(database, cfg.EmailsPath, logger).
		WithConcurrency(cfg.Workers).
		WithParserOptions(cfg.ParserOptions()...)
}

func runIndex(cfg config.Config, logger *slog.Logger) error {
	database, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	result, err := newIndexer(database, cfg, logger).IndexAll()
	if err != nil {
		return err
	}
	for _, file := range result.FailedFiles {
		logger.Warn("failed to index", "file", file)
	}
	return nil
}

func runExport(cfg config.Config, logger *slog.Logger, outPath string) error {
	database, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outPath, err)
	}
	defer out.Close()

	mw := export.NewMboxWriter(out)
	opts := append([]parser.Option{parser.WithLogger(logger)}, cfg.ParserOptions()...)

	const pageSize = 500
	for offset := 0; ; offset += pageSize {
		emails, err := database.ListEmails(pageSize, offset)
		if err != nil {
			return err
		}
		for _, e := range emails {
			path, err := database.ResolveEmailPath(e.FilePath)
			if err != nil {
				logger.Warn("skipping email", "id", e.ID, "error", err)
				continue
			}
			parsed, err := parser.ParseMSGFile(path, opts...)
			if err != nil {
				logger.Warn("skipping email", "file", e.FilePath, "error", err)
				continue
			}
			if err := mw.Add(parsed); err != nil {
				return err
			}
		}
		if len(emails) < pageSize {
			break
		}
	}

	if err := mw.Close(); err != nil {
		return err
	}
	logger.Info("export complete", "file", outPath, "messages", mw.Count())
	return out.Close()
}

func runServe(cfg config.Config, logger *slog.Logger) error {
	database, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	// Check if emails directory exists
	if _, err := os.Stat(cfg.EmailsPath); errors.Is(err, os.ErrNotExist) {
		logger.Info("creating emails directory", "path", cfg.EmailsPath)
		if err := os.MkdirAll(cfg.EmailsPath, 0o755); err != nil {
			return fmt.Errorf("failed to create emails directory: %w", err)
		}
		logger.Info("place your .msg files in the emails directory and POST /api/scan", "path", cfg.EmailsPath)
	} else {
		// Index emails on startup
		if _, err := newIndexer(database, cfg, logger).IndexAll(); err != nil {
			logger.Warn("indexing failed", "error", err)
		}
	}

	// Create shutdown signal channel
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	h := handlers.New(database, &cfg, logger)
	h.SetShutdownChannel(sigChan)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		}).Handler)
	}
	r.Mount("/api", h.Routes())

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long enough for SSE connections
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "url", cfg.URL()+"/api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-sigChan:
		logger.Info("shutting down gracefully")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

// setupLogger writes text logs to stderr, plus a timestamped file when LogDir is set.
// Stdout stays free for dump output.
func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("msg-viewer-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stderr, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	return slog.New(handler), cleanup, nil
}
