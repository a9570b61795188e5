package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtrap1101/TRENDS-SHEET/app/api"
	"github.com/xtrap1101/TRENDS-SHEET/app/cfg"
	"github.com/xtrap1101/TRENDS-SHEET/app/database"
	"github.com/xtrap1101/TRENDS-SHEET/app/jobs"
	"github.com/xtrap1101/TRENDS-SHEET/app/metrics"
	"github.com/xtrap1101/TRENDS-SHEET/app/sheets"
	"github.com/xtrap1101/TRENDS-SHEET/app/tasks"
	"github.com/xtrap1101/TRENDS-SHEET/app/trends"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	setupLogger(appCfg.Debug)

	slog.Info("Starting Trends Sheet server", "version", appCfg.Version)

	if missing := appCfg.MissingKeys(); len(missing) > 0 {
		slog.Warn("Required configuration missing, runs will fail until it is set", "missing", missing)
	}

	db, err := database.Open(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	configCache := jobs.NewConfigCache(appCfg.JobsDir, appCfg)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load job configurations", "error", err)
		os.Exit(1)
	}
	slog.Info("Job configurations loaded", "count", configCache.GetJobCount(), "dir", appCfg.JobsDir)

	metrics.Init()

	httpClient := &http.Client{}
	trendsClient := trends.NewClient(httpClient, trends.ClientConfig{
		BaseURL:   trends.DefaultBaseURL,
		Language:  appCfg.Language,
		TZOffset:  appCfg.TZOffset,
		NIDCookie: appCfg.NIDCookie,
		UserAgent: appCfg.UserAgent,
	})

	runRepo := database.NewRepository(db)
	runner := tasks.NewRunner(runRepo, trendsClient, openSpreadsheet, appCfg.CredentialsJSON, httpClient, appCfg.UserAgent)

	scheduler := tasks.NewScheduler(configCache, runner, runRepo,
		time.Duration(appCfg.SchedulerInterval)*time.Second, appCfg.RunTimeout)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(configCache, runRepo, scheduler)
	router := api.NewServer(handler, appCfg.APIAccessKey)

	// Synchronous runs hold the response open for the whole run.
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: appCfg.RunTimeout + time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Trends Sheet server shutdown complete")
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func openSpreadsheet(ctx context.Context, credentialsJSON []byte, spreadsheetID string) (tasks.Spreadsheet, error) {
	client, err := sheets.Open(ctx, credentialsJSON, spreadsheetID)
	if err != nil {
		return nil, err
	}
	return client, nil
}
