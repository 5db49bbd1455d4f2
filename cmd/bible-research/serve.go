package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrwolf/bible-research/internal/api"
	"github.com/mrwolf/bible-research/internal/archive"
	"github.com/mrwolf/bible-research/internal/config"
	"github.com/mrwolf/bible-research/internal/db"
	"github.com/mrwolf/bible-research/internal/llm"
	"github.com/mrwolf/bible-research/internal/research"
	"github.com/mrwolf/bible-research/internal/scheduler"
	"github.com/mrwolf/bible-research/internal/wordstudy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the bible-research HTTP API server.

Configuration comes from the config file, BIBLE_* environment variables
and defaults. Changes to the config file reload the word data, the model
client, api_token, rate_limit and top_books without a restart. port,
db_path, timezone and history_retention_days need a restart.

Examples:
  bible-research serve
  bible-research serve --config /etc/bible-research.yaml
  BIBLE_PORT=3000 bible-research serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	log.Printf("Starting bible-research %s...", api.Version)

	manager, err := config.NewManager(cfgFile)
	if err != nil {
		return err
	}
	cfg := manager.Get()
	if f := manager.ConfigFile(); f != "" {
		log.Printf("Using config file %s", f)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		log.Println("Closing database...")
		if err := database.Close(); err != nil {
			log.Printf("Database close error: %v", err)
		}
	}()

	library, err := wordstudy.NewLibrary(cfg.DataDir)
	if err != nil {
		log.Printf("WARNING: %v", err)
		log.Println("Server will start but word studies will report no data")
	}

	gen := newGenerator(cfg)
	checkGenerator(ctx, gen)

	var arch research.Archive
	if cfg.ArchivePath != "" {
		arch = archive.New(cfg.ArchivePath)
		log.Printf("Archiving research to %s", cfg.ArchivePath)
	}

	svc := research.NewService(gen, database, arch, nil)

	sched, err := scheduler.New(database, svc.Generator, scheduler.Config{
		Timezone:      cfg.Timezone,
		RetentionDays: cfg.HistoryRetentionDays,
	})
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}

	manager.OnChange(func(next *config.Config) {
		if next.DataDir != library.Dir() || !library.Dataset().Available() {
			if err := library.Reload(next.DataDir); err != nil {
				log.Printf("Keeping previous word data: %v", err)
			}
		}
		svc.SetGenerator(newGenerator(next))
		if next.Port != cfg.Port || next.DBPath != cfg.DBPath || next.Timezone != cfg.Timezone ||
			next.HistoryRetentionDays != cfg.HistoryRetentionDays {
			log.Println("Port, db_path, timezone and history_retention_days changes take effect after a restart")
		}
	})
	manager.Watch()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(manager.Get, database, library, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}
	log.Println("Shutting down gracefully...")

	// Give ongoing requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Stopping scheduler...")
	if err := sched.Stop(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}

// newGenerator returns the hosted model client, or the mock when no API key is set.
func newGenerator(cfg *config.Config) llm.Generator {
	if cfg.UseMockLLM() {
		log.Println("No llm_api_key configured, using the mock generator")
		return llm.NewMockGenerator()
	}
	return llm.NewClient(llm.Config{
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     cfg.LLMTimeout,
		MaxAttempts: cfg.LLMMaxAttempts,
	})
}

func checkGenerator(ctx context.Context, gen llm.Generator) {
	log.Println("Validating model connection...")
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := gen.HealthCheck(ctx); err != nil {
		log.Printf("WARNING: model health check failed: %v", err)
		log.Println("Server will start but research requests may fail")
		return
	}
	log.Printf("Model connected: %s", gen.Model())
}
