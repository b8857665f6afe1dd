// agendawatch ingests municipal meeting agendas, summarizes them through
// an LLM pipeline, and serves health and stats over HTTP.
//
// Verbs:
//
//	serve        run the full service (default)
//	poll-once    poll every active city once, or one city by banana
//	queue-stats  print per-status queue counts
//	queue-reset  move entries in a status back to pending
//	health       print store health stats
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agendawatch/agendawatch/pkg/api"
	"github.com/agendawatch/agendawatch/pkg/cleanup"
	"github.com/agendawatch/agendawatch/pkg/conductor"
	"github.com/agendawatch/agendawatch/pkg/config"
	"github.com/agendawatch/agendawatch/pkg/database"
	"github.com/agendawatch/agendawatch/pkg/extract"
	"github.com/agendawatch/agendawatch/pkg/fetch"
	"github.com/agendawatch/agendawatch/pkg/llm"
	"github.com/agendawatch/agendawatch/pkg/models"
	"github.com/agendawatch/agendawatch/pkg/pdfchunk"
	"github.com/agendawatch/agendawatch/pkg/processor"
	"github.com/agendawatch/agendawatch/pkg/queue"
	"github.com/agendawatch/agendawatch/pkg/ratelimit"
	"github.com/agendawatch/agendawatch/pkg/store"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Debug("No .env file loaded, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	verb := flag.Arg(0)
	if verb == "" {
		verb = "serve"
	}

	ctx := context.Background()

	dbClient, err := database.NewClient(ctx, cfg.Database.Path)
	if err != nil {
		slog.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database", "error", err)
		}
	}()

	st := store.New(dbClient)
	q := queue.New(dbClient, cfg.Queue)

	switch verb {
	case "serve":
		err = serve(ctx, cfg, dbClient, st, q)
	case "poll-once":
		err = pollOnce(ctx, cfg, st, q, flag.Arg(1))
	case "queue-stats":
		err = printJSON(func() (any, error) { return q.Stats(ctx) })
	case "queue-reset":
		err = queueReset(ctx, q, flag.Arg(1))
	case "health":
		err = printJSON(func() (any, error) { return st.HealthStats(ctx) })
	default:
		err = fmt.Errorf("unknown verb %q", verb)
	}
	if err != nil {
		slog.Error("Command failed", "verb", verb, "error", err)
		os.Exit(1)
	}
}

// buildConductor wires the adapter-facing half of the pipeline.
func buildConductor(cfg *config.Config, st *store.Store, q *queue.Queue) (*conductor.Conductor, *fetch.Fetcher) {
	vendorLimiter := ratelimit.NewVendorLimiter(cfg.Vendors)
	fetcher := fetch.New(cfg.Fetcher, vendorLimiter)
	return conductor.New(cfg.Conductor, st, q, fetcher, slog.Default()), fetcher
}

func serve(ctx context.Context, cfg *config.Config, dbClient *database.Client, st *store.Store, q *queue.Queue) error {
	if cfg.LLM.APIKey == "" {
		return errors.New("ANTHROPIC_API_KEY is required for serve mode")
	}

	if err := seedCities(ctx, cfg, st); err != nil {
		return err
	}

	cond, fetcher := buildConductor(cfg, st, q)

	providerLimiter := ratelimit.NewProviderLimiter(cfg.Provider)
	llmClient := llm.New(&cfg.LLM, providerLimiter, slog.Default())
	chunker := pdfchunk.New(cfg.Chunker, pdfchunk.NewEngine())
	extractor := extract.FromConfig(&cfg.Extractor)

	proc := processor.New(cfg, st, q, fetcher, fetcher, chunker, extractor, llmClient, slog.Default())
	pool := queue.NewWorkerPool(q, cfg.Queue, proc)
	pool.Start(ctx)
	defer pool.Stop()

	if err := cond.Start(ctx); err != nil {
		return err
	}
	defer cond.Stop()

	gc := cleanup.NewService(cfg.Retention, q)
	gc.Start(ctx)
	defer gc.Stop()

	server := api.NewServer(&cfg.HTTP, dbClient, st, q, pool)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()
	slog.Info("agendawatch serving", "port", cfg.HTTP.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case s := <-sig:
		slog.Info("Shutting down", "signal", s.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedCities loads the YAML roster into the store. A missing file is not
// fatal; cities may have been seeded on a previous run.
func seedCities(ctx context.Context, cfg *config.Config, st *store.Store) error {
	cities, err := config.LoadCities(cfg.HTTP.CitiesFile)
	if err != nil {
		if errors.Is(err, config.ErrCitiesFileNotFound) {
			slog.Warn("No cities file found, keeping existing roster", "path", cfg.HTTP.CitiesFile)
			return nil
		}
		return err
	}
	for _, city := range cities {
		if err := st.UpsertCity(ctx, city); err != nil {
			return err
		}
	}
	slog.Info("Seeded city roster", "count", len(cities), "path", cfg.HTTP.CitiesFile)
	return nil
}

func pollOnce(ctx context.Context, cfg *config.Config, st *store.Store, q *queue.Queue, banana string) error {
	if banana != "" {
		if err := models.ValidateBanana(banana); err != nil {
			return err
		}
	}
	if err := seedCities(ctx, cfg, st); err != nil {
		return err
	}
	cond, _ := buildConductor(cfg, st, q)
	n, err := cond.PollOnce(ctx, banana)
	if err != nil {
		return err
	}
	fmt.Printf("enqueued %d job(s)\n", n)
	return nil
}

func queueReset(ctx context.Context, q *queue.Queue, status string) error {
	if status == "" {
		status = string(queue.StatusFailed)
	}
	n, err := q.Reset(ctx, queue.Status(status))
	if err != nil {
		return err
	}
	fmt.Printf("reset %d entr(ies) from %s to pending\n", n, status)
	return nil
}

func printJSON(get func() (any, error)) error {
	out, err := get()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
