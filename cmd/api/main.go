package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"loom/internal/bootstrap"
	"loom/internal/http/handlers"
	httpapi "loom/internal/http/httpapi"
	"loom/internal/infra"
	"loom/internal/persist"
	"loom/internal/prompt"
	"loom/internal/studio"
)

func main() {
	// Optional .env
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	store, err := bootstrap.OpenStorage(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	creds := bootstrap.Credentials(cfg, store.Blobs)
	provider, err := bootstrap.Provider(cfg, creds, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure image provider")
	}
	catalog, err := bootstrap.Catalog(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load pose catalog")
	}

	snapshots := persist.NewSnapshotter(store.Blobs, cfg.PersistWindows, &logger)
	initial := snapshots.Load(ctx)
	logger.Info().
		Int("tasks", len(initial.Tasks)).
		Str("brand", initial.Brand.DisplayName()).
		Ints("persist_windows", snapshots.Windows()).
		Msg("restored studio state")

	st, err := studio.New(studio.Options{
		Generator:   provider,
		Expander:    prompt.NewExpander(catalog),
		Gate:        creds,
		Persister:   snapshots,
		Initial:     initial,
		Concurrency: cfg.BatchConcurrency,
		Logger:      &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build studio")
	}

	app := handlers.NewApp(st, provider, creds, &logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMin:    cfg.RateLimitPerMin,
		Logger:             &logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("provider", cfg.ImageProvider).Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	// Cancels in-flight generations; their tasks are recorded as failed.
	st.Close()
	logger.Info().Msg("server stopped")
}
