package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/Setlist/internal/adapters/http"
	"github.com/dkeye/Setlist/internal/adapters/auth"
	"github.com/dkeye/Setlist/internal/adapters/storage"
	"github.com/dkeye/Setlist/internal/app"
	"github.com/dkeye/Setlist/internal/app/gateway"
	"github.com/dkeye/Setlist/internal/app/perform"
	"github.com/dkeye/Setlist/internal/config"
	"github.com/dkeye/Setlist/internal/metrics"
)

const devSecret = "setlist-dev-secret"

func serveCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

// secretFor refuses to run a release build without a signing secret.
func secretFor(cfg *config.Config) (string, error) {
	if cfg.Secret != "" {
		return cfg.Secret, nil
	}
	if cfg.Mode == "debug" {
		log.Warn().Msg("no secret configured, using the insecure development secret")
		return devSecret, nil
	}
	return "", errors.New("secret must be set outside debug mode (SETLIST_SECRET)")
}

func serve(ctx context.Context, cfg *config.Config) error {
	secret, err := secretFor(cfg)
	if err != nil {
		return err
	}
	cfg.Secret = secret

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	verifier, err := auth.NewJWTVerifier(cfg.Secret)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	sessions := perform.NewStore(perform.Config{
		LivenessTimeout: cfg.LivenessTimeout,
		DrainGrace:      cfg.DrainGrace,
		MailboxSize:     cfg.MailboxSize,
	}, app.SimplePolicy{}, m)
	gw := gateway.New(app.NewRegistry(), sessions, db, verifier)

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Gateway:  gw,
		Sessions: sessions,
		Setlists: db,
		Verifier: verifier,
		Metrics:  m,
		Gatherer: reg,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("version", version).Msg("Setlist server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
		return err
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := sessions.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("sessions did not stop in time")
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
