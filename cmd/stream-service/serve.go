package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-live/internal/handler"
	"github.com/weiawesome/wes-io-live/internal/hub"
	"github.com/weiawesome/wes-io-live/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP + WebSocket API with the sweeper and transcript archiver",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	verifier, err := jwt.NewVerifierFromFile(cfg.JWT.PublicKeyPath, cfg.JWT.Issuer)
	if err != nil {
		return fmt.Errorf("load jwt public key: %w", err)
	}

	feed := hub.NewHub()
	var transcripts handler.TranscriptLocator
	if a.archiver != nil {
		transcripts = a.archiver
	}
	h := handler.NewHandler(a.services, transcripts, feed, cfg.WebSocket, middleware.NewAuthMiddleware(verifier))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger, "/health", cfg.Metrics.Path))
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}
	h.RegisterRoutes(r)
	if a.archiver != nil && (cfg.Storage.Driver == "" || cfg.Storage.Driver == "local") && cfg.Storage.Local.URLBase != "" {
		r.Static(cfg.Storage.Local.URLBase, cfg.Storage.Local.BasePath)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		feed.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return feed.Relay(gctx, a.bus)
	})
	if a.archiver != nil {
		g.Go(func() error {
			return a.archiver.Run(gctx)
		})
	}
	if cfg.Presence.SweepEnabled {
		a.sweeper.Start(gctx)
		logger.Info().Dur("interval", cfg.Presence.SweepInterval).Msg("presence sweeper started")
	}

	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("stream-service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received")

		if cfg.Presence.SweepEnabled {
			a.sweeper.Stop()
			<-a.sweeper.Done()
		}

		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("HTTP server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("stream-service stopped")
	return nil
}
