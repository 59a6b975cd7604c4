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
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orrn/printdispatch/internal/api"
	"github.com/orrn/printdispatch/internal/api/middleware"
	"github.com/orrn/printdispatch/internal/config"
	"github.com/orrn/printdispatch/internal/core"
	"github.com/orrn/printdispatch/internal/db"
	"github.com/orrn/printdispatch/internal/events"
	"github.com/orrn/printdispatch/internal/logger"
	"github.com/orrn/printdispatch/internal/printer"
	"github.com/orrn/printdispatch/internal/ticket"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the stale job sweeper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	database, err := db.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close()

	applied, err := database.Migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		log.Info("applied migrations", zap.Strings("versions", applied))
	}

	pub, closePub, err := events.New(ctx, cfg.Events, log)
	if err != nil {
		return err
	}
	defer func() { _ = closePub() }()

	auth, err := middleware.NewAuthMiddleware(ctx, database.Settings(), cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialise auth: %w", err)
	}
	if cfg.Auth.AdminKeyHash == "" {
		log.Warn("auth.admin_key_hash is empty, dispatch and admin endpoints will refuse every request")
	}

	caps := printer.DetectCapabilities()
	spooler := printer.NewSpooler(caps, cfg.Printers)
	defer spooler.Close()
	directory := printer.NewDirectory(spooler, printer.Options{
		ThermalKeywords: cfg.Printers.ThermalKeywords,
		FatalStatuses:   cfg.Printers.FatalStatuses,
	})

	queue := core.NewQueue(database.Jobs(), pub, log)

	var direct core.Printer
	if cfg.Dispatch.Mode == config.ModeDirect {
		direct = core.NewDirectPrinter(directory)
	}
	dispatcher := core.NewDispatcher(
		cfg.Dispatch.Mode,
		ticket.NewFormatter(cfg.Dispatch.PageWidth, cfg.Dispatch.Currency),
		core.NewProfileResolver(database.Profiles()),
		queue,
		direct,
		log,
	)

	sweeper := core.NewSweeper(database.Jobs(), pub, log, cfg.Staleness.Interval, cfg.Staleness.Threshold)
	go sweeper.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Deps{
		Auth:       auth,
		Queue:      queue,
		Dispatcher: dispatcher,
		Directory:  directory,
		PageWidth:  cfg.Dispatch.PageWidth,
		Log:        log,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("mode", cfg.Dispatch.Mode),
			zap.String("database", cfg.Database.Driver),
			zap.Bool("native_spooler", caps.NativeSpooler))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
