package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orrn/printdispatch/internal/config"
	"github.com/orrn/printdispatch/internal/logger"
	"github.com/orrn/printdispatch/internal/printer"
	"github.com/orrn/printdispatch/internal/workerclient"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "printworker",
		Short:        "Restaurant-local print worker",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "printworker.json", "path to the worker JSON config")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Poll the print server and print claimed jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWorker(configPath)
			if errors.Is(err, config.ErrWorkerConfigCreated) {
				fmt.Fprintf(cmd.ErrOrStderr(), "created %s; set server_url, api_token and restaurant_id, then start the worker again\n", configPath)
				return err
			}
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.ClientID == "" {
				cfg.ClientID = defaultClientID()
			}

			log, err := logger.New(config.LoggingConfig{Level: cfg.LogLevel, Format: "text"})
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			client, err := workerclient.NewAPIClient(cfg.ServerURL, cfg.APIToken)
			if err != nil {
				return err
			}

			caps := printer.DetectCapabilities()
			if !caps.NativeSpooler && len(cfg.Printers.Network) == 0 {
				log.Warn("no system print spooler or network printers found, jobs will fail until one is configured")
			}
			spooler := printer.NewSpooler(caps, cfg.Printers)
			defer spooler.Close()
			directory := printer.NewDirectory(spooler, printer.Options{
				ThermalKeywords: cfg.Printers.ThermalKeywords,
				FatalStatuses:   cfg.Printers.FatalStatuses,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info("print worker starting",
				zap.String("server_url", cfg.ServerURL),
				zap.Int64("restaurant_id", cfg.RestaurantID),
				zap.String("client_id", cfg.ClientID))

			runner := workerclient.NewRunner(client, directory, *cfg, log)
			return workerclient.NewSupervisor(log, runner).Run(ctx)
		},
	})
	return root
}

func defaultClientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}
