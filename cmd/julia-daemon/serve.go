package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jdaemon/internal/conductor"
	"jdaemon/internal/core"
)

func newServeCommand() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conductor in the foreground",
		Long:  "Run the conductor in the foreground, accepting client connections until SIGTERM/SIGINT.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	return serveCmd
}

func runServe() error {
	cfg, err := core.LoadWorkerDefaults(core.ConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	d, err := conductor.New(cfg)
	if err != nil {
		return fmt.Errorf("create conductor: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig.String())
		d.Shutdown()
		cancel()
	}()

	d.WatchConfig(core.ConfigPath())
	d.StartReaper(30 * time.Second)

	return d.Run(ctx)
}
