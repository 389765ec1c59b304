package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/app"
	"github.com/Ramsey-B/fern/internal/seed"
)

type ServeOptions struct {
	*RootOptions
	SeedDemo bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the invoice consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.SeedDemo, "seed-demo", false, "load the built-in demo graph after startup")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.New(opts.cfg, opts.logger)
	if err := a.Start(ctx, app.Options{Consume: true}); err != nil {
		return err
	}

	if opts.SeedDemo {
		demo, err := seed.Demo()
		if err != nil {
			return err
		}
		if _, err := a.Seeder.Apply(ctx, demo, "seed"); err != nil {
			return err
		}
	}

	server := a.Server()
	serveErr := make(chan error, 1)
	go func() {
		opts.logger.Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		opts.logger.Info("Shutting down")
	case runErr = <-serveErr:
		opts.logger.WithError(runErr).Error("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		opts.logger.WithError(err).Error("Failed to shut down HTTP server")
	}
	if err := a.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
