// Command lightshow-builtin serves one of the stock animations over the
// plugin protocol on stdin and stdout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lightshow/lightshow/internal/animation/builtin"
	"github.com/lightshow/lightshow/internal/config"
	"github.com/lightshow/lightshow/internal/runtime"
)

func main() {
	var (
		name     string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "lightshow-builtin",
		Short:         "Serve a builtin animation to a lightshow host",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol, logs go to stderr
			logger := config.InitLogger(config.LoggingConfig{Level: logLevel, Format: "text"}, os.Stderr).
				With("animation", name)

			lights, err := config.LightsFromEnv()
			if err != nil {
				return err
			}
			base, err := builtin.New(name, lights.Points)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Debug("Serving animation", "lights", lights.Name, "points", lights.Points)
			return runtime.NewServer(builtin.Compose(base), logger).Serve(ctx, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&name, "animation", "diagnostic", fmt.Sprintf("animation to serve %v", builtin.Names()))
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := cmd.Execute(); err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("Plugin failed", "error", err)
		os.Exit(1)
	}
}
