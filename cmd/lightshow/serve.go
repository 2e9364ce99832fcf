package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lightshow/lightshow/internal/api"
	"github.com/lightshow/lightshow/internal/api/common"
	"github.com/lightshow/lightshow/internal/audio"
	"github.com/lightshow/lightshow/internal/auth"
	"github.com/lightshow/lightshow/internal/config"
	"github.com/lightshow/lightshow/internal/eventbus"
	"github.com/lightshow/lightshow/internal/generators"
	"github.com/lightshow/lightshow/internal/host"
	"github.com/lightshow/lightshow/internal/light"
	"github.com/lightshow/lightshow/internal/plugins"
	"github.com/lightshow/lightshow/internal/scheduler"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the light controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	// stdout is left to the terminal light client
	logger := config.InitLogger(cfg.Logging, os.Stderr)
	logger.Info("Starting Lightshow",
		"version", version,
		"lights", cfg.Lights.Name,
		"points", cfg.Lights.Points,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := plugins.NewRegistry(cfg.Controller.PluginDir, logger)
	if err := registry.Scan(); err != nil {
		return fmt.Errorf("failed to scan plugins: %w", err)
	}
	for _, p := range registry.List() {
		logger.Info("  Plugin registered",
			"id", p.ID(),
			"name", p.Manifest.Name,
			"version", p.Manifest.Version,
		)
	}
	if cfg.Controller.WatchPlugins {
		go func() {
			err := registry.Watch(ctx, 250*time.Millisecond, func() {
				logger.Info("Plugin directory rescanned", "count", len(registry.List()))
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Plugin watcher stopped", "error", err)
			}
		}()
	}

	bus := eventbus.New(cfg.EventBus.QueueCapacity, logger)
	defer bus.Close()

	gens, err := buildGenerators(ctx, cfg, bus, logger)
	if err != nil {
		return err
	}
	gensDone := make(chan struct{})
	go func() {
		gens.Run(ctx)
		close(gensDone)
	}()

	var hub *light.Hub
	if cfg.Server.Enabled && cfg.LightClient.Preview {
		hub = light.NewHub(logger)
	}
	client, err := buildClient(cfg.LightClient, hub)
	if err != nil {
		return err
	}
	defer client.Close()

	launcher := scheduler.HostLauncher{
		Registry: registry,
		Options: host.Options{
			Lights:       cfg.Lights,
			CallTimeout:  cfg.Controller.CallTimeout(),
			SpawnTimeout: cfg.Controller.SpawnTimeout(),
			EventQueue:   cfg.EventBus.QueueCapacity,
			Logger:       logger,
		},
	}
	sched := scheduler.New(launcher, bus, client, scheduler.Options{
		TickInterval: cfg.Controller.TickInterval(),
		Points:       cfg.Lights.Points,
		StaleFrame:   cfg.Controller.StaleFrame,
		Logger:       logger,
	})
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Run(ctx, cfg.Controller.DefaultAnimation); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Scheduler error", "error", err)
		}
	}()

	var srv *http.Server
	if cfg.Server.Enabled {
		authService, err := auth.NewService(
			cfg.Auth.JWTSecret,
			cfg.Auth.AdminUsername,
			cfg.Auth.AdminPasswordHash,
			cfg.Auth.JWTExpiry(),
		)
		if err != nil {
			return fmt.Errorf("failed to initialize auth service: %w", err)
		}

		deps := &common.Dependencies{
			Controller: sched,
			Plugins:    registry,
			Generators: gens,
			Bus:        bus,
			Auth:       authService,
			Logger:     logger,
		}
		if hub != nil {
			deps.Preview = hub
		}

		srv = &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      api.NewRouter(deps, cfg.CORS),
			ReadTimeout:  cfg.Server.ReadTimeout(),
			WriteTimeout: cfg.Server.WriteTimeout(),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Server failed", "error", err)
				cancel()
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", "error", err)
		}
	}

	<-schedDone
	<-gensDone
	logger.Info("Lightshow stopped gracefully")
	return nil
}

func buildGenerators(ctx context.Context, cfg *config.Config, bus *eventbus.Bus, logger *slog.Logger) (*generators.Manager, error) {
	gens := generators.NewManager(bus.Publish, logger)

	g := cfg.Generators
	if len(cfg.Audio.Command) > 0 && (g.Beat.Enabled || g.FFT.Enabled) {
		stream, wait, err := audio.Command(ctx, cfg.Audio.Command)
		if err != nil {
			return nil, err
		}
		capture := audio.NewCapture(stream, cfg.Audio.SampleRate, cfg.Audio.BlockSize, logger)
		if g.Beat.Enabled {
			if err := gens.Add(generators.NewBeat(capture.Subscribe(8), cfg.Audio.SampleRate)); err != nil {
				return nil, err
			}
		}
		if g.FFT.Enabled {
			if err := gens.Add(generators.NewFFT(capture.Subscribe(8), g.FFT.Bands)); err != nil {
				return nil, err
			}
		}
		go func() {
			if err := capture.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Audio capture stopped", "error", err)
			}
			stream.Close()
			wait()
		}()
	}

	if g.MIDI.Enabled {
		if err := gens.Add(generators.NewMIDI(g.MIDI.Device)); err != nil {
			return nil, err
		}
	}
	return gens, nil
}

func buildClient(cfg config.LightClientConfig, hub *light.Hub) (light.Client, error) {
	var clients light.Fanout
	switch cfg.Type {
	case "terminal":
		clients = append(clients, light.NewTerminal(os.Stdout, cfg.Columns))
	case "websocket":
		clients = append(clients, light.NewWebSocket(cfg.URL))
	case "none", "":
	default:
		return nil, fmt.Errorf("unknown light client type %q", cfg.Type)
	}
	if hub != nil {
		clients = append(clients, hub)
	}

	switch len(clients) {
	case 0:
		return light.Discard{}, nil
	case 1:
		return clients[0], nil
	default:
		return clients, nil
	}
}
