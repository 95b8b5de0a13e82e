package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/tgoai/tgo-sessionwatch/internal/backend/server"
	"github.com/tgoai/tgo-sessionwatch/internal/backend/session"
	"github.com/tgoai/tgo-sessionwatch/internal/backend/sim"
	"github.com/tgoai/tgo-sessionwatch/internal/config"
	"github.com/tgoai/tgo-sessionwatch/internal/logging"
)

func main() {
	err := run(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("sessionwatch-backend", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "sessionwatch.yaml", "Path to config file")
	host := flags.String("host", "", "Override listen host")
	port := flags.IntP("port", "p", 0, "Override server port")
	token := flags.String("token", "", "Require this auth token")
	logLevel := flags.String("log-level", "", "Log level (debug, info, warn, error)")
	failureRate := flags.Float64("failure-rate", -1, "Fraction of session requests to fail (0-1)")
	jitter := flags.Duration("jitter", -1, "Maximum injected response latency")
	origins := flags.StringSlice("allowed-origins", nil, "WebSocket origins to accept")
	if err := flags.Parse(args); err != nil {
		return err
	}

	config.LoadDotEnv()
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *token != "" {
		cfg.Server.Token = *token
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *failureRate >= 0 {
		cfg.Simulator.FailureRate = *failureRate
	}
	if *jitter >= 0 {
		cfg.Simulator.LatencyJitter = *jitter
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	root, closer, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := session.NewStore()
	broadcaster := server.NewBroadcaster(store, cfg.Server.BroadcastThrottle, logging.With(root, "broadcast"))
	go broadcaster.Run(ctx, cfg.Server.SnapshotInterval)

	simulator := sim.New(cfg.Simulator, store, broadcaster, sim.WithLogger(logging.With(root, "sim")))
	simulator.Seed(cfg.Simulator.Sessions, time.Now())
	simulator.Start(ctx)
	if simulator.Chaos().Enabled() {
		root.WithField("failure_rate", cfg.Simulator.FailureRate).
			WithField("jitter", cfg.Simulator.LatencyJitter).
			Warn("fault injection enabled")
	}

	srv := server.New(store, simulator, broadcaster,
		server.WithToken(cfg.Server.Token),
		server.WithLogger(logging.With(root, "http")),
		server.WithAllowedOrigins(*origins),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		root.WithError(err).Error("server error")
		return err
	}
	root.Info("shut down")
	return nil
}
