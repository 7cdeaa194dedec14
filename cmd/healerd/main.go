// Healerd is an autonomous remediation daemon for CI/CD pipeline failures.
//
// It ingests failure reports over HTTP, classifies them, generates
// remediation plans through a reasoning service, gates the plans for safety,
// executes them against the affected hosts, and verifies the outcome. Every
// attempt is recorded as an auditable healing session.
//
// Usage:
//
//	# Start the daemon with defaults
//	healerd
//
//	# Start with an explicit config file
//	healerd -config /etc/healerd/config.yaml
//
//	# Configure via environment
//	SERVER_HTTP_PORT=8844 REASONER_API_KEY=sk-... healerd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/healerd/internal/classifier"
	"github.com/fyrsmithlabs/healerd/internal/config"
	"github.com/fyrsmithlabs/healerd/internal/executor"
	"github.com/fyrsmithlabs/healerd/internal/healer"
	"github.com/fyrsmithlabs/healerd/internal/logging"
	"github.com/fyrsmithlabs/healerd/internal/monitor"
	"github.com/fyrsmithlabs/healerd/internal/notify"
	"github.com/fyrsmithlabs/healerd/internal/planner"
	"github.com/fyrsmithlabs/healerd/internal/safety"
	"github.com/fyrsmithlabs/healerd/internal/server"
	"github.com/fyrsmithlabs/healerd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  healerd            Start the healerd daemon\n")
			fmt.Fprintf(os.Stderr, "  healerd version    Show version information\n")
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Daemon error: %v", err)
	}

	log.Println("Daemon shutdown complete")
}

func printVersion() {
	fmt.Printf("healerd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until context cancellation.
//
// Initialization order:
//  1. Configuration (file + environment)
//  2. Logger and telemetry
//  3. Optional NATS connection
//  4. Healing pipeline (classifier, planner, gate, executor, healer)
//  5. Monitor, poller and HTTP server
//  6. Graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting healerd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("reasoner", cfg.Reasoner.Provider),
		zap.String("channel", cfg.Executor.Channel))

	tel, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:         cfg.Telemetry.Enabled,
		ServiceName:     cfg.Telemetry.ServiceName,
		ServiceVersion:  version,
		Endpoint:        cfg.Telemetry.Endpoint,
		Insecure:        cfg.Telemetry.Insecure,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	services, err := initServices(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info("Services initialized",
		zap.Bool("nats_connected", deps.natsConn != nil),
		zap.Bool("notifier_enabled", services.publisher != nil))

	srv, err := server.NewServer(services.monitor, services.classifier,
		services.store, prometheus.DefaultGatherer, logger, &server.Config{
			Host: cfg.Server.Host,
			Port: cfg.Server.Port,
		})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	services.poller.Start(ctx)
	defer services.poller.Stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("Daemon ready",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("webhook_endpoint", "/api/v1/webhook"),
		zap.String("metrics_endpoint", "/metrics"))

	select {
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

// dependencies holds infrastructure resources that need explicit cleanup.
type dependencies struct {
	natsConn *nats.Conn
	channel  executor.Channel
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
}

// services holds the wired healing pipeline.
type services struct {
	classifier *classifier.Classifier
	store      *healer.Store
	healer     *healer.Healer
	monitor    *monitor.Monitor
	poller     *monitor.Poller
	publisher  *notify.Publisher
}

// initDependencies connects the optional NATS broker and builds the
// execution channel.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{}

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		logger.Info("Connected to NATS", zap.String("url", cfg.NATS.URL))
		deps.natsConn = nc
	}

	switch cfg.Executor.Channel {
	case "ssh":
		deps.channel = &executor.SSHChannel{User: cfg.Executor.SSHUser}
	default:
		deps.channel = &executor.LocalChannel{Timeout: cfg.Executor.CommandTimeout.Duration()}
	}

	return deps, nil
}

// initServices wires the healing pipeline end to end.
func initServices(cfg *config.Config, deps *dependencies, logger *zap.Logger) (*services, error) {
	cls := classifier.New(&classifier.Config{MaxHistory: cfg.History.MaxErrors}, logger)

	reasoner, err := planner.NewReasoner(planner.ClientConfig{
		Provider:   cfg.Reasoner.Provider,
		Model:      cfg.Reasoner.Model,
		APIKey:     cfg.Reasoner.APIKey.Value(),
		BaseURL:    cfg.Reasoner.BaseURL,
		Timeout:    cfg.Reasoner.Timeout.Duration(),
		MaxRetries: cfg.Reasoner.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoner: %w", err)
	}

	generator, err := planner.NewGenerator(reasoner, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan generator: %w", err)
	}

	gate := safety.NewGate()
	gate.BlockOnConfirmation = cfg.Safety.BlockOnConfirmation

	coordinator, err := executor.NewCoordinator(deps.channel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	store := healer.NewStore(cfg.History.MaxSessions)

	h, err := healer.New(cls, generator, gate, coordinator, store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create healer: %w", err)
	}

	m, err := monitor.New(cls, h, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitor: %w", err)
	}

	var publisher *notify.Publisher
	if deps.natsConn != nil {
		publisher = notify.NewPublisher(deps.natsConn, cfg.NATS.Subject, logger)
		m.OnHealing(publisher.PublishSession)
	}

	pollInterval := cfg.Monitor.PollInterval.Duration()
	poller := monitor.NewPoller(m,
		monitor.NewStalenessChecker(5*pollInterval), pollInterval, logger)

	return &services{
		classifier: cls,
		store:      store,
		healer:     h,
		monitor:    m,
		poller:     poller,
		publisher:  publisher,
	}, nil
}
