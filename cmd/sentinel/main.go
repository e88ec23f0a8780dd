// Package main is the entry point for sentinel, a real-time rule-based
// alerting and correlation engine for IoT sensor events.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/sentinel/config"
	"github.com/c360/sentinel/input/natsingest"
	"github.com/c360/sentinel/metric"
	"github.com/c360/sentinel/natsclient"
	"github.com/c360/sentinel/notify"
	"github.com/c360/sentinel/processor/anomaly"
	"github.com/c360/sentinel/processor/correlation"
	"github.com/c360/sentinel/rules"
	"github.com/c360/sentinel/statestore"
	"github.com/c360/sentinel/worker"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "sentinel"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s %s (build %s)\n", appName, Version, BuildTime)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// CLI flags override file-level logging settings.
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "path", cliCfg.ConfigPath)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics
	registry := metric.NewMetricsRegistry()
	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		logger.Info("metrics server listening", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
	}

	// Rules
	ruleStore := rules.NewStore()
	if cfg.Rules.File != "" {
		if err := importRules(ruleStore, cfg.Rules.File, logger); err != nil {
			return err
		}
	}

	// NATS connection, state store
	var (
		natsConn *natsclient.Client
		state    statestore.Store = statestore.NewMemory()
	)
	if cfg.NATS.Enabled {
		natsConn = natsclient.New(cfg.NATS.URL, logger,
			natsclient.WithClientName(cfg.NATS.ClientName),
			natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
			natsclient.WithReconnectWait(cfg.NATS.ReconnectWait.Std()),
			natsclient.WithUserInfo(cfg.NATS.Username, cfg.NATS.Password),
			natsclient.WithToken(cfg.NATS.Token),
		)
		if err := natsConn.Connect(ctx); err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer func() { _ = natsConn.Close() }()
		registry.Metrics.NATSConnected.Set(1)

		bucket, err := natsConn.EnsureKeyValue(ctx, cfg.NATS.StateBucket)
		if err != nil {
			return fmt.Errorf("state bucket: %w", err)
		}
		state = statestore.NewNATS(natsclient.NewKVStore(bucket), logger)
	}

	// Delivery channels
	dispatcher := notify.NewDispatcher(logger,
		notify.NewEmailChannel(&notify.SMTPSender{
			Host:     cfg.Notify.Email.SMTPHost,
			Port:     cfg.Notify.Email.SMTPPort,
			From:     cfg.Notify.Email.From,
			Username: cfg.Notify.Email.Username,
			Password: cfg.Notify.Email.Password,
		}, cfg.Notify.Email.Recipients),
		notify.NewSMSChannel(&notify.LogSMSSender{Logger: logger}, cfg.Notify.SMS.Recipients),
		notify.NewWebhookChannel(nil, cfg.Notify.Webhook.URLs, cfg.Notify.Webhook.Timeout.Std()),
		notify.NewPushChannel(),
	)

	// Pipeline
	w := worker.New(worker.Config{
		QueueSize:            cfg.Worker.QueueSize,
		DispatchQueueSize:    cfg.Worker.DispatchQueueSize,
		SnapshotInterval:     cfg.Worker.SnapshotInterval.Std(),
		SensorFailureTimeout: cfg.Worker.SensorFailureTimeout.Std(),
		SlowEventThreshold:   cfg.Worker.SlowEventThreshold.Std(),
	}, worker.Deps{
		Rules: ruleStore,
		Anomaly: anomaly.New(anomaly.Config{
			HistorySize:      cfg.Anomaly.HistorySize,
			SpikeMinPoints:   cfg.Anomaly.SpikeMinPoints,
			SpikeStatsWindow: cfg.Anomaly.SpikeStatsWindow,
			SpikeSigma:       cfg.Anomaly.SpikeSigma,
			FlatlineWindow:   cfg.Anomaly.FlatlineWindow,
			FluctuationRatio: cfg.Anomaly.FluctuationRatio,
		}),
		Correlation: correlation.New(correlation.Config{
			Window:              cfg.Correlation.Window,
			StationaryMinBuffer: cfg.Correlation.StationaryMinBuffer,
			GasWarningLevel:     cfg.Correlation.GasWarningLevel,
			GasCriticalLevel:    cfg.Correlation.GasCriticalLevel,
			BufferSize:          cfg.Correlation.BufferSize,
		}),
		Dispatcher: dispatcher,
		State:      state,
		Metrics:    registry.Metrics,
		Logger:     logger,
	})
	if err := w.Initialize(); err != nil {
		return fmt.Errorf("initialize worker: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	// Ingest
	var ingest *natsingest.Ingest
	if cfg.NATS.Enabled {
		ingest = natsingest.New(natsingest.Config{Subject: cfg.NATS.Subject}, natsConn, w, logger)
		if err := ingest.Initialize(); err != nil {
			return fmt.Errorf("initialize ingest: %w", err)
		}
		if err := ingest.Start(ctx); err != nil {
			return fmt.Errorf("start ingest: %w", err)
		}
	}

	logger.Info("sentinel started",
		"rules", ruleStore.GetStats().Total,
		"nats", cfg.NATS.Enabled,
		"metrics", cfg.Metrics.Enabled)

	<-ctx.Done()
	logger.Info("shutdown requested")

	// Reverse start order: stop the intake first, then drain the pipeline.
	if ingest != nil {
		if err := ingest.Stop(cliCfg.ShutdownTimeout); err != nil {
			logger.Warn("ingest stop failed", "error", err)
		}
	}
	if err := w.Stop(cliCfg.ShutdownTimeout); err != nil {
		logger.Warn("worker stop failed", "error", err)
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("metrics server stop failed", "error", err)
		}
	}
	if err := state.Close(); err != nil {
		logger.Warn("state store close failed", "error", err)
	}

	logger.Info("sentinel stopped")
	return nil
}

// importRules loads rule definitions from a JSON file into the store.
func importRules(store *rules.Store, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rules file: %w", err)
	}

	var defs []rules.Rule
	if err := json.Unmarshal(data, &defs); err != nil {
		return fmt.Errorf("parse rules file %s: %w", path, err)
	}

	result := store.BulkImport(defs)
	for _, importErr := range result.Errors {
		logger.Warn("rule rejected", "rule_id", importErr.RuleID, "error", importErr.Error)
	}
	logger.Info("rules imported",
		"path", path,
		"imported", result.Imported,
		"failed", result.Failed)
	return nil
}
