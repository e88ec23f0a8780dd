package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("SENTINEL_CONFIG", ""),
		"Path to configuration file (env: SENTINEL_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("SENTINEL_CONFIG", ""),
		"Path to configuration file (env: SENTINEL_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("SENTINEL_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: SENTINEL_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("SENTINEL_LOG_FORMAT", ""),
		"Log format: json, text (env: SENTINEL_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug",
		getEnvBool("SENTINEL_DEBUG", false),
		"Enable debug mode (env: SENTINEL_DEBUG)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("SENTINEL_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: SENTINEL_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp

	flag.Parse()

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	validLevels := []string{"", "debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"", "json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - IoT alerting and correlation engine

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with custom config
  %s --config=/etc/sentinel/config.yaml

  # Run with debug logging
  %s --log-level=debug --log-format=text

  # Validate configuration only
  %s --config=/etc/sentinel/config.yaml --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
