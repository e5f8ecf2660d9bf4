package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"elearning/internal/config"
	"elearning/internal/migrate"
	"elearning/internal/obs"
)

func main() {
	command := flag.String("command", "up", "migration command: up, down, version or force")
	steps := flag.Int("steps", 0, "number of migrations to apply or roll back (0 means all)")
	version := flag.Int("version", -1, "version to force, used with -command=force")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}
	logger, err := obs.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	runner, err := migrate.Open(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("migrate init failed", zap.Error(err))
	}
	defer func() {
		if err := runner.Close(); err != nil {
			logger.Warn("migrate close error", zap.Error(err))
		}
	}()

	if err := run(runner, *command, *steps, *version, logger); err != nil {
		logger.Error("migrate failed", zap.String("command", *command), zap.Error(err))
		_ = runner.Close()
		os.Exit(1)
	}
}

func run(runner *migrate.Runner, command string, steps, version int, logger *zap.Logger) error {
	switch command {
	case "up":
		return runner.Up(steps)
	case "down":
		return runner.Down(steps)
	case "version":
		v, dirty, err := runner.Version()
		if err != nil {
			return err
		}
		logger.Info("schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		return nil
	case "force":
		if version < 0 {
			return fmt.Errorf("force requires -version")
		}
		return runner.Force(version)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
