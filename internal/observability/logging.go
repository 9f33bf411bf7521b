// Package observability provides the shared zap loggers for goconflux.
//
// Two loggers are exposed:
//   - Logger: structured JSON output for the long-running server process
//   - CLILogger: console-friendly output for one-shot CLI commands
//
// Both default to no-op until Init is called, so packages may log during
// early startup without nil checks.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the structured logger for server components.
	Logger = zap.NewNop()

	// CLILogger is the console logger for CLI commands.
	CLILogger = zap.NewNop()
)

// Init configures the package loggers.
//
// level is one of debug|info|warn|error. profile selects the output encoding:
// "STRUCTURED" (JSON, production config) or "CONSOLE" (human-readable).
func Init(level, profile string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}

	var cfg zap.Config
	switch strings.ToUpper(strings.TrimSpace(profile)) {
	case "", "STRUCTURED":
		cfg = zap.NewProductionConfig()
	case "CONSOLE":
		cfg = zap.NewDevelopmentConfig()
	default:
		return fmt.Errorf("unknown logging profile: %s", profile)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	Logger = logger

	cliCfg := zap.NewDevelopmentConfig()
	cliCfg.Level = zap.NewAtomicLevelAt(lvl)
	cliCfg.DisableStacktrace = true
	cli, err := cliCfg.Build()
	if err != nil {
		return fmt.Errorf("build cli logger: %w", err)
	}
	CLILogger = cli

	return nil
}

// Sync flushes buffered log entries. Safe to call at process exit.
func Sync() {
	_ = Logger.Sync()
	_ = CLILogger.Sync()
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}
