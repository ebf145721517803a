// Command backutild is the backutil daemon entry point: it resolves
// filesystem paths, builds the file log sink, acquires the PID lock, and
// runs the supervisor until a signal or an IPC Shutdown request stops it
// (spec §4.5).
//
// Grounded on arkeep-io-arkeep/agent/cmd/agent/main.go's cobra root command
// and signal.NotifyContext wiring, generalized from a single subcommand
// with server/secret flags to backutild's config-path/restic-path/
// foreground flags, and from zap.NewProductionConfig's default stdout sink
// to a lumberjack-rotated file sink plus an explicit --foreground escape
// hatch (spec §9 "Log isolation").
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/backutil/backutil/internal/paths"
	"github.com/backutil/backutil/internal/supervisor"
)

var version = "dev"

type cliConfig struct {
	configPath string
	resticPath string
	foreground bool
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &cliConfig{}

	root := &cobra.Command{
		Use:   "backutild",
		Short: "backutil daemon — event-driven restic backup orchestrator",
		Long: `backutild watches configured source directories, debounces bursts of
filesystem activity, and drives restic to produce versioned snapshots.
Clients speak a line-delimited JSON protocol over a Unix socket to trigger
operations and observe state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.configPath, "config", "", "Path to config.toml (default: $BACKUTIL_CONFIG or XDG default)")
	root.PersistentFlags().StringVar(&cfg.resticPath, "restic-path", "", "Path to the restic binary (default: \"restic\" on PATH)")
	root.PersistentFlags().BoolVar(&cfg.foreground, "foreground", false, "Also log to stderr (for interactive/operator use; spec §9 log isolation)")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("BACKUTIL_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("backutild %s\n", version)
		},
	}
}

func run(ctx context.Context, cfg *cliConfig) error {
	p, err := paths.Resolve(cfg.configPath)
	if err != nil {
		return fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := ensureDirs(p); err != nil {
		return err
	}

	logger, err := buildLogger(p.LogFile, cfg.logLevel, cfg.foreground)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sup := supervisor.New(p, logger, cfg.resticPath)

	if err := sup.AcquireLock(); err != nil {
		return err
	}
	defer sup.ReleaseLock()

	logger.Info("backutild starting",
		zap.String("version", version),
		zap.String("config", p.ConfigFile),
		zap.String("socket", p.SocketFile),
	)

	err = sup.Run(ctx)

	logger.Info("backutild stopped")
	return err
}

// ensureDirs creates the parent directories of every daemon-managed path
// that must exist before first use.
func ensureDirs(p paths.Paths) error {
	dirs := []string{
		filepath.Dir(p.ConfigFile),
		filepath.Dir(p.LogFile),
		filepath.Dir(p.SocketFile),
		p.MountBase,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	return nil
}

// buildLogger opens a lumberjack file sink (spec §6 log path) and, only
// when foreground is set, also writes to stderr — otherwise stdout and
// stderr stay clean for the one-shot CLI that may have spawned this daemon
// (spec §9 "Log isolation"). The file rotates when it reaches lumberjack's
// default size limit (100 MB), and rotated files older than 14 days are
// removed; it is not rotated by date.
func buildLogger(logFile, level string, foreground bool) (*zap.Logger, error) {
	rotator := &lumberjack.Logger{
		Filename: logFile,
		MaxAge:   14,
		Compress: true,
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	atomicLevel := zap.NewAtomicLevelAt(parseLevel(level))

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(rotator), atomicLevel),
	}
	if foreground {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), atomicLevel))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
