package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/txgate/internal/control"
	"github.com/vietddude/txgate/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:           "txgate",
	Short:         "Transaction gateway service",
	Long:          `txgate compiles, signs, submits and monitors ledger transactions over gRPC.`,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC gateway (default command)",
	RunE:  runServe,
}

// Execute runs the root command. Commands return errors instead of exiting so
// deferred cleanup (log file flush, signal handlers) always runs first.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the config file. A missing default config file falls back to
// built-in defaults; an explicitly named one must exist.
func loadConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil && errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}
	return cfg, err
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		stylelog.InitDefault()
		return fmt.Errorf("load config: %w", err)
	}

	closeLog, err := setupLogging(cfg.Logging, isDebug)
	if err != nil {
		stylelog.InitDefault()
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := control.NewGateway(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize gateway: %w", err)
	}

	slog.Info("Gateway started",
		"config", cfgPath,
		"grpc_port", cfg.Server.GRPCPort,
		"ledger", cfg.Ledger.RPCURL,
	)

	if err := app.Run(ctx); err != nil {
		return fmt.Errorf("gateway stopped: %w", err)
	}
	slog.Info("Gateway stopped")
	return nil
}
