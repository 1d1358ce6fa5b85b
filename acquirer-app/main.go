package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/colosseo-ops/acquirer/acquirer-app/config"
	"github.com/colosseo-ops/acquirer/log"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "acquirer",
		Short: "Colosseo ticket acquirer",
		Long:  banner + "\n\nCoordination core for monitoring and acquiring Colosseo ticket inventory.",
		RunE:  runApp,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}
)

const banner = `
 █████╗  ██████╗ ██████╗ ██╗   ██╗██╗██████╗ ███████╗██████╗
██╔══██╗██╔════╝██╔═══██╗██║   ██║██║██╔══██╗██╔════╝██╔══██╗
███████║██║     ██║   ██║██║   ██║██║██████╔╝█████╗  ██████╔╝
██╔══██║██║     ██║▄▄ ██║██║   ██║██║██╔══██╗██╔══╝  ██╔══██╗
██║  ██║╚██████╗╚██████╔╝╚██████╔╝██║██║  ██║███████╗██║  ██║
╚═╝  ╚═╝ ╚═════╝ ╚══▀▀═╝  ╚═════╝ ╚═╝╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝`

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	return rootCmd.Execute()
}

func initCommands() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(versionCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config",
		"acquirer-app/configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")

	// Server flags
	rootCmd.PersistentFlags().String("listen-addr", "", "API listen address")

	// Store flags
	rootCmd.PersistentFlags().String("redis-addr", "", "coordination store address")

	// Monitor flags
	rootCmd.PersistentFlags().Duration("poll-interval", 0, "availability poll interval")

	// Metrics flags
	rootCmd.PersistentFlags().Bool("metrics", false, "enable metrics")
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = "acquirer-app/configs/config.yaml"
	}
}

func runApp(cmd *cobra.Command, _ []string) error {
	fmt.Println(banner)
	fmt.Println()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyFlags(cmd, cfg)

	logger := log.New(cfg.Log.Level, cfg.Log.Pretty)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	logger.Info().
		Str("config_file", cfgFile).
		Str("listen_addr", cfg.API.ListenAddr).
		Str("redis_addr", cfg.Redis.Addr).
		Dur("poll_interval", cfg.Monitor.PollInterval).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Str("log_level", cfg.Log.Level).
		Msg("Configuration loaded")

	application, err := NewApp(cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(cmd.Context())
}

func runVersion(*cobra.Command, []string) {
	fmt.Println(banner)
	fmt.Println()
	fmt.Printf("Colosseo Acquirer\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flag("log-level").Changed {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flag("log-pretty").Changed {
		cfg.Log.Pretty, _ = cmd.Flags().GetBool("log-pretty")
	}

	if cmd.Flag("listen-addr").Changed {
		cfg.API.ListenAddr, _ = cmd.Flags().GetString("listen-addr")
	}
	if cmd.Flag("redis-addr").Changed {
		cfg.Redis.Addr, _ = cmd.Flags().GetString("redis-addr")
	}
	if cmd.Flag("poll-interval").Changed {
		cfg.Monitor.PollInterval, _ = cmd.Flags().GetDuration("poll-interval")
	}
	if cmd.Flag("metrics").Changed {
		cfg.Metrics.Enabled, _ = cmd.Flags().GetBool("metrics")
	}
}
