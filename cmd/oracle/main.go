package main

import (
	"fmt"
	"os"

	"auction-oracle/internal/config"
	"auction-oracle/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
)

const programName = "auction-oracle"

var (
	configFile string
	cfg        *config.Config
)

func maxprocsPrintf(format string, v ...any) {
	logger.Info(fmt.Sprintf(format, v...), zap.String("component", programName))
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Settles ended auctions into meeting rooms and gates access to them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to YAML config file")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		err = logger.Initialize(logger.Configuration{
			LogFile:   cfg.LogFile,
			ErrorFile: cfg.LogErrorFile,
			Level:     cfg.LogLevel,
			Console:   cfg.LogConsole,
		})
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		if _, err := maxprocs.Set(maxprocs.Logger(maxprocsPrintf)); err != nil {
			logger.Warn("set maxprocs failed", zap.Error(err))
		}
		return nil
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		logger.Sync()
	}

	rootCmd.AddCommand(runCommand())
	rootCmd.AddCommand(scanCommand())
	rootCmd.AddCommand(meetingsCommand())
	rootCmd.AddCommand(redeemCommand())
	rootCmd.AddCommand(checkCommand())
	rootCmd.AddCommand(gatePassCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		logger.Sync()
		os.Exit(1)
	}
}
