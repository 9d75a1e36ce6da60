package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/abdul-hamid-achik/riskproxy/packages/core/config"
	"github.com/abdul-hamid-achik/riskproxy/packages/logging"
	"github.com/abdul-hamid-achik/riskproxy/packages/output"
	"github.com/abdul-hamid-achik/riskproxy/packages/tokens"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// loadConfig reads the config file and applies global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	} else if verboseFlag {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *zap.Logger {
	return logging.New(cfg.Log)
}

func tokenSet(cfg *config.Config) tokens.Set {
	return tokens.NewSet(cfg.Tokens.Cookies, cfg.Tokens.TimestampField, cfg.Tokens.NonceField)
}

func newConsole(cmd *cobra.Command) *output.ConsoleFormatter {
	return output.NewConsoleFormatter(
		output.WithWriter(cmd.OutOrStdout()),
		output.WithVerbose(verboseFlag),
		output.WithNoColor(noColorFlag),
	)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
