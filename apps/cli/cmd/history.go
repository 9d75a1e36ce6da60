package cmd

import (
	"os"

	"github.com/abdul-hamid-achik/riskproxy/packages/history"
	"github.com/abdul-hamid-achik/riskproxy/packages/output"
	"github.com/spf13/cobra"
)

var (
	historyLimitFlag  int
	historyOutputFlag string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show stored margin readings",
	Long: `Show the most recent margin utilization readings saved by
"decode --save" or "watch".

Examples:
  riskproxy history
  riskproxy history -n 100 --output json`,
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "Number of readings (0 = all)")
	historyCmd.Flags().StringVarP(&historyOutputFlag, "output", "o", "console", "Output format: console, json")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := cfg.HistoryPath()
	if _, err := os.Stat(path); err != nil {
		return withExitCode(ExitConfigError, err)
	}

	store, err := history.Open(path)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	defer store.Close()

	readings, err := store.Latest(cmd.Context(), historyLimitFlag)
	if err != nil {
		return err
	}

	output.New(historyOutputFlag,
		output.WithWriter(cmd.OutOrStdout()),
		output.WithNoColor(noColorFlag),
	).FormatReadings(readings)
	return nil
}
