package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/abdul-hamid-achik/riskproxy/packages/core/config"
	"github.com/abdul-hamid-achik/riskproxy/packages/decoder"
	"github.com/abdul-hamid-achik/riskproxy/packages/history"
	"github.com/abdul-hamid-achik/riskproxy/packages/output"
	"github.com/abdul-hamid-achik/riskproxy/packages/snapshot"
	"github.com/spf13/cobra"
)

var (
	decodeKeyFlag    string
	decodeAllFlag    bool
	decodeOutputFlag string
	decodeSaveFlag   bool
)

var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Extract the margin utilization from a saved response",
	Long: `Decode an RSK335 response page and print the margin utilization.
Without a file argument the latest recorded response is used.

Examples:
  riskproxy decode
  riskproxy decode margin_calls/responses/previous.txt
  riskproxy decode --all --output json
  riskproxy decode --save`,
	Args: cobra.MaximumNArgs(1),
	RunE: decodeCommand,
}

func init() {
	decodeCmd.Flags().StringVarP(&decodeKeyFlag, "key", "k", "", "Column key (default from config)")
	decodeCmd.Flags().BoolVarP(&decodeAllFlag, "all", "a", false, "Print every column of the first data row")
	decodeCmd.Flags().StringVarP(&decodeOutputFlag, "output", "o", "console", "Output format: console, json")
	decodeCmd.Flags().BoolVar(&decodeSaveFlag, "save", false, "Store the reading in the history database")
}

func decodeCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := snapshot.CurrentPath(cfg.Storage.Dir, snapshot.Responses)
	if len(args) == 1 {
		path = args[0]
	}
	key := cfg.Decoder.ColumnKey
	if decodeKeyFlag != "" {
		key = decodeKeyFlag
	}

	formatter := output.New(decodeOutputFlag,
		output.WithWriter(cmd.OutOrStdout()),
		output.WithVerbose(verboseFlag),
		output.WithNoColor(noColorFlag),
	)
	dec := decoder.FromConfig(cfg.Decoder)

	if decodeAllFlag {
		data, err := os.ReadFile(path)
		if err != nil {
			return withExitCode(ExitFailure, fmt.Errorf("reading %s: %w", path, err))
		}
		cells, ok := dec.ExtractRow(data)
		if !ok {
			formatter.FormatNotFound(path)
			return withExitCode(ExitNotFound, nil)
		}
		formatter.FormatRow(cells)
		return nil
	}

	reading, err := decodeReading(cmd.Context(), dec, path, key)
	if errors.Is(err, decoder.ErrNotFound) {
		formatter.FormatNotFound(path)
		return withExitCode(ExitNotFound, nil)
	}
	if err != nil {
		return err
	}
	formatter.FormatReading(reading)

	if decodeSaveFlag {
		if err := saveReading(cmd.Context(), cfg, reading); err != nil {
			return err
		}
	}
	return nil
}

// decodeReading decodes path into a history reading.
func decodeReading(ctx context.Context, dec *decoder.Decoder, path, key string) (history.Reading, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	field, err := dec.DecodeFile(ctx, path, key)
	if err != nil {
		return history.Reading{}, err
	}
	return history.Reading{
		Key:        key,
		Value:      field.Value,
		Raw:        field.Raw,
		Formatted:  field.Formatted(),
		Source:     string(field.Source),
		Snapshot:   path,
		ObservedAt: time.Now(),
	}, nil
}

func saveReading(ctx context.Context, cfg *config.Config, r history.Reading) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.EnsureStorage(); err != nil {
		return withExitCode(ExitConfigError, err)
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	defer store.Close()

	_, err = store.Insert(ctx, r)
	return err
}
