package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/abdul-hamid-achik/riskproxy/packages/core/config"
	"github.com/abdul-hamid-achik/riskproxy/packages/decoder"
	"github.com/abdul-hamid-achik/riskproxy/packages/history"
	"github.com/abdul-hamid-achik/riskproxy/packages/notify"
	"github.com/abdul-hamid-achik/riskproxy/packages/output"
	"github.com/abdul-hamid-achik/riskproxy/packages/snapshot"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	// WatchDebounceDelay is the debounce delay for snapshot write events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	watchKeyFlag       string
	watchOutputFlag    string
	watchNoHistoryFlag bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Decode every new canonical response as it is recorded",
	Long: `Watch the response snapshot and print the margin utilization each
time the proxy records a new canonical response. Readings are stored in the
history database unless --no-history is set. When alert webhooks are
configured, readings are checked against alert.threshold.

Examples:
  riskproxy watch
  riskproxy watch --output json --no-history`,
	RunE: watchCommand,
}

func init() {
	watchCmd.Flags().StringVarP(&watchKeyFlag, "key", "k", "", "Column key (default from config)")
	watchCmd.Flags().StringVarP(&watchOutputFlag, "output", "o", "console", "Output format: console, json")
	watchCmd.Flags().BoolVar(&watchNoHistoryFlag, "no-history", false, "Do not store readings")
}

func watchCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	key := cfg.Decoder.ColumnKey
	if watchKeyFlag != "" {
		key = watchKeyFlag
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	path := snapshot.CurrentPath(cfg.Storage.Dir, snapshot.Responses)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return withExitCode(ExitConfigError, err)
	}

	var store *history.Store
	if !watchNoHistoryFlag {
		store, err = history.Open(cfg.HistoryPath())
		if err != nil {
			return withExitCode(ExitConfigError, err)
		}
		defer store.Close()
	}

	formatter := output.New(watchOutputFlag,
		output.WithWriter(cmd.OutOrStdout()),
		output.WithVerbose(verboseFlag),
		output.WithNoColor(noColorFlag),
	)
	dec := decoder.FromConfig(cfg.Decoder)
	alerts := newAlertManager(cfg.Alert)

	ctx, stop := signalContext()
	defer stop()

	process := func() {
		reading, err := decodeReading(ctx, dec, path, key)
		switch {
		case errors.Is(err, decoder.ErrNotFound):
			formatter.FormatNotFound(path)
			return
		case errors.Is(err, os.ErrNotExist), errors.Is(err, context.Canceled):
			return
		case err != nil:
			formatter.FormatError(err)
			return
		}
		formatter.FormatReading(reading)

		if alerts != nil {
			sent, err := alerts.Check(ctx, notify.Alert{
				Key:        reading.Key,
				Value:      reading.Value,
				Formatted:  reading.Formatted,
				Source:     reading.Source,
				ObservedAt: reading.ObservedAt,
			})
			if err != nil {
				logger.Warn("sending alert failed", zap.Error(err))
			} else if sent {
				logger.Info("alert sent", zap.String("value", reading.Formatted))
			}
		}

		if store == nil {
			return
		}
		if _, err := store.Insert(ctx, reading); err != nil {
			logger.Warn("saving reading failed", zap.Error(err))
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	if _, err := os.Stat(path); err == nil {
		process()
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s... (press Ctrl+C to stop)\n", path)

	// Debounced events land here so readings are processed one at a time
	changed := make(chan struct{}, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-changed:
			process()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			formatter.FormatError(fmt.Errorf("watcher error: %w", err))
		}
	}
}

// newAlertManager returns nil when no webhook is configured.
func newAlertManager(cfg config.AlertConfig) *notify.Manager {
	if !cfg.Enabled() {
		return nil
	}
	m := notify.NewManager(notify.NotifyOn(cfg.On), cfg.Threshold)
	if cfg.SlackWebhook != "" {
		m.AddNotifier(notify.NewSlackNotifier(cfg.SlackWebhook, notify.WithSlackChannel(cfg.SlackChannel)))
	}
	if cfg.TeamsWebhook != "" {
		m.AddNotifier(notify.NewTeamsNotifier(cfg.TeamsWebhook))
	}
	return m
}
