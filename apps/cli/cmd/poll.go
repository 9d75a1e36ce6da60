package cmd

import (
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/riskproxy/packages/metrics"
	"github.com/abdul-hamid-achik/riskproxy/packages/poller"
	"github.com/abdul-hamid-achik/riskproxy/packages/rewrite"
	"github.com/spf13/cobra"
)

var (
	pollCountFlag    int
	pollIntervalFlag time.Duration
	pollProxyFlag    string
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Send auto-capture requests through the proxy",
	Long: `Send placeholder RSK335 requests through a running proxy. Every
placeholder in the payload template is replaced by the marker, so the proxy
fills in the live tokens before the request leaves.

Examples:
  riskproxy poll --count 1
  riskproxy poll --interval 30s
  riskproxy poll --proxy http://127.0.0.1:9090`,
	RunE: pollCommand,
}

func init() {
	pollCmd.Flags().IntVarP(&pollCountFlag, "count", "n", 0, "Number of polls (0 = until interrupted)")
	pollCmd.Flags().DurationVarP(&pollIntervalFlag, "interval", "i", 0, "Time between polls (default from config)")
	pollCmd.Flags().StringVar(&pollProxyFlag, "proxy", "", "Proxy URL (default from config)")
}

func pollCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	text, err := cfg.LoadTemplate()
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	if text == "" {
		return withExitCode(ExitConfigError, poller.ErrNoTemplate)
	}
	body := rewrite.NewTemplate(text, nil).RenderAll(cfg.Payload.Marker)

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	console := newConsole(cmd)
	latency := metrics.NewLatency()

	opts := poller.FromConfig(cfg.Poll)
	if pollIntervalFlag > 0 {
		opts = append(opts, poller.WithInterval(pollIntervalFlag))
	}
	if pollProxyFlag != "" {
		opts = append(opts, poller.WithProxy(pollProxyFlag))
	}
	failures := 0
	opts = append(opts,
		poller.WithLatency(latency),
		poller.WithLogger(logger.Named("poller")),
		poller.WithResultHandler(func(r poller.Result) {
			if r.Err != nil || r.Failed {
				failures++
			}
			console.FormatPoll(r)
		}),
	)

	p, err := poller.New(cfg.Target.CanonicalURL, body, opts...)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	ctx, stop := signalContext()
	defer stop()

	if err := p.Run(ctx, pollCountFlag); err != nil {
		return err
	}
	console.FormatLatency(latency.Summary())

	if pollCountFlag > 0 && failures == pollCountFlag {
		return withExitCode(ExitNetworkError, fmt.Errorf("all %d polls failed", failures))
	}
	return nil
}
