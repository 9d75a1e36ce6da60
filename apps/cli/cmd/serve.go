package cmd

import (
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/abdul-hamid-achik/riskproxy/packages/builtin"
	"github.com/abdul-hamid-achik/riskproxy/packages/capture"
	"github.com/abdul-hamid-achik/riskproxy/packages/classify"
	"github.com/abdul-hamid-achik/riskproxy/packages/core/config"
	"github.com/abdul-hamid-achik/riskproxy/packages/metrics"
	"github.com/abdul-hamid-achik/riskproxy/packages/proxy"
	"github.com/abdul-hamid-achik/riskproxy/packages/rewrite"
	"github.com/abdul-hamid-achik/riskproxy/packages/snapshot"
	"github.com/abdul-hamid-achik/riskproxy/packages/tokens"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveListenFlag     string
	serveStorageDirFlag string
	serveRestoreFlag    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the intercepting proxy",
	Long: `Run the intercepting proxy. Point the browser (or the poller) at it
and trust its certificate for the target host.

The proxy:
- Harvests session cookies and IXHR tokens from every monitored flow
- Keeps the latest canonical RSK335 request and response on disk
- Fills __AUTO_CAPTURE__ requests with the live tokens
- Serves /metrics and /healthz to direct (non-proxy) requests

Examples:
  riskproxy serve
  riskproxy serve --listen 0.0.0.0:8080 --storage-dir ./margin_calls
  riskproxy serve --restore`,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListenFlag, "listen", "l", "", "Listen address (default from config)")
	serveCmd.Flags().StringVar(&serveStorageDirFlag, "storage-dir", "", "Directory for snapshots and credentials")
	serveCmd.Flags().BoolVar(&serveRestoreFlag, "restore", false, "Reload the credential file at startup")
}

func serveCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveListenFlag != "" {
		cfg.Proxy.Listen = serveListenFlag
	}
	if serveStorageDirFlag != "" {
		cfg.Storage.Dir = serveStorageDirFlag
	}
	if serveRestoreFlag {
		cfg.Tokens.Restore = true
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	if err := cfg.EnsureStorage(); err != nil {
		return withExitCode(ExitConfigError, err)
	}

	latency := metrics.NewLatency()
	engine, err := buildEngine(cfg, logger, latency)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	server := proxy.NewServer(engine, cfg.Target.Host,
		proxy.WithListen(cfg.Proxy.Listen),
		proxy.WithVerbose(cfg.Proxy.Verbose || verboseFlag),
		proxy.WithServerLogger(logger),
		proxy.WithDirectHandler(directHandler(latency)),
	)

	ctx, stop := signalContext()
	defer stop()

	console := newConsole(cmd)
	console.FormatHeader(version)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s, storing under %s\n", server.Addr(), cfg.Storage.Dir)

	if err := server.StartWithContext(ctx); err != nil {
		return withExitCode(ExitNetworkError, err)
	}

	logger.Info("proxy stopped", zap.Int("pending_flows", engine.Pending()))
	console.FormatLatency(latency.Summary())
	return nil
}

// buildEngine wires the token store, snapshot recorder, extractor and
// rewriter around one lock.
func buildEngine(cfg *config.Config, logger *zap.Logger, latency *metrics.Latency) (*proxy.Engine, error) {
	set := tokenSet(cfg)
	mu := &sync.Mutex{}

	store := tokens.NewStore(cfg.CredentialsPath(), set, tokens.WithLocker(mu))
	if cfg.Tokens.Restore {
		if err := store.Load(); err != nil {
			logger.Warn("ignoring saved credentials", zap.String("path", store.Path()), zap.Error(err))
		}
	}

	recorder := snapshot.NewRecorder(cfg.Storage.Dir, snapshot.WithLocker(mu))
	extractor := capture.NewExtractor(store, set, logger.Named("capture"))

	opts := []proxy.EngineOption{
		proxy.WithLatency(latency),
		proxy.WithLogger(logger.Named("engine")),
	}

	text, err := cfg.LoadTemplate()
	if err != nil {
		return nil, err
	}
	if text != "" {
		rw := rewrite.New(
			rewrite.NewTemplate(text, builtin.NewRegistry(nil)),
			store, set, cfg.Payload.Marker, cfg.Target.CanonicalURL,
			rewrite.WithRefreshCookies(cfg.Payload.GetRefreshCookies()),
			rewrite.WithLogger(logger.Named("rewrite")),
		)
		opts = append(opts, proxy.WithRewriter(rw))
	} else {
		logger.Info("no payload template configured, auto-capture rewriting disabled")
	}

	engine := proxy.NewEngine(classify.FromConfig(cfg), recorder, extractor, opts...)
	return engine, nil
}

// directHandler serves requests addressed to the proxy itself.
func directHandler(latency *metrics.Latency) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(latency))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok\n")
	})
	return mux
}
