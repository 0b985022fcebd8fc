package cli

import (
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nainya/pinpoint/internal/config"
	"github.com/nainya/pinpoint/internal/metrics"
	"github.com/nainya/pinpoint/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Serve the dataset builder API, the saved datasets and the static front end.

Metrics, health and pprof endpoints are served on a separate port unless
metrics are disabled in the configuration.`,
		Example: `  # Serve on the default port
  pinpoint serve

  # Serve on another port and reload the store when it is edited by hand
  pinpoint serve --port 8080 --watch`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("host", config.DefaultHost, "Address to bind")
	cmd.Flags().Int("port", config.DefaultPort, "API port")
	cmd.Flags().Int("metrics-port", config.DefaultMetricsPort, "Metrics and health port")
	cmd.Flags().String("static-dir", config.DefaultStaticDir, "Directory of static front-end files")
	cmd.Flags().Bool("watch", false, "Reload the store when its document changes on disk")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := getApp(cmd)
	if err != nil {
		return err
	}
	a.withMetrics(metrics.NewMetrics(prometheus.DefaultRegisterer))

	st, err := a.openStore()
	if err != nil {
		return err
	}
	cache, err := a.openMapCache()
	if err != nil {
		return err
	}

	opts := server.Options{
		Addr:              a.cfg.Server.Addr(),
		StaticDir:         a.cfg.Server.StaticDir,
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   a.cfg.Server.ShutdownTimeout,
		WatchStore:        a.cfg.Store.Watch,
		Store:             st,
		Searcher:          a.client,
		Fetcher:           a.fetcher,
		MapCache:          cache,
		Metrics:           a.metrics,
		Logger:            a.log,
	}
	if a.cfg.Metrics.Enabled {
		opts.MetricsAddr = net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Metrics.Port))
		opts.Gatherer = prometheus.DefaultGatherer
	}

	srv, err := server.NewServer(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		return err
	}
	a.log.Info("Shutdown complete").Send()
	return nil
}
