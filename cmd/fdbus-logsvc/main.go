// Command fdbus-logsvc is the log server binary: it collects
// message-trace and debug-trace records forwarded by every producer
// on the bus, retains a byte-budgeted cache for late-joining viewers,
// and answers get/set-config requests.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/fdbus/pkg/config"
	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdlog"
	"github.com/cuemby/fdbus/pkg/logger"
	"github.com/cuemby/fdbus/pkg/metrics"
	"github.com/cuemby/fdbus/pkg/transport"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fdbus-logsvc",
	Short:   "fdbus log server",
	Version: Version,
	RunE:    runLogServer,
}

func init() {
	config.RegisterFlags(rootCmd.Flags())
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "bind address for /metrics, /health, /ready, /live")
	rootCmd.SetVersionTemplate(fmt.Sprintf("fdbus-logsvc version %s (%s)\n", Version, Commit))
}

func runLogServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rootCmd.Flags())
	if err != nil {
		return err
	}
	fdlog.Init(fdlog.Config{Level: fdlog.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	ctx := fdctx.New()
	ctx.Start()

	logCfg := logger.DefaultConfig()
	logCfg.CacheSizeKB = cfg.CacheSizeKB
	logCfg.LogPath = cfg.LogPath
	srv, err := logger.NewServer(ctx, logCfg)
	if err != nil {
		return fmt.Errorf("create log server: %w", err)
	}

	if cfg.IPCPath != "" {
		u, err := transport.ParseURL("ipc://" + cfg.IPCPath)
		if err != nil {
			return err
		}
		if _, err := srv.Endpoint().Bind(u); err != nil {
			return fmt.Errorf("bind ipc listener: %w", err)
		}
	}
	if cfg.TCPAddr != "" {
		u, err := transport.ParseURL("tcp://" + cfg.TCPAddr)
		if err != nil {
			return err
		}
		if _, err := srv.Endpoint().Bind(u); err != nil {
			return fmt.Errorf("bind tcp listener: %w", err)
		}
	}

	metrics.SetVersion(Version)
	metrics.RegisterComponent("bus", true, "listening")
	metrics.RegisterComponent("nameserver", true, "not required")

	collector := metrics.NewCollector(15*time.Second, srv.MetricsSampler())
	collector.Start()
	defer collector.Stop()

	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			fdlog.WithComponent("fdbus-logsvc").Error().Err(err).Msg("metrics server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fdlog.Info("shutting down")
	ctx.Destroy()
	return nil
}
