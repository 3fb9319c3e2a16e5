// Command fdbus-hs is the host server binary: it tracks every
// federated host's heartbeat and exposes a HostAdmin gRPC
// introspection service alongside the bus's own framed protocol.
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
	"github.com/cuemby/fdbus/pkg/hostserver"
	"github.com/cuemby/fdbus/pkg/metrics"
	"github.com/cuemby/fdbus/pkg/security"
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
	Use:     "fdbus-hs",
	Short:   "fdbus host server",
	Version: Version,
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().String("admin-addr", "127.0.0.1:9091", "bind address for the HostAdmin gRPC service")
	rootCmd.PersistentFlags().String("metrics-addr", "127.0.0.1:9090", "bind address for /metrics, /health, /ready, /live")
	rootCmd.SetVersionTemplate(fmt.Sprintf("fdbus-hs version %s (%s)\n", Version, Commit))

	rootCmd.RunE = runHostServer
	rootCmd.AddCommand(adminCmd)
}

func runHostServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rootCmd.PersistentFlags())
	if err != nil {
		return err
	}
	fdlog.Init(fdlog.Config{Level: fdlog.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

	adminAddr, _ := cmd.Flags().GetString("admin-addr")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	ctx := fdctx.New()
	ctx.Start()

	tokens := security.NewTokenManager()
	srv, err := hostserver.NewServer(ctx, tokens)
	if err != nil {
		return fmt.Errorf("create host server: %w", err)
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

	admin, err := hostserver.ListenAndServeAdmin(adminAddr, srv.Registry())
	if err != nil {
		return fmt.Errorf("start admin service: %w", err)
	}
	go func() {
		if err := admin.Serve(); err != nil {
			fdlog.WithComponent("fdbus-hs").Error().Err(err).Msg("admin server error")
		}
	}()
	fdlog.WithComponent("fdbus-hs").Info().Str("addr", adminAddr).Msg("HostAdmin gRPC listening")

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
			fdlog.WithComponent("fdbus-hs").Error().Err(err).Msg("metrics server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fdlog.Info("shutting down")
	admin.Stop()
	ctx.Destroy()
	return nil
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "query a running host server's HostAdmin service",
}

var adminListHostsCmd = &cobra.Command{
	Use:   "list-hosts",
	Short: "list every host registered with a host server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		hosts, err := hostserver.DialAndListHosts(addr)
		if err != nil {
			return err
		}
		for _, h := range hosts {
			fmt.Printf("%s\t%s\t%s\tready=%v\n", h.Name, h.IP, h.NameServerURL, h.Ready)
		}
		return nil
	},
}

func init() {
	adminListHostsCmd.Flags().String("addr", "127.0.0.1:9091", "HostAdmin gRPC address to dial")
	adminCmd.AddCommand(adminListHostsCmd)
}
