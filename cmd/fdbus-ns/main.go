// Command fdbus-ns is the name server binary: it answers allocate/
// register/unregister/query requests for the bus and, with --cluster
// set, replicates its registry through raft so a name server cluster
// survives the loss of any minority of its replicas.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cuemby/fdbus/pkg/config"
	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdlog"
	"github.com/cuemby/fdbus/pkg/metrics"
	"github.com/cuemby/fdbus/pkg/nameserver"
	"github.com/cuemby/fdbus/pkg/transport"
	"github.com/hashicorp/raft"
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
	Use:     "fdbus-ns",
	Short:   "fdbus name server",
	Version: Version,
	RunE:    runNameServer,
}

func init() {
	config.RegisterFlags(rootCmd.Flags())
	rootCmd.Flags().Bool("cluster", false, "run the registry replicated through raft instead of standalone")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "bind address for /metrics, /health, /ready, /live")
	rootCmd.SetVersionTemplate(fmt.Sprintf("fdbus-ns version %s (%s)\n", Version, Commit))
}

func runNameServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rootCmd.Flags())
	if err != nil {
		return err
	}
	fdlog.Init(fdlog.Config{Level: fdlog.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

	clustered, _ := cmd.Flags().GetBool("cluster")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	registry := nameserver.NewRegistry()

	var cluster *nameserver.Cluster
	if clustered {
		peers, err := parsePeers(cfg.Peers)
		if err != nil {
			return fmt.Errorf("parsing --peers: %w", err)
		}
		cluster, err = nameserver.Bootstrap(nameserver.ClusterConfig{
			NodeID:   cfg.NodeID,
			BindAddr: cfg.BindAddr,
			DataDir:  cfg.DataDir,
			Peers:    peers,
		}, registry)
		if err != nil {
			return fmt.Errorf("bootstrap cluster: %w", err)
		}
		fdlog.Info("name server raft cluster bootstrapped")
	}

	ctx := fdctx.New()
	ctx.Start()

	srv, err := nameserver.NewServer(ctx, registry, cluster)
	if err != nil {
		return fmt.Errorf("create name server: %w", err)
	}

	if cfg.IPCPath != "" {
		u, err := transport.ParseURL("ipc://" + cfg.IPCPath)
		if err != nil {
			return err
		}
		if _, err := srv.Endpoint().Bind(u); err != nil {
			return fmt.Errorf("bind ipc listener: %w", err)
		}
		fdlog.WithComponent("fdbus-ns").Info().Str("url", u.String()).Msg("listening")
	}
	if cfg.TCPAddr != "" {
		u, err := transport.ParseURL("tcp://" + cfg.TCPAddr)
		if err != nil {
			return err
		}
		if _, err := srv.Endpoint().Bind(u); err != nil {
			return fmt.Errorf("bind tcp listener: %w", err)
		}
		fdlog.WithComponent("fdbus-ns").Info().Str("url", u.String()).Msg("listening")
	}

	metrics.SetVersion(Version)
	metrics.RegisterComponent("bus", true, "listening")
	metrics.RegisterComponent("nameserver", true, "ready")

	collector := metrics.NewCollector(15*time.Second, srv.MetricsSampler())
	collector.Start()
	defer collector.Stop()

	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			fdlog.WithComponent("fdbus-ns").Error().Err(err).Msg("metrics server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fdlog.Info("shutting down")
	if cluster != nil {
		_ = cluster.Shutdown()
	}
	ctx.Destroy()
	return nil
}

// parsePeers turns "node-id@host:port" strings from --peers into the
// raft.Server list Bootstrap's ClusterConfig expects.
func parsePeers(raw []string) ([]raft.Server, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	servers := make([]raft.Server, 0, len(raw))
	for _, p := range raw {
		parts := strings.SplitN(p, "@", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed peer %q, want node-id@host:port", p)
		}
		servers = append(servers, raft.Server{
			ID:      raft.ServerID(parts[0]),
			Address: raft.ServerAddress(parts[1]),
		})
	}
	return servers, nil
}
