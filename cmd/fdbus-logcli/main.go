// Command fdbus-logcli is a log viewer: it connects to a running log
// server, replays its cached history, and prints every message-trace
// and debug-trace record as it arrives.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/cuemby/fdbus/pkg/logger"
	"github.com/cuemby/fdbus/pkg/message"
	"github.com/cuemby/fdbus/pkg/object"
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
	Use:     "fdbus-logcli",
	Short:   "fdbus log viewer",
	Version: Version,
	RunE:    runViewer,
}

func init() {
	rootCmd.Flags().String("server", "ipc:///tmp/fdb-ipc0", "log server URL to connect to")
	rootCmd.Flags().Bool("messages", true, "show message-trace records")
	rootCmd.Flags().Bool("traces", true, "show debug-trace records")
	rootCmd.SetVersionTemplate(fmt.Sprintf("fdbus-logcli version %s (%s)\n", Version, Commit))
}

func runViewer(cmd *cobra.Command, args []string) error {
	serverURL, _ := cmd.Flags().GetString("server")
	showMessages, _ := cmd.Flags().GetBool("messages")
	showTraces, _ := cmd.Flags().GetBool("traces")

	u, err := transport.ParseURL(serverURL)
	if err != nil {
		return fmt.Errorf("parsing --server: %w", err)
	}

	ctx := fdctx.New()
	ctx.Start()

	ep, err := object.NewEndpoint(ctx, "log-viewer", fdtypes.RoleClient)
	if err != nil {
		return fmt.Errorf("create viewer endpoint: %w", err)
	}

	ep.MainObject().OnBroadcast = func(obj *object.Object, sess *transport.Session, msg *message.Message) {
		switch fdtypes.EventCode(msg.Code) {
		case logger.EvtLogMessage:
			if !showMessages {
				return
			}
			rec, err := logger.DecodeMessageRecord(msg.Payload)
			if err != nil {
				return
			}
			fmt.Printf("[%s] %-9s %s/%s (%s) obj=%d code=%d len=%d\n",
				rec.Timestamp.Format(time.RFC3339Nano), rec.Kind, rec.Host, rec.Endpoint,
				rec.BusName, rec.ObjectID, rec.Code, rec.PayloadLen)
		case logger.EvtTraceMessage:
			if !showTraces {
				return
			}
			rec, err := logger.DecodeTraceRecord(msg.Payload)
			if err != nil {
				return
			}
			fmt.Printf("[%s] %-7s %s/%s: %s\n",
				rec.Timestamp.Format(time.RFC3339Nano), rec.Level, rec.Host, rec.Tag, rec.Message)
		}
	}

	online := make(chan *transport.Session, 1)
	ep.MainObject().OnOnline = func(obj *object.Object, sess *transport.Session, isFirst bool) {
		select {
		case online <- sess:
		default:
		}
	}
	if _, err := ep.Connect(u); err != nil {
		return fmt.Errorf("connect to %s: %w", u.String(), err)
	}

	var sess *transport.Session
	select {
	case sess = <-online:
	case <-time.After(3 * time.Second):
		return fmt.Errorf("connect to %s timed out", u.String())
	}

	items := []object.SubscribeItem{
		{Code: logger.EvtLogMessage, Topic: "", Type: object.SubscriptionNormal},
		{Code: logger.EvtTraceMessage, Topic: "", Type: object.SubscriptionNormal},
	}
	if _, err := ep.MainObject().Subscribe(sess, items, 2*time.Second); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	ctx.Destroy()
	return nil
}
