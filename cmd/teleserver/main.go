// Command teleserver is the CoAP/UDP telemetry server entrypoint,
// translated from main.c's --port/--verbose argument parsing into a
// cobra command tree in the style of absmach-magistrala/cli.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/giterlab/teleserver/internal/clock"
	"github.com/giterlab/teleserver/internal/coap"
	"github.com/giterlab/teleserver/internal/dispatcher"
	"github.com/giterlab/teleserver/internal/handlers"
	"github.com/giterlab/teleserver/internal/logx"
	"github.com/giterlab/teleserver/internal/server"
	"github.com/giterlab/teleserver/internal/telemetry"
)

// buildVersion is overridable via -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

const defaultPort = 5683

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var port int
	var verbose bool

	root := &cobra.Command{
		Use:   "teleserver",
		Short: "CoAP/UDP telemetry server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port < 0 || port > 65535 {
				return fmt.Errorf("port must be between 0 and 65535, got %d", port)
			}
			return runServer(uint16(port), verbose)
		},
	}
	root.Flags().IntVar(&port, "port", defaultPort, "UDP port to listen on (0 for an OS-assigned port)")
	root.Flags().BoolVar(&verbose, "verbose", false, "enable INFO-level and CoAP RX/TX logging")

	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the teleserver build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildVersion)
		},
	}
}

func runServer(port uint16, verbose bool) error {
	log := logx.New()
	log.Enable(verbose)

	c := clock.Real{}
	store := telemetry.New(c)
	disp := dispatcher.New()

	srv, err := server.Create(port, disp, log, c)
	if err != nil {
		return fmt.Errorf("teleserver: %w", err)
	}
	defer srv.Close()

	// Routes are registered after bind so Status can report the effective
	// bound port (port may have been 0, an ephemeral-port request); Dispatch
	// only reads disp's route table when a datagram is processed, so this
	// ordering is safe relative to srv.Run below.
	th := handlers.NewTelemetry(store, c, srv.Port())
	disp.Handle("api/v1/telemetry", coap.POST, th.Post)
	disp.Handle("api/v1/telemetry", coap.GET, th.Get)
	disp.Handle("api/v1/health", coap.GET, th.Health)
	disp.Handle("api/v1/status", coap.GET, th.Status)
	disp.Handle("test/echo", coap.POST, handlers.Echo)
	disp.Handle("hello", coap.GET, handlers.Hello)
	disp.Handle("time", coap.GET, handlers.Time(c))
	disp.Handle("echo", coap.POST, handlers.Echo)

	log.Info("teleserver: running on udp/%d", srv.Port())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		srv.Stop()
	}()

	return srv.Run(-1)
}
