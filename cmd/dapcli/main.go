// dapcli is a small operator tool for poking at debug adapters: attach to a
// listening adapter (directly or via discovery) or launch one as a child
// process, run the initialize exchange, and stream its events to stdout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mini-dap/client"
	"mini-dap/loadbalance"
	"mini-dap/middleware"
	"mini-dap/registry"
)

// The events every adapter is expected to emit at some point in a session.
var standardEvents = []string{
	"initialized", "stopped", "continued", "exited", "terminated",
	"thread", "output", "breakpoint", "module", "process",
}

var (
	flagTimeout  time.Duration
	flagVerbose  bool
	flagClientID string
)

func main() {
	root := &cobra.Command{
		Use:           "dapcli",
		Short:         "Attach to or launch a debug adapter and stream its traffic",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", 10*time.Second, "per-request timeout")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&flagClientID, "client-id", "dapcli", "clientID sent in the initialize request")

	root.AddCommand(newAttachCmd(), newLaunchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dapcli:", err)
		os.Exit(1)
	}
}

func newAttachCmd() *cobra.Command {
	var addr, name string
	var etcdEndpoints []string

	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach to an adapter listening on TCP",
		RunE: func(cmd *cobra.Command, args []string) error {
			disconnected := make(chan error, 1)
			c := newClient(disconnected)
			switch {
			case addr != "":
				if err := c.Dial(addr); err != nil {
					return err
				}
			case name != "":
				if len(etcdEndpoints) == 0 {
					return fmt.Errorf("--name requires --etcd endpoints")
				}
				reg, err := registry.NewEtcdRegistry(etcdEndpoints)
				if err != nil {
					return err
				}
				if err := c.DialNamed(name, reg, &loadbalance.RoundRobinBalancer{}); err != nil {
					return err
				}
			default:
				return fmt.Errorf("one of --addr or --name is required")
			}
			return runSession(cmd.Context(), c, disconnected)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "adapter address (host:port)")
	cmd.Flags().StringVar(&name, "name", "", "discover the adapter by registered name")
	cmd.Flags().StringSliceVar(&etcdEndpoints, "etcd", nil, "etcd endpoints for discovery")
	return cmd
}

func newLaunchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "launch -- <adapter> [args...]",
		Short: "Launch an adapter process and talk to it over stdio",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			disconnected := make(chan error, 1)
			c := newClient(disconnected)
			if err := c.Launch(args[0], args[1:]...); err != nil {
				return err
			}
			return runSession(cmd.Context(), c, disconnected)
		},
	}
}

func newClient(disconnected chan<- error) *client.Client {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	return client.New(
		client.WithLogger(logger),
		client.WithMiddleware(
			middleware.Logging(logger),
			middleware.Timeout(flagTimeout),
		),
		client.WithDisconnectHandler(func(err error) { disconnected <- err }),
	)
}

// runSession drives the initialize exchange, then streams events until the
// adapter terminates the session, the stream drops, or the operator
// interrupts.
func runSession(ctx context.Context, c *client.Client, disconnected <-chan error) error {
	defer c.Disconnect()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	terminated := make(chan struct{})
	for _, event := range standardEvents {
		name := event
		c.OnEvent(name, func(body json.RawMessage) {
			printEvent(name, body)
		})
	}
	c.OnEventOnce("terminated", func(json.RawMessage) { close(terminated) })

	// Adapters that want a terminal ask us; dapcli has none to offer.
	c.OnReverseRequest("runInTerminal", func(ctx context.Context, args json.RawMessage) (any, error) {
		return nil, fmt.Errorf("dapcli cannot run terminal requests")
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, err := c.SendRequest(ctx, "initialize", map[string]any{
			"clientID":        flagClientID,
			"adapterID":       "dapcli",
			"linesStartAt1":   true,
			"columnsStartAt1": true,
			"pathFormat":      "path",
		})
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		fmt.Printf("capabilities: %s\n", compact(body))
		return nil
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-terminated:
			fmt.Println("adapter terminated the session")
		case <-disconnected:
			fmt.Println("connection closed")
		}
		return nil
	})
	return g.Wait()
}

func printEvent(name string, body json.RawMessage) {
	if len(body) == 0 {
		fmt.Printf("event %-12s\n", name)
		return
	}
	fmt.Printf("event %-12s %s\n", name, compact(body))
}

func compact(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(out)
}
