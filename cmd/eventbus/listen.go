package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shuldan/eventbus/pkg/eventbus"
)

const listenerID eventbus.HandlerID = "cli-listener"

func newListenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen <event>",
		Short: "Print every payload received for an event",
		Args:  cobra.ExactArgs(1),
		RunE:  runListen,
	}

	cmd.Flags().Duration("timeout", 0, "Stop after this long (0 waits for a signal)")
	cmd.Flags().Int("count", 0, "Stop after this many events (0 is unlimited)")

	return cmd
}

func runListen(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	limit, _ := cmd.Flags().GetInt("count")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rt, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	var mu sync.Mutex
	received := 0
	done := make(chan struct{})
	out := cmd.OutOrStdout()

	err = rt.handlers.Instance(listenerID, eventbus.HandlerFor(func(_ context.Context, e eventbus.DynamicEvent) error {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "%s %s %s\n", time.Now().UTC().Format(time.RFC3339), e.Name, e.Payload)
		received++
		if limit > 0 && received == limit {
			close(done)
		}
		return nil
	}))
	if err != nil {
		return err
	}

	if err := rt.bus.SubscribeDynamic(ctx, args[0], listenerID); err != nil {
		return err
	}
	rt.logger.Info("listening", "event", args[0])

	select {
	case <-ctx.Done():
	case <-done:
	}
	return nil
}
