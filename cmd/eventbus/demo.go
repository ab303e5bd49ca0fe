package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/shuldan/eventbus/pkg/eventbus"
)

type OrderPlaced struct {
	eventbus.IntegrationEvent
	OrderID string  `json:"order_id"`
	Amount  float64 `json:"amount"`
}

func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Round-trip sample events through the configured transport",
		Args:  cobra.NoArgs,
		RunE:  runDemo,
	}

	cmd.Flags().Int("count", 3, "Number of events to publish")
	cmd.Flags().Duration("timeout", 10*time.Second, "How long to wait for deliveries")

	return cmd
}

func runDemo(cmd *cobra.Command, _ []string) error {
	count, _ := cmd.Flags().GetInt("count")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	rt, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	var mu sync.Mutex
	var wg sync.WaitGroup
	out := cmd.OutOrStdout()
	wg.Add(2 * count)

	_ = rt.handlers.Instance("demo-typed", eventbus.HandlerFor(func(_ context.Context, e OrderPlaced) error {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "typed   %s amount=%.2f\n", e.OrderID, e.Amount)
		wg.Done()
		return nil
	}))
	_ = rt.handlers.Instance("demo-dynamic", eventbus.HandlerFor(func(_ context.Context, e eventbus.DynamicEvent) error {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "dynamic %s %d bytes\n", e.Name, len(e.Payload))
		wg.Done()
		return nil
	}))

	if err := eventbus.Subscribe[OrderPlaced](ctx, rt.bus, "demo-typed"); err != nil {
		return err
	}
	if err := rt.bus.SubscribeDynamic(ctx, "OrderPlaced", "demo-dynamic"); err != nil {
		return err
	}

	for i := 1; i <= count; i++ {
		event := OrderPlaced{
			IntegrationEvent: eventbus.NewIntegrationEvent(),
			OrderID:          fmt.Sprintf("order-%d", i),
			Amount:           float64(i) * 10,
		}
		if err := rt.bus.Publish(ctx, event); err != nil {
			return err
		}
	}

	delivered := make(chan struct{})
	go func() {
		wg.Wait()
		close(delivered)
	}()

	select {
	case <-delivered:
		fmt.Fprintf(out, "delivered %d events to 2 handlers\n", count)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("demo timed out waiting for deliveries: %w", ctx.Err())
	}
}
