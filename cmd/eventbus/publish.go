package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shuldan/eventbus/pkg/eventbus"
)

func newPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <event> <json>",
		Short: "Publish a raw JSON payload under an event name",
		Args:  cobra.ExactArgs(2),
		RunE:  runPublish,
	}
}

func runPublish(cmd *cobra.Command, args []string) error {
	name, payload := args[0], []byte(args[1])
	if !json.Valid(payload) {
		return fmt.Errorf("payload of %s is not valid JSON", name)
	}

	rt, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	event := eventbus.DynamicEvent{Name: name, Payload: payload}
	if err := rt.bus.Publish(cmd.Context(), event); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "published %s\n", rt.bus.NameResolver().Normalize(name))
	return nil
}
