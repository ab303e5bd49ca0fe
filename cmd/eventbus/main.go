package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "eventbus",
		Short:        "Publish and consume integration events",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringSliceP("config", "c", []string{"config.yaml", "config.json"}, "Config files, first readable one wins")
	root.PersistentFlags().String("env-prefix", "EVENTBUS", "Prefix of environment overrides")
	root.PersistentFlags().String("log-level", "", "Override logger.level")
	root.PersistentFlags().Bool("metrics", false, "Print dispatch metrics on exit")

	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("eventbus version %s\n", version))

	root.AddCommand(newPublishCmd())
	root.AddCommand(newListenCmd())
	root.AddCommand(newDemoCmd())
	return root
}
