package main

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/shuldan/eventbus/pkg/config"
	"github.com/shuldan/eventbus/pkg/contracts"
	"github.com/shuldan/eventbus/pkg/eventbus"
	"github.com/shuldan/eventbus/pkg/logger"
	"github.com/shuldan/eventbus/pkg/telemetry"
	"github.com/shuldan/eventbus/pkg/transport"
)

type session struct {
	config   contracts.Config
	logger   contracts.Logger
	handlers *eventbus.Handlers
	bus      *eventbus.Bus
	metrics  *telemetry.Provider
	out      io.Writer
}

// newSession loads configuration and builds a bus over the configured
// transport. The caller owns the returned bus.
func newSession(cmd *cobra.Command, opts ...eventbus.Option) (*session, error) {
	paths, _ := cmd.Flags().GetStringSlice("config")
	envPrefix, _ := cmd.Flags().GetString("env-prefix")
	level, _ := cmd.Flags().GetString("log-level")
	withMetrics, _ := cmd.Flags().GetBool("metrics")

	cfg, err := config.Load(envPrefix, paths...)
	if err != nil {
		return nil, err
	}

	var logOpts []logger.Option
	logOpts = append(logOpts, logger.WithWriter(cmd.ErrOrStderr()))
	if level != "" {
		lvl, err := logger.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		logOpts = append(logOpts, logger.WithLevel(lvl))
	}
	log, err := logger.FromConfig(cfg, logOpts...)
	if err != nil {
		return nil, err
	}

	tr, err := transport.New(cfg, log)
	if err != nil {
		return nil, err
	}

	handlers := eventbus.NewHandlers()
	busOpts := append(eventbus.OptionsFromConfig(cfg), eventbus.WithLogger(log))

	var metrics *telemetry.Provider
	if withMetrics || cfg.GetBool("eventbus.metrics.enabled") {
		metrics, err = telemetry.NewProvider()
		if err != nil {
			_ = tr.Close()
			return nil, err
		}
		busOpts = append(busOpts, eventbus.WithCounter(metrics.Counter()))
	}
	busOpts = append(busOpts, opts...)

	return &session{
		config:   cfg,
		logger:   log,
		handlers: handlers,
		bus:      eventbus.New(tr, handlers, busOpts...),
		metrics:  metrics,
		out:      cmd.OutOrStdout(),
	}, nil
}

// Close shuts the bus down and, with metrics enabled, prints what was
// recorded.
func (s *session) Close() error {
	err := s.bus.Close()
	if s.metrics == nil {
		return err
	}

	ctx := context.Background()
	return errors.Join(err, s.metrics.Report(ctx, s.out), s.metrics.Shutdown(ctx))
}
