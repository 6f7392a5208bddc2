package cli

import (
	"context"

	"challenge-engine/internal/config"
	"challenge-engine/internal/logger"
	"github.com/spf13/cobra"
)

// NewSweepCmd completes every active challenge whose end date has passed. It is a
// one-shot pass meant to be run by an operator or an external scheduler.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Complete overdue challenges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), *configPath)
		},
	}
}

func runSweep(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logging.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	engine, cleanup, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	expired, err := engine.Challenges.ExpireOverdue(ctx)
	if err != nil {
		return err
	}
	log.Info("sweep finished", "expired", expired)
	return nil
}
