package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/giantswarm/prealloc"
)

func newWorkerCmd(g *globalFlags) *cobra.Command {
	var cfg prealloc.WorkerConfig
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run one pool worker (started by `prealloc serve`)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger(os.Stderr, g.logFormat, g.logLevel)
			if err != nil {
				return err
			}
			cfg.Logger = log.With("component", "prealloc", "slot", cfg.SlotID)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return prealloc.ServeWorker(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.SlotID, "slot-id", "", "slot identifier assigned by the pool")
	cmd.Flags().StringVar(&cfg.DataDir, "data-dir", "", "per-slot scratch directory")
	cmd.Flags().StringVar(&cfg.ProfileDir, "profile-dir", "", "shared profile directory")
	_ = cmd.MarkFlagRequired("slot-id")
	_ = cmd.MarkFlagRequired("data-dir")
	return cmd
}
