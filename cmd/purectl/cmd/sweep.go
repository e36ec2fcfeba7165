package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Tear down and eradicate temp clones left behind by a crashed \"snapshot path\" caller",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		o, ctx, err := buildOrchestrator(ctx, "sweep")
		if err != nil {
			return err
		}
		o.SweepOrphanTempClones(ctx)
		return nil
	},
}
