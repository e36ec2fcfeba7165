package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Ping the array and report pod or array-wide capacity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		o, ctx, err := buildOrchestrator(ctx, "status")
		if err != nil {
			return err
		}
		if err := o.Array.Ping(ctx); err != nil {
			return fmt.Errorf("array unreachable: %w", err)
		}

		cap_, err := o.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("total=%d used=%d available=%d\n", cap_.TotalBytes, cap_.UsedBytes, cap_.AvailableBytes())
		return nil
	},
}
