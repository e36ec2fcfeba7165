package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var freeCmd = &cobra.Command{
	Use:   "free <vmid> <volname>",
	Short: "Disconnect and destroy a volume",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmid, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid vmid %q: %w", args[0], err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		o, ctx, err := buildOrchestrator(ctx, "free")
		if err != nil {
			return err
		}
		return o.Free(ctx, vmid, args[1])
	},
}
