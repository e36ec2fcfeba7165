package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var allocFlags struct {
	format  string
	name    string
	sizeKiB int64
}

var allocCmd = &cobra.Command{
	Use:   "alloc <vmid>",
	Short: "Allocate a disk, state, or cloudinit volume for a VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmid, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid vmid %q: %w", args[0], err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		o, ctx, err := buildOrchestrator(ctx, "alloc")
		if err != nil {
			return err
		}

		hostVolname, err := o.Alloc(ctx, vmid, allocFlags.format, allocFlags.name, allocFlags.sizeKiB)
		if err != nil {
			return err
		}
		fmt.Println(hostVolname)
		return nil
	},
}

func init() {
	f := allocCmd.Flags()
	f.StringVar(&allocFlags.format, "format", "raw", "volume format, only \"raw\" is supported")
	f.StringVar(&allocFlags.name, "name", "", "desired host-side volume name, for state/cloudinit volumes")
	f.Int64Var(&allocFlags.sizeKiB, "size-kib", 0, "volume size in KiB")
	_ = allocCmd.MarkFlagRequired("size-kib")
}
