package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Operate on a plain volume's activation state, identity, and metadata",
}

var volumeActivateCmd = &cobra.Command{
	Use:   "activate <volname>",
	Short: "Connect and wait for a local device exposing a volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		o, ctx, err := buildOrchestrator(ctx, "activate_volume")
		if err != nil {
			return err
		}
		path, err := o.ActivateVolume(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var volumeDeactivateCmd = &cobra.Command{
	Use:   "deactivate <volname>",
	Short: "Tear down the local device exposing a volume, without disconnecting the host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		o, ctx, err := buildOrchestrator(ctx, "deactivate_volume")
		if err != nil {
			return err
		}
		return o.DeactivateVolume(ctx, args[0])
	},
}

var volumePathCmd = &cobra.Command{
	Use:   "path <volname>",
	Short: "Print the local device path for an already-activated volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		o, ctx, err := buildOrchestrator(ctx, "path")
		if err != nil {
			return err
		}
		path, err := o.Path(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var volumeRenameCmd = &cobra.Command{
	Use:   "rename <volname> <target-vmid> [target-volname]",
	Short: "Move a volume's host-side identity to another VM, auto-naming the disk if not given",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetVMID, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid target-vmid %q: %w", args[1], err)
		}
		targetVolname := ""
		if len(args) == 3 {
			targetVolname = args[2]
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		o, ctx, err := buildOrchestrator(ctx, "rename_volume")
		if err != nil {
			return err
		}
		renamed, err := o.RenameVolume(ctx, args[0], targetVMID, targetVolname)
		if err != nil {
			return err
		}
		fmt.Println(renamed)
		return nil
	},
}

var volumeSizeInfoCmd = &cobra.Command{
	Use:   "size-info <volname>",
	Short: "Print a volume's provisioned size, format, used space, and parent template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		o, ctx, err := buildOrchestrator(ctx, "volume_size_info")
		if err != nil {
			return err
		}
		sizeKiB, format, usedKiB, parent, err := o.VolumeSizeInfo(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("size=%d usedKiB=%d format=%s parent=%s\n", sizeKiB, usedKiB, format, parent)
		return nil
	},
}

var volumeHasFeatureCmd = &cobra.Command{
	Use:   "has-feature <feature> <volname> [snap]",
	Short: "Report whether a feature (snapshot, clone, template, copy, resize, rename) is supported",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap := ""
		if len(args) == 3 {
			snap = args[2]
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		o, _, err := buildOrchestrator(ctx, "volume_has_feature")
		if err != nil {
			return err
		}
		fmt.Println(o.VolumeHasFeature(args[0], args[1], snap))
		return nil
	},
}

var volumeSnapshotListCmd = &cobra.Command{
	Use:   "snapshot-list <volname>",
	Short: "List every user-visible snapshot name on a volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		o, ctx, err := buildOrchestrator(ctx, "volume_snapshot_list")
		if err != nil {
			return err
		}
		names, err := o.VolumeSnapshotList(ctx, args[0])
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

var volumeFindFreeDisknameCmd = &cobra.Command{
	Use:   "find-free-diskname <vmid>",
	Short: "Print the next unused disk index's host-side volume name for a VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmid, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid vmid %q: %w", args[0], err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		o, ctx, err := buildOrchestrator(ctx, "find_free_diskname")
		if err != nil {
			return err
		}
		name, err := o.FindFreeDiskname(ctx, vmid)
		if err != nil {
			return err
		}
		fmt.Println(name)
		return nil
	},
}

func init() {
	volumeCmd.AddCommand(
		volumeActivateCmd,
		volumeDeactivateCmd,
		volumePathCmd,
		volumeRenameCmd,
		volumeSizeInfoCmd,
		volumeHasFeatureCmd,
		volumeSnapshotListCmd,
		volumeFindFreeDisknameCmd,
	)
}
