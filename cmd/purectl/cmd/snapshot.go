package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Create, delete, roll back, or mount volume snapshots by hand",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create <vmid> <volname> <snap>",
	Short: "Create a snapshot, with a best-effort config backup alongside it",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmid, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid vmid %q: %w", args[0], err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		o, ctx, err := buildOrchestrator(ctx, "snapshot")
		if err != nil {
			return err
		}
		return o.Snapshot(ctx, vmid, args[1], args[2])
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <vmid> <volname> <snap>",
	Short: "Delete a snapshot and its matching config backup, idempotent on absence",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmid, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid vmid %q: %w", args[0], err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		o, ctx, err := buildOrchestrator(ctx, "snapshot_delete")
		if err != nil {
			return err
		}
		return o.DeleteSnapshot(ctx, vmid, args[1], args[2])
	},
}

var snapshotRollbackCmd = &cobra.Command{
	Use:   "rollback <volname> <snap>",
	Short: "Overwrite a volume in place from a snapshot; refuses if the device is in use",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		o, ctx, err := buildOrchestrator(ctx, "rollback")
		if err != nil {
			return err
		}
		return o.Rollback(ctx, args[0], args[1])
	},
}

var snapshotPathCmd = &cobra.Command{
	Use:   "path <volname> <snap>",
	Short: "Clone, connect, and wait for a local device exposing a snapshot's content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		o, ctx, err := buildOrchestrator(ctx, "path")
		if err != nil {
			return err
		}
		path, err := o.PathForSnapshot(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var snapshotUnpathCmd = &cobra.Command{
	Use:   "unpath <volname> <snap>",
	Short: "Tear down and eradicate the temp clone created by \"path\"",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		o, ctx, err := buildOrchestrator(ctx, "unpath")
		if err != nil {
			return err
		}
		return o.DeactivateSnapshotPath(ctx, args[0], args[1])
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotCreateCmd, snapshotDeleteCmd, snapshotRollbackCmd, snapshotPathCmd, snapshotUnpathCmd)
}
