package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOsHostnameMatchesStandardLibrary(t *testing.T) {
	want, wantErr := os.Hostname()
	got, gotErr := osHostname()
	assert.Equal(t, want, got)
	assert.Equal(t, wantErr, gotErr)
}

func TestDefaultNodeNameIsNeverEmpty(t *testing.T) {
	name := defaultNodeName()
	assert.NotEmpty(t, name, "defaultNodeName must never return an empty node name")
}

func TestAllocCmdRejectsInvalidVmidBeforeTouchingTheArray(t *testing.T) {
	err := allocCmd.RunE(allocCmd, []string{"not-a-number"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid vmid")
}

func TestFreeCmdRejectsInvalidVmidBeforeTouchingTheArray(t *testing.T) {
	err := freeCmd.RunE(freeCmd, []string{"not-a-number", "vm-1-disk-0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid vmid")
}

func TestSnapshotCreateCmdRejectsInvalidVmid(t *testing.T) {
	err := snapshotCreateCmd.RunE(snapshotCreateCmd, []string{"nope", "vm-1-disk-0", "snap"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid vmid")
}

func TestSnapshotDeleteCmdRejectsInvalidVmid(t *testing.T) {
	err := snapshotDeleteCmd.RunE(snapshotDeleteCmd, []string{"nope", "vm-1-disk-0", "snap"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid vmid")
}

func TestCommandArgCounts(t *testing.T) {
	assert.NoError(t, allocCmd.Args(allocCmd, []string{"1"}))
	assert.Error(t, allocCmd.Args(allocCmd, []string{}))

	assert.NoError(t, freeCmd.Args(freeCmd, []string{"1", "vm-1-disk-0"}))
	assert.Error(t, freeCmd.Args(freeCmd, []string{"1"}))

	assert.NoError(t, snapshotCreateCmd.Args(snapshotCreateCmd, []string{"1", "vm-1-disk-0", "snap"}))
	assert.Error(t, snapshotCreateCmd.Args(snapshotCreateCmd, []string{"1", "vm-1-disk-0"}))

	assert.NoError(t, snapshotRollbackCmd.Args(snapshotRollbackCmd, []string{"vm-1-disk-0", "snap"}))
	assert.Error(t, snapshotRollbackCmd.Args(snapshotRollbackCmd, []string{"vm-1-disk-0"}))
}

func TestSnapshotCmdHasAllSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range snapshotCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"create", "delete", "rollback", "path", "unpath"} {
		assert.True(t, names[want], "expected %q registered under snapshot", want)
	}
}

func TestVolumeCmdHasAllSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range volumeCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"activate", "deactivate", "path", "rename", "size-info", "has-feature", "snapshot-list", "find-free-diskname"} {
		assert.True(t, names[want], "expected %q registered under volume", want)
	}
}

func TestVolumeRenameCmdRejectsInvalidTargetVmid(t *testing.T) {
	err := volumeRenameCmd.RunE(volumeRenameCmd, []string{"vm-1-disk-0", "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid target-vmid")
}

func TestVolumeFindFreeDisknameCmdRejectsInvalidVmid(t *testing.T) {
	err := volumeFindFreeDisknameCmd.RunE(volumeFindFreeDisknameCmd, []string{"not-a-number"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid vmid")
}

func TestVolumeRenameCmdArgCounts(t *testing.T) {
	assert.NoError(t, volumeRenameCmd.Args(volumeRenameCmd, []string{"vm-1-disk-0", "2"}))
	assert.NoError(t, volumeRenameCmd.Args(volumeRenameCmd, []string{"vm-1-disk-0", "2", "vm-2-disk-0"}))
	assert.Error(t, volumeRenameCmd.Args(volumeRenameCmd, []string{"vm-1-disk-0"}))
}
