package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"purearray-pve-plugin/naming"
	"purearray-pve-plugin/sanfabric"
)

const configBackupSizeBytes = 1 << 20 // 1 MiB
const mountTimeout = 10 * time.Second

// writeConfigBackup is best-effort: on any failure it returns an error for
// the caller to log, but never aborts the snapshot it was called from.
func (o *Orchestrator) writeConfigBackup(ctx context.Context, vmid int, hostVolname, snapName string) error {
	confPath := vmConfigPath(vmid)
	if _, err := os.Stat(confPath); err != nil {
		return fmt.Errorf("no config file at %s: %w", confPath, err)
	}

	arrayName := naming.EncodeConfigVolume(o.StorageID, vmid, snapName)
	qualified := naming.QualifyPod(o.Config.Pod, arrayName)

	v, err := o.Array.CreateVolume(ctx, qualified, configBackupSizeBytes)
	if err != nil {
		return err
	}

	hostName := o.hostName()
	if _, err := o.Array.Connect(ctx, hostName, qualified); err != nil {
		_ = o.Array.DestroyVolume(ctx, qualified)
		return err
	}

	path, err := o.Resolver.WaitForDevice(ctx, v.WWID(), o.deviceTimeout(), o.rescanFunc())
	if err != nil {
		_ = o.Array.Disconnect(ctx, hostName, qualified)
		_ = o.Array.DestroyVolume(ctx, qualified)
		return err
	}

	if err := formatAndWriteConfigBackup(ctx, path, confPath, vmid, snapName); err != nil {
		_ = o.teardownConfigBackupDevice(ctx, path)
		_ = o.Array.Disconnect(ctx, hostName, qualified)
		_ = o.Array.DestroyVolume(ctx, qualified)
		return err
	}

	return o.teardownConfigBackupDevice(ctx, path)
}

func (o *Orchestrator) teardownConfigBackupDevice(ctx context.Context, path string) error {
	slaves, _ := o.Resolver.Slaves(baseName(path))
	return o.Resolver.Teardown(ctx, path, slaves)
}

func formatAndWriteConfigBackup(ctx context.Context, devicePath, confPath string, vmid int, snapName string) error {
	if _, err := sanfabric.RunCommand(ctx, 30*time.Second, nil, "mkfs.ext4", "-O", "^has_journal", "-F", devicePath); err != nil {
		return err
	}

	mountDir, err := os.MkdirTemp("", "pve-vmconf-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(mountDir)

	if _, err := sanfabric.RunCommand(ctx, mountTimeout, nil, "mount", devicePath, mountDir); err != nil {
		return err
	}
	defer sanfabric.RunCommand(ctx, mountTimeout, nil, "umount", mountDir)

	confBytes, err := os.ReadFile(confPath)
	if err != nil {
		return err
	}
	if err := verifyMountHasSpaceFor(mountDir, int64(len(confBytes))); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(mountDir, "vm.conf"), confBytes, 0644); err != nil {
		return err
	}

	metadata := fmt.Sprintf("vmid=%d\nsnapshot=%s\ntimestamp=%s\nsource=%s\n",
		vmid, snapName, time.Now().UTC().Format(time.RFC3339), confPath)
	return os.WriteFile(filepath.Join(mountDir, "metadata"), []byte(metadata), 0644)
}

// verifyMountHasSpaceFor guards against a near-full ext4 filesystem (mkfs
// overhead and reserved blocks can eat into a 1 MiB volume) before a write
// that "mount" succeeding wouldn't by itself have ruled out.
func verifyMountHasSpaceFor(mountDir string, needed int64) error {
	var st unix.Statfs_t
	if err := unix.Statfs(mountDir, &st); err != nil {
		return err
	}
	available := int64(st.Bavail) * int64(st.Bsize)
	if available < needed {
		return fmt.Errorf("%s has %d bytes free, need %d for the VM config backup", mountDir, available, needed)
	}
	return nil
}

func vmConfigPath(vmid int) string {
	return fmt.Sprintf("/etc/pve/qemu-server/%d.conf", vmid)
}

// deleteConfigBackup removes the single config-backup volume for
// (vmid, snapName); failures are logged but never fail the caller.
func (o *Orchestrator) deleteConfigBackup(ctx context.Context, vmid int, snapName string) {
	arrayName := naming.EncodeConfigVolume(o.StorageID, vmid, snapName)
	qualified := naming.QualifyPod(o.Config.Pod, arrayName)
	if err := o.Array.DestroyVolume(ctx, qualified); err != nil {
		o.log(ctx).Warningf("config backup delete for %s failed: %v", arrayName, err)
	}
}

// sweepConfigBackups removes every config-backup volume for vmid, called
// once the VM's last disk has been freed.
func (o *Orchestrator) sweepConfigBackups(ctx context.Context, vmid int) {
	prefix := naming.QualifyPod(o.Config.Pod, fmt.Sprintf("pve-%s-%d-vmconf-", naming.StorageField(o.StorageID), vmid))
	volumes, err := o.Array.ListVolumes(ctx, prefix, false)
	if err != nil {
		o.log(ctx).Warningf("config backup sweep listing failed for vmid %d: %v", vmid, err)
		return
	}
	for _, v := range volumes {
		if err := o.Array.DestroyVolume(ctx, v.Name); err != nil {
			o.log(ctx).Warningf("config backup sweep delete failed for %s: %v", v.Name, err)
		}
	}
}
