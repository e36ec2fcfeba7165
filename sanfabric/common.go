package sanfabric

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"purearray-pve-plugin/purelog"
)

const shortTimeout = 20 * time.Second

// RescanSCSIHosts writes "- - -" to every /sys/class/scsi_host/*/scan entry,
// asking the kernel to re-probe all channels/targets/LUNs on every HBA.
func RescanSCSIHosts(ctx context.Context) error {
	hosts, err := filepath.Glob("/sys/class/scsi_host/host*")
	if err != nil {
		return err
	}
	for _, h := range hosts {
		scanPath := filepath.Join(h, "scan")
		if err := os.WriteFile(scanPath, []byte("- - -"), 0200); err != nil {
			purelog.AddContext(ctx).Warningf("scsi host rescan failed for %s: %v", scanPath, err)
		}
	}
	return nil
}

// RescanBlockDevice writes "1" to /sys/block/<dev>/device/rescan, asking the
// kernel to re-read that one SCSI device's capacity. dev is a bare device
// name (e.g. "sdb"), not a path.
func RescanBlockDevice(ctx context.Context, dev string) error {
	scanPath := "/sys/block/" + dev + "/device/rescan"
	if err := os.WriteFile(scanPath, []byte("1"), 0200); err != nil {
		purelog.AddContext(ctx).Warningf("block device rescan failed for %s: %v", scanPath, err)
		return err
	}
	return nil
}

// MultipathReconfigure asks multipathd to reload its configuration, picking
// up a newly-spliced device stanza without a daemon restart.
func MultipathReconfigure(ctx context.Context) error {
	_, err := RunCommand(ctx, shortTimeout, nil, "multipathd", "reconfigure")
	return err
}

// MultipathFlush removes a multipath map. device is optional; empty flushes
// unused maps generally.
func MultipathFlush(ctx context.Context, device string) error {
	args := []string{"-f"}
	if device != "" {
		args = append(args, device)
	}
	_, err := RunCommand(ctx, shortTimeout, nil, "multipath", args...)
	return err
}

// MultipathdRemoveMap tells the running daemon to drop its bookkeeping for
// a map before the underlying device-mapper target is flushed.
func MultipathdRemoveMap(ctx context.Context, mapName string) error {
	_, err := RunCommand(ctx, shortTimeout, ignorableMultipathdRemove, "multipathd", "remove", "map", mapName)
	return err
}

// MultipathdAddPath and MultipathdRemovePath add/remove a single SCSI path
// from multipathd's view without touching the whole map.
func MultipathdAddPath(ctx context.Context, device string) error {
	_, err := RunCommand(ctx, shortTimeout, nil, "multipathd", "add", "path", device)
	return err
}

func MultipathdRemovePath(ctx context.Context, device string) error {
	_, err := RunCommand(ctx, shortTimeout, ignorableMultipathdRemove, "multipathd", "remove", "path", device)
	return err
}

func ignorableMultipathdRemove(exitCode int) bool {
	return exitCode == 1 // "not found" — already gone, not an error for our idempotent teardown
}

// TriggerUdev re-runs udev rules for block devices and waits for the event
// queue to drain. The array's own developers documented this as necessary
// after any rescan: without it, a freshly created volume sometimes keeps
// presenting a stale cached WWID.
func TriggerUdev(ctx context.Context) error {
	if _, err := RunCommand(ctx, shortTimeout, nil, "udevadm", "trigger", "--subsystem-match=block"); err != nil {
		return err
	}
	_, err := RunCommand(ctx, shortTimeout, nil, "udevadm", "settle")
	return err
}

// FullRescan runs the complete device-visibility refresh sequence: a SCSI
// host rescan, a multipathd reconfigure, and a udev trigger/settle. Every
// step is best-effort — a failure in one is logged and does not stop the
// next, since any one of them alone can be enough to surface a device that
// the others missed.
func FullRescan(ctx context.Context) {
	if err := RescanSCSIHosts(ctx); err != nil {
		purelog.AddContext(ctx).Warningf("scsi host rescan failed: %v", err)
	}
	if err := MultipathReconfigure(ctx); err != nil {
		purelog.AddContext(ctx).Warningf("multipathd reconfigure failed: %v", err)
	}
	if err := TriggerUdev(ctx); err != nil {
		purelog.AddContext(ctx).Warningf("udev trigger/settle failed: %v", err)
	}
}
