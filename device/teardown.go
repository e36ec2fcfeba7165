package device

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"purearray-pve-plugin/pureerr"
	"purearray-pve-plugin/sanfabric"
)

var errDeviceInUse = errors.New("device is in use; refusing to tear down")

// InUse reports whether mapperPath or any of its slaves is currently
// mounted, held by another device-mapper target (LVM, dm-crypt), or has an
// open file handle per fuser. Any one of these firing means teardown must
// refuse: this is what keeps a running VM's backing disk from being yanked
// out from under it.
func InUse(ctx context.Context, mapperPath string, slaves []string) (bool, error) {
	mapperName := filepath.Base(mapperPath)

	mounted, err := isMounted(mapperName)
	if err != nil {
		return false, err
	}
	if mounted {
		return true, nil
	}
	for _, s := range slaves {
		if m, err := isMounted(s); err == nil && m {
			return true, nil
		}
		if held, err := hasHolders(s); err == nil && held {
			return true, nil
		}
	}

	res, err := sanfabric.RunCommand(ctx, 10*time.Second, fuserNotInUse, "fuser", "-s", mapperPath)
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

func fuserNotInUse(exitCode int) bool { return true } // fuser's nonzero just means "not in use"; never treat as fatal

func isMounted(name string) (bool, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), name) {
			return true, nil
		}
	}
	return false, nil
}

func hasHolders(slave string) (bool, error) {
	entries, err := os.ReadDir("/sys/class/block/" + slave + "/holders")
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return len(entries) > 0, nil
}

// Teardown removes the multipath aggregate at mapperPath and deletes each
// of its slave SCSI devices, in the exact order observed necessary in
// practice: flush buffers before removing the map, then settle before
// deleting slaves, then settle again so the kernel's own bookkeeping
// catches up before the caller disconnects the array side.
func Teardown(ctx context.Context, mapperPath string, slaves []string) error {
	inUse, err := InUse(ctx, mapperPath, slaves)
	if err != nil {
		return err
	}
	if inUse {
		return pureerr.New(pureerr.KindLocalFatal, "teardown_device",
			errDeviceInUse).WithDiag(&pureerr.Diagnostics{WWID: ""})
	}

	mapperName := filepath.Base(mapperPath)

	_, _ = sanfabric.RunCommand(ctx, 10*time.Second, nil, "sync")
	_, _ = sanfabric.RunCommand(ctx, 10*time.Second, nil, "blockdev", "--flushbufs", mapperPath)

	_ = sanfabric.MultipathdRemoveMap(ctx, mapperName)
	_ = sanfabric.MultipathFlush(ctx, mapperPath)

	time.Sleep(500 * time.Millisecond)

	for _, s := range slaves {
		_, _ = sanfabric.RunCommand(ctx, 10*time.Second, nil, "sync")
		_, _ = sanfabric.RunCommand(ctx, 10*time.Second, nil, "blockdev", "--flushbufs", "/dev/"+s)
		deletePath := "/sys/class/block/" + s + "/device/delete"
		_ = os.WriteFile(deletePath, []byte("1"), 0200)
	}

	time.Sleep(500 * time.Millisecond)
	return nil
}
