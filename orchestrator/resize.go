package orchestrator

import (
	"context"
	"fmt"

	"purearray-pve-plugin/naming"
	"purearray-pve-plugin/pureerr"
	"purearray-pve-plugin/sanfabric"
)

// Resize implements volume_resize: reject shrink, no-op on equal size,
// otherwise resize on the array and, if a local device exists, rescan so
// a running VM picks up the new size online.
func (o *Orchestrator) Resize(ctx context.Context, hostVolname string, newSizeKiB int64) error {
	arrayName, ok := naming.PveToArray(o.StorageID, hostVolname)
	if !ok {
		return pureerr.New(pureerr.KindLocalFatal, "resize", fmt.Errorf("unrecognized volume name %q", hostVolname))
	}
	qualified := naming.QualifyPod(o.Config.Pod, arrayName)

	v, ok, err := o.Array.GetVolume(ctx, qualified)
	if err != nil {
		return err
	}
	if !ok {
		return pureerr.New(pureerr.KindNotFound, "resize", fmt.Errorf("volume %s not found", arrayName)).WithVolume(arrayName)
	}

	newSizeBytes := newSizeKiB * 1024
	if newSizeBytes < v.Provisioned {
		return pureerr.New(pureerr.KindLocalFatal, "resize", fmt.Errorf("shrinking volumes is not supported")).WithVolume(arrayName)
	}
	if newSizeBytes == v.Provisioned {
		return nil
	}

	if err := o.Array.ResizeVolume(ctx, qualified, newSizeBytes); err != nil {
		return err
	}

	if path, found, err := o.Resolver.Lookup(ctx, v.WWID()); err == nil && found {
		_ = o.Proto.RescanFabric(ctx)
		slaves, _ := o.Resolver.Slaves(baseName(path))
		for _, slave := range slaves {
			_ = sanfabric.RescanBlockDevice(ctx, slave)
		}
	}
	return nil
}
