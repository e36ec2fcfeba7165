package orchestrator

import (
	"context"
	"fmt"

	"purearray-pve-plugin/naming"
	"purearray-pve-plugin/pureerr"
)

// Free implements free_image: idempotent on absence, refuses on an in-use
// local device, tears down locally, disconnects from every connected host,
// then soft-deletes (eradicate is left to the array's own retention timer).
func (o *Orchestrator) Free(ctx context.Context, vmid int, hostVolname string) error {
	lock := newNodeLock(o.StorageID, vmid)
	if err := lock.Lock(); err != nil {
		return pureerr.New(pureerr.KindLocalFatal, "free", err)
	}
	defer lock.Unlock()

	arrayName, ok := naming.PveToArray(o.StorageID, hostVolname)
	if !ok {
		return pureerr.New(pureerr.KindLocalFatal, "free", fmt.Errorf("unrecognized volume name %q", hostVolname))
	}
	qualified := naming.QualifyPod(o.Config.Pod, arrayName)

	v, ok, err := o.Array.GetVolume(ctx, qualified)
	if err != nil {
		return err
	}
	if !ok {
		o.log(ctx).Warningf("free: volume %s already absent", arrayName)
		return nil
	}

	wwid := v.WWID()
	if path, found, err := o.Resolver.Lookup(ctx, wwid); err != nil {
		return err
	} else if found {
		slaves, _ := o.Resolver.Slaves(baseName(path))
		inUse, err := o.Resolver.InUse(ctx, path, slaves)
		if err != nil {
			return err
		}
		if inUse {
			return pureerr.New(pureerr.KindLocalFatal, "free", fmt.Errorf("device for %s is in use", arrayName)).
				WithVolume(arrayName).WithDiag(&pureerr.Diagnostics{WWID: wwid})
		}
		if err := o.Resolver.Teardown(ctx, path, slaves); err != nil {
			return err
		}
	}

	conns, err := o.Array.ListConnections(ctx, qualified)
	if err != nil {
		return err
	}
	for _, c := range conns {
		if err := o.Array.Disconnect(ctx, c.HostName, qualified); err != nil && !pureerr.IsNotFound(err) {
			return err
		}
	}

	if err := o.Array.DestroyVolume(ctx, qualified); err != nil && !pureerr.IsNotFound(err) {
		return err
	}

	if o.isLastDisk(ctx, vmid, arrayName) {
		o.sweepConfigBackups(ctx, vmid)
	}
	return nil
}

// isLastDisk checks whether excluding arrayName itself, the VMID has any
// remaining disk volumes — used to decide whether to sweep config-backup
// volumes now that the VM's last disk is gone.
func (o *Orchestrator) isLastDisk(ctx context.Context, vmid int, excludeArrayName string) bool {
	prefix := naming.QualifyPod(o.Config.Pod, fmt.Sprintf("pve-%s-%d-disk", naming.StorageField(o.StorageID), vmid))
	volumes, err := o.Array.ListVolumes(ctx, prefix, false)
	if err != nil {
		return false
	}
	for _, v := range volumes {
		_, local := naming.SplitPod(v.Name)
		if local != excludeArrayName {
			return false
		}
	}
	return true
}
