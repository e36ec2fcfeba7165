package orchestrator

import (
	"context"
	"fmt"

	"purearray-pve-plugin/naming"
	"purearray-pve-plugin/pureerr"
)

// ActivateVolume implements activate_volume for a plain disk/cloudinit/state
// volume: connects this host to it (idempotent if already connected) and
// waits for the local device to appear, returning its path. State/cloudinit
// volumes are already connected and awaited once by Alloc; this covers the
// case where a VM is migrated here, or resumed after this node rebooted,
// and its disk needs to be re-activated without recreating anything.
func (o *Orchestrator) ActivateVolume(ctx context.Context, hostVolname string) (string, error) {
	arrayName, ok := naming.PveToArray(o.StorageID, hostVolname)
	if !ok {
		return "", pureerr.New(pureerr.KindLocalFatal, "activate_volume", fmt.Errorf("unrecognized volume name %q", hostVolname))
	}
	qualified := naming.QualifyPod(o.Config.Pod, arrayName)

	v, ok, err := o.Array.GetVolume(ctx, qualified)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", pureerr.New(pureerr.KindNotFound, "activate_volume", fmt.Errorf("volume %s not found", arrayName)).WithVolume(arrayName)
	}

	hostName := o.hostName()
	if _, err := o.Array.Connect(ctx, hostName, qualified); err != nil && !pureerr.IsConflict(err) {
		return "", err
	}

	return o.Resolver.WaitForDevice(ctx, v.WWID(), o.deviceTimeout(), o.rescanFunc())
}

// DeactivateVolume implements deactivate_volume for a plain disk/cloudinit/
// state volume: tears down the local device only. The array-side host
// connection is left intact — other volumes on this host may still need it,
// and full disconnect is Free's and DeactivateStorage's job, not this one's.
func (o *Orchestrator) DeactivateVolume(ctx context.Context, hostVolname string) error {
	arrayName, ok := naming.PveToArray(o.StorageID, hostVolname)
	if !ok {
		return pureerr.New(pureerr.KindLocalFatal, "deactivate_volume", fmt.Errorf("unrecognized volume name %q", hostVolname))
	}
	qualified := naming.QualifyPod(o.Config.Pod, arrayName)

	v, ok, err := o.Array.GetVolume(ctx, qualified)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	path, found, err := o.Resolver.Lookup(ctx, v.WWID())
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	slaves, _ := o.Resolver.Slaves(baseName(path))
	inUse, err := o.Resolver.InUse(ctx, path, slaves)
	if err != nil {
		return err
	}
	if inUse {
		return pureerr.New(pureerr.KindLocalFatal, "deactivate_volume", fmt.Errorf("device for %s is in use", arrayName)).WithVolume(arrayName)
	}
	return o.Resolver.Teardown(ctx, path, slaves)
}

// Path implements path(snap?) for a plain volume: a side-effect-free lookup
// of the local device an earlier ActivateVolume (or Alloc) already brought
// up. Snapshot access goes through PathForSnapshot instead, since a
// snapshot has no device of its own to look up.
func (o *Orchestrator) Path(ctx context.Context, hostVolname string) (string, error) {
	arrayName, ok := naming.PveToArray(o.StorageID, hostVolname)
	if !ok {
		return "", pureerr.New(pureerr.KindLocalFatal, "path", fmt.Errorf("unrecognized volume name %q", hostVolname))
	}
	qualified := naming.QualifyPod(o.Config.Pod, arrayName)

	v, ok, err := o.Array.GetVolume(ctx, qualified)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", pureerr.New(pureerr.KindNotFound, "path", fmt.Errorf("volume %s not found", arrayName)).WithVolume(arrayName)
	}

	path, found, err := o.Resolver.Lookup(ctx, v.WWID())
	if err != nil {
		return "", err
	}
	if !found {
		return "", pureerr.New(pureerr.KindLocalFatal, "path", fmt.Errorf("no local device for %s; activate it first", arrayName)).
			WithVolume(arrayName).WithDiag(&pureerr.Diagnostics{WWID: v.WWID()})
	}
	return path, nil
}
