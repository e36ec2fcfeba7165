package orchestrator

import (
	"context"
	"fmt"

	"purearray-pve-plugin/model"
	"purearray-pve-plugin/naming"
	"purearray-pve-plugin/pureerr"
)

// CreateBase implements create_base: the source volume must exist and not
// be in use; a "pve-base" template-marker snapshot is created if missing;
// the host-side identity becomes base-* purely by virtue of that snapshot
// existing (callers pass its presence to naming.ArrayToPve), so no
// array-side rename happens.
func (o *Orchestrator) CreateBase(ctx context.Context, vmid int, hostVolname string) (string, error) {
	arrayName, ok := naming.PveToArray(o.StorageID, hostVolname)
	if !ok {
		return "", pureerr.New(pureerr.KindLocalFatal, "create_base", fmt.Errorf("unrecognized volume name %q", hostVolname))
	}
	qualified := naming.QualifyPod(o.Config.Pod, arrayName)

	v, ok, err := o.Array.GetVolume(ctx, qualified)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", pureerr.New(pureerr.KindNotFound, "create_base", fmt.Errorf("volume %s not found", arrayName)).WithVolume(arrayName)
	}

	if path, found, err := o.Resolver.Lookup(ctx, v.WWID()); err != nil {
		return "", err
	} else if found {
		slaves, _ := o.Resolver.Slaves(baseName(path))
		inUse, err := o.Resolver.InUse(ctx, path, slaves)
		if err != nil {
			return "", err
		}
		if inUse {
			return "", pureerr.New(pureerr.KindLocalFatal, "create_base", fmt.Errorf("volume %s is in use", arrayName)).WithVolume(arrayName)
		}
	}

	baseFull := qualified + ".pve-base"
	if _, ok, err := o.Array.GetSnapshot(ctx, baseFull); err != nil {
		return "", err
	} else if !ok {
		if _, err := o.Array.CreateSnapshot(ctx, qualified, "pve-base"); err != nil {
			return "", err
		}
	}

	rec, ok := naming.DecodeVolume(arrayName)
	if !ok {
		return "", pureerr.New(pureerr.KindLocalFatal, "create_base", fmt.Errorf("volume %s does not decode", arrayName))
	}
	newName, _ := naming.ArrayToPve(rec, true)
	return newName, nil
}

// RenameVolume implements rename_volume: moves a volume's host-side
// identity to a different VMID, as the host platform does when detaching a
// disk from one VM and attaching it to another. targetVolname pins the
// exact destination name; when empty, the next free disk index under
// targetVMID is used instead.
func (o *Orchestrator) RenameVolume(ctx context.Context, hostVolname string, targetVMID int, targetVolname string) (string, error) {
	arrayName, ok := naming.PveToArray(o.StorageID, hostVolname)
	if !ok {
		return "", pureerr.New(pureerr.KindLocalFatal, "rename_volume", fmt.Errorf("unrecognized volume name %q", hostVolname))
	}
	qualified := naming.QualifyPod(o.Config.Pod, arrayName)

	if _, ok, err := o.Array.GetVolume(ctx, qualified); err != nil {
		return "", err
	} else if !ok {
		return "", pureerr.New(pureerr.KindNotFound, "rename_volume", fmt.Errorf("volume %s not found", arrayName)).WithVolume(arrayName)
	}

	newHostVolname := targetVolname
	if newHostVolname == "" {
		diskID, err := o.nextFreeDiskIndex(ctx, targetVMID)
		if err != nil {
			return "", err
		}
		newHostVolname, _ = naming.ArrayToPve(naming.ArrayVolumeName{Role: model.RoleDisk, VMID: targetVMID, DiskID: diskID}, false)
	}

	newArrayName, ok := naming.PveToArray(o.StorageID, newHostVolname)
	if !ok {
		return "", pureerr.New(pureerr.KindLocalFatal, "rename_volume", fmt.Errorf("unrecognized target name %q", newHostVolname))
	}
	newQualified := naming.QualifyPod(o.Config.Pod, newArrayName)

	if err := o.Array.RenameVolume(ctx, qualified, newQualified); err != nil {
		return "", err
	}
	return newHostVolname, nil
}

// CloneImage implements clone_image: picks a source (an explicit snapshot,
// the pve-base template marker, or the volume itself for an array-native
// instant clone), allocates the next free disk index for vmid, clones, and
// connects to cluster hosts. Returns the slash-separated "base/child" form
// when cloning off a template, which is how the host platform learns the
// parent relationship.
func (o *Orchestrator) CloneImage(ctx context.Context, sourceHostVolname string, vmid int, snap string) (string, error) {
	sourceArrayName, ok := naming.PveToArray(o.StorageID, sourceHostVolname)
	if !ok {
		return "", pureerr.New(pureerr.KindLocalFatal, "clone_image", fmt.Errorf("unrecognized volume name %q", sourceHostVolname))
	}
	sourceQualified := naming.QualifyPod(o.Config.Pod, sourceArrayName)

	isLinked := false
	var source string
	switch {
	case snap != "":
		source = sourceQualified + "." + snapshotSuffix(snap)
		if _, ok, err := o.Array.GetSnapshot(ctx, source); err != nil {
			return "", err
		} else if !ok {
			return "", pureerr.New(pureerr.KindNotFound, "clone_image", fmt.Errorf("snapshot %s not found", source)).WithVolume(sourceArrayName).WithSnapshot(snap)
		}
	default:
		baseFull := sourceQualified + ".pve-base"
		if _, ok, err := o.Array.GetSnapshot(ctx, baseFull); err != nil {
			return "", err
		} else if ok {
			source = baseFull
			isLinked = true
		} else {
			source = sourceQualified
		}
	}

	_, _, diskID, err := o.deriveTargetShape(ctx, vmid, "")
	if err != nil {
		return "", err
	}

	destArrayName := naming.EncodeVolume(o.StorageID, vmid, model.RoleDisk, diskID, "")
	destQualified := naming.QualifyPod(o.Config.Pod, destArrayName)

	if _, err := o.Array.CloneVolume(ctx, source, destQualified); err != nil {
		return "", err
	}

	if err := o.connectToClusterHosts(ctx, destQualified); err != nil {
		_ = o.Array.DestroyVolume(ctx, destQualified)
		return "", err
	}

	childHostName := fmt.Sprintf("vm-%d-disk-%d", vmid, diskID)
	if !isLinked {
		return childHostName, nil
	}

	sourceRec, ok := naming.DecodeVolume(sourceArrayName)
	if !ok {
		return childHostName, nil
	}
	return naming.LinkedCloneName(sourceRec.VMID, sourceRec.DiskID, vmid, diskID), nil
}
