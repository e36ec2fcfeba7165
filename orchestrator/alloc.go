package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"purearray-pve-plugin/model"
	"purearray-pve-plugin/naming"
	"purearray-pve-plugin/pureerr"
)

const maxDiskIndex = 999

// Alloc implements alloc_image: derive or compute the array name, create
// the volume, connect it to every cluster host (requiring success on this
// node), and for state/cloudinit volumes wait for the local device to
// appear before returning, since the caller will use it immediately.
func (o *Orchestrator) Alloc(ctx context.Context, vmid int, format string, name string, sizeKiB int64) (string, error) {
	if format != "raw" {
		return "", pureerr.New(pureerr.KindLocalFatal, "alloc", fmt.Errorf("format %q not supported, only raw", format))
	}

	lock := newNodeLock(o.StorageID, vmid)
	if err := lock.Lock(); err != nil {
		return "", pureerr.New(pureerr.KindLocalFatal, "alloc", err)
	}
	defer lock.Unlock()

	role, stateSuffix, diskID, err := o.deriveTargetShape(ctx, vmid, name)
	if err != nil {
		return "", err
	}

	arrayName := naming.EncodeVolume(o.StorageID, vmid, role, diskID, stateSuffix)
	qualified := naming.QualifyPod(o.Config.Pod, arrayName)

	existing, ok, err := o.Array.GetVolume(ctx, qualified)
	if err != nil {
		return "", err
	}
	if ok {
		if role == model.RoleDisk {
			return "", pureerr.New(pureerr.KindConflict, "alloc", fmt.Errorf("volume %s already exists", arrayName)).WithVolume(arrayName)
		}
		if err := o.cleanupOrphan(ctx, qualified, existing); err != nil {
			return "", pureerr.New(pureerr.KindConflict, "alloc", err).WithVolume(arrayName)
		}
	}

	sizeBytes := sizeKiB * 1024
	if _, err := o.Array.CreateVolume(ctx, qualified, sizeBytes); err != nil {
		return "", err
	}

	if err := o.connectToClusterHosts(ctx, qualified); err != nil {
		_ = o.Array.DestroyVolume(ctx, qualified)
		return "", err
	}

	hostVolname, _ := naming.ArrayToPve(naming.ArrayVolumeName{Role: role, VMID: vmid, DiskID: diskID, Snapshot: stateSuffix}, false)

	if role == model.RoleState || role == model.RoleCloudInit {
		wwid, err := o.volumeWWID(ctx, qualified)
		if err != nil {
			_ = o.Array.DestroyVolume(ctx, qualified)
			return "", err
		}
		if _, err := o.Resolver.WaitForDevice(ctx, wwid, o.deviceTimeout(), o.rescanFunc()); err != nil {
			_ = o.Array.DestroyVolume(ctx, qualified)
			return "", err
		}
	}

	return hostVolname, nil
}

// cleanupOrphan disconnects an identically-named state/cloudinit volume
// from every host and eradicates it outright, freeing its name for
// immediate reuse (a merely destroyed volume keeps its name reserved until
// eradicated, which would make the CreateVolume call right after this one
// fail with a conflict).
func (o *Orchestrator) cleanupOrphan(ctx context.Context, qualified string, existing model.ArrayVolume) error {
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
	return o.Array.EradicateVolume(ctx, qualified)
}

// deriveTargetShape figures out whether name (if given) fits a
// state/cloudinit shape, else computes the next free disk index.
func (o *Orchestrator) deriveTargetShape(ctx context.Context, vmid int, name string) (model.Role, string, int, error) {
	if name != "" {
		if arr, ok := naming.PveToArray(o.StorageID, name); ok {
			if rec, ok := naming.DecodeVolume(arr); ok {
				return rec.Role, rec.Snapshot, rec.DiskID, nil
			}
		}
	}

	diskID, err := o.nextFreeDiskIndex(ctx, vmid)
	if err != nil {
		return "", "", 0, err
	}
	return model.RoleDisk, "", diskID, nil
}

// nextFreeDiskIndex lists volumes matching pve-{storage}-{vmid}-disk* and
// scans decoded disk indices 0..maxDiskIndex for the first unused one.
func (o *Orchestrator) nextFreeDiskIndex(ctx context.Context, vmid int) (int, error) {
	prefix := naming.QualifyPod(o.Config.Pod, fmt.Sprintf("pve-%s-%d-disk", naming.StorageField(o.StorageID), vmid))
	volumes, err := o.Array.ListVolumes(ctx, prefix, false)
	if err != nil {
		return 0, err
	}
	used := map[int]bool{}
	for _, v := range volumes {
		_, local := naming.SplitPod(v.Name)
		if rec, ok := naming.DecodeVolume(local); ok && rec.Role == model.RoleDisk {
			used[rec.DiskID] = true
		}
	}
	for i := 0; i <= maxDiskIndex; i++ {
		if !used[i] {
			return i, nil
		}
	}
	return 0, pureerr.New(pureerr.KindLocalFatal, "find_free_diskname", fmt.Errorf("no free disk index for vmid %d", vmid))
}

// FindFreeDiskname implements find_free_diskname: the next disk index for
// vmid that no array volume under this storage is currently using,
// returned as the host-side "vm-{vmid}-disk-{N}" name the caller will pass
// to Alloc's name parameter.
func (o *Orchestrator) FindFreeDiskname(ctx context.Context, vmid int) (string, error) {
	diskID, err := o.nextFreeDiskIndex(ctx, vmid)
	if err != nil {
		return "", err
	}
	hostVolname, _ := naming.ArrayToPve(naming.ArrayVolumeName{Role: model.RoleDisk, VMID: vmid, DiskID: diskID}, false)
	return hostVolname, nil
}

// connectToClusterHosts connects qualified to every cluster host matching
// pve-{cluster}-*, best-effort except for the current node's own host,
// connection to which is mandatory.
func (o *Orchestrator) connectToClusterHosts(ctx context.Context, qualified string) error {
	clusterHosts, err := o.Array.ListHosts(ctx, "pve-"+o.Config.ClusterName+"-")
	if err != nil {
		return err
	}

	thisHost := o.hostName()
	connectedToThisHost := false
	for _, h := range clusterHosts {
		if _, err := o.Array.Connect(ctx, h.Name, qualified); err != nil {
			if pureerr.IsConflict(err) {
				if strings.EqualFold(h.Name, thisHost) {
					connectedToThisHost = true
				}
				continue
			}
			if strings.EqualFold(h.Name, thisHost) {
				return err
			}
			o.log(ctx).Warningf("best-effort connect of %s to %s failed: %v", qualified, h.Name, err)
			continue
		}
		if strings.EqualFold(h.Name, thisHost) {
			connectedToThisHost = true
		}
	}

	if !connectedToThisHost {
		if _, err := o.Array.Connect(ctx, thisHost, qualified); err != nil && !pureerr.IsConflict(err) {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) volumeWWID(ctx context.Context, qualified string) (string, error) {
	v, ok, err := o.Array.GetVolume(ctx, qualified)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", pureerr.New(pureerr.KindNotFound, "volume_wwid", nil).WithVolume(qualified)
	}
	return v.WWID(), nil
}

func (o *Orchestrator) rescanFunc() func(context.Context) error {
	return func(ctx context.Context) error { return o.Proto.RescanFabric(ctx) }
}

