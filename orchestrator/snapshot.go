package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"purearray-pve-plugin/naming"
	"purearray-pve-plugin/pureerr"
	"purearray-pve-plugin/sanfabric"
)

// Snapshot implements volume_snapshot: requires the volume exists, fails if
// the suffixed snapshot already exists, creates it, then best-effort writes
// a config backup.
func (o *Orchestrator) Snapshot(ctx context.Context, vmid int, hostVolname, snapName string) error {
	arrayName, ok := naming.PveToArray(o.StorageID, hostVolname)
	if !ok {
		return pureerr.New(pureerr.KindLocalFatal, "snapshot", fmt.Errorf("unrecognized volume name %q", hostVolname))
	}
	qualified := naming.QualifyPod(o.Config.Pod, arrayName)

	if _, ok, err := o.Array.GetVolume(ctx, qualified); err != nil {
		return err
	} else if !ok {
		return pureerr.New(pureerr.KindNotFound, "snapshot", fmt.Errorf("volume %s not found", arrayName)).WithVolume(arrayName)
	}

	suffix := snapshotSuffix(snapName)
	fullName := qualified + "." + suffix
	if _, ok, err := o.Array.GetSnapshot(ctx, fullName); err != nil {
		return err
	} else if ok {
		return pureerr.New(pureerr.KindConflict, "snapshot", fmt.Errorf("snapshot %s already exists", fullName)).WithVolume(arrayName).WithSnapshot(suffix)
	}

	if _, err := o.Array.CreateSnapshot(ctx, qualified, suffix); err != nil {
		return err
	}

	if err := o.writeConfigBackup(ctx, vmid, hostVolname, snapName); err != nil {
		o.log(ctx).Warningf("config backup for %s@%s failed (non-fatal): %v", arrayName, snapName, err)
	}
	return nil
}

// snapshotSuffix maps a PVE-facing snapshot name to the array-side suffix,
// reserving the "pve-base" marker for template snapshots created by
// CreateBase and encoding everything else via naming.EncodeSnapshot.
func snapshotSuffix(snapName string) string {
	if snapName == "" || strings.EqualFold(snapName, "base") {
		return "pve-base"
	}
	return naming.EncodeSnapshot(snapName)
}

// DeleteSnapshot implements volume_snapshot_delete: idempotent on absence,
// soft-deletes, surfaces a clear remediation hint on dependency conflicts,
// and sweeps the matching config-backup volume.
func (o *Orchestrator) DeleteSnapshot(ctx context.Context, vmid int, hostVolname, snapName string) error {
	arrayName, ok := naming.PveToArray(o.StorageID, hostVolname)
	if !ok {
		return pureerr.New(pureerr.KindLocalFatal, "snapshot_delete", fmt.Errorf("unrecognized volume name %q", hostVolname))
	}
	qualified := naming.QualifyPod(o.Config.Pod, arrayName)
	fullName := qualified + "." + snapshotSuffix(snapName)

	if err := o.Array.DestroySnapshot(ctx, fullName); err != nil {
		if pureerr.IsNotFound(err) {
			return nil
		}
		if pureerr.IsConflict(err) {
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "has dependent") || strings.Contains(msg, "in use") {
				return pureerr.New(pureerr.KindConflict, "snapshot_delete", err).
					WithVolume(arrayName).WithSnapshot(snapName).
					WithHint("linked clones exist against this snapshot; remove them before deleting it")
			}
		}
		return err
	}

	o.deleteConfigBackup(ctx, vmid, snapName)
	return nil
}

// Rollback implements volume_snapshot_rollback: requires both volume and
// snapshot exist, refuses if the local device is in use, overwrites in
// place, then rescans so a running VM observes the mutated content.
func (o *Orchestrator) Rollback(ctx context.Context, hostVolname, snapName string) error {
	arrayName, ok := naming.PveToArray(o.StorageID, hostVolname)
	if !ok {
		return pureerr.New(pureerr.KindLocalFatal, "rollback", fmt.Errorf("unrecognized volume name %q", hostVolname))
	}
	qualified := naming.QualifyPod(o.Config.Pod, arrayName)
	fullName := qualified + "." + snapshotSuffix(snapName)

	v, ok, err := o.Array.GetVolume(ctx, qualified)
	if err != nil {
		return err
	}
	if !ok {
		return pureerr.New(pureerr.KindNotFound, "rollback", fmt.Errorf("volume %s not found", arrayName)).WithVolume(arrayName)
	}
	if _, ok, err := o.Array.GetSnapshot(ctx, fullName); err != nil {
		return err
	} else if !ok {
		return pureerr.New(pureerr.KindNotFound, "rollback", fmt.Errorf("snapshot %s not found", fullName)).WithVolume(arrayName).WithSnapshot(snapName)
	}

	if path, found, err := o.Resolver.Lookup(ctx, v.WWID()); err != nil {
		return err
	} else if found {
		slaves, _ := o.Resolver.Slaves(baseName(path))
		inUse, err := o.Resolver.InUse(ctx, path, slaves)
		if err != nil {
			return err
		}
		if inUse {
			return pureerr.New(pureerr.KindLocalFatal, "rollback", fmt.Errorf("refusing rollback: %s is in use", arrayName)).WithVolume(arrayName)
		}
	}

	if err := o.Array.OverwriteFromSnapshot(ctx, qualified, fullName); err != nil {
		return err
	}

	_ = o.Proto.RescanFabric(ctx)
	sanfabric.FullRescan(ctx)
	return nil
}

// PathForSnapshot implements path(snap): array snapshots cannot be
// attached directly, so a temporary clone is created, connected, and waited
// on, then tracked so DeactivateVolume can find and eradicate it again.
func (o *Orchestrator) PathForSnapshot(ctx context.Context, hostVolname, snapName string) (string, error) {
	arrayName, ok := naming.PveToArray(o.StorageID, hostVolname)
	if !ok {
		return "", pureerr.New(pureerr.KindLocalFatal, "path", fmt.Errorf("unrecognized volume name %q", hostVolname))
	}
	qualified := naming.QualifyPod(o.Config.Pod, arrayName)
	fullName := qualified + "." + snapshotSuffix(snapName)

	key := o.StorageID + "/" + hostVolname + "/" + snapName
	if tc, ok := o.tempClones.Load(key); ok {
		v, exists, err := o.Array.GetVolume(ctx, tc.(*tempClone).fullName)
		if err == nil && exists {
			if path, found, err := o.Resolver.Lookup(ctx, v.WWID()); err == nil && found {
				return path, nil
			}
		}
	}

	tempName := buildTempCloneName(qualified)
	v, err := o.Array.CloneVolume(ctx, fullName, tempName)
	if err != nil {
		return "", err
	}

	hostName := o.hostName()
	if _, err := o.Array.Connect(ctx, hostName, tempName); err != nil && !pureerr.IsConflict(err) {
		_ = o.Array.EradicateVolume(ctx, tempName)
		return "", err
	}

	path, err := o.Resolver.WaitForDevice(ctx, v.WWID(), o.deviceTimeout(), o.rescanFunc())
	if err != nil {
		_ = o.Array.Disconnect(ctx, hostName, tempName)
		_ = o.Array.EradicateVolume(ctx, tempName)
		return "", err
	}

	o.tempClones.Store(key, &tempClone{fullName: tempName, createdAt: time.Now()})
	return path, nil
}

// DeactivateSnapshotPath undoes PathForSnapshot: tear down, disconnect, and
// eradicate the temp clone outright (besides temp clones, the core eradicates
// only the destroyed orphan that Alloc's cleanupOrphan clears to reuse a name).
func (o *Orchestrator) DeactivateSnapshotPath(ctx context.Context, hostVolname, snapName string) error {
	key := o.StorageID + "/" + hostVolname + "/" + snapName
	val, ok := o.tempClones.Load(key)
	if !ok {
		return nil
	}
	tc := val.(*tempClone)
	o.tempClones.Delete(key)
	return o.teardownTempClone(ctx, tc.fullName)
}

func (o *Orchestrator) teardownTempClone(ctx context.Context, tempName string) error {
	v, ok, err := o.Array.GetVolume(ctx, tempName)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if path, found, err := o.Resolver.Lookup(ctx, v.WWID()); err == nil && found {
		slaves, _ := o.Resolver.Slaves(baseName(path))
		_ = o.Resolver.Teardown(ctx, path, slaves)
	}

	hostName := o.hostName()
	_ = o.Array.Disconnect(ctx, hostName, tempName)
	_ = o.Array.DestroyVolume(ctx, tempName)
	return o.Array.EradicateVolume(ctx, tempName)
}

// SweepOrphanTempClones is the exported entry point for running the orphan
// temp-clone sweep on its own, outside the rest of ActivateStorage's setup
// sequence (e.g. from an operator-driven maintenance task).
func (o *Orchestrator) SweepOrphanTempClones(ctx context.Context) {
	o.sweepOrphanTempClones(ctx)
}

// sweepOrphanTempClones removes temp clones whose PathForSnapshot caller
// died without calling DeactivateSnapshotPath: anything this process
// tracked more than an hour ago is assumed orphaned; younger entries may
// still be in active use and are left alone.
func (o *Orchestrator) sweepOrphanTempClones(ctx context.Context) {
	cutoff := time.Now().Add(-1 * time.Hour)
	o.tempClones.Range(func(key, value interface{}) bool {
		tc := value.(*tempClone)
		if tc.createdAt.Before(cutoff) {
			o.tempClones.Delete(key)
			if err := o.teardownTempClone(ctx, tc.fullName); err != nil {
				o.log(ctx).Warningf("orphan temp clone sweep failed for %s: %v", tc.fullName, err)
			}
		}
		return true
	})

	prefix := naming.QualifyPod(o.Config.Pod, "pve-")
	volumes, err := o.Array.ListVolumes(ctx, prefix, false)
	if err != nil {
		return
	}
	for _, v := range volumes {
		if strings.Contains(v.Name, "-temp-snap-access-") {
			if createdAt, ok := parseTempCloneTimestamp(v.Name); ok && createdAt.Before(cutoff) {
				if err := o.teardownTempClone(ctx, v.Name); err != nil {
					o.log(ctx).Warningf("orphan temp clone sweep failed for %s: %v", v.Name, err)
				}
			}
		}
	}
}

func parseTempCloneTimestamp(name string) (time.Time, bool) {
	idx := strings.LastIndex(name, "-temp-snap-access-")
	if idx < 0 {
		return time.Time{}, false
	}
	rest := name[idx+len("-temp-snap-access-"):]
	parts := strings.SplitN(rest, "-", 2)
	if len(parts) == 0 {
		return time.Time{}, false
	}
	var unixSec int64
	if _, err := fmt.Sscanf(parts[0], "%d", &unixSec); err != nil {
		return time.Time{}, false
	}
	return time.Unix(unixSec, 0), true
}

func osPid() int { return os.Getpid() }

// buildTempCloneName appends a timestamp, pid, and a short uuid tiebreaker
// to qualified so two concurrent PathForSnapshot callers for the same
// snapshot never collide on the array, trimming qualified itself (rather
// than the suffix) if the result would exceed the array's object name
// limit, so the disambiguating suffix is never the part that gets cut.
func buildTempCloneName(qualified string) string {
	suffix := fmt.Sprintf("-temp-snap-access-%d-%d-%s", time.Now().Unix(), osPid(), uuid.New().String()[:8])
	if len(qualified)+len(suffix) > naming.MaxArrayNameLen {
		qualified = qualified[:naming.MaxArrayNameLen-len(suffix)]
	}
	return qualified + suffix
}
