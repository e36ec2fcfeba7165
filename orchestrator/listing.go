package orchestrator

import (
	"context"
	"fmt"

	"purearray-pve-plugin/model"
	"purearray-pve-plugin/naming"
	"purearray-pve-plugin/pureerr"
)

// Image is one entry returned by ListImages, the host platform's
// volume-listing contract.
type Image struct {
	Volname     string
	VMID        int
	Provisioned int64
	Used        int64
}

// ListImages implements list_images: one volume list per storage (pod
// filtered when configured) plus one snapshot list for the ".pve-base"
// template marker suffix, so vm-* and base-* host-side names can be told
// apart. Destroyed volumes are never listed.
func (o *Orchestrator) ListImages(ctx context.Context) ([]Image, error) {
	prefix := naming.QualifyPod(o.Config.Pod, "pve-"+naming.StorageField(o.StorageID)+"-")
	volumes, err := o.Array.ListVolumes(ctx, prefix, false)
	if err != nil {
		return nil, err
	}

	markers, err := o.Array.ListTemplateMarkers(ctx, prefix)
	if err != nil {
		return nil, err
	}
	templates := map[string]bool{}
	for _, s := range markers {
		_, local := naming.SplitPod(s.VolumeName)
		templates[local] = true
	}

	out := make([]Image, 0, len(volumes))
	for _, v := range volumes {
		_, local := naming.SplitPod(v.Name)
		rec, ok := naming.DecodeVolume(local)
		if !ok {
			continue
		}
		hostVolname, ok := naming.ArrayToPve(rec, templates[local])
		if !ok {
			continue
		}
		out = append(out, Image{
			Volname:     hostVolname,
			VMID:        rec.VMID,
			Provisioned: v.Provisioned,
			Used:        v.Used,
		})
	}
	return out, nil
}

// VolumeSizeInfo implements volume_size_info: provisioned size, format, used
// space (all in KiB), and, for a linked clone, the parent template's
// host-side name.
func (o *Orchestrator) VolumeSizeInfo(ctx context.Context, hostVolname string) (sizeKiB int64, format string, usedKiB int64, parent string, err error) {
	arrayName, ok := naming.PveToArray(o.StorageID, hostVolname)
	if !ok {
		return 0, "", 0, "", pureerr.New(pureerr.KindLocalFatal, "volume_size_info", fmt.Errorf("unrecognized volume name %q", hostVolname))
	}
	qualified := naming.QualifyPod(o.Config.Pod, arrayName)

	v, ok, err := o.Array.GetVolume(ctx, qualified)
	if err != nil {
		return 0, "", 0, "", err
	}
	if !ok {
		return 0, "", 0, "", pureerr.New(pureerr.KindNotFound, "volume_size_info", fmt.Errorf("volume %s not found", arrayName)).WithVolume(arrayName)
	}

	if base, _, ok := naming.ParseLinkedClone(hostVolname); ok {
		parent, _ = naming.ArrayToPve(naming.ArrayVolumeName{Role: model.RoleDisk, VMID: base.BaseVMID, DiskID: base.BaseDiskID}, true)
	}

	return v.Provisioned / 1024, "raw", v.Used / 1024, parent, nil
}

// VolumeHasFeature implements volume_has_feature: every disk role supports
// snapshot, clone, template, copy, resize, and rename; nothing else is
// claimed since the core never exercises any other feature name.
func (o *Orchestrator) VolumeHasFeature(feature, hostVolname, snapName string) bool {
	switch feature {
	case "snapshot", "clone", "template", "copy", "resize", "rename":
		return true
	default:
		return false
	}
}

// VolumeSnapshotList implements volume_snapshot_list: every "pve-snap-*"
// suffix on hostVolname's array volume, as the PVE-facing snapshot names the
// caller originally passed to Snapshot (the "pve-base" template marker is
// never surfaced here — it isn't a user-visible snapshot).
func (o *Orchestrator) VolumeSnapshotList(ctx context.Context, hostVolname string) ([]string, error) {
	arrayName, ok := naming.PveToArray(o.StorageID, hostVolname)
	if !ok {
		return nil, pureerr.New(pureerr.KindLocalFatal, "volume_snapshot_list", fmt.Errorf("unrecognized volume name %q", hostVolname))
	}
	qualified := naming.QualifyPod(o.Config.Pod, arrayName)

	snaps, err := o.Array.ListSnapshots(ctx, qualified)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(snaps))
	for _, s := range snaps {
		if s.IsTemplateMarker() {
			continue
		}
		out = append(out, naming.DecodeSnapshotName(s.Suffix))
	}
	return out, nil
}

// Status implements status: pod quota if configured and non-zero, else
// array-wide total/used/available.
func (o *Orchestrator) Status(ctx context.Context) (model.Capacity, error) {
	if o.Config.Pod != "" {
		if cap_, ok, err := o.Array.GetPod(ctx, o.Config.Pod); err != nil {
			return model.Capacity{}, err
		} else if ok && cap_.TotalBytes > 0 {
			return cap_, nil
		}
	}
	return o.Array.ArrayInfo(ctx)
}
