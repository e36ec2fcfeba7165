// Package model holds the structured record types every component passes
// between layers instead of the untyped hashes the source implementation
// threads through every call. The array client returns these regardless of
// which REST dialect answered the request (see arrayclient).
package model

import "time"

// Role is the disk role carried by a host-side volume name.
type Role string

const (
	RoleDisk      Role = "disk"
	RoleCloudInit Role = "cloudinit"
	RoleState     Role = "state"
	RoleTemplate  Role = "template" // base-* disk, otherwise identical to RoleDisk
)

// ParsedVolname is the tagged decomposition of a Proxmox volname: one of
// Disk/Base/Cloudinit/State, with an optional parent describing a linked
// clone. "base-X/vm-Y" parses into a Disk carrying a Parent, not a fifth
// case.
type ParsedVolname struct {
	Role     Role
	VMID     int
	DiskID   int    // meaningful for RoleDisk/RoleTemplate
	Snapshot string // meaningful for RoleState
	Parent   *ParentRef
}

// ParentRef records the base template a linked clone was created from.
type ParentRef struct {
	BaseVMID   int
	BaseDiskID int
}

// ArrayVolume is the array-side object backing a Volume.
type ArrayVolume struct {
	Name        string // local name, pod prefix stripped
	Pod         string // "" when not pod-qualified
	Provisioned int64  // bytes
	Used        int64  // bytes
	Serial      string // 24 lowercase hex chars
	Destroyed   bool
	Created     time.Time
}

// FullName returns the pod-qualified name when Pod is set.
func (v ArrayVolume) FullName() string {
	if v.Pod == "" {
		return v.Name
	}
	return v.Pod + "::" + v.Name
}

// WWID derives the stable multipath identifier from the volume's serial.
func (v ArrayVolume) WWID() string {
	return "3624a9370" + v.Serial
}

// ArraySnapshot is a point-in-time copy of an ArrayVolume.
type ArraySnapshot struct {
	VolumeName string
	Suffix     string // "pve-snap-<name>" or "pve-base"
	Created    time.Time
}

// FullName is "<volume>.<suffix>", the array's wire name for the snapshot.
func (s ArraySnapshot) FullName() string {
	return s.VolumeName + "." + s.Suffix
}

// IsTemplateMarker reports whether this snapshot is the pve-base marker that
// identifies its volume as a template.
func (s ArraySnapshot) IsTemplateMarker() bool {
	return s.Suffix == "pve-base"
}

// Host is an array-side collection of initiator identifiers belonging to a
// node or the whole cluster.
type Host struct {
	Name  string
	IQNs  []string // iSCSI
	WWNs  []string // FC, raw lowercase hex, no separators
}

// Connection is a (Host, ArrayVolume) relation with no further state.
type Connection struct {
	HostName   string
	VolumeName string
}

// Capacity reports space usage, either for the whole array or for a pod
// quota, whichever the orchestrator's status operation selects.
type Capacity struct {
	TotalBytes       int64
	UsedBytes        int64
	ProvisionedBytes int64
}

// AvailableBytes is a derived convenience, never stored.
func (c Capacity) AvailableBytes() int64 {
	if c.TotalBytes <= 0 {
		return 0
	}
	avail := c.TotalBytes - c.UsedBytes
	if avail < 0 {
		return 0
	}
	return avail
}
