// Package naming implements the bidirectional, lossy mapping between
// host-side volume identifiers and array-side object names.
// Every function here is pure: no I/O, no logging, table-driven tests only.
package naming

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"purearray-pve-plugin/model"
)

const (
	maxArrayNameLen   = 63
	maxStorageFieldLen = 24
	maxSnapshotSuffix  = 64
)

// MaxArrayNameLen is the array's object name length limit, exported for
// callers (e.g. the orchestrator's temp-clone naming) that need to bound a
// name built outside EncodeVolume/EncodeSnapshot's own grammar.
const MaxArrayNameLen = maxArrayNameLen

var (
	hostDiskRe   = regexp.MustCompile(`^vm-(\d+)-disk-(\d+)$`)
	hostBaseRe   = regexp.MustCompile(`^base-(\d+)-disk-(\d+)$`)
	hostCloudRe  = regexp.MustCompile(`^vm-(\d+)-cloudinit$`)
	hostStateRe  = regexp.MustCompile(`^vm-(\d+)-state-(.+)$`)
	hostLinkedRe = regexp.MustCompile(`^base-(\d+)-disk-(\d+)/vm-(\d+)-disk-(\d+)$`)

	// Non-greedy storage match tolerates legacy hyphenated storage names;
	// VMID is pure digits, anchored by the role suffix.
	arrayVolRe = regexp.MustCompile(`^pve-(.+?)-(\d+)-(disk(\d+)|cloudinit|state-([A-Za-z0-9-]+)|vmconf-([A-Za-z0-9-]+))$`)
	arrayNameValidRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

	sanitizeDropRe    = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	whitespaceRe      = regexp.MustCompile(`\s+`)
	trailingSepRe     = regexp.MustCompile(`[-_]+$`)
	snapshotKeepRe    = regexp.MustCompile(`[^A-Za-z0-9-]`)
	consecutiveDashRe = regexp.MustCompile(`-+`)
)

// SanitizeForArray implements the storage-field sanitization rule used by
// EncodeVolume: collapse whitespace to "-", strip anything outside
// [A-Za-z0-9_-], ensure a leading alphanumeric, strip trailing separators,
// cap length, and fall back to "pve" if the result is empty.
func SanitizeForArray(raw string, maxLen int) string {
	s := whitespaceRe.ReplaceAllString(raw, "-")
	s = sanitizeDropRe.ReplaceAllString(s, "")
	s = trailingSepRe.ReplaceAllString(s, "")

	for len(s) > 0 && !isAlphaNumeric(s[0]) {
		s = s[1:]
	}

	if len(s) > maxLen {
		s = s[:maxLen]
		s = trailingSepRe.ReplaceAllString(s, "")
	}

	if s == "" {
		return "pve"
	}
	return s
}

func isAlphaNumeric(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// storageField sanitizes then swaps hyphens for underscores so the hyphen
// stays a reliable field separator in the array name grammar.
func storageField(storage string) string {
	s := SanitizeForArray(storage, maxStorageFieldLen)
	return strings.ReplaceAll(s, "-", "_")
}

// StorageField exposes storageField for callers (e.g. orchestrator listing
// code) that need the same sanitized storage-id fragment to build a
// "pve-{s}-{vmid}-" glob prefix without duplicating the encoding rule.
func StorageField(storage string) string { return storageField(storage) }

// EncodeVolume builds the array-side base name for a disk/cloudinit/state
// volume. role alone picks the shape; diskID is used only for roles other
// than cloudinit and state.
func EncodeVolume(storage string, vmid int, role model.Role, diskID int, snapOrState string) string {
	s := storageField(storage)
	switch role {
	case model.RoleCloudInit:
		return fmt.Sprintf("pve-%s-%d-cloudinit", s, vmid)
	case model.RoleState:
		return fmt.Sprintf("pve-%s-%d-state-%s", s, vmid, sanitizeRoleSuffix(snapOrState))
	default:
		return fmt.Sprintf("pve-%s-%d-disk%d", s, vmid, diskID)
	}
}

func sanitizeRoleSuffix(raw string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, raw)
	return consecutiveDashRe.ReplaceAllString(s, "-")
}

// DecodeVolume parses an array-side base name (no pod prefix, no snapshot
// suffix) back into a structured record, or returns ok=false. Any name
// containing "." is rejected outright since "." only appears in snapshot
// names.
func DecodeVolume(name string) (rec ArrayVolumeName, ok bool) {
	if strings.Contains(name, ".") {
		return ArrayVolumeName{}, false
	}

	m := arrayVolRe.FindStringSubmatch(name)
	if m == nil {
		return ArrayVolumeName{}, false
	}

	vmid, err := strconv.Atoi(m[2])
	if err != nil {
		return ArrayVolumeName{}, false
	}

	rec.Storage = m[1]
	rec.VMID = vmid

	switch {
	case m[4] != "":
		diskID, err := strconv.Atoi(m[4])
		if err != nil {
			return ArrayVolumeName{}, false
		}
		rec.Role = model.RoleDisk
		rec.DiskID = diskID
	case m[3] == "cloudinit":
		rec.Role = model.RoleCloudInit
	case m[5] != "":
		rec.Role = model.RoleState
		rec.Snapshot = m[5]
	case m[6] != "":
		rec.Role = "vmconf"
		rec.Snapshot = m[6]
	default:
		return ArrayVolumeName{}, false
	}

	return rec, true
}

// ArrayVolumeName is the structured decode of an array-side base name.
type ArrayVolumeName struct {
	Storage  string
	VMID     int
	Role     model.Role
	DiskID   int
	Snapshot string
}

// EncodeSnapshot sanitizes a user-supplied snapshot name into the
// "pve-snap-<sanitized>" suffix. Only [A-Za-z0-9-] survive; everything else
// (including "_" and ".") collapses to "-"; consecutive "-" collapse; the
// result is capped so the whole suffix stays <= 64 chars.
func EncodeSnapshot(snapName string) string {
	const prefix = "pve-snap-"
	s := snapshotKeepRe.ReplaceAllString(snapName, "-")
	s = consecutiveDashRe.ReplaceAllString(s, "-")
	s = trailingSepRe.ReplaceAllString(s, "")

	maxSuffixBody := maxSnapshotSuffix - len(prefix)
	if len(s) > maxSuffixBody {
		s = s[:maxSuffixBody]
		s = trailingSepRe.ReplaceAllString(s, "")
	}
	return prefix + s
}

// DecodeSnapshotName strips the "pve-snap-" prefix EncodeSnapshot adds,
// returning the bare suffix unchanged if it isn't one of this plugin's own
// snapshots (e.g. "pve-base").
func DecodeSnapshotName(suffix string) string {
	const prefix = "pve-snap-"
	if strings.HasPrefix(suffix, prefix) {
		return suffix[len(prefix):]
	}
	return suffix
}

// EncodeConfigVolume builds the vmconf side-channel volume name, truncating
// snap so the total length stays <= 63 with no trailing separator left by
// truncation.
func EncodeConfigVolume(storage string, vmid int, snap string) string {
	s := storageField(storage)
	sanitizedSnap := sanitizeRoleSuffix(snap)

	prefix := fmt.Sprintf("pve-%s-%d-vmconf-", s, vmid)
	budget := maxArrayNameLen - len(prefix)
	if budget < 0 {
		budget = 0
	}
	if len(sanitizedSnap) > budget {
		sanitizedSnap = sanitizedSnap[:budget]
	}
	sanitizedSnap = trailingSepRe.ReplaceAllString(sanitizedSnap, "")

	return prefix + sanitizedSnap
}

// EncodeHost builds the cluster host-registration name: per-node when node
// is non-empty, shared otherwise.
func EncodeHost(cluster, node string) string {
	if node == "" {
		return fmt.Sprintf("pve-%s-shared", cluster)
	}
	return fmt.Sprintf("pve-%s-%s", cluster, node)
}

// PveToArray converts any of the four host-side volume shapes (plus the
// linked-clone compound form) into the array-side base name. storage names
// the PVE storage id that EncodeVolume would also use.
func PveToArray(storage, hostVolname string) (string, bool) {
	childPart := hostVolname
	if idx := strings.IndexByte(hostVolname, '/'); idx >= 0 {
		childPart = hostVolname[idx+1:]
	}

	if m := hostDiskRe.FindStringSubmatch(childPart); m != nil {
		vmid, diskID := atoiMust(m[1]), atoiMust(m[2])
		return EncodeVolume(storage, vmid, model.RoleDisk, diskID, ""), true
	}
	if m := hostBaseRe.FindStringSubmatch(childPart); m != nil {
		vmid, diskID := atoiMust(m[1]), atoiMust(m[2])
		return EncodeVolume(storage, vmid, model.RoleDisk, diskID, ""), true
	}
	if m := hostCloudRe.FindStringSubmatch(childPart); m != nil {
		vmid := atoiMust(m[1])
		return EncodeVolume(storage, vmid, model.RoleCloudInit, 0, ""), true
	}
	if m := hostStateRe.FindStringSubmatch(childPart); m != nil {
		vmid := atoiMust(m[1])
		return EncodeVolume(storage, vmid, model.RoleState, 0, m[2]), true
	}
	return "", false
}

// ArrayToPve is the reverse of PveToArray for plain (non-linked-clone)
// shapes: given the decoded array name and whether the owning volume is a
// template (has a pve-base snapshot), reconstruct the host-side name.
func ArrayToPve(rec ArrayVolumeName, isTemplate bool) (string, bool) {
	switch rec.Role {
	case model.RoleDisk:
		prefix := "vm"
		if isTemplate {
			prefix = "base"
		}
		return fmt.Sprintf("%s-%d-disk-%d", prefix, rec.VMID, rec.DiskID), true
	case model.RoleCloudInit:
		return fmt.Sprintf("vm-%d-cloudinit", rec.VMID), true
	case model.RoleState:
		return fmt.Sprintf("vm-%d-state-%s", rec.VMID, rec.Snapshot), true
	default:
		return "", false
	}
}

// LinkedCloneName joins a base template's host name with a child disk name,
// the slash-separated form that carries the parent relationship back to the
// host platform.
func LinkedCloneName(baseVMID, baseDiskID, childVMID, childDiskID int) string {
	return fmt.Sprintf("base-%d-disk-%d/vm-%d-disk-%d", baseVMID, baseDiskID, childVMID, childDiskID)
}

// ParseLinkedClone splits the compound "base-X/vm-Y" host-side name.
func ParseLinkedClone(hostVolname string) (base model.ParentRef, child ArrayVolumeName, ok bool) {
	m := hostLinkedRe.FindStringSubmatch(hostVolname)
	if m == nil {
		return model.ParentRef{}, ArrayVolumeName{}, false
	}
	base = model.ParentRef{BaseVMID: atoiMust(m[1]), BaseDiskID: atoiMust(m[2])}
	child = ArrayVolumeName{VMID: atoiMust(m[3]), Role: model.RoleDisk, DiskID: atoiMust(m[4])}
	return base, child, true
}

// QualifyPod prefixes name with "{pod}::" when pod is non-empty.
func QualifyPod(pod, name string) string {
	if pod == "" {
		return name
	}
	return pod + "::" + name
}

// SplitPod strips a "{pod}::" prefix if present, returning the pod and the
// remaining local name.
func SplitPod(name string) (pod, local string) {
	if idx := strings.Index(name, "::"); idx >= 0 {
		return name[:idx], name[idx+2:]
	}
	return "", name
}

// IsValidArrayName enforces the array-side naming constraint independent of
// this plugin's own grammar: 1-63 chars, leading alphanumeric,
// [A-Za-z0-9_-].
func IsValidArrayName(name string) bool {
	if len(name) < 1 || len(name) > maxArrayNameLen {
		return false
	}
	return arrayNameValidRe.MatchString(name)
}

func atoiMust(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
