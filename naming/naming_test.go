package naming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purearray-pve-plugin/model"
)

func TestEncodeVolume(t *testing.T) {
	tests := []struct {
		name   string
		storage string
		vmid   int
		role   model.Role
		diskID int
		suffix string
		want   string
	}{
		{"disk", "pure-array", 100, model.RoleDisk, 0, "", "pve-pure_array-100-disk0"},
		{"cloudinit", "pure-array", 100, model.RoleCloudInit, 0, "", "pve-pure_array-100-cloudinit"},
		{"state", "pure-array", 100, model.RoleState, 0, "suspend-1", "pve-pure_array-100-state-suspend-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeVolume(tt.storage, tt.vmid, tt.role, tt.diskID, tt.suffix)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeDecodeVolumeRoundTrip(t *testing.T) {
	name := EncodeVolume("my-storage", 205, model.RoleDisk, 3, "")
	rec, ok := DecodeVolume(name)
	require.True(t, ok)
	assert.Equal(t, 205, rec.VMID)
	assert.Equal(t, 3, rec.DiskID)
	assert.Equal(t, model.RoleDisk, rec.Role)
}

func TestDecodeVolumeRejectsSnapshotQualifiedNames(t *testing.T) {
	_, ok := DecodeVolume("pve-storage-100-disk0.pve-snap-foo")
	assert.False(t, ok)
}

func TestDecodeVolumeRejectsGarbage(t *testing.T) {
	_, ok := DecodeVolume("not-a-volume-name")
	assert.False(t, ok)
}

func TestPveToArrayAllShapes(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"disk", "vm-100-disk-0", "pve-s-100-disk0"},
		{"base disk", "base-100-disk-0", "pve-s-100-disk0"},
		{"cloudinit", "vm-100-cloudinit", "pve-s-100-cloudinit"},
		{"state", "vm-100-state-suspend", "pve-s-100-state-suspend"},
		{"linked clone takes child part", "base-100-disk-0/vm-200-disk-1", "pve-s-200-disk1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PveToArray("s", tt.host)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPveToArrayRejectsUnrecognized(t *testing.T) {
	_, ok := PveToArray("s", "totally-bogus")
	assert.False(t, ok)
}

func TestArrayToPveRoundTrip(t *testing.T) {
	arr := EncodeVolume("s", 42, model.RoleDisk, 7, "")
	rec, ok := DecodeVolume(arr)
	require.True(t, ok)

	host, ok := ArrayToPve(rec, false)
	require.True(t, ok)
	assert.Equal(t, "vm-42-disk-7", host)

	back, ok := PveToArray("s", host)
	require.True(t, ok)
	assert.Equal(t, arr, back)
}

func TestArrayToPveTemplateUsesBasePrefix(t *testing.T) {
	rec := ArrayVolumeName{Role: model.RoleDisk, VMID: 10, DiskID: 0}
	host, ok := ArrayToPve(rec, true)
	require.True(t, ok)
	assert.Equal(t, "base-10-disk-0", host)
}

func TestLinkedCloneRoundTrip(t *testing.T) {
	name := LinkedCloneName(10, 0, 20, 1)
	assert.Equal(t, "base-10-disk-0/vm-20-disk-1", name)

	base, child, ok := ParseLinkedClone(name)
	require.True(t, ok)
	assert.Equal(t, model.ParentRef{BaseVMID: 10, BaseDiskID: 0}, base)
	assert.Equal(t, 20, child.VMID)
	assert.Equal(t, 1, child.DiskID)
}

func TestQualifyPodSplitPod(t *testing.T) {
	qualified := QualifyPod("mypod", "pve-s-1-disk0")
	assert.Equal(t, "mypod::pve-s-1-disk0", qualified)

	pod, local := SplitPod(qualified)
	assert.Equal(t, "mypod", pod)
	assert.Equal(t, "pve-s-1-disk0", local)
}

func TestQualifyPodEmptyPodIsNoop(t *testing.T) {
	assert.Equal(t, "pve-s-1-disk0", QualifyPod("", "pve-s-1-disk0"))
}

func TestSplitPodWithoutPrefixReturnsWholeNameAsLocal(t *testing.T) {
	pod, local := SplitPod("pve-s-1-disk0")
	assert.Empty(t, pod)
	assert.Equal(t, "pve-s-1-disk0", local)
}

func TestSanitizeForArrayCollapsesAndTrims(t *testing.T) {
	tests := []struct {
		raw    string
		maxLen int
		want   string
	}{
		{"  My Storage!!  ", 24, "My-Storage"},
		{"---", 24, "pve"},
		{"123abc", 24, "123abc"},
		{"ábc-def", 24, "bc-def"}, // leading non-ASCII alphanumeric stripped
	}
	for _, tt := range tests {
		got := SanitizeForArray(tt.raw, tt.maxLen)
		assert.Equal(t, tt.want, got, "input %q", tt.raw)
	}
}

func TestSanitizeForArrayTruncatesAndStripsTrailingSeparator(t *testing.T) {
	got := SanitizeForArray("abcdefghij", 5)
	assert.Len(t, got, 5)
	assert.Equal(t, "abcde", got)
}

func TestEncodeSnapshotCapsLengthAndCharset(t *testing.T) {
	s := EncodeSnapshot("My Snapshot!! Name__with.dots")
	assert.True(t, strings.HasPrefix(s, "pve-snap-"))
	assert.LessOrEqual(t, len(s), maxSnapshotSuffix)
	assert.NotContains(t, s, " ")
	assert.NotContains(t, s, "_")
	assert.NotContains(t, s, ".")
}

func TestEncodeSnapshotLongNameStaysWithinBudget(t *testing.T) {
	long := strings.Repeat("a", 200)
	s := EncodeSnapshot(long)
	assert.LessOrEqual(t, len(s), maxSnapshotSuffix)
}

func TestEncodeConfigVolumeFitsWithinArrayLimit(t *testing.T) {
	name := EncodeConfigVolume("a-very-long-storage-identifier-name", 999999, strings.Repeat("snap-", 30))
	assert.LessOrEqual(t, len(name), MaxArrayNameLen)
	assert.False(t, strings.HasSuffix(name, "-"))
}

func TestEncodeHost(t *testing.T) {
	assert.Equal(t, "pve-cluster-shared", EncodeHost("cluster", ""))
	assert.Equal(t, "pve-cluster-node1", EncodeHost("cluster", "node1"))
}

func TestIsValidArrayName(t *testing.T) {
	assert.True(t, IsValidArrayName("pve-s-1-disk0"))
	assert.False(t, IsValidArrayName(""))
	assert.False(t, IsValidArrayName("-leading-dash"))
	assert.False(t, IsValidArrayName(strings.Repeat("a", 64)))
	assert.True(t, IsValidArrayName(strings.Repeat("a", 63)))
}
