package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArrayVolumeFullName(t *testing.T) {
	v := ArrayVolume{Name: "pve-mystore-1-disk0"}
	assert.Equal(t, "pve-mystore-1-disk0", v.FullName())

	v.Pod = "mypod"
	assert.Equal(t, "mypod::pve-mystore-1-disk0", v.FullName())
}

func TestArrayVolumeWWIDIsStableFromSerial(t *testing.T) {
	v := ArrayVolume{Serial: "abc123def456abc123def456"}
	assert.Equal(t, "3624a9370abc123def456abc123def456", v.WWID())
}

func TestArraySnapshotFullNameAndTemplateMarker(t *testing.T) {
	s := ArraySnapshot{VolumeName: "pve-mystore-1-disk0", Suffix: "pve-base"}
	assert.Equal(t, "pve-mystore-1-disk0.pve-base", s.FullName())
	assert.True(t, s.IsTemplateMarker())

	s.Suffix = "pve-snap-manual"
	assert.False(t, s.IsTemplateMarker())
}

func TestCapacityAvailableBytes(t *testing.T) {
	assert.Equal(t, int64(800), Capacity{TotalBytes: 1000, UsedBytes: 200}.AvailableBytes())
	assert.Equal(t, int64(0), Capacity{TotalBytes: 1000, UsedBytes: 2000}.AvailableBytes(), "usage exceeding total clamps to zero, never negative")
	assert.Equal(t, int64(0), Capacity{}.AvailableBytes())
}
