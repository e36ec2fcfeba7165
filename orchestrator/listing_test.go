package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purearray-pve-plugin/model"
)

func TestListImagesIncludesPlainAndTemplateVolumes(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	ctx := context.Background()

	plain := allocDisk(t, o, 600)
	templateSrc := allocDisk(t, o, 601)
	_, err := o.CreateBase(ctx, 601, templateSrc)
	require.NoError(t, err)

	images, err := o.ListImages(ctx)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, img := range images {
		names[img.Volname] = true
	}
	assert.True(t, names[plain])
	assert.True(t, names["base-601-disk-0"], "a volume with a pve-base marker snapshot should list under its base-* name")
}

func TestListImagesExcludesDestroyedVolumes(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	ctx := context.Background()
	name := allocDisk(t, o, 602)
	require.NoError(t, o.Free(ctx, 602, name))

	images, err := o.ListImages(ctx)
	require.NoError(t, err)
	for _, img := range images {
		assert.NotEqual(t, name, img.Volname)
	}
}

func TestVolumeSizeInfoReportsProvisionedAndUsed(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	ctx := context.Background()
	name := allocDisk(t, o, 610)

	sizeKiB, format, _, parent, err := o.VolumeSizeInfo(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), sizeKiB)
	assert.Equal(t, "raw", format)
	assert.Empty(t, parent, "a plain volume has no parent template")
}

func TestVolumeSizeInfoResolvesLinkedCloneParent(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	ctx := context.Background()
	templateSrc := allocDisk(t, o, 611)
	_, err := o.CreateBase(ctx, 611, templateSrc)
	require.NoError(t, err)

	childName, err := o.CloneImage(ctx, templateSrc, 612, "")
	require.NoError(t, err)
	require.Contains(t, childName, "/", "cloning off a template must return the base/child compound name")

	_, _, _, parent, err := o.VolumeSizeInfo(ctx, childName)
	require.NoError(t, err)
	assert.Equal(t, "base-611-disk-0", parent)
}

func TestVolumeSizeInfoRejectsMissingVolume(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	_, _, _, _, err := o.VolumeSizeInfo(context.Background(), "vm-613-disk-0")
	require.Error(t, err)
}

func TestVolumeHasFeatureReportsSupportedSet(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	for _, f := range []string{"snapshot", "clone", "template", "copy", "resize", "rename"} {
		assert.True(t, o.VolumeHasFeature(f, "vm-1-disk-0", ""), "expected feature %q to be supported", f)
	}
	assert.False(t, o.VolumeHasFeature("encryption", "vm-1-disk-0", ""))
}

func TestVolumeSnapshotListExcludesTemplateMarker(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	ctx := context.Background()
	name := allocDisk(t, o, 614)
	require.NoError(t, o.Snapshot(ctx, 614, name, "before-upgrade"))
	_, err := o.CreateBase(ctx, 614, name)
	require.NoError(t, err)

	names, err := o.VolumeSnapshotList(ctx, name)
	require.NoError(t, err)
	assert.Contains(t, names, "before-upgrade")
	assert.NotContains(t, names, "pve-base")
}

func TestStatusFallsBackToArrayInfoWithoutPod(t *testing.T) {
	o, array, _, _ := newTestOrchestrator()
	array.info = model.Capacity{TotalBytes: 1000, UsedBytes: 200}

	cap_, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), cap_.TotalBytes)
}

func TestStatusUsesPodQuotaWhenConfiguredAndNonZero(t *testing.T) {
	o, array, _, _ := newTestOrchestrator()
	cfg := o.Config
	cfg.Pod = "mypod"
	o.Config = cfg
	array.pod = &model.Capacity{TotalBytes: 500, UsedBytes: 100}
	array.info = model.Capacity{TotalBytes: 999999}

	cap_, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(500), cap_.TotalBytes)
}

func TestStatusFallsBackWhenPodQuotaIsZero(t *testing.T) {
	o, array, _, _ := newTestOrchestrator()
	cfg := o.Config
	cfg.Pod = "mypod"
	o.Config = cfg
	array.pod = &model.Capacity{TotalBytes: 0}
	array.info = model.Capacity{TotalBytes: 777}

	cap_, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(777), cap_.TotalBytes)
}
