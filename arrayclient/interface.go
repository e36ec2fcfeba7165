package arrayclient

import (
	"context"

	"purearray-pve-plugin/model"
)

// Interface is the subset of *Client orchestrator depends on, so tests can
// inject a fake array without a real HTTPS endpoint.
type Interface interface {
	Ping(ctx context.Context) error
	ArrayInfo(ctx context.Context) (model.Capacity, error)
	GetPod(ctx context.Context, name string) (model.Capacity, bool, error)

	CreateVolume(ctx context.Context, qualifiedName string, sizeBytes int64) (model.ArrayVolume, error)
	GetVolume(ctx context.Context, qualifiedName string) (model.ArrayVolume, bool, error)
	ListVolumes(ctx context.Context, globPrefix string, includeDestroyed bool) ([]model.ArrayVolume, error)
	ResizeVolume(ctx context.Context, qualifiedName string, sizeBytes int64) error
	RenameVolume(ctx context.Context, oldName, newName string) error
	CloneVolume(ctx context.Context, sourceName, destName string) (model.ArrayVolume, error)
	OverwriteFromSnapshot(ctx context.Context, volumeName, snapshotFullName string) error
	DestroyVolume(ctx context.Context, qualifiedName string) error
	EradicateVolume(ctx context.Context, qualifiedName string) error
	RecoverVolume(ctx context.Context, qualifiedName string) error
	ListDestroyedVolumes(ctx context.Context, globPrefix string) ([]model.ArrayVolume, error)

	CreateSnapshot(ctx context.Context, volumeName, suffix string) (model.ArraySnapshot, error)
	GetSnapshot(ctx context.Context, fullName string) (model.ArraySnapshot, bool, error)
	ListSnapshots(ctx context.Context, volumeName string) ([]model.ArraySnapshot, error)
	ListTemplateMarkers(ctx context.Context, prefix string) ([]model.ArraySnapshot, error)
	DestroySnapshot(ctx context.Context, fullName string) error
	EradicateSnapshot(ctx context.Context, fullName string) error

	GetHost(ctx context.Context, name string) (model.Host, bool, error)
	ListHosts(ctx context.Context, globPrefix string) ([]model.Host, error)
	CreateHost(ctx context.Context, name string) (model.Host, error)
	GetOrCreateHost(ctx context.Context, name string) (model.Host, error)
	AddInitiator(ctx context.Context, hostName, iqnOrWwn string, isIQN bool) error
	RemoveInitiator(ctx context.Context, hostName, iqnOrWwn string, isIQN bool) error

	Connect(ctx context.Context, hostName, volumeName string) (int, error)
	Disconnect(ctx context.Context, hostName, volumeName string) error
	ListConnections(ctx context.Context, volumeName string) ([]model.Connection, error)

	ListISCSIPorts(ctx context.Context) ([]ISCSIPort, error)
	ListFCPorts(ctx context.Context) ([]FCPort, error)
}

var _ Interface = (*Client)(nil)
