// Package orchestrator is the glue implementing the host platform's
// storage contract on top of arrayclient, sanfabric, and device: compound
// create→connect→discover flows, each built from the same small set of
// array/fabric/device primitives, with a capability object
// (sanfabric.Protocol) threaded through every call site that needs fabric
// access.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"purearray-pve-plugin/arrayclient"
	"purearray-pve-plugin/device"
	"purearray-pve-plugin/pureconfig"
	"purearray-pve-plugin/purelog"
	"purearray-pve-plugin/sanfabric"
)

// tempClone tracks a temp clone created for snapshot path access, keyed by
// (storage, volname, snap) so deactivate_volume can find it again. The
// tracking is in-memory and per process; activate_storage's sweep finds
// clones left behind by other processes by the timestamp in their names.
type tempClone struct {
	fullName  string
	createdAt time.Time
}

// Orchestrator implements the host platform's storage contract for one
// configured storage id. One instance is constructed per process per
// configured array/storage pair; temp-clone tracking below is process-local,
// since the plugin is re-exec'd per CLI invocation rather than run as a
// long-lived daemon.
type Orchestrator struct {
	Array    arrayclient.Interface
	Proto    sanfabric.Protocol
	Resolver device.Resolver
	Config   pureconfig.Config

	StorageID string // the PVE storage.cfg id this instance serves
	NodeName  string // this cluster node's name, for per-node host registration

	tempClones sync.Map // key: storage+"/"+volname+"/"+snap -> *tempClone
}

// New constructs an Orchestrator. The caller is responsible for having
// already negotiated/authenticated the Array client and selected a
// Protocol driver matching cfg.Protocol.
func New(array arrayclient.Interface, proto sanfabric.Protocol, resolver device.Resolver,
	cfg pureconfig.Config, storageID, nodeName string) *Orchestrator {
	return &Orchestrator{
		Array:     array,
		Proto:     proto,
		Resolver:  resolver,
		Config:    cfg,
		StorageID: storageID,
		NodeName:  nodeName,
	}
}

func (o *Orchestrator) deviceTimeout() time.Duration {
	return time.Duration(o.Config.DeviceTimeout) * time.Second
}

func (o *Orchestrator) log(ctx context.Context) purelog.Logger {
	return purelog.AddContext(ctx)
}
